package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/commforge/pulse/internal/config"
	"github.com/commforge/pulse/internal/gateway"
	"github.com/commforge/pulse/internal/models"
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "pulse - community activity tracker and evaluator",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway (ingest + tracker + API)",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and workspace",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pulse status",
	RunE:  runStatus,
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Control the running tracker",
}

var trackStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tracking cycle",
	RunE:  runTrackStart,
}

var trackStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the tracking cycle",
	RunE:  runTrackStop,
}

var trackStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the tracking cycle state",
	RunE:  runTrackStatus,
}

func init() {
	trackCmd.AddCommand(trackStartCmd, trackStopCmd, trackStatusCmd)
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd, trackCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord token not set. Run 'pulse onboard' or set PULSE_DISCORD_TOKEN")
	}
	if cfg.Evaluator.APIKey == "" {
		return fmt.Errorf("evaluator API key not set. Run 'pulse onboard' or set PULSE_EVALUATOR_API_KEY / OPENAI_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, _ := config.LoadConfig()
	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	writeIfNotExists(cfg.TasksPath(), defaultTasksJSON)

	fmt.Printf("Workspace ready: %s\n", cfg.Workspace)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your Discord token and evaluator API key\n", cfgPath)
	fmt.Printf("  2. Edit %s to define tracked tasks\n", cfg.TasksPath())
	fmt.Println("  3. Run 'pulse serve' to start the gateway")
	fmt.Println("  4. Run 'pulse track start' to begin tracking")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Workspace: %s\n", cfg.Workspace)
	fmt.Printf("Channel: %s\n", orUnset(cfg.Discord.ChannelID))
	fmt.Printf("Evaluator model: %s\n", cfg.Evaluator.Model)
	fmt.Printf("Discord token: %s\n", maskSecret(cfg.Discord.Token))
	fmt.Printf("Evaluator API key: %s\n", maskSecret(cfg.Evaluator.APIKey))
	fmt.Printf("Telegram: enabled=%v\n", cfg.Telegram.Enabled)
	fmt.Printf("Interval: %ds, lookback: %dh\n", cfg.Tracker.IntervalSeconds, cfg.Tracker.LookbackHours)

	if _, err := os.Stat(cfg.TasksPath()); err != nil {
		fmt.Println("Tasks: not found (run 'pulse onboard')")
	}

	status, err := fetchTrackerStatus(cfg)
	if err != nil {
		fmt.Println("Gateway: not running")
		return nil
	}
	fmt.Printf("Gateway: running, tracking=%v, active tasks=%d\n", status.IsTracking, status.ActiveTaskCount)
	if status.LastRun != nil {
		fmt.Printf("Last run: %s\n", status.LastRun.Format(time.RFC3339))
	}

	return nil
}

func runTrackStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	body, err := postGateway(cfg, "/api/tracker/start")
	if err != nil {
		return err
	}
	fmt.Printf("Tracker started: %s\n", body)
	return nil
}

func runTrackStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	body, err := postGateway(cfg, "/api/tracker/stop")
	if err != nil {
		return err
	}
	fmt.Printf("Tracker stopped: %s\n", body)
	return nil
}

func runTrackStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	status, err := fetchTrackerStatus(cfg)
	if err != nil {
		return fmt.Errorf("gateway not reachable: %w", err)
	}

	fmt.Printf("Tracking: %v\n", status.IsTracking)
	fmt.Printf("Active tasks: %d\n", status.ActiveTaskCount)
	if status.LastRun != nil {
		fmt.Printf("Last run: %s\n", status.LastRun.Format(time.RFC3339))
	} else {
		fmt.Println("Last run: never")
	}
	return nil
}

func gatewayBaseURL(cfg *config.Config) string {
	host := cfg.Gateway.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Gateway.Port)
}

func fetchTrackerStatus(cfg *config.Config) (*models.TrackerStatus, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(gatewayBaseURL(cfg) + "/api/tracker/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}

	var status models.TrackerStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

func postGateway(cfg *config.Config, path string) (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(gatewayBaseURL(cfg)+path, "application/json", bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("gateway not reachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway returned %s: %s", resp.Status, body)
	}
	return string(bytes.TrimSpace(body)), nil
}

func maskSecret(s string) string {
	if s == "" {
		return "not set"
	}
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return "set"
}

func orUnset(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

func writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultTasksJSON = `{
  "requirements": [
    {
      "id": "req-activity",
      "title": "Daily activity",
      "measure": "Members should post at least a handful of messages per day.",
      "severity": "normal"
    }
  ],
  "groups": [
    {
      "id": "group-community",
      "name": "Community",
      "tasks": [
        {
          "id": "task-general",
          "title": "General channel engagement",
          "ownerId": "",
          "tools": ["discord"],
          "requirements": ["req-activity"],
          "requirementsActive": ["req-activity"]
        }
      ]
    }
  ]
}
`
