package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel           = "gpt-4o-mini"
	DefaultMaxTokens       = 500
	DefaultTimeoutSeconds  = 30
	DefaultIntervalSeconds = 60
	DefaultLookbackHours   = 24
	DefaultSourceTool      = "discord"
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 18890
)

type Config struct {
	Workspace string          `json:"workspace"`
	Discord   DiscordConfig   `json:"discord"`
	Telegram  TelegramConfig  `json:"telegram"`
	Evaluator EvaluatorConfig `json:"evaluator"`
	Tracker   TrackerConfig   `json:"tracker"`
	Gateway   GatewayConfig   `json:"gateway"`
}

type DiscordConfig struct {
	Token       string `json:"token"`
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
}

type EvaluatorConfig struct {
	APIKey         string `json:"apiKey"`
	BaseURL        string `json:"baseUrl,omitempty"`
	Model          string `json:"model"`
	MaxTokens      int    `json:"maxTokens"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type TrackerConfig struct {
	SourceTool      string `json:"sourceTool"`
	IntervalSeconds int    `json:"intervalSeconds"`
	LookbackHours   int    `json:"lookbackHours"`
	// DirectSender names the transport for direct notifications. Broadcast
	// delivery stays disabled; there is no config switch for it.
	DirectSender string `json:"directSender,omitempty"`
	AutoStart    bool   `json:"autoStart"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Workspace: filepath.Join(home, ".pulse", "workspace"),
		Evaluator: EvaluatorConfig{
			Model:          DefaultModel,
			MaxTokens:      DefaultMaxTokens,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Tracker: TrackerConfig{
			SourceTool:      DefaultSourceTool,
			IntervalSeconds: DefaultIntervalSeconds,
			LookbackHours:   DefaultLookbackHours,
			DirectSender:    "discord",
		},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".pulse")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DBPath is the sqlite message store location inside the workspace.
func (c *Config) DBPath() string {
	return filepath.Join(c.Workspace, "pulse.db")
}

// TasksPath is the externally edited task definitions document.
func (c *Config) TasksPath() string {
	return filepath.Join(c.Workspace, "tasks.json")
}

// EvalLogPath is the persisted evaluation log snapshot.
func (c *Config) EvalLogPath() string {
	return filepath.Join(c.Workspace, "evaluations.json")
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

// LoadConfigFrom reads a config file and applies environment overrides. A
// missing file yields the defaults.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if token := os.Getenv("PULSE_DISCORD_TOKEN"); token != "" {
		cfg.Discord.Token = token
	}
	if token := os.Getenv("DISCORD_TOKEN"); token != "" && cfg.Discord.Token == "" {
		cfg.Discord.Token = token
	}
	if channel := os.Getenv("PULSE_DISCORD_CHANNEL"); channel != "" {
		cfg.Discord.ChannelID = channel
	}
	if token := os.Getenv("PULSE_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
		cfg.Telegram.Enabled = true
	}
	if key := os.Getenv("PULSE_EVALUATOR_API_KEY"); key != "" {
		cfg.Evaluator.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Evaluator.APIKey == "" {
		cfg.Evaluator.APIKey = key
	}
	if url := os.Getenv("PULSE_EVALUATOR_BASE_URL"); url != "" {
		cfg.Evaluator.BaseURL = url
	}
	if model := os.Getenv("PULSE_EVALUATOR_MODEL"); model != "" {
		cfg.Evaluator.Model = model
	}
	if port := os.Getenv("PULSE_GATEWAY_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}
	if ws := os.Getenv("PULSE_WORKSPACE"); ws != "" {
		cfg.Workspace = ws
	}

	if cfg.Workspace == "" {
		cfg.Workspace = DefaultConfig().Workspace
	}
	if cfg.Evaluator.Model == "" {
		cfg.Evaluator.Model = DefaultModel
	}
	if cfg.Evaluator.TimeoutSeconds <= 0 {
		cfg.Evaluator.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if cfg.Tracker.SourceTool == "" {
		cfg.Tracker.SourceTool = DefaultSourceTool
	}
	if cfg.Tracker.IntervalSeconds <= 0 {
		cfg.Tracker.IntervalSeconds = DefaultIntervalSeconds
	}
	if cfg.Tracker.LookbackHours <= 0 {
		cfg.Tracker.LookbackHours = DefaultLookbackHours
	}
	if cfg.Tracker.DirectSender == "" {
		cfg.Tracker.DirectSender = "discord"
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
