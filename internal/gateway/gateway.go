// Package gateway wires the ingest, tracker, evaluator and notification
// components together and serves the control API.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/commforge/pulse/internal/config"
	"github.com/commforge/pulse/internal/evallog"
	"github.com/commforge/pulse/internal/evaluator"
	"github.com/commforge/pulse/internal/ingest"
	"github.com/commforge/pulse/internal/notify"
	"github.com/commforge/pulse/internal/store"
	"github.com/commforge/pulse/internal/task"
	"github.com/commforge/pulse/internal/tracker"
)

// Options for creating a Gateway
type Options struct {
	Evaluator  evaluator.Evaluator // for testing, replaces the OpenAI client
	SignalChan chan os.Signal      // for testing signal handling
}

type Gateway struct {
	cfg        *config.Config
	store      *store.Store
	evals      *evallog.Log
	tasks      *task.Source
	ingest     *ingest.Discord
	senders    *notify.Manager
	tracker    *tracker.Tracker
	httpServer *http.Server
	signalChan chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	if cfg.Discord.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}

	g := &Gateway{cfg: cfg}

	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = st

	g.evals = evallog.New(cfg.EvalLogPath())
	if err := g.evals.Open(); err != nil {
		log.Printf("[gateway] evaluation log load warning: %v", err)
	}

	g.tasks = task.NewSource(cfg.TasksPath())

	ing, err := ingest.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID, cfg.Discord.ChannelName, st)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create discord ingest: %w", err)
	}
	g.ingest = ing

	senders := []notify.Sender{notify.NewDiscordSender(ing.Session())}
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramSender(cfg.Telegram.Token)
		if err != nil {
			log.Printf("[gateway] telegram sender warning: %v", err)
		} else {
			senders = append(senders, tg)
		}
	}
	mgr, err := notify.NewManager(cfg.Tracker.DirectSender, senders...)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create sender manager: %w", err)
	}
	g.senders = mgr

	eval := opts.Evaluator
	if eval == nil {
		eval = evaluator.NewOpenAI(evaluator.Config{
			APIKey:    cfg.Evaluator.APIKey,
			BaseURL:   cfg.Evaluator.BaseURL,
			Model:     cfg.Evaluator.Model,
			MaxTokens: cfg.Evaluator.MaxTokens,
			Timeout:   time.Duration(cfg.Evaluator.TimeoutSeconds) * time.Second,
		})
	}

	dispatcher := notify.NewDispatcher(st, mgr.Direct())

	g.tracker = tracker.New(tracker.Config{
		SourceTool: cfg.Tracker.SourceTool,
		ChannelID:  cfg.Discord.ChannelID,
		Lookback:   time.Duration(cfg.Tracker.LookbackHours) * time.Hour,
		Interval:   time.Duration(cfg.Tracker.IntervalSeconds) * time.Second,
	}, g.tasks, st, eval, g.evals, dispatcher)

	g.signalChan = opts.SignalChan

	return g, nil
}

// Tracker exposes the scheduler, mainly for the CLI status path.
func (g *Gateway) Tracker() *tracker.Tracker {
	return g.tracker
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := g.ingest.Start(ctx); err != nil {
		return fmt.Errorf("start discord ingest: %w", err)
	}
	log.Printf("[gateway] discord ingest connected")

	if g.cfg.Tracker.AutoStart {
		if err := g.tracker.Start(ctx); err != nil {
			log.Printf("[gateway] tracker autostart warning: %v", err)
		} else {
			log.Printf("[gateway] tracker started (interval %ds)", g.cfg.Tracker.IntervalSeconds)
		}
	}

	api := NewAPI(ctx, g.tracker, g.evals)
	addr := fmt.Sprintf("%s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)
	g.httpServer = &http.Server{Addr: addr, Handler: api.Router()}
	go func() {
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[gateway] http server error: %v", err)
		}
	}()

	log.Printf("[gateway] running on %s", addr)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) Shutdown() error {
	g.tracker.Stop()

	if g.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[gateway] http shutdown warning: %v", err)
		}
	}

	if err := g.ingest.Stop(); err != nil {
		log.Printf("[gateway] discord close warning: %v", err)
	}
	g.evals.Close()
	if err := g.store.Close(); err != nil {
		log.Printf("[gateway] close store warning: %v", err)
	}

	log.Printf("[gateway] shutdown complete")
	return nil
}
