// Package tracker runs the fixed-interval fetch, aggregate, evaluate, log,
// notify cycle.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/commforge/pulse/internal/evallog"
	"github.com/commforge/pulse/internal/evaluator"
	"github.com/commforge/pulse/internal/metrics"
	"github.com/commforge/pulse/internal/models"
	"github.com/commforge/pulse/internal/store"
	"github.com/commforge/pulse/internal/task"
	rcron "github.com/robfig/cron/v3"
)

// DefaultInterval is the cycle period.
const DefaultInterval = 60 * time.Second

// TaskSource provides the current task/requirement definitions.
type TaskSource interface {
	Load() (*task.Definitions, error)
}

// Storage is the slice of the message store the tracker uses.
type Storage interface {
	ReadMessages(q store.MessageQuery, limit int) ([]models.Message, error)
	SaveMetricsSnapshot(channelID string, takenAt time.Time, stats []models.UserMetrics) error
}

// Dispatcher delivers notifiable evaluation results.
type Dispatcher interface {
	Dispatch(ctx context.Context, res models.EvaluationResult, t models.Task, req models.Requirement) error
}

// Config bounds one tracker instance.
type Config struct {
	SourceTool string
	ChannelID  string
	Lookback   time.Duration
	Interval   time.Duration
}

// Tracker is the two-state (stopped/running) cycle scheduler. A single
// instance owns all pipeline state; Start and Stop are idempotent.
type Tracker struct {
	cfg        Config
	tasks      TaskSource
	storage    Storage
	eval       evaluator.Evaluator
	evals      *evallog.Log
	dispatcher Dispatcher

	mu          sync.Mutex
	running     bool
	cron        *rcron.Cron
	lastRun     *time.Time
	activeTasks int

	now func() time.Time
}

// New wires a tracker. The interval defaults to one minute.
func New(cfg Config, tasks TaskSource, storage Storage, eval evaluator.Evaluator, evals *evallog.Log, dispatcher Dispatcher) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Tracker{
		cfg:        cfg,
		tasks:      tasks,
		storage:    storage,
		eval:       eval,
		evals:      evals,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Start transitions to running: one immediate cycle, then a recurring timer.
// A second Start while running is a no-op.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = true

	c := rcron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", t.cfg.Interval), func() {
		t.Track(ctx)
	}); err != nil {
		t.running = false
		t.mu.Unlock()
		return fmt.Errorf("arm tracker timer: %w", err)
	}
	t.cron = c
	t.mu.Unlock()

	t.Track(ctx)

	// A Stop can land while the first cycle runs. Re-check before arming the
	// timer so a stopped tracker never keeps a live cron behind its back.
	t.mu.Lock()
	if !t.running || t.cron != c {
		t.mu.Unlock()
		return nil
	}
	c.Start()
	t.mu.Unlock()

	log.Printf("[tracker] started, interval %s", t.cfg.Interval)
	return nil
}

// Stop cancels future ticks. In-flight cycle work is not interrupted. A Stop
// while already stopped is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	c := t.cron
	t.cron = nil
	t.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	log.Printf("[tracker] stopped")
}

// Status returns a read-only snapshot of the scheduler state.
func (t *Tracker) Status() models.TrackerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	status := models.TrackerStatus{
		IsTracking:      t.running,
		ActiveTaskCount: t.activeTasks,
	}
	if t.lastRun != nil {
		lr := *t.lastRun
		status.LastRun = &lr
	}
	return status
}

// Track runs one cycle. Any failure aborts the remainder of the cycle, is
// recorded to the error log, and leaves the scheduler alive for the next
// tick. Cycles may overlap when one outlives the interval.
func (t *Tracker) Track(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.fail("cycle panic: %v", r)
		}
	}()

	defs, err := t.tasks.Load()
	if err != nil {
		t.fail("load task definitions: %v", err)
		return
	}
	trackable := defs.Trackable(t.cfg.SourceTool)

	now := t.now()
	t.mu.Lock()
	t.lastRun = &now
	t.activeTasks = len(trackable)
	t.mu.Unlock()

	if len(trackable) == 0 {
		return
	}

	query := store.MessageQuery{ChannelID: t.cfg.ChannelID}
	if t.cfg.Lookback > 0 {
		query.Since = now.Add(-t.cfg.Lookback)
	}
	messages, err := t.storage.ReadMessages(query, 0)
	if err != nil {
		t.fail("read messages: %v", err)
		return
	}

	stats := metrics.Aggregate(messages)

	// Snapshot persistence is fire-and-forget; a failed write never costs
	// the cycle.
	go func() {
		if err := t.storage.SaveMetricsSnapshot(t.cfg.ChannelID, now, stats); err != nil {
			log.Printf("[tracker] persist metrics snapshot: %v", err)
		}
	}()

	for _, tk := range trackable {
		for _, reqID := range tk.RequirementsActive {
			req, ok := defs.Requirement(reqID)
			if !ok {
				t.fail("task %s references unknown requirement %s", tk.ID, reqID)
				continue
			}

			score := t.eval.Evaluate(ctx, stats, req)
			res := models.EvaluationResult{
				TaskID:        tk.ID,
				RequirementID: req.ID,
				Level:         score.Level,
				Message:       score.Message,
				Proof:         score.Proof,
				Timestamp:     t.now(),
				ShouldNotify:  score.Level.ShouldNotify(),
			}
			t.evals.Log(res)

			if res.ShouldNotify {
				if err := t.dispatcher.Dispatch(ctx, res, tk, req); err != nil {
					t.fail("dispatch task %s req %s: %v", tk.ID, req.ID, err)
				}
			}
		}
	}
}

func (t *Tracker) fail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[tracker] %s", msg)
	t.evals.LogError("tracker", msg)
}
