// Package evallog keeps the capped, newest-first histories of evaluation
// outcomes and pipeline errors, persisted as a JSON snapshot in the workspace.
package evallog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/commforge/pulse/internal/models"
	"github.com/google/uuid"
)

const (
	MaxEvaluations = 1000
	MaxErrors      = 100

	DefaultEvaluationLimit = 50
	DefaultErrorLimit      = 20
)

// Entry is one logged evaluation outcome.
type Entry struct {
	ID            string       `json:"id"`
	TaskID        string       `json:"taskId"`
	RequirementID string       `json:"requirementId"`
	Level         models.Level `json:"level"`
	Message       string       `json:"message"`
	Proof         string       `json:"proof"`
	ShouldNotify  bool         `json:"shouldNotify"`
	Timestamp     time.Time    `json:"timestamp"`
}

// ErrorEntry is one logged pipeline failure.
type ErrorEntry struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type snapshot struct {
	Evaluations []Entry      `json:"evaluations"`
	Errors      []ErrorEntry `json:"errors"`
}

// Log is the evaluation/error history. Appends prepend and truncate past the
// cap; reads never mutate. Appends mark the snapshot dirty and a single
// background goroutine writes it out, coalescing bursts into one write.
type Log struct {
	storePath string
	mu        sync.Mutex
	evals     []Entry
	errors    []ErrorEntry
	now       func() time.Time

	dirty  chan struct{}
	quit   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
	saveMu sync.Mutex
}

// New creates a Log persisting to storePath. An existing snapshot is loaded
// lazily on Open.
func New(storePath string) *Log {
	l := &Log{
		storePath: storePath,
		now:       time.Now,
		dirty:     make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	l.wg.Add(1)
	go l.flushLoop()
	return l
}

// Open loads a previously persisted snapshot. A missing file is not an error.
func (l *Log) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read evaluation log: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse evaluation log: %w", err)
	}
	l.evals = capEntries(snap.Evaluations, MaxEvaluations)
	l.errors = capErrors(snap.Errors, MaxErrors)
	return nil
}

// Log records one evaluation result, newest first.
func (l *Log) Log(res models.EvaluationResult) Entry {
	entry := Entry{
		ID:            uuid.NewString(),
		TaskID:        res.TaskID,
		RequirementID: res.RequirementID,
		Level:         res.Level,
		Message:       res.Message,
		Proof:         res.Proof,
		ShouldNotify:  res.ShouldNotify,
		Timestamp:     res.Timestamp,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	l.mu.Lock()
	l.evals = append([]Entry{entry}, l.evals...)
	l.evals = capEntries(l.evals, MaxEvaluations)
	l.mu.Unlock()

	l.markDirty()
	return entry
}

// LogError records one pipeline failure, newest first.
func (l *Log) LogError(source, message string) ErrorEntry {
	entry := ErrorEntry{
		ID:        uuid.NewString(),
		Source:    source,
		Message:   message,
		Timestamp: l.now(),
	}

	l.mu.Lock()
	l.errors = append([]ErrorEntry{entry}, l.errors...)
	l.errors = capErrors(l.errors, MaxErrors)
	l.mu.Unlock()

	l.markDirty()
	return entry
}

// RecentEvaluations returns up to limit entries, newest first, optionally
// filtered by task id. limit <= 0 uses the default.
func (l *Log) RecentEvaluations(taskID string, limit int) []Entry {
	if limit <= 0 {
		limit = DefaultEvaluationLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, limit)
	for _, e := range l.evals {
		if taskID != "" && e.TaskID != taskID {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}

// RecentErrors returns up to limit error entries, newest first. limit <= 0
// uses the default.
func (l *Log) RecentErrors(limit int) []ErrorEntry {
	if limit <= 0 {
		limit = DefaultErrorLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n := limit
	if n > len(l.errors) {
		n = len(l.errors)
	}
	out := make([]ErrorEntry, n)
	copy(out, l.errors[:n])
	return out
}

func (l *Log) markDirty() {
	select {
	case l.dirty <- struct{}{}:
	default:
	}
}

func (l *Log) flushLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.dirty:
			l.flush()
		case <-l.quit:
			select {
			case <-l.dirty:
				l.flush()
			default:
			}
			return
		}
	}
}

// Flush writes the current snapshot out synchronously.
func (l *Log) Flush() error {
	return l.flushErr()
}

// Close stops the background writer after a final flush. Safe to call more
// than once.
func (l *Log) Close() {
	l.closed.Do(func() {
		close(l.quit)
		l.wg.Wait()
		l.flush()
	})
}

func (l *Log) flush() {
	if err := l.flushErr(); err != nil {
		// Persistence is best-effort; the in-memory history stays intact.
		log.Printf("[evallog] save failed: %v", err)
	}
}

// flushErr snapshots under mu and writes under saveMu, so concurrent flushes
// cannot land on disk out of order.
func (l *Log) flushErr() error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()

	l.mu.Lock()
	snap := snapshot{
		Evaluations: append([]Entry(nil), l.evals...),
		Errors:      append([]ErrorEntry(nil), l.errors...),
	}
	l.mu.Unlock()

	return l.save(snap)
}

func (l *Log) save(snap snapshot) error {
	if l.storePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.storePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.storePath, data, 0644)
}

func capEntries(entries []Entry, max int) []Entry {
	if len(entries) > max {
		return entries[:max]
	}
	return entries
}

func capErrors(entries []ErrorEntry, max int) []ErrorEntry {
	if len(entries) > max {
		return entries[:max]
	}
	return entries
}
