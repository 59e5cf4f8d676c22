package evallog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/commforge/pulse/internal/models"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l := New(filepath.Join(t.TempDir(), "evaluations.json"))
	t.Cleanup(l.Close)
	return l
}

func result(taskID string, level models.Level) models.EvaluationResult {
	return models.EvaluationResult{
		TaskID:        taskID,
		RequirementID: "req-1",
		Level:         level,
		Message:       "msg",
		Proof:         "proof",
		Timestamp:     time.Now(),
		ShouldNotify:  level.ShouldNotify(),
	}
}

func TestLog_NewestFirst(t *testing.T) {
	l := newTestLog(t)

	l.Log(result("t1", models.LevelOk))
	l.Log(result("t2", models.LevelPoor))

	got := l.RecentEvaluations("", 0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].TaskID != "t2" || got[1].TaskID != "t1" {
		t.Errorf("order = [%s %s], want [t2 t1]", got[0].TaskID, got[1].TaskID)
	}
}

func TestLog_CapAtThousand(t *testing.T) {
	l := newTestLog(t)

	for i := 0; i < 1500; i++ {
		l.Log(result(fmt.Sprintf("task-%d", i), models.LevelOk))
	}

	got := l.RecentEvaluations("", MaxEvaluations+100)
	if len(got) != MaxEvaluations {
		t.Fatalf("len = %d, want %d", len(got), MaxEvaluations)
	}
	// The 1000 most recent inserts survive, newest first.
	if got[0].TaskID != "task-1499" {
		t.Errorf("newest = %s, want task-1499", got[0].TaskID)
	}
	if got[len(got)-1].TaskID != "task-500" {
		t.Errorf("oldest kept = %s, want task-500", got[len(got)-1].TaskID)
	}
}

func TestLog_FilterByTask(t *testing.T) {
	l := newTestLog(t)

	l.Log(result("alpha", models.LevelOk))
	l.Log(result("beta", models.LevelOk))
	l.Log(result("alpha", models.LevelPoor))

	got := l.RecentEvaluations("alpha", 0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, e := range got {
		if e.TaskID != "alpha" {
			t.Errorf("taskId = %s, want alpha", e.TaskID)
		}
	}
	if got[0].Level != models.LevelPoor {
		t.Errorf("newest alpha level = %s, want Poor", got[0].Level)
	}
}

func TestLog_DefaultLimits(t *testing.T) {
	l := newTestLog(t)

	for i := 0; i < 80; i++ {
		l.Log(result("t", models.LevelOk))
	}
	if got := l.RecentEvaluations("", 0); len(got) != DefaultEvaluationLimit {
		t.Errorf("default evaluation limit = %d, want %d", len(got), DefaultEvaluationLimit)
	}

	for i := 0; i < 30; i++ {
		l.LogError("tracker", "boom")
	}
	if got := l.RecentErrors(0); len(got) != DefaultErrorLimit {
		t.Errorf("default error limit = %d, want %d", len(got), DefaultErrorLimit)
	}
}

func TestLogError_CapAtHundred(t *testing.T) {
	l := newTestLog(t)

	for i := 0; i < 150; i++ {
		l.LogError("tracker", fmt.Sprintf("err-%d", i))
	}

	got := l.RecentErrors(MaxErrors + 10)
	if len(got) != MaxErrors {
		t.Fatalf("len = %d, want %d", len(got), MaxErrors)
	}
	if got[0].Message != "err-149" {
		t.Errorf("newest = %s, want err-149", got[0].Message)
	}
}

func TestLog_ReadsDoNotMutate(t *testing.T) {
	l := newTestLog(t)
	l.Log(result("t", models.LevelExcellent))

	_ = l.RecentEvaluations("", 1)
	_ = l.RecentEvaluations("", 1)

	if got := l.RecentEvaluations("", 0); len(got) != 1 {
		t.Errorf("len after reads = %d, want 1", len(got))
	}
}

func TestLog_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evaluations.json")

	l := New(path)
	l.Log(result("t1", models.LevelPoor))
	l.LogError("store", "read failed")
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snap.Evaluations) != 1 || len(snap.Errors) != 1 {
		t.Fatalf("snapshot sizes = %d/%d, want 1/1", len(snap.Evaluations), len(snap.Errors))
	}

	reloaded := New(path)
	if err := reloaded.Open(); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if got := reloaded.RecentEvaluations("", 0); len(got) != 1 || got[0].TaskID != "t1" {
		t.Errorf("reloaded evaluations = %+v", got)
	}
	if got := reloaded.RecentErrors(0); len(got) != 1 || got[0].Source != "store" {
		t.Errorf("reloaded errors = %+v", got)
	}
}

func TestLog_FlushWritesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evaluations.json")

	l := New(path)
	defer l.Close()

	// A burst of appends coalesces in the background writer; Flush makes
	// the on-disk state current without waiting for it.
	for i := 0; i < 200; i++ {
		l.Log(result(fmt.Sprintf("task-%d", i), models.LevelOk))
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("Flush error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snap.Evaluations) != 200 {
		t.Errorf("snapshot evaluations = %d, want 200", len(snap.Evaluations))
	}
	if snap.Evaluations[0].TaskID != "task-199" {
		t.Errorf("newest = %s, want task-199", snap.Evaluations[0].TaskID)
	}
}

func TestLog_CloseIsIdempotent(t *testing.T) {
	l := newTestLog(t)
	l.Log(result("t1", models.LevelOk))

	l.Close()
	l.Close() // second close must not panic or deadlock

	// Appends after close still land in memory.
	l.Log(result("t2", models.LevelOk))
	if got := l.RecentEvaluations("", 0); len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestLog_OpenMissingFile(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "nope", "evaluations.json"))
	if err := l.Open(); err != nil {
		t.Errorf("Open on missing file: %v", err)
	}
}
