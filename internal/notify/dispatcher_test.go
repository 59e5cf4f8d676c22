package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/commforge/pulse/internal/models"
	"github.com/commforge/pulse/internal/store"
)

type historyKey struct {
	user, task, req, kind string
}

type fakeHistory struct {
	entries   map[historyKey]string
	readErr   error
	writeErr  error
	lastWrite time.Time
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: map[historyKey]string{}}
}

func (f *fakeHistory) LastNotified(user, task, req, kind string) (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.entries[historyKey{user, task, req, kind}], nil
}

func (f *fakeHistory) RecordNotified(user, task, req, kind string, at time.Time) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.entries[historyKey{user, task, req, kind}] = at.Format(time.RFC3339Nano)
	f.lastWrite = at
	return nil
}

type fakeSender struct {
	sent    []string
	targets []string
	err     error
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) SendDirect(_ context.Context, userID, text string) (*models.SendReceipt, error) {
	f.targets = append(f.targets, userID)
	f.sent = append(f.sent, text)
	if f.err != nil {
		return nil, f.err
	}
	return &models.SendReceipt{MessageID: "m1", Timestamp: time.Now(), Content: text}, nil
}

func (f *fakeSender) Broadcast(_ context.Context, channelID, text string) (*models.SendReceipt, error) {
	return nil, fmt.Errorf("broadcast disabled")
}

func poorResult() models.EvaluationResult {
	return models.EvaluationResult{
		TaskID:        "t1",
		RequirementID: "r1",
		Level:         models.LevelPoor,
		Message:       "step it up",
		Timestamp:     time.Now(),
		ShouldNotify:  true,
	}
}

func testTask() models.Task {
	return models.Task{ID: "t1", OwnerID: "u1", Tools: []string{"discord"}, RequirementsActive: []string{"r1"}}
}

func testReq() models.Requirement {
	return models.Requirement{ID: "r1", Title: "activity"}
}

func TestDispatch_SendsAndRecords(t *testing.T) {
	history := newFakeHistory()
	sender := &fakeSender{}
	d := NewDispatcher(history, sender)

	if err := d.Dispatch(context.Background(), poorResult(), testTask(), testReq()); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0] != "step it up" {
		t.Errorf("sent = %v", sender.sent)
	}
	if sender.targets[0] != "u1" {
		t.Errorf("target = %s, want u1", sender.targets[0])
	}
	if history.entries[historyKey{"u1", "t1", "r1", store.KindDirectMessage}] == "" {
		t.Error("history not recorded")
	}
}

func TestDispatch_NotNotifiableIsNoop(t *testing.T) {
	history := newFakeHistory()
	sender := &fakeSender{}
	d := NewDispatcher(history, sender)

	res := poorResult()
	res.Level = models.LevelOk
	res.ShouldNotify = false

	if err := d.Dispatch(context.Background(), res, testTask(), testReq()); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent = %v, want none", sender.sent)
	}
	if len(history.entries) != 0 {
		t.Error("history should be untouched")
	}
}

func TestDispatch_ThrottledWithinWindow(t *testing.T) {
	history := newFakeHistory()
	sender := &fakeSender{}
	d := NewDispatcher(history, sender)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	history.entries[historyKey{"u1", "t1", "r1", store.KindDirectMessage}] =
		now.Add(-30 * time.Second).Format(time.RFC3339Nano)

	if err := d.Dispatch(context.Background(), poorResult(), testTask(), testReq()); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent = %v, want throttled", sender.sent)
	}
	// Throttled dispatch leaves the stored timestamp alone.
	got := history.entries[historyKey{"u1", "t1", "r1", store.KindDirectMessage}]
	if got != now.Add(-30*time.Second).Format(time.RFC3339Nano) {
		t.Errorf("history overwritten to %q", got)
	}
}

func TestDispatch_WindowExpired(t *testing.T) {
	history := newFakeHistory()
	sender := &fakeSender{}
	d := NewDispatcher(history, sender)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	history.entries[historyKey{"u1", "t1", "r1", store.KindDirectMessage}] =
		now.Add(-61 * time.Second).Format(time.RFC3339Nano)

	if err := d.Dispatch(context.Background(), poorResult(), testTask(), testReq()); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent = %v, want one send", sender.sent)
	}
}

func TestDispatch_UnparseableHistoryFailsOpen(t *testing.T) {
	history := newFakeHistory()
	sender := &fakeSender{}
	d := NewDispatcher(history, sender)
	history.entries[historyKey{"u1", "t1", "r1", store.KindDirectMessage}] = "corrupted"

	if err := d.Dispatch(context.Background(), poorResult(), testTask(), testReq()); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Error("corrupted history must not block sends")
	}
}

func TestDispatch_FailedSendStillConsumesWindow(t *testing.T) {
	history := newFakeHistory()
	sender := &fakeSender{err: fmt.Errorf("transport down")}
	d := NewDispatcher(history, sender)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	err := d.Dispatch(context.Background(), poorResult(), testTask(), testReq())
	if err == nil {
		t.Fatal("expected send error to surface")
	}
	// The timestamp is recorded regardless of the send outcome.
	if !history.lastWrite.Equal(now) {
		t.Errorf("lastWrite = %v, want %v", history.lastWrite, now)
	}

	// A retry within the window is now throttled.
	sender.err = nil
	d.now = func() time.Time { return now.Add(30 * time.Second) }
	if err := d.Dispatch(context.Background(), poorResult(), testTask(), testReq()); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sends = %d, want 1 (retry throttled)", len(sender.sent))
	}
}

func TestDispatch_HistoryReadErrorFailsOpen(t *testing.T) {
	history := newFakeHistory()
	history.readErr = fmt.Errorf("store unreachable")
	sender := &fakeSender{}
	d := NewDispatcher(history, sender)

	if err := d.Dispatch(context.Background(), poorResult(), testTask(), testReq()); err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Error("history read failure must not block sends")
	}
}

func TestDispatch_MissingOwner(t *testing.T) {
	d := NewDispatcher(newFakeHistory(), &fakeSender{})
	task := testTask()
	task.OwnerID = ""

	if err := d.Dispatch(context.Background(), poorResult(), task, testReq()); err == nil {
		t.Error("expected error for ownerless task")
	}
}
