package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/commforge/pulse/internal/models"
	"github.com/commforge/pulse/internal/store"
)

// HistoryStore is the persisted notification history the throttle reads
// from and writes to.
type HistoryStore interface {
	LastNotified(userID, taskID, requirementID, kind string) (string, error)
	RecordNotified(userID, taskID, requirementID, kind string, at time.Time) error
}

// Dispatcher consults the throttle, sends through the direct transport and
// updates history.
type Dispatcher struct {
	history HistoryStore
	sender  Sender
	now     func() time.Time
}

// NewDispatcher wires the dispatcher against a history store and a sender.
func NewDispatcher(history HistoryStore, sender Sender) *Dispatcher {
	return &Dispatcher{history: history, sender: sender, now: time.Now}
}

// Dispatch delivers one notifiable evaluation result to the task owner over
// the direct-message path. Results not flagged notifiable are ignored.
//
// The throttle timestamp is updated after every send attempt, whether or not
// the send succeeded: a failed send still consumes the window and delays the
// next attempt. That asymmetry is deliberate and matched to the tracked
// behavior; do not "fix" it here without a stronger delivery requirement.
func (d *Dispatcher) Dispatch(ctx context.Context, res models.EvaluationResult, task models.Task, req models.Requirement) error {
	if !res.ShouldNotify {
		return nil
	}
	if task.OwnerID == "" {
		return fmt.Errorf("task %s has no owner to notify", task.ID)
	}

	last, err := d.history.LastNotified(task.OwnerID, task.ID, req.ID, store.KindDirectMessage)
	if err != nil {
		// A history read failure degrades to "no history": notifications
		// fail open rather than silently stopping.
		log.Printf("[notify] history read failed for user=%s task=%s req=%s: %v",
			task.OwnerID, task.ID, req.ID, err)
		last = ""
	}

	now := d.now()
	if !CanSend(last, now) {
		return nil
	}

	_, sendErr := d.sender.SendDirect(ctx, task.OwnerID, res.Message)
	if sendErr != nil {
		log.Printf("[notify] send failed for user=%s task=%s req=%s: %v",
			task.OwnerID, task.ID, req.ID, sendErr)
	}

	if err := d.history.RecordNotified(task.OwnerID, task.ID, req.ID, store.KindDirectMessage, now); err != nil {
		if sendErr != nil {
			return fmt.Errorf("send failed (%v); record history: %w", sendErr, err)
		}
		return fmt.Errorf("record history: %w", err)
	}
	if sendErr != nil {
		return fmt.Errorf("send notification: %w", sendErr)
	}
	return nil
}
