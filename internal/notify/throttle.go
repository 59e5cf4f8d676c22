package notify

import "time"

// Window is the minimum interval between two notifications for the same
// (user, task, requirement) key.
const Window = 60 * time.Second

// CanSend reports whether a notification may go out given the raw stored
// last-sent timestamp. An absent or unparseable value counts as no history
// (fail-open), so corrupt state can never permanently silence a user.
func CanSend(lastSent string, now time.Time) bool {
	if lastSent == "" {
		return true
	}
	ts, err := time.Parse(time.RFC3339Nano, lastSent)
	if err != nil {
		return true
	}
	return now.Sub(ts) >= Window
}
