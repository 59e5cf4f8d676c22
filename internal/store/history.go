package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/commforge/pulse/internal/models"
)

// Channel kinds tracked in notification history.
const (
	KindDirectMessage = "directMessage"
	KindBroadcast     = "broadcast"
)

// LastNotified returns the raw stored timestamp for one throttle key, or ""
// when no history exists. The raw string is returned as-is so callers can
// apply fail-open parsing.
func (s *Store) LastNotified(userID, taskID, requirementID, kind string) (string, error) {
	var lastSent string
	err := s.db.QueryRow(`SELECT last_sent FROM notification_history
		WHERE user_id = ? AND task_id = ? AND requirement_id = ? AND channel_kind = ?`,
		userID, taskID, requirementID, kind).Scan(&lastSent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read notification history: %w", err)
	}
	return lastSent, nil
}

// RecordNotified upserts the last-sent timestamp for one throttle key.
func (s *Store) RecordNotified(userID, taskID, requirementID, kind string, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO notification_history
		(user_id, task_id, requirement_id, channel_kind, last_sent)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, task_id, requirement_id, channel_kind)
		DO UPDATE SET last_sent = excluded.last_sent`,
		userID, taskID, requirementID, kind, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

// SaveMetricsSnapshot persists one aggregated metrics set for a channel.
func (s *Store) SaveMetricsSnapshot(channelID string, takenAt time.Time, stats []models.UserMetrics) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO metrics_snapshots (channel_id, taken_at, payload)
		VALUES (?, ?, ?)`,
		channelID, takenAt.UTC().Format(time.RFC3339Nano), string(payload)); err != nil {
		return fmt.Errorf("save metrics snapshot: %w", err)
	}
	return nil
}

// LatestMetricsSnapshot returns the newest snapshot for a channel, or nil
// when none exists.
func (s *Store) LatestMetricsSnapshot(channelID string) ([]models.UserMetrics, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM metrics_snapshots
		WHERE channel_id = ? ORDER BY taken_at DESC, id DESC LIMIT 1`,
		channelID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metrics snapshot: %w", err)
	}

	var stats []models.UserMetrics
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		return nil, fmt.Errorf("parse metrics snapshot: %w", err)
	}
	return stats, nil
}
