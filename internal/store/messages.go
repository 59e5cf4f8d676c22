package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/commforge/pulse/internal/models"
)

// MessageQuery bounds a message read. The zero value returns all messages.
type MessageQuery struct {
	ChannelID string
	Since     time.Time
}

// UpsertMessage inserts a message or refreshes its mutable columns (content,
// edit timestamp, attachments, embeds, reactions) when it already exists.
func (s *Store) UpsertMessage(msg models.Message) error {
	attachments, err := json.Marshal(sliceOrEmpty(msg.Attachments))
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	embeds, err := json.Marshal(embedsOrEmpty(msg.Embeds))
	if err != nil {
		return fmt.Errorf("marshal embeds: %w", err)
	}
	reactions, err := json.Marshal(reactionsOrEmpty(msg.Reactions))
	if err != nil {
		return fmt.Errorf("marshal reactions: %w", err)
	}

	var editedAt any
	if msg.EditedAt != nil {
		editedAt = msg.EditedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.Exec(`INSERT INTO messages
		(message_id, content, author_id, author_username, channel_id, channel_name,
		 timestamp, edited_at, attachments, embeds, reactions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			content = excluded.content,
			edited_at = excluded.edited_at,
			attachments = excluded.attachments,
			embeds = excluded.embeds,
			reactions = excluded.reactions`,
		msg.ID, msg.Content, msg.AuthorID, msg.AuthorUsername,
		msg.ChannelID, msg.ChannelName,
		msg.Timestamp.UTC().Format(time.RFC3339Nano), editedAt,
		string(attachments), string(embeds), string(reactions))
	if err != nil {
		return fmt.Errorf("upsert message %s: %w", msg.ID, err)
	}
	return nil
}

// UpdateReactions replaces the stored reaction set of one message. Unknown
// message ids are ignored; reaction events can outrun ingestion.
func (s *Store) UpdateReactions(messageID string, reactions []models.Reaction) error {
	payload, err := json.Marshal(reactionsOrEmpty(reactions))
	if err != nil {
		return fmt.Errorf("marshal reactions: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE messages SET reactions = ? WHERE message_id = ?`,
		string(payload), messageID); err != nil {
		return fmt.Errorf("update reactions %s: %w", messageID, err)
	}
	return nil
}

// ReadMessages returns messages matching the query in chronological order.
// limit <= 0 means no limit.
func (s *Store) ReadMessages(q MessageQuery, limit int) ([]models.Message, error) {
	query := `SELECT message_id, content, author_id, author_username, channel_id,
		channel_name, timestamp, edited_at, attachments, embeds, reactions
		FROM messages`
	var (
		conds []string
		args  []any
	)
	if q.ChannelID != "" {
		conds = append(conds, "channel_id = ?")
		args = append(args, q.ChannelID)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY timestamp ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return out, nil
}

func scanMessage(rows *sql.Rows) (models.Message, error) {
	var (
		msg         models.Message
		ts          string
		editedAt    sql.NullString
		attachments string
		embeds      string
		reactions   string
	)
	if err := rows.Scan(&msg.ID, &msg.Content, &msg.AuthorID, &msg.AuthorUsername,
		&msg.ChannelID, &msg.ChannelName, &ts, &editedAt,
		&attachments, &embeds, &reactions); err != nil {
		return models.Message{}, fmt.Errorf("scan message: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return models.Message{}, fmt.Errorf("parse message timestamp %q: %w", ts, err)
	}
	msg.Timestamp = parsed

	if editedAt.Valid && editedAt.String != "" {
		if edited, err := time.Parse(time.RFC3339Nano, editedAt.String); err == nil {
			msg.EditedAt = &edited
		}
	}
	if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
		return models.Message{}, fmt.Errorf("parse attachments for %s: %w", msg.ID, err)
	}
	if err := json.Unmarshal([]byte(embeds), &msg.Embeds); err != nil {
		return models.Message{}, fmt.Errorf("parse embeds for %s: %w", msg.ID, err)
	}
	if err := json.Unmarshal([]byte(reactions), &msg.Reactions); err != nil {
		return models.Message{}, fmt.Errorf("parse reactions for %s: %w", msg.ID, err)
	}
	return msg, nil
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func embedsOrEmpty(e []json.RawMessage) []json.RawMessage {
	if e == nil {
		return []json.RawMessage{}
	}
	return e
}

func reactionsOrEmpty(r []models.Reaction) []models.Reaction {
	if r == nil {
		return []models.Reaction{}
	}
	return r
}
