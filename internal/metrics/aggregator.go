package metrics

import (
	"sort"

	"github.com/commforge/pulse/internal/models"
)

// Aggregate turns a raw message window into per-participant engagement
// statistics. Input order does not matter; messages are stably sorted by
// timestamp first, ties keeping input order. The result is rebuilt from
// scratch on every call.
func Aggregate(messages []models.Message) []models.UserMetrics {
	ordered := make([]models.Message, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	byAuthor := make(map[string]*models.UserMetrics)
	authorOrder := make([]string, 0, len(ordered))

	record := func(authorID, username string) *models.UserMetrics {
		if m, ok := byAuthor[authorID]; ok {
			if m.AuthorUsername == "" {
				m.AuthorUsername = username
			}
			return m
		}
		m := &models.UserMetrics{AuthorID: authorID, AuthorUsername: username}
		byAuthor[authorID] = m
		authorOrder = append(authorOrder, authorID)
		return m
	}

	// Pass 1: per-message counters in chronological order.
	for i := range ordered {
		msg := &ordered[i]
		m := record(msg.AuthorID, msg.AuthorUsername)

		m.TotalMessages++
		m.TotalMessageLength += len(msg.Content)

		ts := msg.Timestamp
		if m.FirstMessage == nil || ts.Before(*m.FirstMessage) {
			first := ts
			m.FirstMessage = &first
		}
		if m.LastMessage == nil || ts.After(*m.LastMessage) {
			last := ts
			m.LastMessage = &last
		}

		if msg.EditedAt != nil {
			m.EditedMessages++
		}
		// Presence counts: messages carrying at least one attachment or
		// embed, not the total number of attached objects.
		if len(msg.Attachments) > 0 {
			m.AttachmentsCount++
		}
		if len(msg.Embeds) > 0 {
			m.EmbedsCount++
		}

		m.MentionsSent += len(ParseMentions(msg.Content))

		for _, r := range msg.Reactions {
			m.TotalReactionsReceived += r.Count
		}
	}

	// Pass 2: response-time attribution. For each distinct mentioned user,
	// the first later message they author closes the mention.
	for i := range ordered {
		msg := &ordered[i]
		for _, mentioned := range distinctMentions(msg.Content) {
			if mentioned == msg.AuthorID {
				continue
			}
			for j := i + 1; j < len(ordered); j++ {
				if ordered[j].AuthorID != mentioned {
					continue
				}
				if m, ok := byAuthor[mentioned]; ok {
					delta := ordered[j].Timestamp.Sub(msg.Timestamp)
					m.ResponseTimes = append(m.ResponseTimes, delta.Seconds())
				}
				break
			}
		}
	}

	out := make([]models.UserMetrics, 0, len(authorOrder))
	for _, id := range authorOrder {
		m := byAuthor[id]
		finalize(m)
		out = append(out, *m)
	}
	return out
}

func finalize(m *models.UserMetrics) {
	if m.TotalMessages > 0 {
		total := float64(m.TotalMessages)
		m.EditedRatio = float64(m.EditedMessages) / total
		m.AverageReactions = float64(m.TotalReactionsReceived) / total
		m.AverageMessageLength = float64(m.TotalMessageLength) / total
	}
	if len(m.ResponseTimes) > 0 {
		var sum float64
		for _, rt := range m.ResponseTimes {
			sum += rt
		}
		avg := sum / float64(len(m.ResponseTimes))
		m.AverageResponseTime = &avg
	}
}
