package metrics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/commforge/pulse/internal/models"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func msg(id, author, content string, offset time.Duration) models.Message {
	return models.Message{
		ID:             id,
		AuthorID:       author,
		AuthorUsername: "user-" + author,
		Content:        content,
		ChannelID:      "chan-1",
		Timestamp:      epoch.Add(offset),
	}
}

func findUser(t *testing.T, stats []models.UserMetrics, authorID string) models.UserMetrics {
	t.Helper()
	for _, s := range stats {
		if s.AuthorID == authorID {
			return s
		}
	}
	t.Fatalf("no metrics for author %s", authorID)
	return models.UserMetrics{}
}

func TestAggregate_Empty(t *testing.T) {
	if got := Aggregate(nil); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestAggregate_TotalMessagesConserved(t *testing.T) {
	messages := []models.Message{
		msg("1", "a", "hello", 0),
		msg("2", "b", "hi", time.Second),
		msg("3", "a", "again", 2*time.Second),
		msg("4", "c", "yo", 3*time.Second),
	}

	stats := Aggregate(messages)

	sum := 0
	for _, s := range stats {
		sum += s.TotalMessages
	}
	if sum != len(messages) {
		t.Errorf("sum(totalMessages) = %d, want %d", sum, len(messages))
	}
}

func TestAggregate_UnsortedInput(t *testing.T) {
	messages := []models.Message{
		msg("2", "a", "second", 10*time.Second),
		msg("1", "a", "first", 0),
	}

	stats := Aggregate(messages)
	a := findUser(t, stats, "a")

	if !a.FirstMessage.Equal(epoch) {
		t.Errorf("firstMessage = %v, want %v", a.FirstMessage, epoch)
	}
	if !a.LastMessage.Equal(epoch.Add(10 * time.Second)) {
		t.Errorf("lastMessage = %v, want %v", a.LastMessage, epoch.Add(10*time.Second))
	}
}

func TestAggregate_EditedAndRatios(t *testing.T) {
	edited := epoch.Add(time.Minute)
	m1 := msg("1", "a", "typo fixd", 0)
	m1.EditedAt = &edited
	m2 := msg("2", "a", "clean", time.Second)

	stats := Aggregate([]models.Message{m1, m2})
	a := findUser(t, stats, "a")

	if a.EditedMessages != 1 {
		t.Errorf("editedMessages = %d, want 1", a.EditedMessages)
	}
	if a.EditedRatio != 0.5 {
		t.Errorf("editedRatio = %v, want 0.5", a.EditedRatio)
	}
	if a.EditedRatio < 0 || a.EditedRatio > 1 {
		t.Errorf("editedRatio %v out of [0,1]", a.EditedRatio)
	}
}

func TestAggregate_PresenceCounts(t *testing.T) {
	m1 := msg("1", "a", "pics", 0)
	m1.Attachments = []string{"https://cdn/a.png", "https://cdn/b.png", "https://cdn/c.png"}
	m1.Embeds = []json.RawMessage{json.RawMessage(`{"t":1}`), json.RawMessage(`{"t":2}`)}
	m2 := msg("2", "a", "plain", time.Second)

	stats := Aggregate([]models.Message{m1, m2})
	a := findUser(t, stats, "a")

	// One message with attachments, regardless of how many it carries.
	if a.AttachmentsCount != 1 {
		t.Errorf("attachmentsCount = %d, want 1", a.AttachmentsCount)
	}
	if a.EmbedsCount != 1 {
		t.Errorf("embedsCount = %d, want 1", a.EmbedsCount)
	}
}

func TestAggregate_Reactions(t *testing.T) {
	m1 := msg("1", "a", "popular", 0)
	m1.Reactions = []models.Reaction{
		{Emoji: "👍", Count: 3},
		{Emoji: "🔥", Count: 2},
	}

	stats := Aggregate([]models.Message{m1})
	a := findUser(t, stats, "a")

	if a.TotalReactionsReceived != 5 {
		t.Errorf("totalReactionsReceived = %d, want 5", a.TotalReactionsReceived)
	}
	if a.AverageReactions != 5 {
		t.Errorf("averageReactions = %v, want 5", a.AverageReactions)
	}
}

func TestAggregate_MentionsSentCountsTokens(t *testing.T) {
	stats := Aggregate([]models.Message{
		msg("1", "a", "<@111> and <@!222> and <@111> again", 0),
		msg("2", "111", "here", time.Second),
	})
	a := findUser(t, stats, "a")

	if a.MentionsSent != 3 {
		t.Errorf("mentionsSent = %d, want 3", a.MentionsSent)
	}
}

func TestAggregate_ResponseTimes(t *testing.T) {
	stats := Aggregate([]models.Message{
		msg("1", "a", "ping <@b-user>", 0),
		msg("2", "b", "unrelated author", time.Second),
	})
	// Mention syntax only matches numeric ids; nothing recorded here.
	for _, s := range stats {
		if len(s.ResponseTimes) != 0 {
			t.Errorf("responseTimes for %s = %v, want empty", s.AuthorID, s.ResponseTimes)
		}
	}

	stats = Aggregate([]models.Message{
		msg("1", "100", "hey <@200>", 0),
		msg("2", "200", "what's up", 5*time.Second),
		msg("3", "200", "second reply ignored", 9*time.Second),
	})
	b := findUser(t, stats, "200")

	if len(b.ResponseTimes) != 1 || b.ResponseTimes[0] != 5 {
		t.Fatalf("responseTimes = %v, want [5]", b.ResponseTimes)
	}
	if b.AverageResponseTime == nil || *b.AverageResponseTime != 5 {
		t.Errorf("averageResponseTime = %v, want 5", b.AverageResponseTime)
	}
}

func TestAggregate_SelfMentionIgnored(t *testing.T) {
	stats := Aggregate([]models.Message{
		msg("1", "100", "note to self <@100>", 0),
		msg("2", "100", "later", 5*time.Second),
	})
	a := findUser(t, stats, "100")

	if len(a.ResponseTimes) != 0 {
		t.Errorf("responseTimes = %v, want empty for self-mention", a.ResponseTimes)
	}
	if a.AverageResponseTime != nil {
		t.Errorf("averageResponseTime = %v, want nil", *a.AverageResponseTime)
	}
	// mentionsSent still counts the token.
	if a.MentionsSent != 1 {
		t.Errorf("mentionsSent = %d, want 1", a.MentionsSent)
	}
}

func TestAggregate_AverageResponseTimeMean(t *testing.T) {
	stats := Aggregate([]models.Message{
		msg("1", "100", "first <@200>", 0),
		msg("2", "200", "reply one", 4*time.Second),
		msg("3", "100", "again <@200>", 10*time.Second),
		msg("4", "200", "reply two", 18*time.Second),
	})
	b := findUser(t, stats, "200")

	if len(b.ResponseTimes) != 2 {
		t.Fatalf("responseTimes = %v, want two entries", b.ResponseTimes)
	}
	want := (4.0 + 8.0) / 2
	if b.AverageResponseTime == nil || *b.AverageResponseTime != want {
		t.Errorf("averageResponseTime = %v, want %v", b.AverageResponseTime, want)
	}
}

func TestAggregate_EndToEndScenario(t *testing.T) {
	// A mentions B at t=0, B replies at t=5s, B later edits a message.
	edited := epoch.Add(time.Hour)
	m1 := msg("1", "100", "hey <@200>, status?", 0)
	m2 := msg("2", "200", "on it", 5*time.Second)
	m3 := msg("3", "200", "done (edited)", 20*time.Second)
	m3.EditedAt = &edited

	stats := Aggregate([]models.Message{m3, m1, m2})

	a := findUser(t, stats, "100")
	b := findUser(t, stats, "200")

	if a.MentionsSent != 1 {
		t.Errorf("A.mentionsSent = %d, want 1", a.MentionsSent)
	}
	if len(b.ResponseTimes) != 1 || b.ResponseTimes[0] != 5 {
		t.Errorf("B.responseTimes = %v, want [5]", b.ResponseTimes)
	}
	if b.EditedMessages != 1 {
		t.Errorf("B.editedMessages = %d, want 1", b.EditedMessages)
	}
	if b.EditedRatio != 0.5 {
		t.Errorf("B.editedRatio = %v, want 0.5", b.EditedRatio)
	}
}

func TestAggregate_AverageMessageLength(t *testing.T) {
	stats := Aggregate([]models.Message{
		msg("1", "a", "abcd", 0),
		msg("2", "a", "ab", time.Second),
	})
	a := findUser(t, stats, "a")

	if a.TotalMessageLength != 6 {
		t.Errorf("totalMessageLength = %d, want 6", a.TotalMessageLength)
	}
	if a.AverageMessageLength != 3 {
		t.Errorf("averageMessageLength = %v, want 3", a.AverageMessageLength)
	}
}
