package models

import (
	"encoding/json"
	"time"
)

// Reaction is one emoji reaction group on a message.
type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users,omitempty"`
}

// Message is one ingested community message. Immutable once stored.
type Message struct {
	ID             string            `json:"id"`
	Content        string            `json:"content"`
	AuthorID       string            `json:"authorId"`
	AuthorUsername string            `json:"authorUsername"`
	ChannelID      string            `json:"channelId"`
	ChannelName    string            `json:"channelName"`
	Timestamp      time.Time         `json:"timestamp"`
	EditedAt       *time.Time        `json:"editedTimestamp,omitempty"`
	Attachments    []string          `json:"attachments,omitempty"`
	Embeds         []json.RawMessage `json:"embeds,omitempty"`
	Reactions      []Reaction        `json:"reactions,omitempty"`
}

// UserMetrics is one participant's engagement statistics over a message
// window. Rebuilt from scratch every aggregation; never merged incrementally.
type UserMetrics struct {
	AuthorID               string     `json:"authorId"`
	AuthorUsername         string     `json:"authorUsername"`
	TotalMessages          int        `json:"totalMessages"`
	FirstMessage           *time.Time `json:"firstMessage,omitempty"`
	LastMessage            *time.Time `json:"lastMessage,omitempty"`
	EditedMessages         int        `json:"editedMessages"`
	EditedRatio            float64    `json:"editedRatio"`
	AttachmentsCount       int        `json:"attachmentsCount"`
	EmbedsCount            int        `json:"embedsCount"`
	MentionsSent           int        `json:"mentionsSent"`
	TotalReactionsReceived int        `json:"totalReactionsReceived"`
	AverageReactions       float64    `json:"averageReactions"`
	TotalMessageLength     int        `json:"totalMessageLength"`
	AverageMessageLength   float64    `json:"averageMessageLength"`
	ResponseTimes          []float64  `json:"responseTimes"`
	AverageResponseTime    *float64   `json:"averageResponseTime"`
}

// Requirement is a named, measurable expectation tracked against activity.
type Requirement struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Measure  string `json:"measure"`
	Severity string `json:"severity"`
}

// Task is one tracked community task. A task is trackable in a cycle iff its
// tools include the monitored source tool and it has at least one active
// requirement. OwnerID is the participant coached by notifications.
type Task struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	OwnerID            string   `json:"ownerId"`
	Tools              []string `json:"tools"`
	Requirements       []string `json:"requirements"`
	RequirementsActive []string `json:"requirementsActive"`
}

// UsesTool reports whether the task's tool set includes the given tool.
func (t Task) UsesTool(tool string) bool {
	for _, candidate := range t.Tools {
		if candidate == tool {
			return true
		}
	}
	return false
}

// Trackable reports whether the task should be processed this cycle.
func (t Task) Trackable(sourceTool string) bool {
	return t.UsesTool(sourceTool) && len(t.RequirementsActive) > 0
}

// TaskGroup is one group from the task definitions document.
type TaskGroup struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`
}

// Level is the qualitative outcome of evaluating metrics against a requirement.
type Level string

const (
	LevelExcellent Level = "Excellent"
	LevelOk        Level = "Ok"
	LevelPoor      Level = "Poor"
	LevelError     Level = "Error"
)

// ShouldNotify reports whether this level triggers a coaching notification.
func (l Level) ShouldNotify() bool {
	return l == LevelExcellent || l == LevelPoor
}

// EvaluationResult is the outcome of scoring metrics against one requirement.
type EvaluationResult struct {
	TaskID        string    `json:"taskId"`
	RequirementID string    `json:"requirementId"`
	Level         Level     `json:"level"`
	Message       string    `json:"message"`
	Proof         string    `json:"proof"`
	Timestamp     time.Time `json:"timestamp"`
	ShouldNotify  bool      `json:"shouldNotify"`
}

// TrackerStatus is a read-only snapshot of the scheduler state.
type TrackerStatus struct {
	IsTracking      bool       `json:"isTracking"`
	LastRun         *time.Time `json:"lastRun,omitempty"`
	ActiveTaskCount int        `json:"activeTaskCount"`
}

// SendReceipt is the result of a successful outbound send.
type SendReceipt struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}
