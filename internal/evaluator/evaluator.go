// Package evaluator scores aggregated metrics against requirement
// definitions through an external qualitative model.
package evaluator

import (
	"context"
	"strings"

	"github.com/commforge/pulse/internal/models"
)

// Score is the outcome of one evaluation call.
type Score struct {
	Level   models.Level `json:"level"`
	Message string       `json:"message"`
	Proof   string       `json:"proof"`
}

// Evaluator scores a metrics snapshot against one requirement. It never
// fails observably: internal errors come back as an Error-level score.
type Evaluator interface {
	Evaluate(ctx context.Context, metrics []models.UserMetrics, req models.Requirement) Score
}

// ErrorScore wraps an internal failure into the well-formed Error result the
// contract demands.
func ErrorScore(diagnostic string) Score {
	return Score{
		Level:   models.LevelError,
		Message: "evaluation unavailable",
		Proof:   diagnostic,
	}
}

// ParseLevel normalizes a model-reported level string. Unknown values map to
// Error so a malformed response can never be mistaken for a verdict.
func ParseLevel(raw string) models.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "excellent":
		return models.LevelExcellent
	case "ok":
		return models.LevelOk
	case "poor":
		return models.LevelPoor
	default:
		return models.LevelError
	}
}
