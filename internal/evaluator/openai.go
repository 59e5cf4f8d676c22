package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/commforge/pulse/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

const evaluationPrompt = `You are a community engagement coach. Score the aggregated
participant metrics below against one requirement.

Requirement:
  title: %s
  measure: %s
  severity: %s

Metrics (JSON):
%s

Rules:
1. level must be exactly one of: Excellent, Ok, Poor
2. message is a short coaching note addressed to the participant (1-2 sentences)
3. proof cites the concrete metric values that justify the level

Return a strict JSON object: {"level":"...","message":"...","proof":"..."}`

const defaultTimeout = 30 * time.Second

// OpenAIEvaluator scores metrics with a chat-completion call returning
// strict JSON.
type OpenAIEvaluator struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// Config for the OpenAI-backed evaluator.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewOpenAI creates an evaluator against the configured endpoint.
func NewOpenAI(cfg Config) *OpenAIEvaluator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &OpenAIEvaluator{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

// Evaluate scores metrics against one requirement. Failures of any kind
// (transport, malformed response) become an Error-level score.
func (e *OpenAIEvaluator) Evaluate(ctx context.Context, metrics []models.UserMetrics, req models.Requirement) Score {
	payload, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return ErrorScore(fmt.Sprintf("marshal metrics: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf(evaluationPrompt, req.Title, req.Measure, req.Severity, payload),
		}},
		MaxTokens:   e.maxTokens,
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return ErrorScore(fmt.Sprintf("chat completion: %v", err))
	}
	if len(resp.Choices) == 0 {
		return ErrorScore("chat completion: empty response")
	}

	var raw struct {
		Level   string `json:"level"`
		Message string `json:"message"`
		Proof   string `json:"proof"`
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return ErrorScore(fmt.Sprintf("parse evaluation response: %v", err))
	}

	level := ParseLevel(raw.Level)
	if level == models.LevelError {
		return ErrorScore(fmt.Sprintf("unrecognized level %q", raw.Level))
	}
	return Score{Level: level, Message: raw.Message, Proof: raw.Proof}
}
