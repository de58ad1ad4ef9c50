// Package summarize wraps the language-model collaborator used to
// condense article bodies into digest entries.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bluevlad/HealthPulse/internal/config"
)

var (
	// ErrModelUnavailable means the model endpoint itself is unreachable
	// or failing; the whole process stage aborts on it.
	ErrModelUnavailable = errors.New("language model unavailable")
	// ErrModelRejected is a per-article failure (bad content, refusal);
	// the article is retried up to its budget and the batch continues.
	ErrModelRejected = errors.New("language model rejected content")
)

// Model input is truncated to this many runes before sending.
const maxInputRunes = 8000

// OpenAISummarizer talks to any OpenAI-compatible API. Set a base URL
// in config to point at a local server (LM Studio, llama.cpp, Ollama's
// /v1 endpoint); leave it empty for api.openai.com.
type OpenAISummarizer struct {
	client  *openai.Client
	model   string
	prompt  string
	timeout time.Duration
}

// NewOpenAISummarizer creates a summarizer from configuration.
func NewOpenAISummarizer(cfg config.OpenAIConfig) *OpenAISummarizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAISummarizer{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		prompt:  cfg.Prompt,
		timeout: cfg.Timeout,
	}
}

// Summarize produces a bounded-length summary of text. maxLen bounds the
// returned rune count; 0 means unbounded.
func (s *OpenAISummarizer) Summarize(ctx context.Context, text string, maxLen int) (string, error) {
	if runes := []rune(text); len(runes) > maxInputRunes {
		text = string(runes[:maxInputRunes])
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.prompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response from model %q", ErrModelRejected, s.model)
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("%w: blank summary from model %q", ErrModelRejected, s.model)
	}

	if maxLen > 0 {
		if runes := []rune(summary); len(runes) > maxLen {
			summary = string(runes[:maxLen]) + "..."
		}
	}

	return summary, nil
}

// classifyError separates endpoint failures (stage-fatal) from content
// rejections (per-article). 429 and 5xx mean the endpoint cannot serve
// right now; other 4xx mean this particular request was refused.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == 429 {
			return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrModelRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}
