// Package llm generates answers through a langchaingo chat model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/dgallion1/ragassist/internal/apperr"
	"github.com/dgallion1/ragassist/internal/config"
	"github.com/dgallion1/ragassist/internal/retry"
)

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Client calls an OpenAI-compatible server or Ollama.
type Client struct {
	model   llms.Model
	cfg     config.LLMConfig
	stats   *Stats
	log     *slog.Logger
	backoff func(int) time.Duration
}

// New builds the model named by cfg.Provider.
func New(cfg config.LLMConfig, log *slog.Logger) (*Client, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "ollama":
		model, err = ollama.New(
			ollama.WithServerURL(cfg.APIURL),
			ollama.WithModel(cfg.Model),
		)
	case "openai", "":
		token := strings.TrimPrefix(cfg.APIKey, "Bearer ")
		if token == "" {
			token = "not-needed"
		}
		model, err = openai.New(
			openai.WithBaseURL(cfg.APIURL),
			openai.WithToken(token),
			openai.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	return NewWithModel(model, cfg, log), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, cfg config.LLMConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		model:   model,
		cfg:     cfg,
		stats:   NewStats(time.Hour),
		log:     log.With("component", "llm", "model", cfg.Model),
		backoff: retry.Backoff,
	}
}

// Generate sends the system prompt and the user message, retrying
// transient failures.
func (c *Client) Generate(ctx context.Context, p Prompt) (string, error) {
	system := p.System
	if system == "" {
		system = c.cfg.SystemPrompt
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, p.UserMessage()),
	}
	opts := []llms.CallOption{
		llms.WithTemperature(c.cfg.Temperature),
		llms.WithMaxTokens(c.cfg.MaxTokens),
	}
	if c.cfg.TopP > 0 {
		opts = append(opts, llms.WithTopP(c.cfg.TopP))
	}
	if c.cfg.FrequencyPenalty != 0 {
		opts = append(opts, llms.WithFrequencyPenalty(c.cfg.FrequencyPenalty))
	}
	if c.cfg.PresencePenalty != 0 {
		opts = append(opts, llms.WithPresencePenalty(c.cfg.PresencePenalty))
	}

	var answer string
	err := retry.Do(ctx, retry.Policy{
		Attempts:  c.cfg.RetryAttempts,
		Backoff:   c.backoff,
		Retryable: retry.Transient,
		Log:       c.log,
	}, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		start := time.Now()
		resp, err := c.model.GenerateContent(callCtx, messages, opts...)
		elapsed := time.Since(start).Milliseconds()
		if err == nil && (resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "") {
			err = errors.New("empty response from model")
		}
		if err != nil {
			c.stats.RecordError(elapsed)
			return err
		}
		c.stats.Record(elapsed)
		answer = strings.TrimSpace(resp.Choices[0].Content)
		return nil
	})
	if err != nil {
		c.log.Error("generation failed", "error", err)
		return "", apperr.Wrap(err, apperr.LLM, "language model request failed")
	}
	return answer, nil
}

// Stats returns latency statistics for the last hour.
func (c *Client) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}
