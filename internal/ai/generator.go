// Package ai turns a natural-language brief into a self-contained web
// page using the Anthropic API. Generation is the slow, failure-prone
// edge of the system, so calls run behind a retry loop and a concurrency
// cap.
package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	// ModelDefault is the model used for page generation.
	ModelDefault = "claude-sonnet-4-5-20250929"

	// ModelFast is the cheaper model for short revision passes.
	ModelFast = "claude-3-5-haiku-20241022"

	maxPageTokens = 8192
)

// GetDefaultModel returns the generation model, honoring the
// PREVIEWD_MODEL override.
func GetDefaultModel() string {
	if model := os.Getenv("PREVIEWD_MODEL"); model != "" {
		return model
	}
	return ModelDefault
}

// GetFastModel returns the revision model, honoring the
// PREVIEWD_MODEL_FAST override.
func GetFastModel() string {
	if model := os.Getenv("PREVIEWD_MODEL_FAST"); model != "" {
		return model
	}
	return ModelFast
}

const systemPrompt = `You are a web page generator. Given a description,
produce ONE complete, self-contained HTML document: inline CSS in a
<style> tag and inline JavaScript in a <script> tag, no external
resources, no build step. Respond with the document only, no commentary.`

// Config holds generator configuration.
type Config struct {
	// APIKey falls back to ANTHROPIC_API_KEY when empty.
	APIKey string

	// Model defaults to GetDefaultModel().
	Model string

	// Retry defaults to DefaultRetryConfig() when zero.
	Retry RetryConfig

	Logger zerolog.Logger
}

// Generator produces pages. Safe for concurrent use; the semaphore
// bounds in-flight API calls across all goroutines sharing it.
type Generator struct {
	client *anthropic.Client
	model  string
	retry  RetryConfig
	sem    *semaphore.Weighted
	log    zerolog.Logger
}

// NewGenerator creates a Generator, resolving the API key from the
// environment when the config leaves it empty.
func NewGenerator(cfg Config) (*Generator, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}
	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	var sem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	return &Generator{
		client: &client,
		model:  model,
		retry:  retry,
		sem:    sem,
		log:    cfg.Logger,
	}, nil
}

// GeneratePage produces an HTML document from the brief.
func (g *Generator) GeneratePage(ctx context.Context, brief string) (string, error) {
	if strings.TrimSpace(brief) == "" {
		return "", fmt.Errorf("page brief cannot be empty")
	}

	startTime := time.Now()
	var response *anthropic.Message
	err := g.retryWithBackoff(ctx, "generate_page", func(attemptCtx context.Context) error {
		resp, apiErr := g.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(g.model),
			MaxTokens: maxPageTokens,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(brief)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("page generation failed: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	page := StripCodeFence(text.String())
	if page == "" {
		return "", fmt.Errorf("model returned an empty document")
	}

	g.log.Info().
		Str("model", g.model).
		Int64("input_tokens", response.Usage.InputTokens).
		Int64("output_tokens", response.Usage.OutputTokens).
		Dur("duration", time.Since(startTime)).
		Msg("page generated")
	return page, nil
}

// StripCodeFence removes a wrapping markdown code fence (```html ... ```)
// when the model adds one despite instructions.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	// Drop the opening fence line (which may carry a language tag) and a
	// trailing fence line.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
