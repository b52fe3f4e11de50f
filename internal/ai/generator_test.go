package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no fence",
			input: "<html><body>hi</body></html>",
			want:  "<html><body>hi</body></html>",
		},
		{
			name:  "html fence",
			input: "```html\n<html><body>hi</body></html>\n```",
			want:  "<html><body>hi</body></html>",
		},
		{
			name:  "bare fence",
			input: "```\n<!DOCTYPE html>\n<html></html>\n```",
			want:  "<!DOCTYPE html>\n<html></html>",
		},
		{
			name:  "unterminated fence",
			input: "```html\n<html></html>",
			want:  "<html></html>",
		},
		{
			name:  "surrounding whitespace",
			input: "\n\n  ```html\n<p>x</p>\n```  \n",
			want:  "<p>x</p>",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.input))
		})
	}
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate limit", fmt.Errorf("429: rate limit exceeded"), true},
		{"overloaded", fmt.Errorf("API overloaded, try again"), true},
		{"server error", fmt.Errorf("500 internal server error"), true},
		{"connection", fmt.Errorf("dial tcp: connection refused"), true},
		{"auth", fmt.Errorf("401: invalid x-api-key"), false},
		{"bad request", fmt.Errorf("400: max_tokens out of range"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetriableError(tt.err))
		})
	}
}

func TestRetryWithBackoffStopsOnNonRetriable(t *testing.T) {
	g := &Generator{retry: RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 1.0,
		Timeout:           time.Second,
	}}

	calls := 0
	err := g.retryWithBackoff(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("401: invalid x-api-key")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "non-retriable errors abort immediately")
}

func TestRetryWithBackoffRetriesTransient(t *testing.T) {
	g := &Generator{retry: RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 1.0,
		Timeout:           time.Second,
	}}

	calls := 0
	err := g.retryWithBackoff(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("503 service unavailable")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffExhaustsAttempts(t *testing.T) {
	g := &Generator{retry: RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 1.0,
		Timeout:           time.Second,
	}}

	transient := errors.New("429 rate limit")
	calls := 0
	err := g.retryWithBackoff(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return transient
	})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls, "initial attempt plus MaxRetries")
}

func TestNewGeneratorRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewGenerator(Config{})
	assert.Error(t, err)

	g, err := NewGenerator(Config{APIKey: "sk-test"})
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultModel(), g.model)
}

func TestModelEnvOverrides(t *testing.T) {
	t.Setenv("PREVIEWD_MODEL", "claude-test-model")
	assert.Equal(t, "claude-test-model", GetDefaultModel())

	t.Setenv("PREVIEWD_MODEL", "")
	assert.Equal(t, ModelDefault, GetDefaultModel())
}

func TestGeneratePageRejectsEmptyBrief(t *testing.T) {
	g, err := NewGenerator(Config{APIKey: "sk-test"})
	assert.NoError(t, err)
	_, err = g.GeneratePage(context.Background(), "   ")
	assert.Error(t, err)
}
