// Package poll watches a preview's status until it reaches a terminal
// state or the attempt budget runs out. It is deliberately forgiving:
// individual fetch failures are logged and retried, and exhausting the
// budget reports the last observed status rather than an error, so
// callers decide what a stuck preview means for them.
package poll

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/roseram/previewd/internal/preview"
	"github.com/roseram/previewd/internal/types"
)

// Defaults applied when Options fields are zero.
const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60
)

// StatusFetcher reads the current status of a project's preview.
// *preview.Manager satisfies this; the HTTP client in cmd wraps the API
// behind the same shape.
type StatusFetcher interface {
	GetPreviewStatus(ctx context.Context, projectID string) (*preview.Status, error)
}

// Options tunes one poll run.
type Options struct {
	// Interval between attempts. Zero means DefaultInterval.
	Interval time.Duration

	// MaxAttempts caps the number of status reads. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int

	// OnStatus, when set, is invoked after every successful read. CLI
	// progress output hangs off this.
	OnStatus func(attempt int, st *preview.Status)

	Logger zerolog.Logger
}

// WaitForPreview polls until the status is terminal (running or error),
// the context is done, or attempts are exhausted. On exhaustion it
// returns the last status seen and a nil error; only context
// cancellation produces an error. A nil return with nil error means
// every attempt failed to fetch.
func WaitForPreview(ctx context.Context, fetcher StatusFetcher, projectID string, opts Options) (*preview.Status, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var last *preview.Status
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		st, err := fetcher.GetPreviewStatus(ctx, projectID)
		if err != nil {
			opts.Logger.Warn().Err(err).
				Str("project_id", projectID).
				Int("attempt", attempt).
				Msg("status fetch failed, retrying")
		} else {
			last = st
			if opts.OnStatus != nil {
				opts.OnStatus(attempt, st)
			}
			if st.Status.IsTerminal() {
				return st, nil
			}
			if st.Status == types.PreviewStatusNotFound {
				// Keep polling: creation may still be registering.
				opts.Logger.Debug().
					Str("project_id", projectID).
					Int("attempt", attempt).
					Msg("preview not registered yet")
			}
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}

	opts.Logger.Info().
		Str("project_id", projectID).
		Int("attempts", maxAttempts).
		Msg("poll budget exhausted before a terminal status")
	return last, nil
}
