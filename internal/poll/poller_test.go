package poll

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roseram/previewd/internal/preview"
	"github.com/roseram/previewd/internal/types"
)

// scriptedFetcher replays a fixed sequence of responses, repeating the
// final one once exhausted.
type scriptedFetcher struct {
	responses []response
	calls     int
}

type response struct {
	st  *preview.Status
	err error
}

func (f *scriptedFetcher) GetPreviewStatus(ctx context.Context, projectID string) (*preview.Status, error) {
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	r := f.responses[i]
	return r.st, r.err
}

func status(s types.PreviewStatus) *preview.Status {
	return &preview.Status{Status: s, ProjectID: "proj-1"}
}

func TestWaitForPreviewStopsOnRunning(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{st: status(types.PreviewStatusPending)},
		{st: status(types.PreviewStatusInitializing)},
		{st: status(types.PreviewStatusRunning)},
	}}

	st, err := WaitForPreview(context.Background(), fetcher, "proj-1", Options{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	})
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, types.PreviewStatusRunning, st.Status)
	assert.Equal(t, 3, fetcher.calls)
}

func TestWaitForPreviewStopsOnError(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{st: status(types.PreviewStatusInitializing)},
		{st: status(types.PreviewStatusError)},
	}}

	st, err := WaitForPreview(context.Background(), fetcher, "proj-1", Options{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, types.PreviewStatusError, st.Status)
}

func TestWaitForPreviewExhaustionIsNotAnError(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{st: status(types.PreviewStatusInitializing)},
	}}

	st, err := WaitForPreview(context.Background(), fetcher, "proj-1", Options{
		Interval:    time.Millisecond,
		MaxAttempts: 4,
	})
	require.NoError(t, err, "exhaustion reports the last status, not an error")
	require.NotNil(t, st)
	assert.Equal(t, types.PreviewStatusInitializing, st.Status)
	assert.Equal(t, 4, fetcher.calls)
}

func TestWaitForPreviewToleratesFetchFailures(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{err: fmt.Errorf("connection refused")},
		{err: fmt.Errorf("connection refused")},
		{st: status(types.PreviewStatusRunning)},
	}}

	st, err := WaitForPreview(context.Background(), fetcher, "proj-1", Options{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, types.PreviewStatusRunning, st.Status)
}

func TestWaitForPreviewAllFetchesFail(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{err: fmt.Errorf("connection refused")},
	}}

	st, err := WaitForPreview(context.Background(), fetcher, "proj-1", Options{
		Interval:    time.Millisecond,
		MaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestWaitForPreviewContextCancel(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{st: status(types.PreviewStatusInitializing)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForPreview(ctx, fetcher, "proj-1", Options{
		Interval:    time.Hour,
		MaxAttempts: 10,
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForPreviewKeepsPollingThroughNotFound(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []response{
		{st: status(types.PreviewStatusNotFound)},
		{st: status(types.PreviewStatusNotFound)},
		{st: status(types.PreviewStatusRunning)},
	}}

	st, err := WaitForPreview(context.Background(), fetcher, "proj-1", Options{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, types.PreviewStatusRunning, st.Status)

	var observed []types.PreviewStatus
	fetcher2 := &scriptedFetcher{responses: []response{
		{st: status(types.PreviewStatusNotFound)},
		{st: status(types.PreviewStatusRunning)},
	}}
	_, err = WaitForPreview(context.Background(), fetcher2, "proj-1", Options{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
		OnStatus: func(attempt int, s *preview.Status) {
			observed = append(observed, s.Status)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []types.PreviewStatus{types.PreviewStatusNotFound, types.PreviewStatusRunning}, observed)
}
