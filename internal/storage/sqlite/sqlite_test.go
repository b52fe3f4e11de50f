package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roseram/previewd/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testSession(id, projectID string) *types.SetupSession {
	return &types.SetupSession{
		ID:             id,
		ProjectID:      projectID,
		UserID:         "user-1",
		CurrentStep:    1,
		CompletedSteps: []int{},
		OverallStatus:  types.SessionInProgress,
		GitHubRepoURL:  "https://github.com/octo/demo",
		GitHubBranch:   "main",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1", "proj-1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ProjectID != "proj-1" || got.CurrentStep != 1 {
		t.Errorf("got %+v", got)
	}
	if got.OverallStatus != types.SessionInProgress {
		t.Errorf("OverallStatus = %s", got.OverallStatus)
	}
	if len(got.CompletedSteps) != 0 {
		t.Errorf("CompletedSteps = %v, want empty", got.CompletedSteps)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession(context.Background(), "nope")
	if !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestUpdateSessionPersistsProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1", "proj-1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	session.CompletedSteps = []int{1, 2}
	session.CurrentStep = 3
	session.FlyAppName = "p-abc123-00042"
	if err := store.UpdateSession(ctx, session); err != nil {
		t.Fatalf("UpdateSession() error = %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(got.CompletedSteps) != 2 || got.CompletedSteps[0] != 1 || got.CompletedSteps[1] != 2 {
		t.Errorf("CompletedSteps = %v, want [1 2]", got.CompletedSteps)
	}
	if got.FlyAppName != "p-abc123-00042" {
		t.Errorf("FlyAppName = %q", got.FlyAppName)
	}
}

func TestUpdateSessionUnknownID(t *testing.T) {
	store := newTestStore(t)

	session := testSession("ghost", "proj-1")
	err := store.UpdateSession(context.Background(), session)
	if !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestGetActiveSessionForProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// No session yet.
	got, err := store.GetActiveSessionForProject(ctx, "proj-1")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}

	active := testSession("sess-active", "proj-1")
	if err := store.CreateSession(ctx, active); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	done := testSession("sess-done", "proj-1")
	done.OverallStatus = types.SessionCompleted
	done.CompletedSteps = []int{1, 2, 3, 4}
	now := time.Now().UTC()
	done.CompletedAt = &now
	if err := store.CreateSession(ctx, done); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err = store.GetActiveSessionForProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetActiveSessionForProject() error = %v", err)
	}
	if got == nil || got.ID != "sess-active" {
		t.Errorf("got %+v, want sess-active", got)
	}
}

func TestPreviewRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &types.PreviewInstance{
		ProjectID:   "proj-1",
		Owner:       "octo",
		Repo:        "demo",
		Branch:      "main",
		SandboxName: "p-abc123-00042",
		SandboxID:   "machine-1",
		Port:        3000,
		ProcessID:   1234,
		PreviewURL:  "https://p-abc123-00042.fly.dev",
		Status:      types.PreviewStatusRunning,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}

	if err := store.SavePreview(ctx, p); err != nil {
		t.Fatalf("SavePreview() error = %v", err)
	}

	got, err := store.GetPreview(ctx, "proj-1")
	if err != nil {
		t.Fatalf("GetPreview() error = %v", err)
	}
	if got == nil || got.SandboxName != "p-abc123-00042" || got.Status != types.PreviewStatusRunning {
		t.Errorf("got %+v", got)
	}

	byName, err := store.GetPreviewBySandboxName(ctx, "p-abc123-00042")
	if err != nil || byName == nil || byName.ProjectID != "proj-1" {
		t.Errorf("GetPreviewBySandboxName() = %+v, %v", byName, err)
	}

	if err := store.DeletePreview(ctx, "proj-1"); err != nil {
		t.Fatalf("DeletePreview() error = %v", err)
	}
	got, err = store.GetPreview(ctx, "proj-1")
	if err != nil || got != nil {
		t.Errorf("after delete: %+v, %v; want nil, nil", got, err)
	}

	// Deleting again is fine.
	if err := store.DeletePreview(ctx, "proj-1"); err != nil {
		t.Errorf("second DeletePreview() error = %v", err)
	}
}

func TestSavePreviewUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &types.PreviewInstance{
		ProjectID:   "proj-1",
		Owner:       "octo",
		Repo:        "demo",
		Branch:      "main",
		SandboxName: "p-abc123-00042",
		PreviewURL:  "https://p-abc123-00042.fly.dev",
		Status:      types.PreviewStatusRunning,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.SavePreview(ctx, p); err != nil {
		t.Fatalf("SavePreview() error = %v", err)
	}

	p.Status = types.PreviewStatusStopped
	if err := store.SavePreview(ctx, p); err != nil {
		t.Fatalf("second SavePreview() error = %v", err)
	}

	all, err := store.ListPreviews(ctx)
	if err != nil {
		t.Fatalf("ListPreviews() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}
	if all[0].Status != types.PreviewStatusStopped {
		t.Errorf("status = %s, want stopped", all[0].Status)
	}
}
