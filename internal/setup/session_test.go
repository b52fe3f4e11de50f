package setup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roseram/previewd/internal/pkgdetect"
	"github.com/roseram/previewd/internal/repohost"
	"github.com/roseram/previewd/internal/sandbox"
	"github.com/roseram/previewd/internal/storage"
	"github.com/roseram/previewd/internal/types"
)

// stubHost accepts any repo unless ValidateErr is set, and serves lock
// files from the files map for package-manager detection.
type stubHost struct {
	ValidateErr error
	files       map[string]string
}

func (h *stubHost) GetFileContent(ctx context.Context, owner, repo, path, ref string, cred types.Credential) (string, error) {
	if content, ok := h.files[path]; ok {
		return content, nil
	}
	return "", repohost.ErrNotFound
}

func (h *stubHost) GetRepositoryStructure(ctx context.Context, owner, repo, ref string, cred types.Credential) ([]repohost.RepoFile, error) {
	return nil, nil
}

func (h *stubHost) ValidateRepo(ctx context.Context, owner, repo, branch string, cred types.Credential) error {
	return h.ValidateErr
}

func (h *stubHost) CreateBranch(ctx context.Context, owner, repo, base, name string, cred types.Credential) error {
	return nil
}

func (h *stubHost) CommitChanges(ctx context.Context, owner, repo, branch, message string, files map[string]string, cred types.Credential) error {
	return nil
}

func newTestSetup(t *testing.T, client *sandbox.Fake, host *stubHost) (*Manager, storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(context.Background(), &storage.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if client == nil {
		client = sandbox.NewFake()
	}
	if host == nil {
		host = &stubHost{files: map[string]string{"pnpm-lock.yaml": ""}}
	}
	m, err := NewManager(Config{
		Store:  store,
		Client: client,
		Host:   host,
		Region: "iad",
		RAMMB:  1024,
		CPUs:   1,
	})
	require.NoError(t, err)
	return m, store
}

func runAllSteps(t *testing.T, m *Manager, sessionID string) *types.SetupSession {
	t.Helper()
	var session *types.SetupSession
	for step := 1; step <= types.TotalSetupSteps; step++ {
		outcome, err := m.ExecuteSetupStep(context.Background(), sessionID, step, types.Credential{})
		require.NoError(t, err, "step %d", step)
		session = outcome.Session
	}
	return session
}

func TestInitializeSetupSession(t *testing.T) {
	m, _ := newTestSetup(t, nil, nil)

	session, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "", "user-1")
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "proj-1", session.ProjectID)
	assert.Equal(t, StepDetectRepo, session.CurrentStep)
	assert.Equal(t, types.SessionInProgress, session.OverallStatus)
	assert.Equal(t, "https://github.com/octo/demo", session.GitHubRepoURL)
	assert.Equal(t, "main", session.GitHubBranch, "branch defaults to main")
	assert.Empty(t, session.CompletedSteps)
}

func TestInitializeSetupSessionReusesActive(t *testing.T) {
	m, _ := newTestSetup(t, nil, nil)

	first, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)
	second, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestInitializeSetupSessionValidation(t *testing.T) {
	m, _ := newTestSetup(t, nil, nil)

	tests := []struct {
		name      string
		projectID string
		repo      string
	}{
		{"empty project", "", "octo/demo"},
		{"no slash", "proj-1", "octodemo"},
		{"empty owner", "proj-1", "/demo"},
		{"empty repo", "proj-1", "octo/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.InitializeSetupSession(context.Background(), tt.projectID, tt.repo, "main", "")
			assert.True(t, types.IsValidation(err), "want ValidationError, got %v", err)
		})
	}
}

func TestExecuteStepsInOrder(t *testing.T) {
	client := sandbox.NewFake()
	m, store := newTestSetup(t, client, nil)

	session, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)

	out1, err := m.ExecuteSetupStep(context.Background(), session.ID, StepDetectRepo, types.Credential{})
	require.NoError(t, err)
	detected, ok := out1.Result.(RepoDetected)
	require.True(t, ok, "step 1 result type %T", out1.Result)
	assert.Equal(t, "octo", detected.Owner)
	assert.Equal(t, "demo", detected.Repo)
	assert.Equal(t, StepAllocate, out1.Session.CurrentStep)

	out2, err := m.ExecuteSetupStep(context.Background(), session.ID, StepAllocate, types.Credential{})
	require.NoError(t, err)
	allocated, ok := out2.Result.(MachineAllocated)
	require.True(t, ok)
	assert.NotEmpty(t, allocated.AppName)
	assert.NotEmpty(t, allocated.MachineID)
	assert.Equal(t, allocated.AppName, out2.Session.FlyAppName)
	assert.Equal(t, allocated.MachineID, out2.Session.MachineID)

	out3, err := m.ExecuteSetupStep(context.Background(), session.ID, StepConfigure, types.Credential{})
	require.NoError(t, err)
	configured, ok := out3.Result.(MachineConfigured)
	require.True(t, ok)
	assert.Equal(t, sandbox.DefaultPort, configured.Port)

	out4, err := m.ExecuteSetupStep(context.Background(), session.ID, StepCloneAndRun, types.Credential{})
	require.NoError(t, err)
	booted, ok := out4.Result.(ServerBooted)
	require.True(t, ok)
	assert.Equal(t, "https://"+out4.Session.FlyAppName+".fly.dev", booted.PreviewURL)

	final := out4.Session
	assert.Equal(t, types.SessionCompleted, final.OverallStatus)
	assert.NotNil(t, final.CompletedAt)
	assert.Equal(t, 100, CalculateProgress(final.CompletedSteps))

	// Step 4 records the preview for status reads and teardown.
	preview, err := store.GetPreview(context.Background(), "proj-1")
	require.NoError(t, err)
	require.NotNil(t, preview)
	assert.Equal(t, final.FlyAppName, preview.SandboxName)
	assert.Equal(t, types.PreviewStatusRunning, preview.Status)

	// pnpm lock file in the fixture host drives the install command.
	require.Len(t, client.RunSpecs, 1)
	assert.Equal(t, pkgdetect.Pnpm, client.RunSpecs[0].PackageManager)
}

func TestExecuteStepPreconditions(t *testing.T) {
	m, _ := newTestSetup(t, nil, nil)
	session, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)

	_, err = m.ExecuteSetupStep(context.Background(), session.ID, StepConfigure, types.Credential{})
	require.Error(t, err)
	var pe *types.PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, []int{1, 2}, pe.MissingSteps)

	// Step 1 has no preconditions and is always allowed.
	_, err = m.ExecuteSetupStep(context.Background(), session.ID, StepDetectRepo, types.Credential{})
	assert.NoError(t, err)
}

func TestExecuteStepOutOfRange(t *testing.T) {
	m, _ := newTestSetup(t, nil, nil)
	session, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)

	for _, step := range []int{0, 5, -1} {
		_, err := m.ExecuteSetupStep(context.Background(), session.ID, step, types.Credential{})
		assert.True(t, types.IsValidation(err), "step %d: got %v", step, err)
	}
}

func TestExecuteStepUnknownSession(t *testing.T) {
	m, _ := newTestSetup(t, nil, nil)
	_, err := m.ExecuteSetupStep(context.Background(), "nope", StepDetectRepo, types.Credential{})
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestFailedStepIsResumable(t *testing.T) {
	host := &stubHost{
		ValidateErr: fmt.Errorf("repository unreachable"),
		files:       map[string]string{"package-lock.json": "{}"},
	}
	m, store := newTestSetup(t, nil, host)
	session, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)

	_, err = m.ExecuteSetupStep(context.Background(), session.ID, StepDetectRepo, types.Credential{})
	require.Error(t, err)

	failed, err := store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionFailed, failed.OverallStatus)
	assert.Equal(t, StepDetectRepo, failed.ErrorStep)
	assert.Contains(t, failed.ErrorMessage, "unreachable")
	assert.Empty(t, failed.CompletedSteps, "failure never rolls back or records progress")

	// Fix the underlying problem and re-run the same step.
	host.ValidateErr = nil
	out, err := m.ExecuteSetupStep(context.Background(), session.ID, StepDetectRepo, types.Credential{})
	require.NoError(t, err)
	assert.Equal(t, types.SessionInProgress, out.Session.OverallStatus)
	assert.Equal(t, 0, out.Session.ErrorStep)
	assert.Empty(t, out.Session.ErrorMessage)
	assert.Equal(t, []int{1}, out.Session.CompletedSteps)
}

func TestFailedLaterStepKeepsEarlierProgress(t *testing.T) {
	client := sandbox.NewFake()
	m, store := newTestSetup(t, client, nil)
	session, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)

	_, err = m.ExecuteSetupStep(context.Background(), session.ID, StepDetectRepo, types.Credential{})
	require.NoError(t, err)

	client.CreateErr = fmt.Errorf("quota exhausted")
	_, err = m.ExecuteSetupStep(context.Background(), session.ID, StepAllocate, types.Credential{})
	require.Error(t, err)

	failed, err := store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionFailed, failed.OverallStatus)
	assert.Equal(t, StepAllocate, failed.ErrorStep)
	assert.Equal(t, []int{1}, failed.CompletedSteps)

	client.CreateErr = nil
	out, err := m.ExecuteSetupStep(context.Background(), session.ID, StepAllocate, types.Credential{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out.Session.CompletedSteps)
	assert.NotEmpty(t, out.Session.FlyAppName)
}

func TestTerminalSessionRejectsSteps(t *testing.T) {
	m, _ := newTestSetup(t, nil, nil)
	session, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)
	runAllSteps(t, m, session.ID)

	_, err = m.ExecuteSetupStep(context.Background(), session.ID, StepDetectRepo, types.Credential{})
	assert.ErrorIs(t, err, types.ErrSessionTerminal)
}

func TestCancelSession(t *testing.T) {
	m, store := newTestSetup(t, nil, nil)
	session, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)

	cancelled, err := m.CancelSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionCancelled, cancelled.OverallStatus)

	_, err = m.ExecuteSetupStep(context.Background(), session.ID, StepDetectRepo, types.Credential{})
	assert.ErrorIs(t, err, types.ErrSessionTerminal)

	_, err = m.CancelSession(context.Background(), session.ID)
	assert.ErrorIs(t, err, types.ErrSessionTerminal)

	// A cancelled session is no longer the active one, so a new
	// initialize starts fresh.
	fresh, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, fresh.ID)

	stored, err := store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionCancelled, stored.OverallStatus)
}

func TestResumeReconstructsHandle(t *testing.T) {
	client := sandbox.NewFake()
	m, store := newTestSetup(t, client, nil)
	session, err := m.InitializeSetupSession(context.Background(), "proj-1", "octo/demo", "main", "")
	require.NoError(t, err)

	_, err = m.ExecuteSetupStep(context.Background(), session.ID, StepDetectRepo, types.Credential{})
	require.NoError(t, err)
	out, err := m.ExecuteSetupStep(context.Background(), session.ID, StepAllocate, types.Credential{})
	require.NoError(t, err)

	// A second manager over the same store stands in for a new process.
	m2, err := NewManager(Config{
		Store:  store,
		Client: client,
		Host:   &stubHost{files: map[string]string{"yarn.lock": ""}},
		Region: "iad",
	})
	require.NoError(t, err)

	_, err = m2.ExecuteSetupStep(context.Background(), session.ID, StepConfigure, types.Credential{})
	require.NoError(t, err)
	final, err := m2.ExecuteSetupStep(context.Background(), session.ID, StepCloneAndRun, types.Credential{})
	require.NoError(t, err)

	assert.Equal(t, out.Session.FlyAppName, final.Session.FlyAppName)
	assert.Equal(t, types.SessionCompleted, final.Session.OverallStatus)
}
