// Package setup implements the resumable four-step provisioning workflow:
// validate the repository, allocate a machine, configure it, then clone
// and boot the dev server. Every state transition is persisted before it
// is reported, so a session survives process restarts and failed steps
// can be retried without redoing prior work.
package setup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roseram/previewd/internal/events"
	"github.com/roseram/previewd/internal/pkgdetect"
	"github.com/roseram/previewd/internal/repohost"
	"github.com/roseram/previewd/internal/sandbox"
	"github.com/roseram/previewd/internal/storage"
	"github.com/roseram/previewd/internal/types"
)

// Config wires a session Manager.
type Config struct {
	Store  storage.Storage
	Client sandbox.Client
	Host   repohost.Host
	Events events.Publisher

	// Machine sizing applied in step 2.
	Region string
	RAMMB  int
	CPUs   int

	// BootTimeout bounds step 4's clone/install/boot sequence. Zero
	// means the provider default.
	BootTimeout time.Duration

	Logger zerolog.Logger
}

// Manager drives setup sessions through their steps. It holds no
// per-session state of its own; the store is the source of truth, which
// is what makes sessions resumable across processes.
type Manager struct {
	store  storage.Storage
	client sandbox.Client
	host   repohost.Host
	events events.Publisher

	region      string
	ramMB       int
	cpus        int
	bootTimeout time.Duration

	log zerolog.Logger
}

// NewManager validates the config and returns a session Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("setup: Store is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("setup: Client is required")
	}
	if cfg.Host == nil {
		return nil, fmt.Errorf("setup: Host is required")
	}
	ev := cfg.Events
	if ev == nil {
		ev = events.NopPublisher{}
	}
	return &Manager{
		store:       cfg.Store,
		client:      cfg.Client,
		host:        cfg.Host,
		events:      ev,
		region:      cfg.Region,
		ramMB:       cfg.RAMMB,
		cpus:        cfg.CPUs,
		bootTimeout: cfg.BootTimeout,
		log:         cfg.Logger,
	}, nil
}

// StepOutcome pairs the updated session with the step's typed result.
type StepOutcome struct {
	Session *types.SetupSession
	Result  StepResult
}

// InitializeSetupSession creates a session for the project, or returns
// the existing in-progress one. githubRepo is "owner/name"; branch
// defaults to main.
func (m *Manager) InitializeSetupSession(ctx context.Context, projectID, githubRepo, githubBranch, userID string) (*types.SetupSession, error) {
	if projectID == "" {
		return nil, &types.ValidationError{Field: "projectID", Reason: "must not be empty"}
	}
	owner, repo, err := SplitRepo(githubRepo)
	if err != nil {
		return nil, err
	}
	if githubBranch == "" {
		githubBranch = "main"
	}

	existing, err := m.store.GetActiveSessionForProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("looking up active session: %w", err)
	}
	if existing != nil {
		m.log.Debug().
			Str("session_id", existing.ID).
			Str("project_id", projectID).
			Msg("reusing in-progress setup session")
		return existing, nil
	}

	session := &types.SetupSession{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		UserID:        userID,
		CurrentStep:   StepDetectRepo,
		CompletedSteps: []int{},
		OverallStatus: types.SessionInProgress,
		GitHubRepoURL: fmt.Sprintf("https://github.com/%s/%s", owner, repo),
		GitHubBranch:  githubBranch,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	m.log.Info().
		Str("session_id", session.ID).
		Str("project_id", projectID).
		Str("repo", githubRepo).
		Str("branch", githubBranch).
		Msg("setup session created")
	return session, nil
}

// CanExecuteStep checks the ordering precondition: step 1 is always
// allowed, step n needs 1..n-1 completed. A nil return means go ahead.
func CanExecuteStep(session *types.SetupSession, step int) error {
	if step < 1 || step > types.TotalSetupSteps {
		return &types.ValidationError{
			Field:  "step",
			Reason: fmt.Sprintf("must be between 1 and %d", types.TotalSetupSteps),
		}
	}
	var missing []int
	for prior := 1; prior < step; prior++ {
		if !session.HasCompleted(prior) {
			missing = append(missing, prior)
		}
	}
	if len(missing) > 0 {
		return &types.PreconditionError{
			SessionID:    session.ID,
			Step:         step,
			MissingSteps: missing,
		}
	}
	return nil
}

// ExecuteSetupStep runs one step of the session. Completed steps are
// re-runnable (the work is redone, the completed set is unchanged) and a
// failed session resumes by re-running the step that broke.
func (m *Manager) ExecuteSetupStep(ctx context.Context, sessionID string, step int, cred types.Credential) (*StepOutcome, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.OverallStatus {
	case types.SessionCompleted, types.SessionCancelled:
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, session.OverallStatus, types.ErrSessionTerminal)
	}
	if err := CanExecuteStep(session, step); err != nil {
		return nil, err
	}

	m.publish(ctx, events.NewStepEvent(events.EventTypeStepStarted, session.ProjectID, session.ID, step,
		fmt.Sprintf("step %d (%s) started", step, StepName(step))))

	result, stepErr := m.runStep(ctx, session, step, cred)
	if stepErr != nil {
		session.OverallStatus = types.SessionFailed
		session.ErrorStep = step
		session.ErrorMessage = stepErr.Error()
		if err := m.store.UpdateSession(ctx, session); err != nil {
			m.log.Error().Err(err).Str("session_id", session.ID).Msg("persisting failed step")
		}
		m.publish(ctx, events.NewStepFailure(session.ProjectID, session.ID, step, stepErr))
		m.log.Warn().Err(stepErr).
			Str("session_id", session.ID).
			Int("step", step).
			Msg("setup step failed")
		return nil, fmt.Errorf("step %d (%s): %w", step, StepName(step), stepErr)
	}

	// A successful run clears any prior failure on this or another step.
	session.OverallStatus = types.SessionInProgress
	session.ErrorStep = 0
	session.ErrorMessage = ""
	if !session.HasCompleted(step) {
		session.CompletedSteps = append(session.CompletedSteps, step)
	}
	if next := NextStep(session); next != 0 {
		session.CurrentStep = next
	} else {
		session.CurrentStep = types.TotalSetupSteps
		session.OverallStatus = types.SessionCompleted
		now := time.Now().UTC()
		session.CompletedAt = &now
	}
	if err := m.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persisting step %d result: %w", step, err)
	}

	m.publish(ctx, events.NewStepEvent(events.EventTypeStepCompleted, session.ProjectID, session.ID, step,
		fmt.Sprintf("step %d (%s) completed, %d%% done", step, StepName(step), CalculateProgress(session.CompletedSteps))))

	if session.OverallStatus == types.SessionCompleted {
		ev := events.NewStepEvent(events.EventTypeSessionCompleted, session.ProjectID, session.ID, step,
			fmt.Sprintf("setup finished in %s", FormatDuration(session.CreatedAt, session.CompletedAt)))
		ev.PreviewURL = session.PreviewURL
		m.publish(ctx, ev)
		m.log.Info().
			Str("session_id", session.ID).
			Str("preview_url", session.PreviewURL).
			Msg("setup session completed")
	}

	return &StepOutcome{Session: session, Result: result}, nil
}

func (m *Manager) runStep(ctx context.Context, session *types.SetupSession, step int, cred types.Credential) (StepResult, error) {
	switch step {
	case StepDetectRepo:
		return m.stepDetectRepo(ctx, session, cred)
	case StepAllocate:
		return m.stepAllocate(ctx, session)
	case StepConfigure:
		return m.stepConfigure(ctx, session)
	case StepCloneAndRun:
		return m.stepCloneAndRun(ctx, session, cred)
	default:
		return nil, fmt.Errorf("unknown step %d", step)
	}
}

func (m *Manager) stepDetectRepo(ctx context.Context, session *types.SetupSession, cred types.Credential) (StepResult, error) {
	owner, repo, err := splitRepoURL(session.GitHubRepoURL)
	if err != nil {
		return nil, err
	}
	if err := m.host.ValidateRepo(ctx, owner, repo, session.GitHubBranch, cred); err != nil {
		return nil, fmt.Errorf("validating %s/%s@%s: %w", owner, repo, session.GitHubBranch, err)
	}
	return RepoDetected{Owner: owner, Repo: repo, Branch: session.GitHubBranch}, nil
}

func (m *Manager) stepAllocate(ctx context.Context, session *types.SetupSession) (StepResult, error) {
	name := session.FlyAppName
	if name == "" {
		name = sandbox.GenerateName()
	}
	if err := sandbox.ValidateName(name); err != nil {
		return nil, err
	}
	handle, err := m.client.CreateSandbox(ctx, name, sandbox.CreateOptions{
		Region: m.region,
		RAMMB:  m.ramMB,
		CPUs:   m.cpus,
	})
	if err != nil {
		return nil, err
	}
	session.FlyAppName = handle.Name
	session.MachineID = handle.ID
	return MachineAllocated{AppName: handle.Name, MachineID: handle.ID, Region: handle.Region}, nil
}

func (m *Manager) stepConfigure(ctx context.Context, session *types.SetupSession) (StepResult, error) {
	handle := &sandbox.Handle{Name: session.FlyAppName, ID: session.MachineID}
	env := map[string]string{
		"NODE_ENV": "development",
		"HOST":     "0.0.0.0",
		"PORT":     fmt.Sprintf("%d", sandbox.DefaultPort),
	}
	if err := m.client.ConfigureSandbox(ctx, handle, env, sandbox.DefaultPort); err != nil {
		return nil, fmt.Errorf("configuring machine %s: %w", session.MachineID, err)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	return MachineConfigured{Port: sandbox.DefaultPort, EnvKeys: keys}, nil
}

func (m *Manager) stepCloneAndRun(ctx context.Context, session *types.SetupSession, cred types.Credential) (StepResult, error) {
	owner, repo, err := splitRepoURL(session.GitHubRepoURL)
	if err != nil {
		return nil, err
	}
	handle := &sandbox.Handle{Name: session.FlyAppName, ID: session.MachineID}
	prober := repohost.Prober{Host: m.host, Owner: owner, Repo: repo, Ref: session.GitHubBranch, Cred: cred}
	pm := pkgdetect.Detect(ctx, prober)

	result, err := m.client.CloneAndRun(ctx, handle, sandbox.RunSpec{
		RepoURL:        repohost.CloneURL(owner, repo),
		Branch:         session.GitHubBranch,
		Timeout:        m.bootTimeout,
		PackageManager: pm,
		Script:         sandbox.DefaultScript,
		AuthToken:      cred.Token,
	})
	if err != nil {
		return nil, err
	}

	session.PreviewURL = sandbox.PreviewURL(session.FlyAppName)
	preview := &types.PreviewInstance{
		ProjectID:   session.ProjectID,
		Owner:       owner,
		Repo:        repo,
		Branch:      session.GitHubBranch,
		SandboxName: session.FlyAppName,
		SandboxID:   session.MachineID,
		Port:        result.Port,
		ProcessID:   result.ProcessID,
		PreviewURL:  session.PreviewURL,
		Status:      types.PreviewStatusRunning,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.store.SavePreview(ctx, preview); err != nil {
		m.log.Error().Err(err).
			Str("project_id", session.ProjectID).
			Msg("recording preview after boot")
	}
	return ServerBooted{PreviewURL: session.PreviewURL, Port: result.Port, ProcessID: result.ProcessID}, nil
}

// CancelSession marks an in-progress or failed session cancelled. The
// allocated machine, if any, is left to the preview teardown path.
func (m *Manager) CancelSession(ctx context.Context, sessionID string) (*types.SetupSession, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.OverallStatus {
	case types.SessionCompleted, types.SessionCancelled:
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, session.OverallStatus, types.ErrSessionTerminal)
	}
	session.OverallStatus = types.SessionCancelled
	if err := m.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("cancelling session: %w", err)
	}
	m.publish(ctx, events.NewStepEvent(events.EventTypeSessionCancelled, session.ProjectID, session.ID, session.CurrentStep,
		"setup session cancelled"))
	return session, nil
}

// GetSession returns the persisted session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.SetupSession, error) {
	return m.store.GetSession(ctx, sessionID)
}

// SplitRepo parses "owner/name" into its parts.
func SplitRepo(githubRepo string) (owner, repo string, err error) {
	parts := strings.Split(githubRepo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &types.ValidationError{
			Field:  "githubRepo",
			Reason: fmt.Sprintf("%q is not in owner/name form", githubRepo),
		}
	}
	return parts[0], parts[1], nil
}

func splitRepoURL(repoURL string) (owner, repo string, err error) {
	trimmed := strings.TrimPrefix(repoURL, "https://github.com/")
	trimmed = strings.TrimSuffix(trimmed, ".git")
	return SplitRepo(trimmed)
}

func (m *Manager) publish(ctx context.Context, ev *events.Event) {
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("publishing event")
	}
}
