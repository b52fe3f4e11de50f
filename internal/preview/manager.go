// Package preview orchestrates preview-environment provisioning: allocate
// a sandbox, clone the repository, detect its package manager, install
// dependencies, boot the dev server, and register the result.
package preview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/roseram/previewd/internal/events"
	"github.com/roseram/previewd/internal/pkgdetect"
	"github.com/roseram/previewd/internal/repohost"
	"github.com/roseram/previewd/internal/sandbox"
	"github.com/roseram/previewd/internal/types"
)

// CreateOptions tune one CreatePreview call. Zero values fall back to the
// manager's defaults.
type CreateOptions struct {
	Region  string
	RAMMB   int
	CPUs    int
	Timeout time.Duration
	Script  string
}

// Status is the read model returned by GetPreviewStatus.
type Status struct {
	Status      types.PreviewStatus `json:"status"`
	ProjectID   string              `json:"project_id,omitempty"`
	PreviewURL  string              `json:"preview_url,omitempty"`
	SandboxName string              `json:"sandbox_name,omitempty"`
	Port        int                 `json:"port,omitempty"`
	UptimeMS    int64               `json:"uptime_ms,omitempty"`
}

// Config holds the Manager's collaborators and defaults.
type Config struct {
	// Client is the sandbox provider. Required.
	Client sandbox.Client

	// Registry tracks active previews. Required.
	Registry Registry

	// Host is the repository host, used for lock-file probing. Required.
	Host repohost.Host

	// Events receives lifecycle events. Optional; nil means dropped.
	Events events.Publisher

	// Defaults for CreateOptions zero values.
	Region      string
	RAMMB       int
	CPUs        int
	BootTimeout time.Duration

	// MaxConcurrentCreates bounds simultaneous provisioning runs across
	// all projects. 0 means 4.
	MaxConcurrentCreates int

	Logger zerolog.Logger
}

// Manager owns the provisioning workflow and the registry of active
// previews. Instances it registers are mutated only by it.
type Manager struct {
	client   sandbox.Client
	registry Registry
	host     repohost.Host
	events   events.Publisher
	log      zerolog.Logger

	region      string
	ramMB       int
	cpus        int
	bootTimeout time.Duration

	sem *semaphore.Weighted

	// inflight rejects a second concurrent create for the same project.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewManager validates the configuration and creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("Client cannot be nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("Registry cannot be nil")
	}
	if cfg.Host == nil {
		return nil, fmt.Errorf("Host cannot be nil")
	}

	if cfg.Region == "" {
		cfg.Region = "iad"
	}
	if cfg.RAMMB == 0 {
		cfg.RAMMB = 1024
	}
	if cfg.CPUs == 0 {
		cfg.CPUs = 1
	}
	if cfg.BootTimeout == 0 {
		cfg.BootTimeout = sandbox.DefaultBootTimeout
	}
	if cfg.MaxConcurrentCreates == 0 {
		cfg.MaxConcurrentCreates = 4
	}
	if cfg.Events == nil {
		cfg.Events = events.NopPublisher{}
	}

	return &Manager{
		client:      cfg.Client,
		registry:    cfg.Registry,
		host:        cfg.Host,
		events:      cfg.Events,
		log:         cfg.Logger,
		region:      cfg.Region,
		ramMB:       cfg.RAMMB,
		cpus:        cfg.CPUs,
		bootTimeout: cfg.BootTimeout,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentCreates)),
		inflight:    make(map[string]struct{}),
	}, nil
}

// CreatePreview provisions a preview environment for the repository and
// registers it under projectID. Steps run strictly in order: name
// generation, sandbox create, package-manager detection, clone+boot,
// registration. There is no automatic retry and no partial cleanup: a
// sandbox created here that fails to boot is left for an explicit
// DestroyPreview, which keeps the failure path simple at the cost of a
// possible orphan.
func (m *Manager) CreatePreview(ctx context.Context, projectID, owner, repo, branch string, cred types.Credential, opts CreateOptions) (*types.PreviewInstance, error) {
	if projectID == "" {
		return nil, &types.ValidationError{Field: "projectID", Reason: "cannot be empty"}
	}
	if owner == "" || repo == "" {
		return nil, &types.ValidationError{Field: "repository", Reason: "owner and repo are required"}
	}
	if branch == "" {
		branch = "main"
	}

	if err := m.claimInflight(projectID); err != nil {
		return nil, err
	}
	defer m.releaseInflight(projectID)

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a provisioning slot: %w", err)
	}
	defer m.sem.Release(1)

	name := sandbox.GenerateName()
	if err := sandbox.ValidateName(name); err != nil {
		return nil, err
	}

	handle, err := m.client.CreateSandbox(ctx, name, sandbox.CreateOptions{
		Region: m.pick(opts.Region, m.region),
		RAMMB:  m.pickInt(opts.RAMMB, m.ramMB),
		CPUs:   m.pickInt(opts.CPUs, m.cpus),
	})
	if err != nil {
		return nil, m.fail(ctx, projectID, "create_sandbox", err)
	}

	prober := repohost.Prober{Host: m.host, Owner: owner, Repo: repo, Ref: branch, Cred: cred}
	pm := pkgdetect.Detect(ctx, prober)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = m.bootTimeout
	}
	script := opts.Script
	if script == "" {
		script = sandbox.DefaultScript
	}

	result, err := m.client.CloneAndRun(ctx, handle, sandbox.RunSpec{
		RepoURL:        repohost.CloneURL(owner, repo),
		Branch:         branch,
		Timeout:        timeout,
		PackageManager: pm,
		Script:         script,
		AuthToken:      cred.Token,
	})
	if err != nil {
		// The sandbox from the create step is left orphaned here on
		// purpose; see the method comment.
		return nil, m.fail(ctx, projectID, "clone_and_run", err)
	}

	instance := &types.PreviewInstance{
		ProjectID:   projectID,
		Owner:       owner,
		Repo:        repo,
		Branch:      branch,
		SandboxName: name,
		SandboxID:   handle.ID,
		Port:        result.Port,
		ProcessID:   result.ProcessID,
		PreviewURL:  sandbox.PreviewURL(name),
		Status:      types.PreviewStatusRunning,
		CreatedAt:   time.Now().UTC(),
	}

	if err := m.registry.Put(ctx, instance); err != nil {
		return nil, m.fail(ctx, projectID, "register", err)
	}

	m.log.Info().
		Str("project", projectID).
		Str("sandbox", name).
		Str("package_manager", string(pm)).
		Str("url", instance.PreviewURL).
		Msg("preview provisioned")
	m.publish(ctx, events.NewPreviewEvent(events.EventTypePreviewCreated, projectID, "preview provisioned", instance.PreviewURL))

	return instance, nil
}

// GetPreview looks up the active preview for a project. Pure read; nil
// when absent.
func (m *Manager) GetPreview(ctx context.Context, projectID string) (*types.PreviewInstance, error) {
	return m.registry.Get(ctx, projectID)
}

// ListPreviews returns a snapshot of all active previews.
func (m *Manager) ListPreviews(ctx context.Context) ([]*types.PreviewInstance, error) {
	return m.registry.List(ctx)
}

// DestroyPreview tears down a project's sandbox and removes the registry
// entry. A project with no preview logs a warning and returns nil.
// When the provider destroy fails the entry is kept so the caller can
// retry; DestroySandbox itself is idempotent, so retrying is safe.
func (m *Manager) DestroyPreview(ctx context.Context, projectID string) error {
	instance, err := m.registry.Get(ctx, projectID)
	if err != nil {
		return fmt.Errorf("looking up preview %s: %w", projectID, err)
	}
	if instance == nil {
		m.log.Warn().Str("project", projectID).Msg("destroy: no preview registered")
		return nil
	}

	if err := m.client.DestroySandbox(ctx, instance.SandboxName); err != nil {
		return &types.PreviewError{ProjectID: projectID, Stage: "destroy_sandbox", Err: err}
	}

	if err := m.registry.Delete(ctx, projectID); err != nil {
		return fmt.Errorf("removing registry entry for %s: %w", projectID, err)
	}

	m.log.Info().Str("project", projectID).Str("sandbox", instance.SandboxName).Msg("preview destroyed")
	m.publish(ctx, events.NewPreviewEvent(events.EventTypePreviewDestroyed, projectID, "preview destroyed", ""))
	return nil
}

// GetPreviewStatus is a pure read of the registry. Unknown projects get
// the not_found sentinel rather than an error.
func (m *Manager) GetPreviewStatus(ctx context.Context, projectID string) (*Status, error) {
	instance, err := m.registry.Get(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("looking up preview %s: %w", projectID, err)
	}
	if instance == nil {
		return &Status{Status: types.PreviewStatusNotFound, ProjectID: projectID}, nil
	}

	return &Status{
		Status:      instance.Status,
		ProjectID:   instance.ProjectID,
		PreviewURL:  instance.PreviewURL,
		SandboxName: instance.SandboxName,
		Port:        instance.Port,
		UptimeMS:    instance.Uptime().Milliseconds(),
	}, nil
}

// FetchLogs proxies to the sandbox client for the project's preview.
func (m *Manager) FetchLogs(ctx context.Context, projectID string, limit int) (string, error) {
	instance, err := m.registry.Get(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("looking up preview %s: %w", projectID, err)
	}
	if instance == nil {
		return "", &types.ValidationError{Field: "projectID", Reason: "no preview registered"}
	}
	return m.client.FetchLogs(ctx, instance.SandboxName, instance.ProcessID, limit)
}

func (m *Manager) claimInflight(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[projectID]; busy {
		return types.ErrCreateInProgress
	}
	m.inflight[projectID] = struct{}{}
	return nil
}

func (m *Manager) releaseInflight(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, projectID)
}

func (m *Manager) fail(ctx context.Context, projectID, stage string, err error) error {
	wrapped := &types.PreviewError{ProjectID: projectID, Stage: stage, Err: err}
	m.log.Error().Str("project", projectID).Str("stage", stage).Err(err).Msg("preview provisioning failed")
	m.publish(ctx, events.NewPreviewFailure(projectID, wrapped))
	return wrapped
}

func (m *Manager) publish(ctx context.Context, ev *events.Event) {
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.Warn().Str("event", string(ev.Type)).Err(err).Msg("event publish failed")
	}
}

func (m *Manager) pick(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func (m *Manager) pickInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}
