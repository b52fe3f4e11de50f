// Package types defines the core domain types shared across previewd:
// preview instances, setup sessions, and the error taxonomy used by the
// provisioning layers.
package types

import (
	"fmt"
	"time"
)

// PreviewStatus represents the normalized lifecycle state of a preview
// environment as surfaced to pollers and the HTTP API.
type PreviewStatus string

const (
	// PreviewStatusPending indicates provisioning has been requested but
	// no sandbox exists yet.
	PreviewStatusPending PreviewStatus = "pending"

	// PreviewStatusInitializing indicates the sandbox exists and the
	// clone/install/boot sequence is in flight.
	PreviewStatusInitializing PreviewStatus = "initializing"

	// PreviewStatusRunning indicates the dev server is up and the preview
	// URL is serving.
	PreviewStatusRunning PreviewStatus = "running"

	// PreviewStatusStopped indicates the sandbox was torn down.
	PreviewStatusStopped PreviewStatus = "stopped"

	// PreviewStatusError indicates provisioning failed.
	PreviewStatusError PreviewStatus = "error"

	// PreviewStatusNotFound is the sentinel returned by status reads for
	// unknown project IDs. It is never stored.
	PreviewStatusNotFound PreviewStatus = "not_found"
)

// IsTerminal reports whether a poller observing this status should stop.
// Only running and error end a poll; stopped previews may be recreated
// under the same project ID while a client is still watching.
func (s PreviewStatus) IsTerminal() bool {
	return s == PreviewStatusRunning || s == PreviewStatusError
}

// PreviewInstance is one provisioned preview environment: a remote sandbox
// running the dev server of a cloned repository, reachable at PreviewURL.
// Instances are keyed by ProjectID in the Preview Manager's registry and
// are only mutated by the manager that owns them.
type PreviewInstance struct {
	// ProjectID is the caller-supplied identity. It is not globally
	// unique across restarts of the daemon.
	ProjectID string `json:"project_id"`

	// Owner and Repo identify the source repository.
	Owner string `json:"owner"`
	Repo  string `json:"repo"`

	// Branch is the ref that was cloned.
	Branch string `json:"branch"`

	// SandboxName is the globally unique provider-side name. Always
	// <= 63 characters, matching p-[a-z0-9]{6}-\d{5}.
	SandboxName string `json:"sandbox_name"`

	// SandboxID is the provider's machine identifier.
	SandboxID string `json:"sandbox_id"`

	// Port is the port the dev server listens on inside the sandbox.
	Port int `json:"port"`

	// ProcessID is the PID of the dev server process inside the sandbox.
	ProcessID int `json:"process_id"`

	// PreviewURL is derived from SandboxName as
	// https://{SandboxName}.{provider domain}.
	PreviewURL string `json:"preview_url"`

	// Status is the current lifecycle state.
	Status PreviewStatus `json:"status"`

	// CreatedAt is when provisioning completed and the instance was
	// registered.
	CreatedAt time.Time `json:"created_at"`
}

// Uptime returns how long the instance has been registered.
func (p *PreviewInstance) Uptime() time.Duration {
	return time.Since(p.CreatedAt)
}

// SessionStatus represents the overall state of a setup session.
type SessionStatus string

const (
	// SessionInProgress indicates the session has unexecuted steps.
	SessionInProgress SessionStatus = "in_progress"

	// SessionCompleted indicates all four steps finished successfully.
	SessionCompleted SessionStatus = "completed"

	// SessionFailed indicates the most recent step execution failed.
	// Failed sessions remain resumable: re-running the failed step moves
	// the session back to in_progress.
	SessionFailed SessionStatus = "failed"

	// SessionCancelled indicates the caller abandoned the session.
	SessionCancelled SessionStatus = "cancelled"
)

// TotalSetupSteps is the fixed length of the setup sequence:
// detect repo, allocate machine, configure, boot.
const TotalSetupSteps = 4

// SetupSession is a persisted, resumable record of provisioning progress
// for one project's preview environment. Step n (n>1) may only execute
// once steps 1..n-1 are all in CompletedSteps.
type SetupSession struct {
	// ID is the opaque session identifier assigned at creation.
	ID string `json:"id"`

	// ProjectID is the project this session provisions for.
	ProjectID string `json:"project_id"`

	// UserID is the requesting user, when known.
	UserID string `json:"user_id,omitempty"`

	// CurrentStep is the next step expected to run (1-4).
	CurrentStep int `json:"current_step"`

	// CompletedSteps is the ordered set of finished step numbers.
	CompletedSteps []int `json:"completed_steps"`

	// OverallStatus is the session-level state.
	OverallStatus SessionStatus `json:"overall_status"`

	// ErrorStep and ErrorMessage are set only when OverallStatus is
	// failed, recording which step broke and why.
	ErrorStep    int    `json:"error_step,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// FlyAppName is the sandbox name allocated in step 2, and MachineID
	// the provider-side machine under it. Both are needed to resume
	// steps 3 and 4 in a later process.
	FlyAppName string `json:"fly_app_name,omitempty"`
	MachineID  string `json:"machine_id,omitempty"`

	// PreviewURL is produced by step 4.
	PreviewURL string `json:"preview_url,omitempty"`

	// GitHubRepoURL and GitHubBranch identify the source repository.
	GitHubRepoURL string `json:"github_repo_url"`
	GitHubBranch  string `json:"github_branch"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HasCompleted reports whether the given step number is in CompletedSteps.
func (s *SetupSession) HasCompleted(step int) bool {
	for _, done := range s.CompletedSteps {
		if done == step {
			return true
		}
	}
	return false
}

// Validate checks structural invariants before the session is persisted.
func (s *SetupSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if s.ProjectID == "" {
		return fmt.Errorf("session ProjectID cannot be empty")
	}
	if s.CurrentStep < 1 || s.CurrentStep > TotalSetupSteps {
		return fmt.Errorf("session CurrentStep %d out of range 1-%d", s.CurrentStep, TotalSetupSteps)
	}
	for _, step := range s.CompletedSteps {
		if step < 1 || step > TotalSetupSteps {
			return fmt.Errorf("completed step %d out of range 1-%d", step, TotalSetupSteps)
		}
	}
	switch s.OverallStatus {
	case SessionInProgress, SessionCompleted, SessionFailed, SessionCancelled:
	default:
		return fmt.Errorf("invalid session status: %q", s.OverallStatus)
	}
	return nil
}

// Credential is a typed bearer token for a repository host or sandbox
// provider. It replaces header parsing inside the orchestration core:
// callers hand the token over explicitly, and an empty Credential means
// "proceed unauthenticated" (which will fail later for private repos).
type Credential struct {
	Token string
}

// IsZero reports whether no token was supplied.
func (c Credential) IsZero() bool {
	return c.Token == ""
}
