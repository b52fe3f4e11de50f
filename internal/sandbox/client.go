// Package sandbox wraps the remote ephemeral-container provider that
// preview environments run on. The Client interface is the execution
// substrate for the Preview Manager and the setup-session steps; the only
// production implementation targets the Fly Machines API.
package sandbox

import (
	"context"
	"time"

	"github.com/roseram/previewd/internal/pkgdetect"
)

// MaxNameLength is the provider-side limit on sandbox names.
const MaxNameLength = 63

// DefaultScript is the package script launched when none is specified.
const DefaultScript = "dev"

// DefaultPort is the port dev servers are assumed to listen on.
const DefaultPort = 3000

// CreateOptions sizes a new sandbox.
type CreateOptions struct {
	Region string
	RAMMB  int
	CPUs   int
}

// Handle identifies a created sandbox for subsequent operations.
type Handle struct {
	Name   string
	ID     string
	Region string
}

// RunSpec describes the clone/install/boot sequence executed inside a
// sandbox. Timeout bounds the whole sequence; zero means the 120s default.
type RunSpec struct {
	RepoURL        string
	Branch         string
	Timeout        time.Duration
	PackageManager pkgdetect.PackageManager
	Script         string
	AuthToken      string
}

// RunResult reports the booted dev server.
type RunResult struct {
	Port      int
	ProcessID int
}

// Client is the boundary to the sandbox provider.
type Client interface {
	// CreateSandbox allocates a sandbox under the given globally unique
	// name. Fails with a ProvisioningError when the name is invalid
	// (> MaxNameLength) or the provider quota is exhausted.
	CreateSandbox(ctx context.Context, name string, opts CreateOptions) (*Handle, error)

	// CloneAndRun clones the repository, installs dependencies with the
	// selected package manager, and launches the named script as a
	// background process. Fails with a SetupTimeoutError when no
	// listening port appears within the RunSpec timeout.
	CloneAndRun(ctx context.Context, h *Handle, spec RunSpec) (*RunResult, error)

	// ConfigureSandbox injects environment variables and port
	// configuration before boot. Used by setup-session step 3.
	ConfigureSandbox(ctx context.Context, h *Handle, env map[string]string, port int) error

	// DestroySandbox removes the sandbox. Idempotent: destroying a
	// sandbox that is already gone logs and returns nil.
	DestroySandbox(ctx context.Context, name string) error

	// FetchLogs retrieves up to limit lines of dev-server output.
	// Best-effort: when the provider is unreachable it returns an
	// explanatory message rather than an error.
	FetchLogs(ctx context.Context, name string, processID, limit int) (string, error)
}
