package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/roseram/previewd/internal/types"
)

// Fake is an in-memory Client used by tests and previewd's --dry-run
// mode. Each operation can be forced to fail; by default everything
// succeeds and CloneAndRun reports port 3000.
type Fake struct {
	mu sync.Mutex

	// Failure injection. Leave nil for success.
	CreateErr    error
	RunErr       error
	ConfigureErr error
	DestroyErr   error

	// RunResultPort/PID override the defaults when non-zero.
	RunResultPort int
	RunResultPID  int

	created   map[string]*Handle
	destroyed []string
	RunSpecs  []RunSpec
}

// NewFake returns a Fake with no injected failures.
func NewFake() *Fake {
	return &Fake{created: make(map[string]*Handle)}
}

func (f *Fake) CreateSandbox(ctx context.Context, name string, opts CreateOptions) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if err := ValidateName(name); err != nil {
		return nil, &types.ProvisioningError{SandboxName: name, Err: err}
	}
	if _, exists := f.created[name]; exists {
		return nil, &types.ProvisioningError{SandboxName: name, Err: fmt.Errorf("name already taken")}
	}

	h := &Handle{Name: name, ID: "machine-" + name, Region: opts.Region}
	f.created[name] = h
	return h, nil
}

func (f *Fake) CloneAndRun(ctx context.Context, h *Handle, spec RunSpec) (*RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.RunSpecs = append(f.RunSpecs, spec)
	if f.RunErr != nil {
		return nil, f.RunErr
	}

	port := f.RunResultPort
	if port == 0 {
		port = DefaultPort
	}
	pid := f.RunResultPID
	if pid == 0 {
		pid = 1234
	}
	return &RunResult{Port: port, ProcessID: pid}, nil
}

func (f *Fake) ConfigureSandbox(ctx context.Context, h *Handle, env map[string]string, port int) error {
	return f.ConfigureErr
}

func (f *Fake) DestroySandbox(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DestroyErr != nil {
		return f.DestroyErr
	}
	delete(f.created, name)
	f.destroyed = append(f.destroyed, name)
	return nil
}

func (f *Fake) FetchLogs(ctx context.Context, name string, processID, limit int) (string, error) {
	return fmt.Sprintf("fake logs for %s (pid %d)", name, processID), nil
}

// CreatedCount reports how many sandboxes currently exist.
func (f *Fake) CreatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// Destroyed returns the names destroyed so far, in order.
func (f *Fake) Destroyed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.destroyed))
	copy(out, f.destroyed)
	return out
}
