package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/roseram/previewd/internal/pkgdetect"
	"github.com/roseram/previewd/internal/types"
)

const (
	// ProviderDomain is the domain preview URLs are served under.
	ProviderDomain = "fly.dev"

	// flyAPIBase is the Fly Machines API root.
	flyAPIBase = "https://api.machines.dev/v1"

	// flyImage is the base image sandboxes boot from. It carries git,
	// node, and corepack so any of the three package managers works.
	flyImage = "node:20-bookworm-slim"

	// bootPollInterval is how often the boot sequence probes for the
	// dev server's listening port.
	bootPollInterval = 3 * time.Second

	// devLogPath is where the launched script's output is captured
	// inside the sandbox.
	devLogPath = "/tmp/dev.log"

	// DefaultBootTimeout bounds clone+install+boot when RunSpec.Timeout
	// is zero.
	DefaultBootTimeout = 120 * time.Second
)

// Fly implements Client against the Fly Machines API.
type Fly struct {
	baseURL string
	token   string
	org     string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// FlyOption customizes the Fly client.
type FlyOption func(*Fly)

// WithFlyBaseURL points the client at a different API root (tests).
func WithFlyBaseURL(u string) FlyOption {
	return func(f *Fly) { f.baseURL = strings.TrimSuffix(u, "/") }
}

// WithFlyLogger sets the logger.
func WithFlyLogger(log zerolog.Logger) FlyOption {
	return func(f *Fly) { f.log = log }
}

// NewFly creates a Fly Machines client. The limiter paces all API calls;
// Fly enforces per-token rate limits and a throttled 429 here would
// surface as a provisioning failure.
func NewFly(token, org string, opts ...FlyOption) *Fly {
	f := &Fly{
		baseURL: flyAPIBase,
		token:   token,
		org:     org,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fly) do(ctx context.Context, method, path string, body, out any) (int, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// CreateSandbox creates a Fly app and one machine under it.
func (f *Fly) CreateSandbox(ctx context.Context, name string, opts CreateOptions) (*Handle, error) {
	if err := ValidateName(name); err != nil {
		return nil, &types.ProvisioningError{SandboxName: name, Err: err}
	}

	appBody := map[string]string{
		"app_name": name,
		"org_slug": f.org,
	}
	if _, err := f.do(ctx, http.MethodPost, "/apps", appBody, nil); err != nil {
		return nil, &types.ProvisioningError{SandboxName: name, Err: err}
	}

	machineBody := map[string]any{
		"name":   name,
		"region": opts.Region,
		"config": map[string]any{
			"image": flyImage,
			"guest": map[string]any{
				"cpu_kind":  "shared",
				"cpus":      opts.CPUs,
				"memory_mb": opts.RAMMB,
			},
			"init": map[string]any{
				"cmd": []string{"sleep", "inf"},
			},
			"services": []map[string]any{{
				"internal_port": DefaultPort,
				"protocol":      "tcp",
				"ports": []map[string]any{
					{"port": 443, "handlers": []string{"tls", "http"}},
					{"port": 80, "handlers": []string{"http"}},
				},
			}},
		},
	}

	var machine struct {
		ID     string `json:"id"`
		Region string `json:"region"`
	}
	if _, err := f.do(ctx, http.MethodPost, "/apps/"+name+"/machines", machineBody, &machine); err != nil {
		return nil, &types.ProvisioningError{SandboxName: name, Err: err}
	}

	f.log.Info().Str("sandbox", name).Str("machine", machine.ID).Str("region", machine.Region).Msg("sandbox created")
	return &Handle{Name: name, ID: machine.ID, Region: machine.Region}, nil
}

type execResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func (f *Fly) exec(ctx context.Context, h *Handle, command string) (*execResult, error) {
	body := map[string]any{
		"cmd":     "sh -c " + strconv.Quote(command),
		"timeout": 60,
	}

	var result execResult
	path := fmt.Sprintf("/apps/%s/machines/%s/exec", h.Name, h.ID)
	if _, err := f.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return &result, fmt.Errorf("command exited %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return &result, nil
}

// CloneAndRun clones the repository, installs dependencies with the
// selected package manager, and launches the script in the background,
// then polls until the port is listening or the timeout elapses.
func (f *Fly) CloneAndRun(ctx context.Context, h *Handle, spec RunSpec) (*RunResult, error) {
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = DefaultBootTimeout
	}
	script := spec.Script
	if script == "" {
		script = DefaultScript
	}
	pm := spec.PackageManager
	if pm == "" {
		pm = pkgdetect.Npm
	}

	deadline := time.Now().Add(timeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	cloneURL := spec.RepoURL
	if spec.AuthToken != "" {
		cloneURL = strings.Replace(cloneURL, "https://", "https://x-access-token:"+spec.AuthToken+"@", 1)
	}

	clone := fmt.Sprintf("rm -rf /app && git clone --depth 1 --branch %s %s /app", spec.Branch, cloneURL)
	if _, err := f.exec(runCtx, h, clone); err != nil {
		if runCtx.Err() != nil {
			return nil, &types.SetupTimeoutError{SandboxName: h.Name, Timeout: timeout}
		}
		return nil, fmt.Errorf("cloning %s: %w", spec.RepoURL, err)
	}

	install := fmt.Sprintf("cd /app && corepack enable >/dev/null 2>&1 || true; %s", pkgdetect.InstallCommand(pm))
	if _, err := f.exec(runCtx, h, install); err != nil {
		if runCtx.Err() != nil {
			return nil, &types.SetupTimeoutError{SandboxName: h.Name, Timeout: timeout}
		}
		return nil, fmt.Errorf("installing dependencies with %s: %w", pm, err)
	}

	launch := fmt.Sprintf("cd /app && nohup %s >%s 2>&1 & echo $!",
		pkgdetect.RunCommand(pm, script), devLogPath)
	launched, err := f.exec(runCtx, h, launch)
	if err != nil {
		if runCtx.Err() != nil {
			return nil, &types.SetupTimeoutError{SandboxName: h.Name, Timeout: timeout}
		}
		return nil, fmt.Errorf("launching %s script: %w", script, err)
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(launched.Stdout))

	// Poll until the dev server is actually listening. A failed curl is
	// just "not up yet"; only the deadline ends the wait.
	for {
		probe := fmt.Sprintf("curl -sf -o /dev/null http://localhost:%d", DefaultPort)
		if _, err := f.exec(runCtx, h, probe); err == nil {
			f.log.Info().Str("sandbox", h.Name).Int("port", DefaultPort).Int("pid", pid).Msg("dev server listening")
			return &RunResult{Port: DefaultPort, ProcessID: pid}, nil
		}

		select {
		case <-runCtx.Done():
			return nil, &types.SetupTimeoutError{SandboxName: h.Name, Timeout: timeout}
		case <-time.After(bootPollInterval):
		}
	}
}

// ConfigureSandbox writes environment variables to /app/.env and records
// the expected port.
func (f *Fly) ConfigureSandbox(ctx context.Context, h *Handle, env map[string]string, port int) error {
	if port == 0 {
		port = DefaultPort
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PORT=%d\n", port)
	for k, v := range env {
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}

	write := fmt.Sprintf("mkdir -p /app && printf %s > /app/.env", strconv.Quote(b.String()))
	if _, err := f.exec(ctx, h, write); err != nil {
		return fmt.Errorf("configuring sandbox %s: %w", h.Name, err)
	}
	return nil
}

// DestroySandbox deletes the app (and with it the machine). A 404 means
// the sandbox is already gone, which is success.
func (f *Fly) DestroySandbox(ctx context.Context, name string) error {
	status, err := f.do(ctx, http.MethodDelete, "/apps/"+name, nil, nil)
	if err != nil {
		if status == http.StatusNotFound {
			f.log.Warn().Str("sandbox", name).Msg("destroy: sandbox already gone")
			return nil
		}
		return fmt.Errorf("destroying sandbox %s: %w", name, err)
	}
	f.log.Info().Str("sandbox", name).Msg("sandbox destroyed")
	return nil
}

// FetchLogs tails the captured dev-server output. Never fails hard: an
// unreachable provider yields an explanatory message instead.
func (f *Fly) FetchLogs(ctx context.Context, name string, processID, limit int) (string, error) {
	if limit <= 0 {
		limit = 100
	}

	var machines []struct {
		ID string `json:"id"`
	}
	if _, err := f.do(ctx, http.MethodGet, "/apps/"+name+"/machines", nil, &machines); err != nil || len(machines) == 0 {
		f.log.Warn().Str("sandbox", name).Err(err).Msg("log fetch: provider unreachable")
		return fmt.Sprintf("logs unavailable for %s: provider unreachable or sandbox gone", name), nil
	}

	h := &Handle{Name: name, ID: machines[0].ID}
	result, err := f.exec(ctx, h, fmt.Sprintf("tail -n %d %s", limit, devLogPath))
	if err != nil {
		f.log.Warn().Str("sandbox", name).Err(err).Msg("log fetch failed")
		return fmt.Sprintf("logs unavailable for %s: %v", name, err), nil
	}
	return result.Stdout, nil
}
