// Package pkgdetect picks the package manager a repository expects by
// probing for its lock file. Detection is best-effort and never blocks
// provisioning: any probe failure degrades to the npm default.
package pkgdetect

import "context"

// PackageManager identifies a JavaScript package manager.
type PackageManager string

const (
	Npm  PackageManager = "npm"
	Yarn PackageManager = "yarn"
	Pnpm PackageManager = "pnpm"
)

// Lock files in priority order. pnpm wins over yarn wins over npm, so a
// repository carrying both pnpm-lock.yaml and yarn.lock installs with pnpm.
const (
	PnpmLockFile = "pnpm-lock.yaml"
	YarnLockFile = "yarn.lock"
	NpmLockFile  = "package-lock.json"
)

// FileProber checks whether a file exists in the repository being
// provisioned. Implementations are bound to one owner/repo/ref.
type FileProber interface {
	FileExists(ctx context.Context, path string) (bool, error)
}

// Probe records which lock files were found. Transient; computed once per
// provisioning run and never persisted.
type Probe struct {
	Pnpm bool
	Yarn bool
	Npm  bool
}

// Choose resolves the probe to a package manager, applying the
// pnpm > yarn > npm priority and defaulting to npm.
func (p Probe) Choose() PackageManager {
	switch {
	case p.Pnpm:
		return Pnpm
	case p.Yarn:
		return Yarn
	default:
		return Npm
	}
}

// Run probes the repository for each lock file. An error from any
// individual probe is treated as "file absent", not surfaced.
func Run(ctx context.Context, prober FileProber) Probe {
	return Probe{
		Pnpm: exists(ctx, prober, PnpmLockFile),
		Yarn: exists(ctx, prober, YarnLockFile),
		Npm:  exists(ctx, prober, NpmLockFile),
	}
}

// Detect probes and chooses in one call.
func Detect(ctx context.Context, prober FileProber) PackageManager {
	return Run(ctx, prober).Choose()
}

func exists(ctx context.Context, prober FileProber, path string) bool {
	found, err := prober.FileExists(ctx, path)
	if err != nil {
		return false
	}
	return found
}

// InstallCommand returns the dependency-install invocation for pm.
func InstallCommand(pm PackageManager) string {
	switch pm {
	case Pnpm:
		return "pnpm install --frozen-lockfile"
	case Yarn:
		return "yarn install --frozen-lockfile"
	default:
		return "npm install"
	}
}

// RunCommand returns the invocation that launches the named package script.
func RunCommand(pm PackageManager, script string) string {
	switch pm {
	case Pnpm:
		return "pnpm run " + script
	case Yarn:
		return "yarn run " + script
	default:
		return "npm run " + script
	}
}
