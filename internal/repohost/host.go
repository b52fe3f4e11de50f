// Package repohost abstracts the repository hosting service the
// provisioning layers read from. The only implementation is GitHub's REST
// API; everything upstream depends on the Host interface so tests can
// substitute a fixture host.
package repohost

import (
	"context"
	"errors"

	"github.com/roseram/previewd/internal/types"
)

// ErrNotFound is returned when a file, branch, or repository does not
// exist (or is not visible with the supplied credential).
var ErrNotFound = errors.New("not found on repository host")

// RepoFile is one entry of a repository tree listing.
type RepoFile struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" or "tree"
	Size int    `json:"size,omitempty"`
}

// Host is the boundary to the repository hosting service. Authentication
// is a typed per-call Credential; a zero credential means unauthenticated
// access, which works for public repositories only.
type Host interface {
	// GetFileContent fetches one file's decoded content at the given ref.
	// Returns ErrNotFound when the file does not exist.
	GetFileContent(ctx context.Context, owner, repo, path, ref string, cred types.Credential) (string, error)

	// GetRepositoryStructure lists the repository tree at the given ref.
	GetRepositoryStructure(ctx context.Context, owner, repo, ref string, cred types.Credential) ([]RepoFile, error)

	// ValidateRepo confirms the repository and branch exist and are
	// reachable with the credential. Returns ErrNotFound otherwise.
	ValidateRepo(ctx context.Context, owner, repo, branch string, cred types.Credential) error

	// CreateBranch creates a new branch from the head of base.
	CreateBranch(ctx context.Context, owner, repo, base, name string, cred types.Credential) error

	// CommitChanges writes the given files to the branch, one commit.
	CommitChanges(ctx context.Context, owner, repo, branch, message string, files map[string]string, cred types.Credential) error
}

// Prober binds a Host to one owner/repo/ref so it satisfies
// pkgdetect.FileProber.
type Prober struct {
	Host  Host
	Owner string
	Repo  string
	Ref   string
	Cred  types.Credential
}

// FileExists reports whether path exists at the bound ref. ErrNotFound is
// "no"; any other error propagates so the detector can decide to ignore it.
func (p Prober) FileExists(ctx context.Context, path string) (bool, error) {
	_, err := p.Host.GetFileContent(ctx, p.Owner, p.Repo, path, p.Ref, p.Cred)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
