package repohost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/roseram/previewd/internal/types"
)

const githubAPIBase = "https://api.github.com"

// GitHub implements Host against the GitHub REST API v3.
type GitHub struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// GitHubOption customizes the GitHub client.
type GitHubOption func(*GitHub)

// WithBaseURL points the client at a different API root (GitHub
// Enterprise, or an httptest server in tests).
func WithBaseURL(u string) GitHubOption {
	return func(g *GitHub) { g.baseURL = strings.TrimSuffix(u, "/") }
}

// WithLogger sets the logger used for soft-failure warnings.
func WithLogger(log zerolog.Logger) GitHubOption {
	return func(g *GitHub) { g.log = log }
}

// NewGitHub creates a GitHub host client.
func NewGitHub(opts ...GitHubOption) *GitHub {
	g := &GitHub{
		baseURL: githubAPIBase,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
			},
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GitHub) do(ctx context.Context, method, path string, cred types.Credential, body, out any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !cred.IsZero() {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, ErrNotFound
	}
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

// GetFileContent fetches one file via the contents API and decodes it.
func (g *GitHub) GetFileContent(ctx context.Context, owner, repo, path, ref string, cred types.Credential) (string, error) {
	var result struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}

	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
		url.PathEscape(owner), url.PathEscape(repo), path, url.QueryEscape(ref))
	if _, err := g.do(ctx, http.MethodGet, apiPath, cred, nil, &result); err != nil {
		return "", err
	}

	if result.Encoding != "base64" {
		return result.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(result.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return string(decoded), nil
}

// GetRepositoryStructure lists the full tree at ref.
func (g *GitHub) GetRepositoryStructure(ctx context.Context, owner, repo, ref string, cred types.Credential) ([]RepoFile, error) {
	var result struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			Size int    `json:"size"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}

	apiPath := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(ref))
	if _, err := g.do(ctx, http.MethodGet, apiPath, cred, nil, &result); err != nil {
		return nil, err
	}

	if result.Truncated {
		g.log.Warn().Str("repo", owner+"/"+repo).Msg("tree listing truncated by GitHub")
	}

	files := make([]RepoFile, 0, len(result.Tree))
	for _, entry := range result.Tree {
		files = append(files, RepoFile{Path: entry.Path, Type: entry.Type, Size: entry.Size})
	}
	return files, nil
}

// ValidateRepo confirms both the repository and the branch are reachable.
func (g *GitHub) ValidateRepo(ctx context.Context, owner, repo, branch string, cred types.Credential) error {
	repoPath := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if _, err := g.do(ctx, http.MethodGet, repoPath, cred, nil, nil); err != nil {
		return fmt.Errorf("repository %s/%s: %w", owner, repo, err)
	}

	branchPath := fmt.Sprintf("/repos/%s/%s/branches/%s",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))
	if _, err := g.do(ctx, http.MethodGet, branchPath, cred, nil, nil); err != nil {
		return fmt.Errorf("branch %s of %s/%s: %w", branch, owner, repo, err)
	}
	return nil
}

// CreateBranch creates name pointing at the head of base.
func (g *GitHub) CreateBranch(ctx context.Context, owner, repo, base, name string, cred types.Credential) error {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}

	refPath := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(base))
	if _, err := g.do(ctx, http.MethodGet, refPath, cred, nil, &ref); err != nil {
		return fmt.Errorf("resolving base branch %s: %w", base, err)
	}

	body := map[string]string{
		"ref": "refs/heads/" + name,
		"sha": ref.Object.SHA,
	}
	createPath := fmt.Sprintf("/repos/%s/%s/git/refs", url.PathEscape(owner), url.PathEscape(repo))
	if _, err := g.do(ctx, http.MethodPost, createPath, cred, body, nil); err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	return nil
}

// CommitChanges writes each file through the contents API. GitHub requires
// the existing blob SHA when updating, so each write is preceded by a
// lookup; a missing file is a create.
func (g *GitHub) CommitChanges(ctx context.Context, owner, repo, branch, message string, files map[string]string, cred types.Credential) error {
	for path, content := range files {
		var existing struct {
			SHA string `json:"sha"`
		}
		getPath := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
			url.PathEscape(owner), url.PathEscape(repo), path, url.QueryEscape(branch))
		if _, err := g.do(ctx, http.MethodGet, getPath, cred, nil, &existing); err != nil && err != ErrNotFound {
			return fmt.Errorf("checking %s: %w", path, err)
		}

		body := map[string]string{
			"message": message,
			"content": base64.StdEncoding.EncodeToString([]byte(content)),
			"branch":  branch,
		}
		if existing.SHA != "" {
			body["sha"] = existing.SHA
		}

		putPath := fmt.Sprintf("/repos/%s/%s/contents/%s",
			url.PathEscape(owner), url.PathEscape(repo), path)
		if _, err := g.do(ctx, http.MethodPut, putPath, cred, body, nil); err != nil {
			return fmt.Errorf("committing %s: %w", path, err)
		}
	}
	return nil
}

// CloneURL returns the https clone URL for a repository.
func CloneURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
}
