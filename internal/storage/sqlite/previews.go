package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roseram/previewd/internal/types"
)

// SavePreview upserts a preview record keyed by project ID.
func (s *Store) SavePreview(ctx context.Context, p *types.PreviewInstance) error {
	query := `
		INSERT INTO previews (
			project_id, owner, repo, branch, sandbox_name, sandbox_id,
			port, process_id, preview_url, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			owner = excluded.owner,
			repo = excluded.repo,
			branch = excluded.branch,
			sandbox_name = excluded.sandbox_name,
			sandbox_id = excluded.sandbox_id,
			port = excluded.port,
			process_id = excluded.process_id,
			preview_url = excluded.preview_url,
			status = excluded.status,
			created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ProjectID,
		p.Owner,
		p.Repo,
		p.Branch,
		p.SandboxName,
		p.SandboxID,
		p.Port,
		p.ProcessID,
		p.PreviewURL,
		string(p.Status),
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return nil
}

// GetPreview fetches the preview for a project. Returns nil, nil when
// there is none.
func (s *Store) GetPreview(ctx context.Context, projectID string) (*types.PreviewInstance, error) {
	return s.getPreviewWhere(ctx, "project_id = ?", projectID)
}

// GetPreviewBySandboxName fetches a preview by its sandbox name. Used as
// the fallback status source when the provider is unreachable.
func (s *Store) GetPreviewBySandboxName(ctx context.Context, name string) (*types.PreviewInstance, error) {
	return s.getPreviewWhere(ctx, "sandbox_name = ?", name)
}

func (s *Store) getPreviewWhere(ctx context.Context, where string, arg any) (*types.PreviewInstance, error) {
	row := s.db.QueryRowContext(ctx, previewSelect+" WHERE "+where, arg)
	p, err := scanPreview(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// ListPreviews returns all preview records.
func (s *Store) ListPreviews(ctx context.Context) ([]*types.PreviewInstance, error) {
	rows, err := s.db.QueryContext(ctx, previewSelect+" ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list previews: %w", err)
	}
	defer rows.Close()

	var previews []*types.PreviewInstance
	for rows.Next() {
		p, err := scanPreview(rows)
		if err != nil {
			return nil, err
		}
		previews = append(previews, p)
	}
	return previews, rows.Err()
}

// DeletePreview removes the record for a project. Deleting a project with
// no record is not an error.
func (s *Store) DeletePreview(ctx context.Context, projectID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM previews WHERE project_id = ?", projectID); err != nil {
		return fmt.Errorf("failed to delete preview: %w", err)
	}
	return nil
}

const previewSelect = `
	SELECT project_id, owner, repo, branch, sandbox_name, sandbox_id,
	       port, process_id, preview_url, status, created_at
	FROM previews
`

func scanPreview(row rowScanner) (*types.PreviewInstance, error) {
	var (
		p      types.PreviewInstance
		status string
	)

	err := row.Scan(
		&p.ProjectID,
		&p.Owner,
		&p.Repo,
		&p.Branch,
		&p.SandboxName,
		&p.SandboxID,
		&p.Port,
		&p.ProcessID,
		&p.PreviewURL,
		&status,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = types.PreviewStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
