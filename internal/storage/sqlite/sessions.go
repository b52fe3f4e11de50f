package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roseram/previewd/internal/types"
)

// CreateSession inserts a new setup session.
func (s *Store) CreateSession(ctx context.Context, session *types.SetupSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	steps, err := json.Marshal(session.CompletedSteps)
	if err != nil {
		return fmt.Errorf("encoding completed steps: %w", err)
	}

	query := `
		INSERT INTO setup_sessions (
			id, project_id, user_id, current_step, completed_steps,
			overall_status, error_step, error_message, fly_app_name,
			fly_machine_id, preview_url, github_repo_url, github_branch,
			created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		session.ID,
		session.ProjectID,
		session.UserID,
		session.CurrentStep,
		string(steps),
		string(session.OverallStatus),
		session.ErrorStep,
		session.ErrorMessage,
		session.FlyAppName,
		session.MachineID,
		session.PreviewURL,
		session.GitHubRepoURL,
		session.GitHubBranch,
		session.CreatedAt,
		session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession fetches one session by ID. Returns ErrSessionNotFound when
// the ID is unknown.
func (s *Store) GetSession(ctx context.Context, id string) (*types.SetupSession, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+" WHERE id = ?", id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrSessionNotFound
	}
	return session, err
}

// GetActiveSessionForProject returns the most recent in-progress session
// for the project, or nil when there is none. This backs the
// initialize-session idempotency guarantee.
func (s *Store) GetActiveSessionForProject(ctx context.Context, projectID string) (*types.SetupSession, error) {
	row := s.db.QueryRowContext(ctx,
		sessionSelect+` WHERE project_id = ? AND overall_status = ? ORDER BY created_at DESC LIMIT 1`,
		projectID, string(types.SessionInProgress))
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return session, err
}

// UpdateSession persists the session's mutable fields.
func (s *Store) UpdateSession(ctx context.Context, session *types.SetupSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	steps, err := json.Marshal(session.CompletedSteps)
	if err != nil {
		return fmt.Errorf("encoding completed steps: %w", err)
	}

	query := `
		UPDATE setup_sessions SET
			current_step = ?, completed_steps = ?, overall_status = ?,
			error_step = ?, error_message = ?, fly_app_name = ?,
			fly_machine_id = ?, preview_url = ?, completed_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		session.CurrentStep,
		string(steps),
		string(session.OverallStatus),
		session.ErrorStep,
		session.ErrorMessage,
		session.FlyAppName,
		session.MachineID,
		session.PreviewURL,
		session.CompletedAt,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return types.ErrSessionNotFound
	}
	return nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*types.SetupSession, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, sessionSelect+" ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.SetupSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

const sessionSelect = `
	SELECT id, project_id, user_id, current_step, completed_steps,
	       overall_status, error_step, error_message, fly_app_name,
	       fly_machine_id, preview_url, github_repo_url, github_branch,
	       created_at, completed_at
	FROM setup_sessions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.SetupSession, error) {
	var (
		session     types.SetupSession
		steps       string
		status      string
		completedAt sql.NullTime
	)

	err := row.Scan(
		&session.ID,
		&session.ProjectID,
		&session.UserID,
		&session.CurrentStep,
		&steps,
		&status,
		&session.ErrorStep,
		&session.ErrorMessage,
		&session.FlyAppName,
		&session.MachineID,
		&session.PreviewURL,
		&session.GitHubRepoURL,
		&session.GitHubBranch,
		&session.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(steps), &session.CompletedSteps); err != nil {
		return nil, fmt.Errorf("decoding completed steps: %w", err)
	}
	session.OverallStatus = types.SessionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		session.CompletedAt = &t
	}
	session.CreatedAt = session.CreatedAt.UTC()
	return &session, nil
}
