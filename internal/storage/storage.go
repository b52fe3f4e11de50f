// Package storage defines the persistence interface for setup sessions
// and preview records, backed by SQLite.
package storage

import (
	"context"

	"github.com/roseram/previewd/internal/storage/sqlite"
	"github.com/roseram/previewd/internal/types"
)

// Storage is the persistence boundary. Sessions are always persisted
// (resumability is the whole point); preview rows are persisted only when
// the durable registry is selected, and double as the fallback status
// source when the provider is briefly unreachable.
type Storage interface {
	// Setup sessions
	CreateSession(ctx context.Context, session *types.SetupSession) error
	GetSession(ctx context.Context, id string) (*types.SetupSession, error)
	GetActiveSessionForProject(ctx context.Context, projectID string) (*types.SetupSession, error)
	UpdateSession(ctx context.Context, session *types.SetupSession) error
	ListSessions(ctx context.Context, limit int) ([]*types.SetupSession, error)

	// Preview records
	SavePreview(ctx context.Context, p *types.PreviewInstance) error
	GetPreview(ctx context.Context, projectID string) (*types.PreviewInstance, error)
	GetPreviewBySandboxName(ctx context.Context, name string) (*types.PreviewInstance, error)
	ListPreviews(ctx context.Context) ([]*types.PreviewInstance, error)
	DeletePreview(ctx context.Context, projectID string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration.
type Config struct {
	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests).
	Path string
}

// DefaultConfig returns a config with the standard path.
func DefaultConfig() *Config {
	return &Config{Path: ".previewd/previewd.db"}
}

// NewStorage creates a new SQLite storage backend.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = ".previewd/previewd.db"
	}
	return sqlite.New(cfg.Path)
}
