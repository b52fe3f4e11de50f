package sqlite

const schema = `
-- Setup sessions: the resumable 4-step provisioning workflow
CREATE TABLE IF NOT EXISTS setup_sessions (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    current_step INTEGER NOT NULL DEFAULT 1 CHECK(current_step >= 1 AND current_step <= 4),
    completed_steps TEXT NOT NULL DEFAULT '[]',
    overall_status TEXT NOT NULL DEFAULT 'in_progress',
    error_step INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    fly_app_name TEXT NOT NULL DEFAULT '',
    fly_machine_id TEXT NOT NULL DEFAULT '',
    preview_url TEXT NOT NULL DEFAULT '',
    github_repo_url TEXT NOT NULL,
    github_branch TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_project ON setup_sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON setup_sessions(overall_status);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON setup_sessions(created_at);

-- Preview records: durable registry rows, keyed by project
CREATE TABLE IF NOT EXISTS previews (
    project_id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    repo TEXT NOT NULL,
    branch TEXT NOT NULL,
    sandbox_name TEXT NOT NULL UNIQUE CHECK(length(sandbox_name) <= 63),
    sandbox_id TEXT NOT NULL DEFAULT '',
    port INTEGER NOT NULL DEFAULT 0,
    process_id INTEGER NOT NULL DEFAULT 0,
    preview_url TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_previews_sandbox_name ON previews(sandbox_name);
CREATE INDEX IF NOT EXISTS idx_previews_status ON previews(status);
`
