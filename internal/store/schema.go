package store

// schema is run inside a single transaction at Open(). Every statement is
// idempotent (CREATE TABLE/INDEX IF NOT EXISTS) so repeated opens against
// an existing database file are safe.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	repo_url TEXT NOT NULL DEFAULT '',
	local_path TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER,
	current_task_id TEXT,
	git_hash TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
CREATE INDEX IF NOT EXISTS idx_projects_priority ON projects(priority);
CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects(created_at);

CREATE TABLE IF NOT EXISTS project_dna (
	project_id TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
	idea_md TEXT NOT NULL DEFAULT '',
	tech_stack_json TEXT NOT NULL DEFAULT '{}',
	definition_of_done_md TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	description TEXT NOT NULL,
	status TEXT NOT NULL,
	assigned_agent TEXT NOT NULL DEFAULT 'actor',
	priority INTEGER NOT NULL DEFAULT 0,
	dependencies_json TEXT NOT NULL DEFAULT '[]',
	worktree_path TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER,
	result_json TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);

CREATE TABLE IF NOT EXISTS state_snapshots (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	git_hash TEXT NOT NULL DEFAULT '',
	agent_state_json TEXT NOT NULL DEFAULT '{}',
	reasoning_trace_json TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_project_id ON state_snapshots(project_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON state_snapshots(created_at);

CREATE TABLE IF NOT EXISTS sentinel_verdicts (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	quality_score REAL NOT NULL,
	passed INTEGER NOT NULL,
	thinking_effort TEXT NOT NULL DEFAULT 'max',
	audit_log_json TEXT NOT NULL DEFAULT '{}',
	correction_directive TEXT NOT NULL DEFAULT '',
	merkle_verification_hash TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verdicts_task_id ON sentinel_verdicts(task_id);

CREATE TABLE IF NOT EXISTS cooldowns (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	resume_at INTEGER NOT NULL,
	snapshot_id TEXT REFERENCES state_snapshots(id) ON DELETE CASCADE,
	reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_cooldowns_provider ON cooldowns(provider);
CREATE INDEX IF NOT EXISTS idx_cooldowns_resume_at ON cooldowns(resume_at);

CREATE TABLE IF NOT EXISTS execution_log (
	id TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	level TEXT NOT NULL,
	source TEXT NOT NULL,
	message TEXT NOT NULL,
	context_json TEXT NOT NULL DEFAULT '{}',
	project_id TEXT,
	task_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_log_project_id ON execution_log(project_id);
CREATE INDEX IF NOT EXISTS idx_log_timestamp ON execution_log(timestamp);

CREATE TABLE IF NOT EXISTS metrics (
	id TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	metric_name TEXT NOT NULL,
	metric_value REAL NOT NULL,
	project_id TEXT,
	tags_json TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_metrics_name ON metrics(metric_name);
`
