package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('DRAFT', 'ACTIVE', 'PAUSED', 'ARCHIVED')),
				current_version_id TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_workspace_id ON workflows(workspace_id);
			CREATE INDEX idx_workflows_status ON workflows(status);

			CREATE TABLE workflow_versions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				version INT NOT NULL CHECK (version > 0),
				steps JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (workflow_id, version)
			);

			CREATE TABLE workflow_runs (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				workflow_version_id TEXT NOT NULL,
				workspace_id TEXT NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('RUNNING', 'COMPLETED', 'FAILED')),
				trigger_source VARCHAR(20) NOT NULL,
				trigger_data JSONB NOT NULL DEFAULT '{}',
				step_executions JSONB NOT NULL DEFAULT '{}',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				ended_at TIMESTAMP WITH TIME ZONE,
				error TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_workflow_runs_workflow_id ON workflow_runs(workflow_id, started_at DESC);

			CREATE TABLE workflow_run_logs (
				seq BIGSERIAL PRIMARY KEY,
				id TEXT NOT NULL UNIQUE,
				run_id TEXT NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
				step_id TEXT NOT NULL DEFAULT '',
				step_status VARCHAR(20) NOT NULL DEFAULT '',
				message TEXT NOT NULL,
				metadata JSONB,
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_run_logs_run_id ON workflow_run_logs(run_id, seq);
		`,
		2: `
			CREATE TABLE workflow_schedules (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				workspace_id TEXT NOT NULL DEFAULT '',
				cron_expression VARCHAR(255) NOT NULL,
				timezone VARCHAR(64) NOT NULL DEFAULT 'UTC',
				is_active BOOLEAN NOT NULL DEFAULT true,
				next_run_at TIMESTAMP WITH TIME ZONE,
				last_run_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_schedules_due ON workflow_schedules(next_run_at) WHERE is_active;
			CREATE INDEX idx_workflow_schedules_workflow_id ON workflow_schedules(workflow_id);

			CREATE TABLE workflow_webhooks (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				workspace_id TEXT NOT NULL DEFAULT '',
				token TEXT NOT NULL UNIQUE,
				secret_hash TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT true,
				last_triggered_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_webhooks_workflow_id ON workflow_webhooks(workflow_id);
		`,
	}
}
