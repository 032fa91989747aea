package postgresql

// migrations returns the ordered schema migrations for the engine.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id UUID PRIMARY KEY,
				name TEXT NOT NULL,
				category TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				trigger_spec JSONB NOT NULL,
				actions JSONB NOT NULL,
				stats JSONB NOT NULL DEFAULT '{}',
				created_by TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				input JSONB,
				dedup_key TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				current_action INTEGER NOT NULL DEFAULT 0,
				action_results JSONB NOT NULL DEFAULT '[]',
				error TEXT NOT NULL DEFAULT '',
				scheduled_at TIMESTAMP WITH TIME ZONE,
				next_attempt_at TIMESTAMP WITH TIME ZONE,
				logs JSONB NOT NULL DEFAULT '[]',
				triggered_by TEXT NOT NULL DEFAULT '',
				claimed_by TEXT NOT NULL DEFAULT '',
				cancelled_by TEXT NOT NULL DEFAULT '',
				cancel_reason TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow
				ON executions (workflow_id);

			CREATE INDEX IF NOT EXISTS idx_executions_due
				ON executions (status, next_attempt_at, scheduled_at);

			CREATE INDEX IF NOT EXISTS idx_executions_dedup
				ON executions (workflow_id, dedup_key)
				WHERE dedup_key <> '';
		`,
	}
}
