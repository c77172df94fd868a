package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE snapshots (
				project_id VARCHAR(255) PRIMARY KEY,
				plan JSONB,
				plan_backup JSONB,
				version INTEGER NOT NULL,
				last_saved TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE workflow_events (
				seq BIGSERIAL PRIMARY KEY,
				id UUID NOT NULL UNIQUE,
				project_id VARCHAR(255) NOT NULL,
				type VARCHAR(50) NOT NULL,
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
				plan_id UUID NOT NULL,
				task_id UUID,
				actor VARCHAR(255) NOT NULL,
				details JSONB,
				metadata JSONB
			);

			CREATE INDEX idx_workflow_events_project ON workflow_events(project_id);
			CREATE INDEX idx_workflow_events_plan ON workflow_events(plan_id);
			CREATE INDEX idx_workflow_events_task ON workflow_events(task_id);
			CREATE INDEX idx_workflow_events_type ON workflow_events(type);
		`,
	}
}
