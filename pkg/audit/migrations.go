package audit

import "github.com/platinummonkey/tenantguard/pkg/storage"

// GetMigrations returns the audit_logs schema
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     600,
			Description: "Create audit_logs table",
			SQL: `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id BIGINT,
		organization_id BIGINT,
		resource_type VARCHAR(50) NOT NULL DEFAULT '',
		resource_id VARCHAR(255) NOT NULL DEFAULT '',
		ip_address VARCHAR(45) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		request_id VARCHAR(100) NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		changes JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_organization_id ON audit_logs(organization_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
	`,
		},
	}
}
