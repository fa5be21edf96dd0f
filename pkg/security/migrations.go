package security

import "github.com/platinummonkey/tenantguard/pkg/storage"

// GetMigrations returns the session tables used for risk scoring
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     500,
			Description: "Create user_sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_sessions (
					id VARCHAR(64) PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					ip_address VARCHAR(45) NOT NULL DEFAULT '',
					user_agent TEXT NOT NULL DEFAULT '',
					device_id VARCHAR(255),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_seen_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					ended_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_user_sessions_active
					ON user_sessions(user_id) WHERE is_active = true;
				CREATE INDEX IF NOT EXISTS idx_user_sessions_created
					ON user_sessions(user_id, created_at);
			`,
		},
		{
			Version:     501,
			Description: "Create session_activities table",
			SQL: `
				CREATE TABLE IF NOT EXISTS session_activities (
					id BIGSERIAL PRIMARY KEY,
					session_id VARCHAR(64) NOT NULL REFERENCES user_sessions(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL,
					ip_address VARCHAR(45) NOT NULL DEFAULT '',
					action VARCHAR(100) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_session_activities_user_created
					ON session_activities(user_id, created_at);
			`,
		},
	}
}
