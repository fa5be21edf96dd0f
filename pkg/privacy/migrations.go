package privacy

import "github.com/platinummonkey/tenantguard/pkg/storage"

// GetMigrations returns the privacy settings schema
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     400,
			Description: "Create user_privacy_settings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_privacy_settings (
					user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
					profile_visibility VARCHAR(20) NOT NULL DEFAULT 'organization',
					email_visibility VARCHAR(20) NOT NULL DEFAULT 'organization',
					phone_visibility VARCHAR(20) NOT NULL DEFAULT 'private',
					activity_visibility VARCHAR(20) NOT NULL DEFAULT 'organization',
					show_online_status BOOLEAN NOT NULL DEFAULT TRUE,
					allow_direct_messages BOOLEAN NOT NULL DEFAULT TRUE,
					searchable_by_email BOOLEAN NOT NULL DEFAULT TRUE,
					searchable_by_name BOOLEAN NOT NULL DEFAULT TRUE,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CHECK (profile_visibility IN ('public', 'private', 'organization', 'department')),
					CHECK (email_visibility IN ('public', 'private', 'organization', 'department')),
					CHECK (phone_visibility IN ('public', 'private', 'organization', 'department')),
					CHECK (activity_visibility IN ('public', 'private', 'organization', 'department'))
				);
			`,
		},
	}
}
