package rbac

import "github.com/platinummonkey/tenantguard/pkg/storage"

// GetMigrations returns the role and assignment schema
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     200,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(100) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					permissions JSONB NOT NULL DEFAULT '{}',
					parent_id BIGINT REFERENCES roles(id),
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					organization_id BIGINT REFERENCES organizations(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					deleted_at TIMESTAMP,
					deleted_by BIGINT
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_code_live ON roles(code) WHERE is_deleted = false;
				CREATE INDEX IF NOT EXISTS idx_roles_parent_id ON roles(parent_id);
				CREATE INDEX IF NOT EXISTS idx_roles_organization_id ON roles(organization_id);
			`,
		},
		{
			Version:     201,
			Description: "Create user_role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_role_assignments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id),
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					department_id BIGINT REFERENCES departments(id) ON DELETE CASCADE,
					assigned_by BIGINT NOT NULL,
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP,
					is_primary BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					approval_status VARCHAR(20) NOT NULL DEFAULT 'approved'
						CHECK (approval_status IN ('pending', 'approved', 'rejected'))
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_key
					ON user_role_assignments(user_id, role_id, organization_id, COALESCE(department_id, 0));
				CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_one_primary
					ON user_role_assignments(user_id) WHERE is_primary = true AND is_active = true;
				CREATE INDEX IF NOT EXISTS idx_assignments_user_active ON user_role_assignments(user_id, is_active);
				CREATE INDEX IF NOT EXISTS idx_assignments_expires_at ON user_role_assignments(expires_at) WHERE expires_at IS NOT NULL;
			`,
		},
	}
}
