package crosstenant

import "github.com/platinummonkey/tenantguard/pkg/storage"

// GetMigrations returns the cross-tenant rule schema
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     300,
			Description: "Create cross_tenant_permission_rules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS cross_tenant_permission_rules (
					id BIGSERIAL PRIMARY KEY,
					source_org_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					target_org_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					permission VARCHAR(100) NOT NULL,
					user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
					valid_from TIMESTAMP NOT NULL DEFAULT NOW(),
					valid_until TIMESTAMP,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_by BIGINT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
					deleted_at TIMESTAMP,
					deleted_by BIGINT,
					CHECK (source_org_id <> target_org_id),
					CHECK (valid_until IS NULL OR valid_until > valid_from)
				);

				CREATE INDEX IF NOT EXISTS idx_crosstenant_lookup
					ON cross_tenant_permission_rules(source_org_id, target_org_id, permission)
					WHERE is_active = true AND is_deleted = false;
				CREATE INDEX IF NOT EXISTS idx_crosstenant_valid_until
					ON cross_tenant_permission_rules(valid_until)
					WHERE is_active = true AND valid_until IS NOT NULL;
			`,
		},
	}
}
