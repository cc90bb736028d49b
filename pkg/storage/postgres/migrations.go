package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is a single schema change. Migrations run in version order,
// each in its own transaction, and are tracked in schema_migrations.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the full schema in apply order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table with key custody columns",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					salt TEXT NOT NULL,
					public_key TEXT NOT NULL,
					encrypted_private_key TEXT NOT NULL,
					is_system_admin BOOLEAN NOT NULL DEFAULT FALSE,
					last_login_at TIMESTAMPTZ,
					login_count INT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email));
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id UUID PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT,
					settings JSONB NOT NULL DEFAULT '{}',
					created_by UUID REFERENCES users(id),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMPTZ
				);
			`,
		},
		{
			Version:     3,
			Description: "Create organization_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_members (
					id UUID PRIMARY KEY,
					organization_id UUID NOT NULL REFERENCES organizations(id),
					user_id UUID NOT NULL REFERENCES users(id),
					role TEXT NOT NULL,
					wrapped_org_key TEXT NOT NULL,
					invited_by UUID REFERENCES users(id),
					joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (organization_id, user_id)
				);
				CREATE INDEX IF NOT EXISTS idx_org_members_user ON organization_members (user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create organization_invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_invitations (
					id UUID PRIMARY KEY,
					organization_id UUID NOT NULL REFERENCES organizations(id),
					email TEXT NOT NULL,
					role TEXT NOT NULL,
					wrapped_org_key TEXT NOT NULL,
					invited_by UUID NOT NULL REFERENCES users(id),
					token TEXT NOT NULL UNIQUE,
					message TEXT,
					expires_at TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					accepted_at TIMESTAMPTZ,
					rejected_at TIMESTAMPTZ
				);
				CREATE INDEX IF NOT EXISTS idx_invitations_email_lower ON organization_invitations (LOWER(email));
				CREATE INDEX IF NOT EXISTS idx_invitations_org ON organization_invitations (organization_id);
			`,
		},
		{
			Version:     5,
			Description: "Create accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL REFERENCES users(id),
					organization_id UUID REFERENCES organizations(id),
					encrypted_data TEXT NOT NULL,
					encrypted_dek TEXT NOT NULL,
					currency TEXT NOT NULL DEFAULT 'USD',
					encryption_version INT NOT NULL DEFAULT 1,
					default_permission TEXT NOT NULL DEFAULT 'view',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMPTZ
				);
				CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts (user_id) WHERE deleted_at IS NULL;
				CREATE INDEX IF NOT EXISTS idx_accounts_org ON accounts (organization_id) WHERE deleted_at IS NULL;
			`,
		},
		{
			Version:     6,
			Description: "Create account_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS account_permissions (
					id UUID PRIMARY KEY,
					account_id UUID NOT NULL REFERENCES accounts(id),
					user_id UUID NOT NULL REFERENCES users(id),
					permission TEXT NOT NULL,
					granted_by UUID REFERENCES users(id),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (account_id, user_id)
				);
			`,
		},
		{
			Version:     7,
			Description: "Create transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transactions (
					id UUID PRIMARY KEY,
					account_id UUID NOT NULL REFERENCES accounts(id),
					created_by UUID NOT NULL REFERENCES users(id),
					encrypted_data TEXT NOT NULL,
					date TIMESTAMPTZ NOT NULL,
					encryption_version INT NOT NULL DEFAULT 1,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMPTZ
				);
				CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions (account_id, date DESC) WHERE deleted_at IS NULL;
			`,
		},
		{
			Version:     8,
			Description: "Create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id UUID PRIMARY KEY,
					organization_id UUID,
					user_id UUID,
					action TEXT NOT NULL,
					resource_type TEXT,
					resource_id UUID,
					details JSONB NOT NULL DEFAULT '{}',
					ip_address TEXT,
					user_agent TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_org_time ON audit_logs (organization_id, created_at DESC);
			`,
		},
	}
}

// RunMigrations applies all pending migrations in order.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}
	return nil
}
