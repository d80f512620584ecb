package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the full migration sequence.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL,
					name TEXT,
					subscription_status TEXT NOT NULL DEFAULT 'FREE',
					subscription_ends TIMESTAMPTZ,
					stripe_customer_id TEXT,
					quote_count INT NOT NULL DEFAULT 0,
					deleted_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_stripe_customer_id ON users(stripe_customer_id);
				CREATE INDEX idx_users_deleted_at ON users(deleted_at) WHERE deleted_at IS NOT NULL;
			`,
		},
		{
			Version:     2,
			Description: "Create clients table",
			SQL: `
				CREATE TABLE IF NOT EXISTS clients (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					email TEXT,
					phone TEXT,
					company TEXT,
					address TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT clients_name_key UNIQUE (user_id, name)
				);

				CREATE INDEX idx_clients_user_id ON clients(user_id);
			`,
		},
		{
			Version:     3,
			Description: "Create products table",
			SQL: `
				CREATE TABLE IF NOT EXISTS products (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					description TEXT,
					unit_price BIGINT NOT NULL,
					unit TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT products_name_key UNIQUE (user_id, name)
				);

				CREATE INDEX idx_products_user_id ON products(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create quotes and quote_items tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS quotes (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					client_id TEXT NOT NULL,
					number TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'DRAFT',
					subtotal BIGINT NOT NULL,
					tax_rate DOUBLE PRECISION NOT NULL,
					tax_amount BIGINT NOT NULL,
					total BIGINT NOT NULL,
					notes TEXT,
					valid_until TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CONSTRAINT quotes_client_id_fkey FOREIGN KEY (client_id) REFERENCES clients(id),
					CONSTRAINT quotes_number_key UNIQUE (user_id, number)
				);

				CREATE INDEX idx_quotes_user_id ON quotes(user_id);
				CREATE INDEX idx_quotes_user_created ON quotes(user_id, created_at);

				CREATE TABLE IF NOT EXISTS quote_items (
					id TEXT PRIMARY KEY,
					quote_id TEXT NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
					product_id TEXT REFERENCES products(id),
					description TEXT NOT NULL,
					quantity INT NOT NULL,
					unit_price BIGINT NOT NULL,
					total BIGINT NOT NULL
				);

				CREATE INDEX idx_quote_items_quote_id ON quote_items(quote_id);
			`,
		},
		{
			Version:     5,
			Description: "Create settings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS settings (
					user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
					company_name TEXT,
					company_email TEXT,
					company_phone TEXT,
					company_address TEXT,
					tax_rate DOUBLE PRECISION NOT NULL,
					currency TEXT NOT NULL,
					quote_valid_days INT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations applies every migration not yet recorded, each in its own
// transaction.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

func runMigrations(ctx context.Context, db *sql.DB) error {
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

	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
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
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

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
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
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
