package database

import "context"

// EnsureSchema bootstraps the two relay tables on startup. Idempotent.
func (db *DB) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			tag TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL,
			pwd_hash BYTEA NOT NULL,
			salt BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id UUID PRIMARY KEY,
			owner_tag TEXT NOT NULL REFERENCES users(tag) ON DELETE CASCADE,
			contact_tag TEXT NOT NULL REFERENCES users(tag) ON DELETE CASCADE,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (owner_tag, contact_tag)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
