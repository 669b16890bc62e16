package database

import (
	"context"
	"errors"

	"cipherchat/internal/errs"
	"cipherchat/internal/models"
)

// CreateUser inserts a new user row.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	const query = `
		INSERT INTO users (id, tag, username, pwd_hash, salt, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	err := db.Pool.QueryRow(ctx, query,
		user.ID,
		user.Tag,
		user.Username,
		user.PasswordHash,
		user.Salt,
	).Scan(&user.CreatedAt)

	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetUserByTag retrieves a user by their unique tag.
func (db *DB) GetUserByTag(ctx context.Context, tag string) (*models.User, error) {
	user := &models.User{}
	const query = `
		SELECT id, tag, username, pwd_hash, salt, created_at
		FROM users
		WHERE tag = $1
	`
	err := db.Pool.QueryRow(ctx, query, tag).Scan(
		&user.ID,
		&user.Tag,
		&user.Username,
		&user.PasswordHash,
		&user.Salt,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return user, nil
}

// IsTagTaken checks if a tag already exists.
func (db *DB) IsTagTaken(ctx context.Context, tag string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE tag = $1)`
	err := db.Pool.QueryRow(ctx, query, tag).Scan(&exists)
	return exists, err
}

// UpdateUsername updates the display name of a user.
func (db *DB) UpdateUsername(ctx context.Context, tag, username string) error {
	const query = `UPDATE users SET username = $1 WHERE tag = $2`
	tagResult, err := db.Pool.Exec(ctx, query, username, tag)
	if err != nil {
		return err
	}
	if tagResult.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user; contact edges cascade.
func (db *DB) DeleteUser(ctx context.Context, tag string) error {
	const query = `DELETE FROM users WHERE tag = $1`
	_, err := db.Pool.Exec(ctx, query, tag)
	return err
}
