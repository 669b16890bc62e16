package database

import (
	"context"

	"github.com/google/uuid"

	"cipherchat/internal/errs"
	"cipherchat/internal/models"
)

// CreateContactRequest records a pending request. The row is owned by
// the recipient, who decides whether to accept it.
func (db *DB) CreateContactRequest(ctx context.Context, fromTag, toTag string) (*models.Contact, error) {
	contact := &models.Contact{
		ID:       uuid.New(),
		OwnerTag: toTag,
		Tag:      fromTag,
		Status:   models.ContactPending,
	}

	const query = `
		INSERT INTO contacts (id, owner_tag, contact_tag, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at
	`
	err := db.Pool.QueryRow(ctx, query,
		contact.ID,
		contact.OwnerTag,
		contact.Tag,
		contact.Status,
	).Scan(&contact.CreatedAt)

	if isUniqueViolation(err) {
		return nil, errs.ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// ListContacts returns all contact edges owned by tag, with display
// names joined in.
func (db *DB) ListContacts(ctx context.Context, ownerTag string) ([]models.Contact, error) {
	const query = `
		SELECT c.id, c.owner_tag, c.contact_tag, u.username, c.status, c.created_at
		FROM contacts c
		JOIN users u ON u.tag = c.contact_tag
		WHERE c.owner_tag = $1
		ORDER BY c.created_at
	`
	rows, err := db.Pool.Query(ctx, query, ownerTag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.OwnerTag, &c.Tag, &c.Username, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// getContactOwned fetches a contact edge and enforces ownership.
func (db *DB) getContactOwned(ctx context.Context, id uuid.UUID, ownerTag string) (*models.Contact, error) {
	const query = `
		SELECT id, owner_tag, contact_tag, status
		FROM contacts
		WHERE id = $1 AND owner_tag = $2
	`
	c := &models.Contact{}
	err := db.Pool.QueryRow(ctx, query, id, ownerTag).Scan(&c.ID, &c.OwnerTag, &c.Tag, &c.Status)
	if err != nil {
		return nil, errs.ErrNotFound
	}
	return c, nil
}

// AcceptContact flips a pending request to accepted and creates the
// reciprocal accepted edge for the requester, atomically.
func (db *DB) AcceptContact(ctx context.Context, id uuid.UUID, ownerTag string) error {
	contact, err := db.getContactOwned(ctx, id, ownerTag)
	if err != nil {
		return err
	}
	if contact.Status != models.ContactPending {
		return errs.ErrValidation
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const accept = `UPDATE contacts SET status = $1 WHERE id = $2`
	if _, err := tx.Exec(ctx, accept, models.ContactAccepted, id); err != nil {
		return err
	}

	const reciprocal = `
		INSERT INTO contacts (id, owner_tag, contact_tag, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (owner_tag, contact_tag) DO UPDATE SET status = $4
	`
	if _, err := tx.Exec(ctx, reciprocal, uuid.New(), contact.Tag, ownerTag, models.ContactAccepted); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RejectContact removes a pending request.
func (db *DB) RejectContact(ctx context.Context, id uuid.UUID, ownerTag string) error {
	const query = `DELETE FROM contacts WHERE id = $1 AND owner_tag = $2`
	tag, err := db.Pool.Exec(ctx, query, id, ownerTag)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// BlockContact marks a contact blocked.
func (db *DB) BlockContact(ctx context.Context, id uuid.UUID, ownerTag string) error {
	const query = `UPDATE contacts SET status = $1 WHERE id = $2 AND owner_tag = $3`
	tag, err := db.Pool.Exec(ctx, query, models.ContactBlocked, id, ownerTag)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
