package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account stored by the relay.
type User struct {
	ID           uuid.UUID `json:"id"`
	Tag          string    `json:"tag"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"-"`
	Salt         []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ContactStatus is the lifecycle of a contact relation.
type ContactStatus string

const (
	ContactPending  ContactStatus = "pending"
	ContactAccepted ContactStatus = "accepted"
	ContactBlocked  ContactStatus = "blocked"
)

// Contact is one edge of the contact graph as seen by its owner.
type Contact struct {
	ID        uuid.UUID     `json:"id"`
	OwnerTag  string        `json:"-"`
	Tag       string        `json:"tag"`
	Username  string        `json:"username"`
	Status    ContactStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
