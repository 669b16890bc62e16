package models

import "time"

// DeliveryStatus tracks an outbound message through its lifecycle.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// Message is a single chat message held in memory. Body is always
// plaintext here; ciphertext exists only on the wire.
type Message struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Username  string         `json:"username"`
	Body      string         `json:"body"`
	Timestamp time.Time      `json:"timestamp"`
	Status    DeliveryStatus `json:"status"`
}

// Between reports whether the message belongs to the conversation
// between the two tags, in either direction.
func (m *Message) Between(a, b string) bool {
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}
