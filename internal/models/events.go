package models

import (
	"encoding/json"
	"fmt"
)

// Event names carried on the realtime channel. Outbound and inbound
// sides deliberately share the "message" name; direction decides the
// meaning.
const (
	EventJoin             = "join"
	EventMessage          = "message"
	EventEditMessage      = "editMessage"
	EventDeleteMessage    = "deleteMessage"
	EventUserJoined       = "userJoined"
	EventUserLeft         = "userLeft"
	EventMessageEdited    = "messageEdited"
	EventMessageDeleted   = "messageDeleted"
	EventMessageDelivered = "messageDelivered"
	EventError            = "error"
)

// Packet is the base frame for all realtime channel communication.
type Packet struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewPacket marshals payload into a Packet for the given event.
func NewPacket(event string, payload any) (Packet, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Packet{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Packet{Event: event, Data: data}, nil
}

// WireMessage is the "message" payload, both directions. Body carries
// ciphertext on the wire, never plaintext.
type WireMessage struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Body      string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// EditPayload is the outbound "editMessage" payload.
type EditPayload struct {
	ID      string `json:"id"`
	NewBody string `json:"newMessage"`
	To      string `json:"to"`
}

// DeletePayload is the outbound "deleteMessage" payload.
type DeletePayload struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

// EditedPayload is the inbound "messageEdited" confirmation.
type EditedPayload struct {
	ID      string `json:"id"`
	NewBody string `json:"newMessage"`
}

// DeliveredPayload is the inbound "messageDelivered" status update.
type DeliveredPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PresencePayload is the inbound "userJoined"/"userLeft" broadcast.
// Users is the authoritative full list of online tags.
type PresencePayload struct {
	Users []string `json:"users"`
}
