// Package msgsync implements the client-side message synchronization
// state machine.
//
// The Engine owns the in-memory message collection. User operations
// (Send/Edit/Delete) apply optimistic local state and emit events over
// the realtime channel; inbound events reconcile that state against
// what the backend confirmed. Rendering consumers only ever read
// snapshots.
package msgsync

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cipherchat/internal/crypto"
	"cipherchat/internal/errs"
	"cipherchat/internal/models"
)

// Emitter sends named events to the backend. *channel.Conn satisfies it.
type Emitter interface {
	Emit(event string, payload any) error
}

// Policy holds the tunable thresholds of the send-rate and alert
// behavior. Zero fields take the defaults below.
type Policy struct {
	// SendCooldown is the minimum gap between two accepted sends.
	SendCooldown time.Duration
	// SendSettle blocks further sends until the previous one settled.
	SendSettle time.Duration
	// AlertTTL is how long a backend error stays visible.
	AlertTTL time.Duration
}

const (
	defaultSendCooldown = 2000 * time.Millisecond
	defaultSendSettle   = 1000 * time.Millisecond
	defaultAlertTTL     = 5000 * time.Millisecond
)

func (p Policy) withDefaults() Policy {
	if p.SendCooldown == 0 {
		p.SendCooldown = defaultSendCooldown
	}
	if p.SendSettle == 0 {
		p.SendSettle = defaultSendSettle
	}
	if p.AlertTTL == 0 {
		p.AlertTTL = defaultAlertTTL
	}
	return p
}

// SignalKind distinguishes the hints the engine gives its consumer.
type SignalKind int

const (
	// SignalScroll asks the consumer to scroll the active conversation
	// to the latest message.
	SignalScroll SignalKind = iota
	// SignalNotify reports an inbound message outside the active
	// conversation.
	SignalNotify
)

// Signal is a rendering hint; dropping one is harmless.
type Signal struct {
	Kind SignalKind
	Peer string
}

// Alert is a transient, auto-dismissing backend error surfaced to the
// consumer.
type Alert struct {
	Reason string
	Until  time.Time
}

// Snapshot is a read-only copy of the engine state for rendering.
type Snapshot struct {
	Messages []models.Message
	Alert    *Alert
}

// Engine is the message synchronization state machine for one session.
type Engine struct {
	emitter  Emitter
	cipher   *crypto.Cipher
	self     string
	username string
	policy   Policy
	log      *zap.Logger

	// injectable for tests
	now   func() time.Time
	newID func() string

	mu          sync.Mutex
	closed      bool
	selected    string
	order       []*models.Message
	index       map[string]*models.Message
	lastSend    time.Time
	settleUntil time.Time
	alert       *Alert

	signals chan Signal
}

// New constructs an engine for the authenticated user identified by
// selfTag. A nil logger disables diagnostics.
func New(emitter Emitter, cipher *crypto.Cipher, selfTag, username string, policy Policy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		emitter:  emitter,
		cipher:   cipher,
		self:     selfTag,
		username: username,
		policy:   policy.withDefaults(),
		log:      logger,
		now:      time.Now,
		newID:    uuid.NewString,
		index:    make(map[string]*models.Message),
		signals:  make(chan Signal, 16),
	}
}

// Select switches the active conversation. The underlying message
// collection is never cleared by a selection change.
func (e *Engine) Select(peer string) {
	e.mu.Lock()
	e.selected = peer
	e.mu.Unlock()
}

// Selected returns the active conversation peer, if any.
func (e *Engine) Selected() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// Signals exposes rendering hints. The channel is buffered; the engine
// drops signals rather than block the event loop.
func (e *Engine) Signals() <-chan Signal {
	return e.signals
}

// Send validates and rate-checks text, optimistically appends it to
// the collection with status sent, and emits the encrypted message to
// the selected peer.
func (e *Engine) Send(text string) (models.Message, error) {
	if text == "" {
		return models.Message{}, errs.ErrValidation
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.selected == "" {
		return models.Message{}, errs.ErrNoActiveConversation
	}

	now := e.now()
	if !e.lastSend.IsZero() && now.Sub(e.lastSend) < e.policy.SendCooldown {
		return models.Message{}, errs.ErrRateLimited
	}
	if now.Before(e.settleUntil) {
		return models.Message{}, errs.ErrRateLimited
	}

	ciphertext, err := e.cipher.Encrypt(text)
	if err != nil {
		return models.Message{}, err
	}

	msg := &models.Message{
		ID:        e.newID(),
		From:      e.self,
		To:        e.selected,
		Username:  e.username,
		Body:      text,
		Timestamp: now,
		Status:    models.StatusSent,
	}
	e.append(msg)
	e.lastSend = now
	e.settleUntil = now.Add(e.policy.SendSettle)

	wire := models.WireMessage{
		ID:        msg.ID,
		Username:  msg.Username,
		Body:      ciphertext,
		Timestamp: now.UnixMilli(),
		From:      msg.From,
		To:        msg.To,
	}
	if err := e.emitter.Emit(models.EventMessage, wire); err != nil {
		msg.Status = models.StatusFailed
		return *msg, err
	}

	return *msg, nil
}

// Edit replaces the body of a locally-authored message. The mutation
// is applied optimistically; the messageEdited echo re-applies the
// authoritative text.
func (e *Engine) Edit(id, text string) error {
	if text == "" {
		return errs.ErrValidation
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	msg, ok := e.index[id]
	if !ok {
		return errs.ErrNotFound
	}
	if msg.From != e.self {
		return errs.ErrNotOwned
	}

	ciphertext, err := e.cipher.Encrypt(text)
	if err != nil {
		return err
	}

	msg.Body = text
	return e.emitter.Emit(models.EventEditMessage, models.EditPayload{
		ID:      id,
		NewBody: ciphertext,
		To:      msg.To,
	})
}

// Delete requests removal of a message. The local copy stays until the
// messageDeleted confirmation arrives, so a backend rejection cannot
// desynchronize state.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg, ok := e.index[id]
	if !ok {
		return errs.ErrNotFound
	}

	return e.emitter.Emit(models.EventDeleteMessage, models.DeletePayload{
		MessageID: id,
		To:        msg.To,
	})
}

// Snapshot returns a copy of the message collection plus the current
// alert, nil once expired.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := Snapshot{Messages: make([]models.Message, 0, len(e.order))}
	for _, m := range e.order {
		out.Messages = append(out.Messages, *m)
	}

	if e.alert != nil {
		if e.now().Before(e.alert.Until) {
			a := *e.alert
			out.Alert = &a
		} else {
			e.alert = nil
		}
	}

	return out
}

// Conversation projects the messages exchanged with peer, in either
// direction, timestamp ascending.
func (e *Engine) Conversation(peer string) []models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.Message
	for _, m := range e.order {
		if m.Between(e.self, peer) {
			out = append(out, *m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Close releases the signals channel so subscribers blocked on it
// return. The engine drops inbound signals afterward; call it when the
// session ends for good, after Reset.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.signals)
}

// Reset drops all transient state on session end.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.order = nil
	e.index = make(map[string]*models.Message)
	e.selected = ""
	e.lastSend = time.Time{}
	e.settleUntil = time.Time{}
	e.alert = nil
}

// HandleMessage processes an inbound "message" event: own echoes,
// frames addressed elsewhere, undecryptable bodies, and duplicate ids
// are all dropped.
func (e *Engine) HandleMessage(data json.RawMessage) {
	var wire models.WireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		e.log.Debug("drop malformed message frame", zap.Error(err))
		return
	}
	if wire.From == e.self {
		return // own echo
	}
	if wire.To != e.self {
		return // not addressed to this client
	}

	plaintext, err := e.cipher.Decrypt(wire.Body)
	if err != nil {
		e.log.Debug("drop undecryptable message", zap.String("id", wire.ID), zap.String("from", wire.From))
		return
	}

	e.mu.Lock()
	if _, seen := e.index[wire.ID]; seen {
		e.mu.Unlock()
		return
	}
	e.append(&models.Message{
		ID:        wire.ID,
		From:      wire.From,
		To:        wire.To,
		Username:  wire.Username,
		Body:      plaintext,
		Timestamp: time.UnixMilli(wire.Timestamp),
		Status:    models.StatusDelivered,
	})
	active := e.selected == wire.From
	e.mu.Unlock()

	if active {
		e.signal(Signal{Kind: SignalScroll, Peer: wire.From})
	} else {
		e.signal(Signal{Kind: SignalNotify, Peer: wire.From})
	}
}

// HandleEdited applies the authoritative body from a "messageEdited"
// confirmation. An edit that outran its original message is dropped.
func (e *Engine) HandleEdited(data json.RawMessage) {
	var edited models.EditedPayload
	if err := json.Unmarshal(data, &edited); err != nil {
		return
	}

	plaintext, err := e.cipher.Decrypt(edited.NewBody)
	if err != nil {
		e.log.Debug("drop undecryptable edit", zap.String("id", edited.ID))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	msg, ok := e.index[edited.ID]
	if !ok {
		e.log.Debug("drop edit for unknown message", zap.String("id", edited.ID))
		return
	}
	msg.Body = plaintext
}

// HandleDeleted removes the confirmed message. Unknown ids are a no-op.
func (e *Engine) HandleDeleted(data json.RawMessage) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.index[id]; !ok {
		return
	}
	delete(e.index, id)
	for i, m := range e.order {
		if m.ID == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// HandleDelivered updates delivery status in place. Unknown ids are a
// no-op (the message may have been deleted locally already).
func (e *Engine) HandleDelivered(data json.RawMessage) {
	var delivered models.DeliveredPayload
	if err := json.Unmarshal(data, &delivered); err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	msg, ok := e.index[delivered.ID]
	if !ok {
		return
	}
	switch models.DeliveryStatus(delivered.Status) {
	case models.StatusPending, models.StatusSent, models.StatusDelivered, models.StatusFailed:
		msg.Status = models.DeliveryStatus(delivered.Status)
	}
}

// HandleError raises a transient alert. Roster and messages are left
// untouched.
func (e *Engine) HandleError(data json.RawMessage) {
	var reason string
	if err := json.Unmarshal(data, &reason); err != nil || reason == "" {
		return
	}

	e.mu.Lock()
	e.alert = &Alert{Reason: reason, Until: e.now().Add(e.policy.AlertTTL)}
	e.mu.Unlock()
}

// append assumes e.mu is held and the id is not present.
func (e *Engine) append(msg *models.Message) {
	e.order = append(e.order, msg)
	e.index[msg.ID] = msg
}

func (e *Engine) signal(s Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.signals <- s:
	default:
		// consumer is behind; hints are droppable
	}
}
