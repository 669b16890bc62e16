package msgsync

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/crypto"
	"cipherchat/internal/errs"
	"cipherchat/internal/models"
)

type emitted struct {
	event   string
	payload any
}

type fakeEmitter struct {
	events []emitted
	err    error
}

func (f *fakeEmitter) Emit(event string, payload any) error {
	f.events = append(f.events, emitted{event: event, payload: payload})
	return f.err
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T) (*Engine, *fakeEmitter, *fakeClock) {
	t.Helper()

	emitter := &fakeEmitter{}
	clock := &fakeClock{t: time.Unix(1700000000, 0)}

	e := New(emitter, crypto.New("test-secret"), "@alice", "Alice", Policy{}, nil)
	e.now = clock.Now

	seq := 0
	e.newID = func() string {
		seq++
		return fmt.Sprintf("local-%d", seq)
	}

	return e, emitter, clock
}

// inbound builds the JSON frame for an inbound "message" event with an
// encrypted body.
func inbound(t *testing.T, c *crypto.Cipher, id, from, to, body string, ts time.Time) json.RawMessage {
	t.Helper()

	ciphertext, err := c.Encrypt(body)
	require.NoError(t, err)

	data, err := json.Marshal(models.WireMessage{
		ID:        id,
		Username:  from,
		Body:      ciphertext,
		Timestamp: ts.UnixMilli(),
		From:      from,
		To:        to,
	})
	require.NoError(t, err)
	return data
}

func TestSend_NoActiveConversation(t *testing.T) {
	t.Parallel()

	e, emitter, _ := newTestEngine(t)

	_, err := e.Send("hi")
	assert.ErrorIs(t, err, errs.ErrNoActiveConversation)
	assert.Empty(t, emitter.events)
	assert.Empty(t, e.Snapshot().Messages)
}

func TestSend_EmptyText(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	e.Select("@bob")

	_, err := e.Send("")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestSend_OptimisticAppendAndEncryptedEmit(t *testing.T) {
	t.Parallel()

	e, emitter, clock := newTestEngine(t)
	e.Select("@bob")

	msg, err := e.Send("hi")
	require.NoError(t, err)
	assert.Equal(t, "@alice", msg.From)
	assert.Equal(t, "@bob", msg.To)
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, models.StatusSent, msg.Status)

	snap := e.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, msg.ID, snap.Messages[0].ID)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, models.EventMessage, emitter.events[0].event)

	wire, ok := emitter.events[0].payload.(models.WireMessage)
	require.True(t, ok)
	assert.Equal(t, msg.ID, wire.ID)
	assert.Equal(t, clock.Now().UnixMilli(), wire.Timestamp)
	assert.NotEqual(t, "hi", wire.Body, "plaintext must never hit the wire")

	plaintext, err := crypto.New("test-secret").Decrypt(wire.Body)
	require.NoError(t, err)
	assert.Equal(t, "hi", plaintext)
}

func TestSend_RateLimitedWithinCooldown(t *testing.T) {
	t.Parallel()

	e, emitter, clock := newTestEngine(t)
	e.Select("@bob")

	_, err := e.Send("first")
	require.NoError(t, err)

	clock.Advance(500 * time.Millisecond)
	_, err = e.Send("second")
	assert.ErrorIs(t, err, errs.ErrRateLimited)
	assert.Len(t, e.Snapshot().Messages, 1, "rejected send must not mutate the collection")
	assert.Len(t, emitter.events, 1)

	clock.Advance(2 * time.Second)
	_, err = e.Send("third")
	assert.NoError(t, err)
}

func TestSend_RateLimitedWithinSettleWindow(t *testing.T) {
	t.Parallel()

	emitter := &fakeEmitter{}
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	e := New(emitter, crypto.New("test-secret"), "@alice", "Alice", Policy{
		SendCooldown: 10 * time.Millisecond,
		SendSettle:   time.Second,
	}, nil)
	e.now = clock.Now
	e.Select("@bob")

	_, err := e.Send("first")
	require.NoError(t, err)

	// past the cooldown but still inside the settle window
	clock.Advance(100 * time.Millisecond)
	_, err = e.Send("second")
	assert.ErrorIs(t, err, errs.ErrRateLimited)

	clock.Advance(time.Second)
	_, err = e.Send("third")
	assert.NoError(t, err)
}

func TestHandleMessage_AppendsDelivered(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)
	c := crypto.New("test-secret")

	e.HandleMessage(inbound(t, c, "m1", "@bob", "@alice", "hello", clock.Now()))

	snap := e.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hello", snap.Messages[0].Body)
	assert.Equal(t, models.StatusDelivered, snap.Messages[0].Status)
}

func TestHandleMessage_DuplicateIDsMergeIdempotently(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)
	c := crypto.New("test-secret")

	for i := 0; i < 3; i++ {
		e.HandleMessage(inbound(t, c, "m1", "@bob", "@alice", "hello", clock.Now()))
	}
	e.HandleMessage(inbound(t, c, "m2", "@bob", "@alice", "again", clock.Now()))
	e.HandleMessage(inbound(t, c, "m1", "@bob", "@alice", "hello", clock.Now()))

	snap := e.Snapshot()
	assert.Len(t, snap.Messages, 2, "exactly one entry per unique id")
}

func TestHandleMessage_IgnoresOwnEchoAndForeignRecipients(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)
	c := crypto.New("test-secret")

	e.HandleMessage(inbound(t, c, "m1", "@alice", "@bob", "own echo", clock.Now()))
	e.HandleMessage(inbound(t, c, "m2", "@bob", "@carol", "not for us", clock.Now()))

	assert.Empty(t, e.Snapshot().Messages)
}

func TestHandleMessage_DropsUndecryptable(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)

	// sealed with a different shared secret
	e.HandleMessage(inbound(t, crypto.New("other-secret"), "m1", "@bob", "@alice", "hello", clock.Now()))

	assert.Empty(t, e.Snapshot().Messages)
}

func TestHandleMessage_Signals(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)
	c := crypto.New("test-secret")

	e.Select("@bob")
	e.HandleMessage(inbound(t, c, "m1", "@bob", "@alice", "active", clock.Now()))
	e.HandleMessage(inbound(t, c, "m2", "@carol", "@alice", "background", clock.Now()))

	first := <-e.Signals()
	assert.Equal(t, Signal{Kind: SignalScroll, Peer: "@bob"}, first)

	second := <-e.Signals()
	assert.Equal(t, Signal{Kind: SignalNotify, Peer: "@carol"}, second)
}

func TestEdit_OptimisticWithEchoConfirmation(t *testing.T) {
	t.Parallel()

	e, emitter, _ := newTestEngine(t)
	c := crypto.New("test-secret")
	e.Select("@bob")

	msg, err := e.Send("tpyo")
	require.NoError(t, err)

	require.NoError(t, e.Edit(msg.ID, "typo"))
	assert.Equal(t, "typo", e.Snapshot().Messages[0].Body, "edit applies optimistically")

	require.Len(t, emitter.events, 2)
	assert.Equal(t, models.EventEditMessage, emitter.events[1].event)
	edit, ok := emitter.events[1].payload.(models.EditPayload)
	require.True(t, ok)
	assert.Equal(t, "@bob", edit.To)

	// server echo carries the authoritative ciphertext
	ciphertext, err := c.Encrypt("typo")
	require.NoError(t, err)
	echo, err := json.Marshal(models.EditedPayload{ID: msg.ID, NewBody: ciphertext})
	require.NoError(t, err)
	e.HandleEdited(echo)

	assert.Equal(t, "typo", e.Snapshot().Messages[0].Body)
}

func TestEdit_Rejections(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)
	c := crypto.New("test-secret")

	e.HandleMessage(inbound(t, c, "theirs", "@bob", "@alice", "hello", clock.Now()))

	assert.ErrorIs(t, e.Edit("missing", "x"), errs.ErrNotFound)
	assert.ErrorIs(t, e.Edit("theirs", "x"), errs.ErrNotOwned)
	assert.Equal(t, "hello", e.Snapshot().Messages[0].Body)
}

func TestHandleEdited_UnknownIDDropped(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	c := crypto.New("test-secret")

	ciphertext, err := c.Encrypt("orphan edit")
	require.NoError(t, err)
	echo, err := json.Marshal(models.EditedPayload{ID: "never-seen", NewBody: ciphertext})
	require.NoError(t, err)

	e.HandleEdited(echo)
	assert.Empty(t, e.Snapshot().Messages)
}

func TestDelete_RemovesOnlyAfterConfirmation(t *testing.T) {
	t.Parallel()

	e, emitter, _ := newTestEngine(t)
	e.Select("@bob")

	msg, err := e.Send("remove me")
	require.NoError(t, err)

	require.NoError(t, e.Delete(msg.ID))
	assert.Len(t, e.Conversation("@bob"), 1, "no removal before the confirmation")

	require.Len(t, emitter.events, 2)
	assert.Equal(t, models.EventDeleteMessage, emitter.events[1].event)

	confirmation, err := json.Marshal(msg.ID)
	require.NoError(t, err)
	e.HandleDeleted(confirmation)

	assert.Empty(t, e.Conversation("@bob"))
	assert.ErrorIs(t, e.Delete(msg.ID), errs.ErrNotFound)
}

func TestHandleDelivered_UpdatesStatusInPlace(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	e.Select("@bob")

	msg, err := e.Send("track me")
	require.NoError(t, err)

	update, err := json.Marshal(models.DeliveredPayload{ID: msg.ID, Status: "delivered"})
	require.NoError(t, err)
	e.HandleDelivered(update)
	assert.Equal(t, models.StatusDelivered, e.Snapshot().Messages[0].Status)

	// unknown id: no-op, no panic
	orphan, err := json.Marshal(models.DeliveredPayload{ID: "gone", Status: "delivered"})
	require.NoError(t, err)
	e.HandleDelivered(orphan)
}

func TestHandleError_TransientAlert(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)
	c := crypto.New("test-secret")
	e.HandleMessage(inbound(t, c, "m1", "@bob", "@alice", "hello", clock.Now()))

	reason, err := json.Marshal("Aguarde um momento")
	require.NoError(t, err)
	e.HandleError(reason)

	snap := e.Snapshot()
	require.NotNil(t, snap.Alert)
	assert.Equal(t, "Aguarde um momento", snap.Alert.Reason)
	assert.Len(t, snap.Messages, 1, "alerts never touch the collection")

	clock.Advance(4999 * time.Millisecond)
	assert.NotNil(t, e.Snapshot().Alert, "still visible inside the TTL")

	clock.Advance(time.Millisecond)
	assert.Nil(t, e.Snapshot().Alert, "auto-dismissed after the TTL")
}

func TestConversation_AliceBobScenario(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)
	c := crypto.New("test-secret")

	e.Select("@bob")
	sent, err := e.Send("hi")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, sent.Status)

	clock.Advance(3 * time.Second)
	e.HandleMessage(inbound(t, c, "b1", "@bob", "@alice", "hello", clock.Now()))

	conv := e.Conversation("@bob")
	require.Len(t, conv, 2)
	assert.Equal(t, "hi", conv[0].Body)
	assert.Equal(t, models.StatusSent, conv[0].Status)
	assert.Equal(t, "hello", conv[1].Body)
	assert.Equal(t, models.StatusDelivered, conv[1].Status)
	assert.True(t, conv[0].Timestamp.Before(conv[1].Timestamp), "ascending by timestamp")

	// a third party never shows up in this conversation
	e.HandleMessage(inbound(t, c, "c1", "@carol", "@alice", "hey", clock.Now()))
	assert.Len(t, e.Conversation("@bob"), 2)

	// selection changes do not clear the collection
	e.Select("@carol")
	assert.Len(t, e.Snapshot().Messages, 3)
	assert.Len(t, e.Conversation("@bob"), 2)
}

func TestClose_ReleasesSignalSubscribers(t *testing.T) {
	t.Parallel()

	e, _, clock := newTestEngine(t)
	c := crypto.New("test-secret")

	done := make(chan struct{})
	go func() {
		for range e.Signals() {
		}
		close(done)
	}()

	e.HandleMessage(inbound(t, c, "m1", "@bob", "@alice", "hello", clock.Now()))
	e.Close()
	e.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber still blocked after Close")
	}

	// a late frame must not hit the released signals channel
	e.HandleMessage(inbound(t, c, "m2", "@bob", "@alice", "late", clock.Now()))
}

func TestReset_ClearsTransientState(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t)
	e.Select("@bob")
	_, err := e.Send("bye")
	require.NoError(t, err)

	e.Reset()

	assert.Empty(t, e.Snapshot().Messages)
	assert.Empty(t, e.Selected())
	_, err = e.Send("again")
	assert.ErrorIs(t, err, errs.ErrNoActiveConversation)
}
