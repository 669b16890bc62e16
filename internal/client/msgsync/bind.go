package msgsync

import (
	"encoding/json"

	"cipherchat/internal/client/channel"
	"cipherchat/internal/client/roster"
	"cipherchat/internal/models"
)

// Binding is the subscription surface of a realtime connection.
// *channel.Conn satisfies it.
type Binding interface {
	On(event string, h channel.Handler)
	Off(event string)
}

// Attach registers the engine and roster handlers for every inbound
// event and returns a release function that deregisters them all.
// Release is deterministic teardown; it is not tied to any rendering
// lifecycle.
func Attach(b Binding, e *Engine, r *roster.Tracker) (release func()) {
	presence := func(data json.RawMessage) {
		var p models.PresencePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		r.Replace(p.Users)
	}

	handlers := map[string]channel.Handler{
		models.EventMessage:          e.HandleMessage,
		models.EventMessageEdited:    e.HandleEdited,
		models.EventMessageDeleted:   e.HandleDeleted,
		models.EventMessageDelivered: e.HandleDelivered,
		models.EventError:            e.HandleError,
		models.EventUserJoined:       presence,
		models.EventUserLeft:         presence,
	}
	for event, h := range handlers {
		b.On(event, h)
	}

	return func() {
		for event := range handlers {
			b.Off(event)
		}
	}
}
