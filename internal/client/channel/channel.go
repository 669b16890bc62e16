// Package channel binds the client to the backend's realtime endpoint.
//
// A Conn multiplexes named events over a single websocket: every frame
// is a models.Packet and inbound frames are dispatched to the handler
// registered for their event name. The binding itself never redials;
// reconnect policy belongs to the consumer, which watches Done and
// redials with backoff.
package channel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"cipherchat/internal/errs"
	"cipherchat/internal/models"
)

// Handler consumes the raw payload of one inbound event.
type Handler func(data json.RawMessage)

// Conn is a single live connection to the realtime endpoint. A session
// holds at most one.
type Conn struct {
	ws   *websocket.Conn
	send chan models.Packet

	mu       sync.RWMutex
	handlers map[string]Handler

	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens the websocket at ws://<serverAddr>/ws, authenticating the
// handshake with the session's bearer token, and starts both pumps.
func Dial(serverAddr, token string) (*Conn, error) {
	u := url.URL{Scheme: "ws", Host: serverAddr, Path: "/ws"}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	c := &Conn{
		ws:       ws,
		send:     make(chan models.Packet, 256),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()

	return c, nil
}

// On registers the handler for a named inbound event, replacing any
// previous registration.
func (c *Conn) On(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

// Off removes the handler for a named event.
func (c *Conn) Off(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

// Emit queues an event for transmission.
func (c *Conn) Emit(event string, payload any) error {
	packet, err := models.NewPacket(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errs.ErrClosed
	case c.send <- packet:
		return nil
	}
}

// Done is closed when the connection is torn down, locally or by the
// peer. Consumers watch it to drive their reconnect policy.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close tears the binding down: both pumps stop and every registered
// handler is released so a later reconnect cannot double-deliver.
// Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.ws.Close()

		c.mu.Lock()
		c.handlers = make(map[string]Handler)
		c.mu.Unlock()
	})
}

func (c *Conn) dispatch(event string, data json.RawMessage) {
	c.mu.RLock()
	h, ok := c.handlers[event]
	c.mu.RUnlock()
	if ok {
		h(data)
	}
}

func (c *Conn) readPump() {
	defer c.Close()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// local teardown, not an error
			default:
				reason, _ := json.Marshal(err.Error())
				c.dispatch(models.EventError, reason)
			}
			return
		}

		var packet models.Packet
		if err := json.Unmarshal(raw, &packet); err != nil {
			continue
		}
		c.dispatch(packet.Event, packet.Data)
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case packet := <-c.send:
			data, err := json.Marshal(packet)
			if err != nil {
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
