package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cipherchat/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TokenVerifier resolves a bearer token to the authenticated tag.
type TokenVerifier func(token string) (string, error)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// mu guards closed and every send-channel write. The channel is
	// written from this client's readPump and from the hub, so only
	// shutdown may close it, under the same lock.
	mu     sync.Mutex
	closed bool

	// Tag of the authenticated identity.
	Tag string

	// joined is set once the client announced itself with a join event.
	joined bool

	// lastSend enforces the hub's per-client send interval.
	lastSend time.Time
}

// shutdown closes the send channel exactly once, which stops writePump.
// The hub calls it when a newer connection for the same tag takes over.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// deliver queues a raw frame. Frames for a shut-down or slow client are
// dropped.
func (c *Client) deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		if c.joined {
			c.hub.unregister <- c
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var packet models.Packet
		if err := json.Unmarshal(raw, &packet); err != nil {
			continue
		}

		switch packet.Event {
		case models.EventJoin:
			c.handleJoin(packet)
		case models.EventMessage:
			c.handleMessage(packet)
		case models.EventEditMessage:
			c.handleEdit(packet)
		case models.EventDeleteMessage:
			c.handleDelete(packet)
		}
	}
}

func (c *Client) handleJoin(packet models.Packet) {
	var tag string
	if err := json.Unmarshal(packet.Data, &tag); err != nil {
		c.sendError("invalid join payload")
		return
	}
	if tag != c.Tag {
		c.sendError("join tag does not match session")
		return
	}
	if c.joined {
		return
	}
	c.joined = true
	c.hub.register <- c
}

func (c *Client) handleMessage(packet models.Packet) {
	if !c.joined {
		c.sendError("join first")
		return
	}

	now := time.Now()
	if !c.lastSend.IsZero() && now.Sub(c.lastSend) < c.hub.minSendInterval {
		c.sendError("Aguarde um momento")
		return
	}

	var wire models.WireMessage
	if err := json.Unmarshal(packet.Data, &wire); err != nil || wire.ID == "" || wire.To == "" {
		c.sendError("invalid message payload")
		return
	}

	// sender identity is authoritative on the server
	wire.From = c.Tag
	if wire.Timestamp == 0 {
		wire.Timestamp = now.UnixMilli()
	}

	relayed, err := models.NewPacket(models.EventMessage, wire)
	if err != nil {
		return
	}
	if !c.hub.relay(wire.To, relayed) {
		c.sendError("Recipient offline")
		return
	}
	c.lastSend = now

	// delivery confirmation back to the sender
	c.sendPacket(models.EventMessageDelivered, models.DeliveredPayload{
		ID:     wire.ID,
		Status: string(models.StatusDelivered),
	})
}

func (c *Client) handleEdit(packet models.Packet) {
	if !c.joined {
		c.sendError("join first")
		return
	}

	var edit models.EditPayload
	if err := json.Unmarshal(packet.Data, &edit); err != nil || edit.ID == "" || edit.To == "" {
		c.sendError("invalid edit payload")
		return
	}

	confirmed := models.EditedPayload{ID: edit.ID, NewBody: edit.NewBody}
	relayed, err := models.NewPacket(models.EventMessageEdited, confirmed)
	if err != nil {
		return
	}
	c.hub.relay(edit.To, relayed)

	// echo the authoritative edit to the sender as confirmation
	c.sendPacket(models.EventMessageEdited, confirmed)
}

func (c *Client) handleDelete(packet models.Packet) {
	if !c.joined {
		c.sendError("join first")
		return
	}

	var del models.DeletePayload
	if err := json.Unmarshal(packet.Data, &del); err != nil || del.MessageID == "" || del.To == "" {
		c.sendError("invalid delete payload")
		return
	}

	relayed, err := models.NewPacket(models.EventMessageDeleted, del.MessageID)
	if err != nil {
		return
	}
	c.hub.relay(del.To, relayed)

	// deletion is confirmed, not optimistic: the sender removes its
	// local copy only on this echo
	c.sendPacket(models.EventMessageDeleted, del.MessageID)
}

func (c *Client) sendPacket(event string, payload any) {
	packet, err := models.NewPacket(event, payload)
	if err != nil {
		return
	}
	data, _ := json.Marshal(packet)
	c.deliver(data)
}

func (c *Client) sendError(reason string) {
	c.sendPacket(models.EventError, reason)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// bearerToken extracts the token from the Authorization header or the
// token query parameter (browser websocket clients cannot set headers).
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

// ServeWs authenticates the handshake and starts the client pumps.
func ServeWs(hub *Hub, verify TokenVerifier, w http.ResponseWriter, r *http.Request) {
	tag, err := verify(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
		Tag:  tag,
	}

	go client.writePump()
	go client.readPump()
}
