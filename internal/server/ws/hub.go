// Package ws is the relay's realtime fan-out: it tracks connected
// clients, broadcasts presence, and relays message events between
// peers.
package ws

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"cipherchat/internal/models"
)

// Hub maintains the set of active clients and broadcasts presence
// changes to them.
type Hub struct {
	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// MinSendInterval is the server-side send-rate floor per client.
	minSendInterval time.Duration

	log *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a hub enforcing the given per-client send interval.
func NewHub(minSendInterval time.Duration, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		minSendInterval: minSendInterval,
		log:             logger,
		clients:         make(map[string]*Client),
	}
}

// Run processes registration traffic until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.Tag]; ok {
				// one live connection per session; the old client
				// tears itself down once its send channel closes
				old.shutdown()
			}
			h.clients[client.Tag] = client
			h.mu.Unlock()

			h.log.Info("client joined", zap.String("tag", client.Tag))
			h.broadcastPresence(models.EventUserJoined)

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.Tag]; ok && current == client {
				delete(h.clients, client.Tag)
			}
			h.mu.Unlock()
			client.shutdown()

			h.log.Info("client left", zap.String("tag", client.Tag))
			h.broadcastPresence(models.EventUserLeft)
		}
	}
}

// onlineTags returns the authoritative full list of connected tags.
func (h *Hub) onlineTags() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	tags := make([]string, 0, len(h.clients))
	for tag := range h.clients {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// broadcastPresence sends the full online list to every client.
func (h *Hub) broadcastPresence(event string) {
	packet, err := models.NewPacket(event, models.PresencePayload{Users: h.onlineTags()})
	if err != nil {
		return
	}
	data, _ := json.Marshal(packet)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		// drops are fine; presence catches up on the next change
		client.deliver(data)
	}
}

// relay delivers a packet to the addressed client. Returns false when
// the recipient is offline.
func (h *Hub) relay(to string, packet models.Packet) bool {
	data, err := json.Marshal(packet)
	if err != nil {
		return false
	}

	h.mu.RLock()
	client, ok := h.clients[to]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return client.deliver(data)
}
