// Package realtime fans reservation events out to the websocket clients subscribed to an organization.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
)

// RedisPublisher publishes organization events for every API instance.
type RedisPublisher interface {
	PublishOrganizationEvent(orgID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to an organization's channel and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeOrganization(orgID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains organization_id -> set of connections. With Redis configured, events are published
// only to Redis and the per-organization subscription delivers them locally, so each client receives
// an event once no matter which instance produced it.
type Hub struct {
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// NewHub creates a new hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to its organization's room. The room's Redis subscription is started
// on the first client, and retried on later registrations while it is missing.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.OrganizationID] == nil {
		h.rooms[c.OrganizationID] = make(map[string]*Client)
	}
	h.rooms[c.OrganizationID][c.ID] = c
	if h.redisSub != nil && h.subs[c.OrganizationID] == nil {
		h.subscribeLocked(c.OrganizationID)
	}
	h.mu.Unlock()
	h.logger.Debug("client subscribed", zap.String("client_id", c.ID), zap.String("organization_id", c.OrganizationID.String()))
}

func (h *Hub) subscribeLocked(orgID uuid.UUID) {
	cancel, err := h.redisSub.SubscribeOrganization(orgID, func(event string, payload []byte) {
		h.Broadcast(orgID, event, json.RawMessage(payload))
	})
	if err != nil {
		h.logger.Error("redis subscribe failed", zap.String("organization_id", orgID.String()), zap.Error(err))
		return
	}
	h.subs[orgID] = cancel
}

// subscribed reports whether events for orgID reach this instance through Redis.
func (h *Hub) subscribed(orgID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.subs[orgID] != nil
}

// Unregister removes a client from its room and closes its send channel. Cancels the Redis
// subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.OrganizationID]; ok {
		if _, member := m[c.ID]; member {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.rooms, c.OrganizationID)
			if cancel, ok := h.subs[c.OrganizationID]; ok {
				cancel()
				delete(h.subs, c.OrganizationID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client unsubscribed", zap.String("client_id", c.ID), zap.String("organization_id", c.OrganizationID.String()))
}

// Broadcast sends a message to the organization's local clients. Slow clients drop the message.
func (h *Hub) Broadcast(orgID uuid.UUID, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[orgID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("client send buffer full, dropping event",
				zap.String("client_id", c.ID), zap.String("event", event))
		}
	}
}

// PublishToOrganization delivers an event to every subscriber of the organization on all instances.
// Delivery is best effort: a failed Redis publish falls back to local clients only, and so does a
// room whose Redis subscription could not be started.
func (h *Hub) PublishToOrganization(orgID uuid.UUID, event string, payload interface{}) {
	if h.redis == nil {
		h.Broadcast(orgID, event, payload)
		return
	}
	data, err := encode(payload)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishOrganizationEvent(orgID, event, data); err != nil {
		h.logger.Warn("redis publish failed, delivering locally",
			zap.String("organization_id", orgID.String()), zap.String("event", event), zap.Error(err))
		h.Broadcast(orgID, event, json.RawMessage(data))
		return
	}
	// Local clients without a live subscription would otherwise miss the event.
	if !h.subscribed(orgID) {
		h.Broadcast(orgID, event, json.RawMessage(data))
	}
}

// SubscriberCount returns the number of local clients subscribed to an organization.
func (h *Hub) SubscriberCount(orgID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orgID])
}

// sendTo queues a message for one client of an organization.
func (h *Hub) sendTo(c *Client, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.rooms[c.OrganizationID][c.ID]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func encode(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	return json.Marshal(payload)
}
