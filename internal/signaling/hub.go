package signaling

import (
	"log/slog"
	"sync"
)

// roster is the addressing surface the relay pushes through: targeted
// delivery to one user's connections or broadcast to everyone on a call.
type roster interface {
	ToUser(userID string, ev Envelope)
	ToCall(callID string, ev Envelope)
	JoinCall(callID, userID string)
	DropCall(callID string)
}

// Hub tracks live websocket clients in two overlapping room sets: one keyed
// by user id (targeted push) and one keyed by call id (call broadcast).
// A user may hold several connections; all of them receive user-addressed
// events and all of them join call rooms together.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}
	calls map[string]map[*Client]struct{}
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		users: make(map[string]map[*Client]struct{}),
		calls: make(map[string]map[*Client]struct{}),
		log:   log,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.users[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.userID)
		}
	}
	for callID := range c.rooms {
		if set, ok := h.calls[callID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.calls, callID)
			}
		}
	}
	close(c.send)
}

// JoinCall adds every live connection of userID to the call's room. New
// connections from the same user do not join automatically; a rejoin flow
// re-invokes this.
func (h *Hub) JoinCall(callID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.calls[callID]
	if !ok {
		set = make(map[*Client]struct{})
		h.calls[callID] = set
	}
	for c := range h.users[userID] {
		set[c] = struct{}{}
		c.rooms[callID] = struct{}{}
	}
}

// DropCall dissolves the call room. Clients stay connected and keep their
// user room membership.
func (h *Hub) DropCall(callID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.calls[callID] {
		delete(c.rooms, callID)
	}
	delete(h.calls, callID)
}

func (h *Hub) ToUser(userID string, ev Envelope) {
	raw, err := marshalEnvelope(ev)
	if err != nil {
		h.log.Error("encode event", "event", ev.Event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		h.deliver(c, ev.Event, raw)
	}
}

func (h *Hub) ToCall(callID string, ev Envelope) {
	raw, err := marshalEnvelope(ev)
	if err != nil {
		h.log.Error("encode event", "event", ev.Event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.calls[callID] {
		h.deliver(c, ev.Event, raw)
	}
}

// UserOnline reports whether the user has at least one live connection.
func (h *Hub) UserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// deliver is non-blocking: a client whose send buffer is full loses the
// frame rather than stalling every other room member.
func (h *Hub) deliver(c *Client, event string, raw []byte) {
	select {
	case c.send <- raw:
	default:
		h.log.Warn("client send buffer full, frame dropped", "user_id", c.userID, "event", event)
	}
}
