package hub

import (
	"context"
	"sync"
	"time"

	"lrnchat/internal/model"
	"lrnchat/internal/protocol"
	"lrnchat/internal/utils/log"

	"go.uber.org/zap"
)

type (
	// MembershipStore is the external source of truth for conversation
	// membership. The hub never caches its answers across calls.
	MembershipStore interface {
		IsMember(ctx context.Context, conversationID, userID string) (bool, error)
	}

	// MessageStore durably appends envelopes and records read timestamps.
	MessageStore interface {
		Append(ctx context.Context, conversationID string, sender model.Identity, ciphertext, iv string) (*model.Envelope, error)
		SetReadTimestamp(ctx context.Context, messageID string, at time.Time) (time.Time, error)
	}

	// PresenceStore receives best-effort last-seen touches.
	PresenceStore interface {
		TouchLastSeen(ctx context.Context, userID string, at time.Time) error
	}

	// Hub owns all live-connection state: the connection set, per-identity
	// connection counts, and room broadcast groups. All three maps are
	// guarded by one RWMutex and mutated only through Hub methods. Routing
	// decisions come from these maps; security decisions always go back to
	// the external stores.
	Hub struct {
		mu       sync.RWMutex
		clients  map[*Client]struct{}
		presence map[string]int
		rooms    map[string]map[*Client]struct{}

		convMu    sync.Mutex
		convLocks map[string]*sync.Mutex

		membership   MembershipStore
		messages     MessageStore
		presenceRec  PresenceStore
		storeTimeout time.Duration
	}
)

func NewHub(membership MembershipStore, messages MessageStore, presence PresenceStore, storeTimeout time.Duration) *Hub {
	return &Hub{
		clients:      make(map[*Client]struct{}),
		presence:     make(map[string]int),
		rooms:        make(map[string]map[*Client]struct{}),
		convLocks:    make(map[string]*sync.Mutex),
		membership:   membership,
		messages:     messages,
		presenceRec:  presence,
		storeTimeout: storeTimeout,
	}
}

// Register adds an authenticated connection. The online broadcast fires only
// on the identity's 0 -> 1 connection transition.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.presence[c.identity.ID]++
	first := h.presence[c.identity.ID] == 1
	h.mu.Unlock()

	log.Info("client connected",
		zap.String("connID", c.id),
		zap.String("userID", c.identity.ID),
	)

	if first {
		h.broadcastAll(protocol.EventPresenceUpdate, &model.PresenceUpdate{
			UserID: c.identity.ID,
			Status: model.StatusOnline,
		})
	}
	go h.touchLastSeen(c.identity.ID)
}

// Unregister tears down a connection exactly once, detaching it from every
// room. The offline broadcast fires only when the identity's last connection
// goes away, so multi-connection churn never flaps presence.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for conversationID := range c.rooms {
		h.detachLocked(c, conversationID)
	}
	h.presence[c.identity.ID]--
	last := h.presence[c.identity.ID] == 0
	if last {
		delete(h.presence, c.identity.ID)
	}
	h.mu.Unlock()

	log.Info("client disconnected",
		zap.String("connID", c.id),
		zap.String("userID", c.identity.ID),
	)

	if last {
		now := time.Now().UTC()
		h.broadcastAll(protocol.EventPresenceUpdate, &model.PresenceUpdate{
			UserID:   c.identity.ID,
			Status:   model.StatusOffline,
			LastSeen: &now,
		})
	}
	go h.touchLastSeen(c.identity.ID)
}

// Join attaches the connection to a room after the membership store confirms
// the identity is a member right now. Refusal is silent: no event goes back,
// matching the wire contract.
func (h *Hub) Join(c *Client, conversationID string) {
	if conversationID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()

	ok, err := h.membership.IsMember(ctx, conversationID, c.identity.ID)
	if err != nil {
		log.Error("membership check failed",
			zap.String("conversationID", conversationID),
			zap.String("userID", c.identity.ID),
			zap.Error(err),
		)
		return
	}
	if !ok {
		log.Debug("join refused, not a member",
			zap.String("conversationID", conversationID),
			zap.String("userID", c.identity.ID),
		)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, registered := h.clients[c]; !registered {
		// Raced with disconnect; nothing to attach.
		return
	}
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[conversationID] = room
	}
	room[c] = struct{}{}
	c.rooms[conversationID] = struct{}{}
}

// Leave detaches the connection from a room. Idempotent.
func (h *Hub) Leave(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(c, conversationID)
}

func (h *Hub) detachLocked(c *Client, conversationID string) {
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	delete(c.rooms, conversationID)
}

// IsOnline reports whether the identity has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presence[userID] > 0
}

func (h *Hub) inRoom(c *Client, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

// Shutdown closes every connection; the per-connection teardown paths do the
// bookkeeping.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (h *Hub) broadcastAll(event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error("encode broadcast failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// broadcastRoom delivers a frame to every connection joined to the room,
// minus except when set.
func (h *Hub) broadcastRoom(conversationID string, data []byte, except *Client) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// convLock returns the per-conversation lock that serializes persist and
// broadcast, so broadcast order follows persistence order within a room.
func (h *Hub) convLock(conversationID string) *sync.Mutex {
	h.convMu.Lock()
	defer h.convMu.Unlock()
	lock, ok := h.convLocks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		h.convLocks[conversationID] = lock
	}
	return lock
}

func (h *Hub) touchLastSeen(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()
	if err := h.presenceRec.TouchLastSeen(ctx, userID, time.Now().UTC()); err != nil {
		log.Warn("touch last seen failed", zap.String("userID", userID), zap.Error(err))
	}
}
