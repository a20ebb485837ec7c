package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"lrnchat/internal/model"
	"lrnchat/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMembership struct {
	mu      sync.Mutex
	members map[string]bool
	err     error
}

func membershipKey(conversationID, userID string) string {
	return conversationID + "/" + userID
}

func (f *fakeMembership) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.members[membershipKey(conversationID, userID)], nil
}

func (f *fakeMembership) add(conversationID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[membershipKey(conversationID, userID)] = true
}

func (f *fakeMembership) remove(conversationID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, membershipKey(conversationID, userID))
}

type fakeMessages struct {
	mu        sync.Mutex
	appended  []*model.Envelope
	appendErr error
	reads     map[string]time.Time
	nextID    int
}

func (f *fakeMessages) Append(ctx context.Context, conversationID string, sender model.Identity, ciphertext, iv string) (*model.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.nextID++
	envelope := &model.Envelope{
		ID:             fmt.Sprintf("m%d", f.nextID),
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		Ciphertext:     ciphertext,
		IV:             iv,
		Timestamp:      time.Now().UTC(),
	}
	f.appended = append(f.appended, envelope)
	return envelope, nil
}

func (f *fakeMessages) SetReadTimestamp(ctx context.Context, messageID string, at time.Time) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.reads[messageID]; ok {
		return existing, nil
	}
	f.reads[messageID] = at
	return at, nil
}

func (f *fakeMessages) appendedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

type fakePresence struct {
	mu      sync.Mutex
	touched []string
}

func (f *fakePresence) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, userID)
	return nil
}

func newTestHub() (*Hub, *fakeMembership, *fakeMessages) {
	membership := &fakeMembership{members: make(map[string]bool)}
	messages := &fakeMessages{reads: make(map[string]time.Time)}
	h := NewHub(membership, messages, &fakePresence{}, time.Second)
	return h, membership, messages
}

func newTestClient(h *Hub, userID string) *Client {
	return NewClient(h, nil, model.Identity{ID: userID, DisplayName: "user " + userID})
}

// recvEvent drains the client's send queue until a frame with the wanted
// event arrives; unrelated frames (presence churn) are skipped.
func recvEvent(t *testing.T, c *Client, event string) *protocol.Frame {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case data := <-c.send:
			frame, err := protocol.Decode(data)
			require.NoError(t, err)
			if frame.Event == event {
				return frame
			}
		case <-deadline:
			t.Fatalf("no %s frame received", event)
			return nil
		}
	}
}

// assertNoEvent asserts no frame with the given event is queued.
func assertNoEvent(t *testing.T, c *Client, event string) {
	t.Helper()
	for {
		select {
		case data := <-c.send:
			frame, err := protocol.Decode(data)
			require.NoError(t, err)
			require.NotEqual(t, event, frame.Event)
		default:
			return
		}
	}
}

func TestPresenceBroadcastOnFirstConnection(t *testing.T) {
	h, _, _ := newTestHub()

	observer := newTestClient(h, "observer")
	h.Register(observer)

	alice := newTestClient(h, "alice")
	h.Register(alice)

	frame := recvEvent(t, observer, protocol.EventPresenceUpdate)
	var update model.PresenceUpdate
	require.NoError(t, frame.Unmarshal(&update))
	// First frame is the observer's own online transition.
	if update.UserID == "observer" {
		frame = recvEvent(t, observer, protocol.EventPresenceUpdate)
		require.NoError(t, frame.Unmarshal(&update))
	}
	assert.Equal(t, "alice", update.UserID)
	assert.Equal(t, model.StatusOnline, update.Status)
	assert.True(t, h.IsOnline("alice"))
}

func TestMultiConnectionPresenceDoesNotFlap(t *testing.T) {
	h, _, _ := newTestHub()

	observer := newTestClient(h, "observer")
	h.Register(observer)

	first := newTestClient(h, "alice")
	second := newTestClient(h, "alice")
	h.Register(first)
	h.Register(second)

	recvEvent(t, observer, protocol.EventPresenceUpdate) // observer online
	recvEvent(t, observer, protocol.EventPresenceUpdate) // alice online, once

	// Second connection for the same identity: no extra online broadcast.
	assertNoEvent(t, observer, protocol.EventPresenceUpdate)

	// Dropping one of two connections must not broadcast offline.
	h.Unregister(first)
	assertNoEvent(t, observer, protocol.EventPresenceUpdate)
	assert.True(t, h.IsOnline("alice"))

	// Dropping the last one broadcasts offline exactly once, with lastSeen.
	h.Unregister(second)
	frame := recvEvent(t, observer, protocol.EventPresenceUpdate)
	var update model.PresenceUpdate
	require.NoError(t, frame.Unmarshal(&update))
	assert.Equal(t, "alice", update.UserID)
	assert.Equal(t, model.StatusOffline, update.Status)
	require.NotNil(t, update.LastSeen)
	assert.False(t, h.IsOnline("alice"))
	assertNoEvent(t, observer, protocol.EventPresenceUpdate)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h, _, _ := newTestHub()

	observer := newTestClient(h, "observer")
	h.Register(observer)

	alice := newTestClient(h, "alice")
	h.Register(alice)
	h.Unregister(alice)
	h.Unregister(alice)

	recvEvent(t, observer, protocol.EventPresenceUpdate) // observer online
	recvEvent(t, observer, protocol.EventPresenceUpdate) // alice online
	recvEvent(t, observer, protocol.EventPresenceUpdate) // alice offline, once
	assertNoEvent(t, observer, protocol.EventPresenceUpdate)
}

func TestJoinRequiresMembership(t *testing.T) {
	h, membership, _ := newTestHub()

	alice := newTestClient(h, "alice")
	h.Register(alice)

	// Not a member: silent refusal, no attach.
	h.Join(alice, "c1")
	assert.False(t, h.inRoom(alice, "c1"))

	membership.add("c1", "alice")
	h.Join(alice, "c1")
	assert.True(t, h.inRoom(alice, "c1"))
}

func TestJoinIsConnectionScoped(t *testing.T) {
	h, membership, _ := newTestHub()
	membership.add("c1", "alice")

	first := newTestClient(h, "alice")
	second := newTestClient(h, "alice")
	h.Register(first)
	h.Register(second)

	h.Join(first, "c1")
	assert.True(t, h.inRoom(first, "c1"))
	// The identity's other connection must join on its own.
	assert.False(t, h.inRoom(second, "c1"))
}

func TestLeaveIsIdempotent(t *testing.T) {
	h, membership, _ := newTestHub()
	membership.add("c1", "alice")

	alice := newTestClient(h, "alice")
	h.Register(alice)
	h.Join(alice, "c1")

	h.Leave(alice, "c1")
	assert.False(t, h.inRoom(alice, "c1"))
	h.Leave(alice, "c1")
	assert.False(t, h.inRoom(alice, "c1"))

	// Leaving a room never joined is also a no-op.
	h.Leave(alice, "c2")
}

func TestUnregisterDetachesFromRooms(t *testing.T) {
	h, membership, _ := newTestHub()
	membership.add("c1", "alice")
	membership.add("c2", "alice")

	alice := newTestClient(h, "alice")
	h.Register(alice)
	h.Join(alice, "c1")
	h.Join(alice, "c2")

	h.Unregister(alice)
	assert.False(t, h.inRoom(alice, "c1"))
	assert.False(t, h.inRoom(alice, "c2"))
}
