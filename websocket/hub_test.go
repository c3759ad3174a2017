package websocket

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestHub() *Hub {
	h := NewHub()
	go h.Run()
	return h
}

func newTestClient(h *Hub) *Client {
	c := &Client{
		hub:   h,
		send:  make(chan []byte, 8),
		bands: make(map[uuid.UUID]bool),
	}
	h.register <- c
	return c
}

// newStalledClient has an unbuffered send channel that nothing drains,
// so any broadcast to it overflows immediately.
func newStalledClient(h *Hub) *Client {
	c := &Client{
		hub:   h,
		send:  make(chan []byte),
		bands: make(map[uuid.UUID]bool),
	}
	h.register <- c
	return c
}

// waitEvicted blocks until the hub closes the client's send channel.
func waitEvicted(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if ok {
			t.Fatalf("expected eviction, got message %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected stalled client evicted")
	}
}

func TestHub_JoinAndBroadcast(t *testing.T) {
	h := newTestHub()
	bandID := uuid.New()

	insider := newTestClient(h)
	outsider := newTestClient(h)

	insider.joinBand(bandID)

	h.broadcastToBand(bandID, []byte(`{"type":"message"}`))

	select {
	case msg := <-insider.send:
		if string(msg) != `{"type":"message"}` {
			t.Errorf("unexpected message: %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("insider should have received the broadcast")
	}

	select {
	case msg := <-outsider.send:
		t.Fatalf("outsider should not receive messages, got %s", msg)
	default:
	}
}

func TestHub_LeaveBand(t *testing.T) {
	h := newTestHub()
	bandID := uuid.New()

	client := newTestClient(h)
	client.joinBand(bandID)

	if !client.inBand(bandID) {
		t.Fatal("expected client in band after join")
	}

	client.leaveBand(bandID)

	if client.inBand(bandID) {
		t.Fatal("expected client out of band after leave")
	}

	h.broadcastToBand(bandID, []byte("x"))
	select {
	case <-client.send:
		t.Fatal("client should not receive after leaving")
	default:
	}

	// Empty rooms are pruned
	h.bandsMux.RLock()
	_, ok := h.bands[bandID]
	h.bandsMux.RUnlock()
	if ok {
		t.Error("expected empty band room pruned")
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := newTestHub()
	bandID := uuid.New()

	slow := newStalledClient(h)
	slow.joinBand(bandID)

	h.broadcastToBand(bandID, []byte("x"))

	waitEvicted(t, slow)

	h.bandsMux.RLock()
	_, ok := h.bands[bandID]
	h.bandsMux.RUnlock()
	if ok {
		t.Error("expected empty band room pruned after eviction")
	}
}

// Many writers broadcasting into a room full of backlogged clients must
// not corrupt the hub's bookkeeping or close a send channel twice.
func TestHub_ConcurrentBroadcastEviction(t *testing.T) {
	h := newTestHub()
	bandID := uuid.New()

	const stalled = 50
	clients := make([]*Client, stalled)
	for i := range clients {
		clients[i] = newStalledClient(h)
		clients[i].joinBand(bandID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.broadcastToBand(bandID, []byte(`{"type":"message"}`))
		}()
	}
	wg.Wait()

	for _, c := range clients {
		waitEvicted(t, c)
	}

	h.bandsMux.RLock()
	_, ok := h.bands[bandID]
	h.bandsMux.RUnlock()
	if ok {
		t.Error("expected band room pruned after all clients evicted")
	}
}
