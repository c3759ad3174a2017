package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// bandMessage is a payload addressed to one band room.
type bandMessage struct {
	bandID  uuid.UUID
	payload []byte
}

// Hub maintains the set of active clients and fans chat messages out to
// the bands they have joined.
//
// All client bookkeeping runs on the Run goroutine: registration,
// broadcast delivery, eviction of stalled clients, and the close of a
// client's send channel. Broadcasts enter through the broadcast channel
// rather than touching the maps directly, so a client is never evicted
// concurrently with a send to it.
type Hub struct {
	// Registered clients; owned by the Run goroutine
	clients map[*Client]bool

	// Band rooms (bandID -> clients)
	bands map[uuid.UUID]map[*Client]bool

	// Mutex for bands map (joins and leaves come from client goroutines)
	bandsMux sync.RWMutex

	// Outbound messages for band rooms
	broadcast chan bandMessage

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan bandMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		bands:      make(map[uuid.UUID]map[*Client]bool),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			h.dropClient(client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// dropClient removes a client from the hub and every band room, closing
// its send channel exactly once. Run goroutine only.
func (h *Hub) dropClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	h.bandsMux.Lock()
	for bandID, clients := range h.bands {
		if _, ok := clients[client]; ok {
			delete(h.bands[bandID], client)
			// Clean up empty rooms
			if len(h.bands[bandID]) == 0 {
				delete(h.bands, bandID)
			}
		}
	}
	h.bandsMux.Unlock()
}

// deliver sends a message to every client in a band room, evicting
// clients whose send buffer is full. Run goroutine only.
func (h *Hub) deliver(msg bandMessage) {
	h.bandsMux.Lock()
	defer h.bandsMux.Unlock()

	clients, ok := h.bands[msg.bandID]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.send <- msg.payload:
		default:
			close(client.send)
			delete(clients, client)
			delete(h.clients, client)
		}
	}
	if len(clients) == 0 {
		delete(h.bands, msg.bandID)
	}
}

// joinBand adds a client to a band room
func (h *Hub) joinBand(client *Client, bandID uuid.UUID) {
	h.bandsMux.Lock()
	defer h.bandsMux.Unlock()

	if _, ok := h.bands[bandID]; !ok {
		h.bands[bandID] = make(map[*Client]bool)
	}
	h.bands[bandID][client] = true
}

// leaveBand removes a client from a band room
func (h *Hub) leaveBand(client *Client, bandID uuid.UUID) {
	h.bandsMux.Lock()
	defer h.bandsMux.Unlock()

	if _, ok := h.bands[bandID]; ok {
		delete(h.bands[bandID], client)
		if len(h.bands[bandID]) == 0 {
			delete(h.bands, bandID)
		}
	}
}

// broadcastToBand hands a message to the Run goroutine for delivery.
func (h *Hub) broadcastToBand(bandID uuid.UUID, message []byte) {
	h.broadcast <- bandMessage{bandID: bandID, payload: message}
}

// BroadcastToBand sends a typed payload to all clients in a band room.
// Called from HTTP handlers after a write lands.
func BroadcastToBand(bandID uuid.UUID, msgType string, payload interface{}) {
	if hub == nil {
		return
	}

	msg := Message{
		Type:    msgType,
		Payload: payload,
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		log.Printf("error marshaling message: %v", err)
		return
	}

	hub.broadcastToBand(bandID, msgBytes)
}

// Global hub instance
var hub *Hub

// InitHub initializes the global hub
func InitHub() {
	hub = NewHub()
	go hub.Run()
}
