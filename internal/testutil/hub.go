package testutil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/realtime"
)

// Hub is a WebSocket event server with motion rooms
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	clients  map[*hubClient]struct{}
	rooms    map[string]map[*hubClient]struct{}
	received []realtime.Frame
	connects int
	changed  chan struct{}

	mu sync.Mutex
}

type hubClient struct {
	conn    *websocket.Conn
	rooms   map[string]struct{}
	writeMu sync.Mutex
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*hubClient]struct{}),
		rooms:   make(map[string]map[*hubClient]struct{}),
		changed: make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and serves the client until it leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &hubClient{conn: conn, rooms: make(map[string]struct{})}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.connects++
	h.notifyLocked()
	h.mu.Unlock()

	defer h.remove(client)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame realtime.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		h.handle(client, frame)
	}
}

func (h *Hub) handle(client *hubClient, frame realtime.Frame) {
	h.mu.Lock()
	h.received = append(h.received, frame)

	var peers []*hubClient
	switch frame.Event {
	case realtime.EventJoinMotion, realtime.EventLeaveMotion:
		room, err := realtime.DecodeString(frame.Data)
		if err != nil || room == "" {
			break
		}
		if frame.Event == realtime.EventJoinMotion {
			if h.rooms[room] == nil {
				h.rooms[room] = make(map[*hubClient]struct{})
			}
			h.rooms[room][client] = struct{}{}
			client.rooms[room] = struct{}{}
		} else {
			delete(h.rooms[room], client)
			delete(client.rooms, room)
		}
	case realtime.EventVoteComplete:
		// relay to everyone sharing a room with the sender
		seen := make(map[*hubClient]struct{})
		for room := range client.rooms {
			for peer := range h.rooms[room] {
				if _, ok := seen[peer]; ok || peer == client {
					continue
				}
				seen[peer] = struct{}{}
				peers = append(peers, peer)
			}
		}
	}
	h.notifyLocked()
	h.mu.Unlock()

	for _, peer := range peers {
		_ = peer.write(frame)
	}
}

func (h *Hub) remove(client *hubClient) {
	h.mu.Lock()
	delete(h.clients, client)
	for room := range client.rooms {
		delete(h.rooms[room], client)
	}
	h.notifyLocked()
	h.mu.Unlock()

	_ = client.conn.Close()
}

// notifyLocked wakes goroutines blocked in WaitFor
func (h *Hub) notifyLocked() {
	close(h.changed)
	h.changed = make(chan struct{})
}

// Broadcast sends an event to every client in room and returns the number
// of recipients
func (h *Hub) Broadcast(room, event string, data any) int {
	frame, err := realtime.NewFrame(event, data)
	if err != nil {
		return 0
	}

	h.mu.Lock()
	targets := make([]*hubClient, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		targets = append(targets, client)
	}
	h.mu.Unlock()

	sent := 0
	for _, client := range targets {
		if client.write(frame) == nil {
			sent++
		}
	}
	return sent
}

// BroadcastAll sends an event to every connected client
func (h *Hub) BroadcastAll(event string, data any) int {
	frame, err := realtime.NewFrame(event, data)
	if err != nil {
		return 0
	}

	h.mu.Lock()
	targets := make([]*hubClient, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.Unlock()

	sent := 0
	for _, client := range targets {
		if client.write(frame) == nil {
			sent++
		}
	}
	return sent
}

// DropAll closes every client connection without a close handshake
func (h *Hub) DropAll() {
	h.mu.Lock()
	targets := make([]*hubClient, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.Unlock()

	for _, client := range targets {
		_ = client.conn.Close()
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Connects returns the number of connections accepted so far
func (h *Hub) Connects() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects
}

// RoomSize returns the number of clients in room
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Received returns the frames received for event, or all frames when
// event is empty
func (h *Hub) Received(event string) []realtime.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []realtime.Frame
	for _, frame := range h.received {
		if event == "" || frame.Event == event {
			out = append(out, frame)
		}
	}
	return out
}

// WaitFor blocks until cond holds or timeout elapses, reporting whether
// cond held. cond runs with the hub locked and must not call hub methods.
func (h *Hub) WaitFor(timeout time.Duration, cond func(h *HubState) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		h.mu.Lock()
		ok := cond(&HubState{hub: h})
		changed := h.changed
		h.mu.Unlock()
		if ok {
			return true
		}

		select {
		case <-changed:
		case <-deadline.C:
			return false
		}
	}
}

// HubState is a read-only view of the hub passed to WaitFor conditions
type HubState struct {
	hub *Hub
}

// Clients returns the number of connected clients
func (s *HubState) Clients() int { return len(s.hub.clients) }

// RoomSize returns the number of clients in room
func (s *HubState) RoomSize(room string) int { return len(s.hub.rooms[room]) }

// Connects returns the number of connections accepted so far
func (s *HubState) Connects() int { return s.hub.connects }

// Received returns the number of frames received for event
func (s *HubState) Received(event string) int {
	n := 0
	for _, frame := range s.hub.received {
		if frame.Event == event {
			n++
		}
	}
	return n
}

func (c *hubClient) write(frame realtime.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(frame)
}
