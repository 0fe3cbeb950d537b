package rpc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/barterchain/chainengine/internal/domain"
	"github.com/barterchain/chainengine/pkg/logging"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins
	},
}

// EventType names a chain-lifecycle transition pushed to subscribers.
type EventType string

const (
	EventChainProposed   EventType = "chain_proposed"
	EventChainLocked     EventType = "chain_locked"
	EventChainRaceLost   EventType = "chain_race_lost"
	EventChainRejected   EventType = "chain_rejected"
	EventChainFunded     EventType = "chain_funded"
	EventChainGreenLight EventType = "chain_green_light"
	EventChainCompleted  EventType = "chain_completed"
	EventChainExpired    EventType = "chain_expired"
)

// WSEvent is a single chain-lifecycle push delivered to a watching
// client.
type WSEvent struct {
	Type      EventType   `json:"type"`
	ChainID   string      `json:"chainId"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsPush pairs an event with the participant user ids it concerns. Only
// clients watching one of those ids receive it — a chain's events are
// only ever interesting to its own participants.
type wsPush struct {
	participantIDs []int64
	event          *WSEvent
}

// WSSubscription is a client's request to start or stop receiving
// pushes for a user id's chain activity. A browser session sends one of
// these for each account it's signed in as (normally just its own).
type WSSubscription struct {
	Action string `json:"action"` // "watch" or "unwatch"
	UserID int64  `json:"userId"`
}

// WSClient is a single connected subscriber, scoped to the set of user
// ids whose chain events it wants delivered.
type WSClient struct {
	conn    *websocket.Conn
	send    chan []byte
	watched map[int64]bool
	mu      sync.RWMutex
	hub     *WSHub
}

func (c *WSClient) isWatching(participantIDs []int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range participantIDs {
		if c.watched[id] {
			return true
		}
	}
	return false
}

func (c *WSClient) watch(userID int64, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.watched[userID] = true
	} else {
		delete(c.watched, userID)
	}
}

// WSHub fans chain-lifecycle events out to every client watching one of
// the event's participant user ids.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan wsPush
	register   chan *WSClient
	unregister chan *WSClient
	log        *logging.Logger
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan wsPush, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		log:        logging.GetDefault().Component("ws"),
	}
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("websocket client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Debug("websocket client disconnected", "clients", len(h.clients))

		case push := <-h.broadcast:
			data, err := json.Marshal(push.event)
			if err != nil {
				h.log.Error("failed to marshal chain event", "error", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				if !client.isWatching(push.participantIDs) {
					continue
				}
				select {
				case client.send <- data:
				default:
					// client's buffer is full, disconnect
					h.mu.RUnlock()
					h.mu.Lock()
					delete(h.clients, client)
					close(client.send)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast pushes an event about chainID to every client watching one
// of p's participants. p may be nil (e.g. a pre-proposal discovery
// error) in which case the push is dropped — there is no participant
// list to target it at.
func (h *WSHub) Broadcast(p *domain.ChainProposal, chainID string, eventType EventType, data interface{}) {
	if p == nil {
		return
	}
	ids := make([]int64, len(p.Participants))
	for i, part := range p.Participants {
		ids[i] = part.UserID
	}

	event := &WSEvent{Type: eventType, ChainID: chainID, Data: data, Timestamp: time.Now().Unix()}

	select {
	case h.broadcast <- wsPush{participantIDs: ids, event: event}:
	default:
		h.log.Warn("broadcast channel full, dropping event", "chain", chainID, "type", eventType)
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWS upgrades an HTTP connection to a WebSocket chain-event feed.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		conn:    conn,
		send:    make(chan []byte, 256),
		watched: make(map[int64]bool),
		hub:     s.wsHub,
	}

	s.wsHub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads subscription requests from the client connection.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", "error", err)
			}
			break
		}

		var sub WSSubscription
		if err := json.Unmarshal(message, &sub); err != nil {
			continue
		}
		c.handleSubscription(&sub)
	}
}

// writePump writes queued chain events to the client connection.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleSubscription applies a watch/unwatch request for one user id.
func (c *WSClient) handleSubscription(sub *WSSubscription) {
	switch sub.Action {
	case "watch":
		c.watch(sub.UserID, true)
	case "unwatch":
		c.watch(sub.UserID, false)
	}
}
