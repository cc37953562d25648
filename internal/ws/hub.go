// Package ws streams live estimate and checkout activity over WebSocket.
// A client on /ws receives every event; /ws?session=ID narrows the stream
// to a single estimate session.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventType names an activity feed entry.
type EventType string

const (
	EstimateCreated EventType = "estimate_created"
	CheckoutPaid    EventType = "checkout_paid"
	PackExported    EventType = "pack_exported"
)

// Event is one entry of the activity feed.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const (
	backlogSize = 20
	sendBuffer  = 32
	pingEvery   = 30 * time.Second
	pongWait    = 60 * time.Second
	writeWait   = 10 * time.Second
)

// frame is an encoded event with its feed position.
type frame struct {
	seq     uint64
	session string
	payload []byte
}

type subscriber struct {
	conn    *websocket.Conn
	session string // empty follows every session
	seen    uint64 // frames up to this seq were replayed on join
	send    chan []byte
}

func (s *subscriber) wants(f frame) bool {
	return f.seq > s.seen && (s.session == "" || s.session == f.session)
}

// Hub fans published events out to subscribers. Run owns the subscriber
// set; Publish only appends to the backlog and queues the frame.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	seq     uint64
	backlog []frame

	frames  chan frame
	join    chan *subscriber
	leave   chan *subscriber
	stopped chan struct{}
	count   atomic.Int64
}

// NewHub creates a Hub. Upgrades use gorilla's same-origin check.
func NewHub() *Hub {
	return &Hub{
		frames:  make(chan frame, 256),
		join:    make(chan *subscriber, 8),
		leave:   make(chan *subscriber, 8),
		stopped: make(chan struct{}),
	}
}

// Run delivers frames until ctx ends, then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	subs := make(map[*subscriber]struct{})
	drop := func(s *subscriber) {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			close(s.send)
			h.count.Add(-1)
		}
	}
	defer func() {
		for s := range subs {
			drop(s)
		}
		close(h.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.join:
			subs[s] = struct{}{}
			h.count.Add(1)
			h.replay(s)
		case s := <-h.leave:
			drop(s)
		case f := <-h.frames:
			for s := range subs {
				if !s.wants(f) {
					continue
				}
				select {
				case s.send <- f.payload:
				default:
					log.Printf("ws: dropping slow subscriber (session=%q)", s.session)
					drop(s)
				}
			}
		}
	}
}

// replay queues the backlog entries s follows and marks them seen, so the
// same frames arriving live are not sent twice.
func (h *Hub) replay(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.backlog {
		if s.wants(f) {
			s.send <- f.payload
		}
	}
	s.seen = h.seq
}

// Publish records an event about one session and queues it for delivery.
// It never blocks; when the queue is full the event is only kept in the
// backlog.
func (h *Hub) Publish(typ EventType, sessionID string, data interface{}) {
	b, err := json.Marshal(Event{Type: typ, SessionID: sessionID, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		log.Printf("ws.Publish: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	f := frame{seq: h.seq, session: sessionID, payload: b}
	h.backlog = append(h.backlog, f)
	if len(h.backlog) > backlogSize {
		h.backlog = h.backlog[len(h.backlog)-backlogSize:]
	}
	select {
	case h.frames <- f:
	default:
	}
}

// ServeWS handles GET /ws. The optional session query parameter must be a
// session id.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	if session != "" {
		if _, err := uuid.Parse(session); err != nil {
			http.Error(w, "invalid session", http.StatusBadRequest)
			return
		}
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws.ServeWS: upgrade: %v", err)
		return
	}
	s := &subscriber{conn: conn, session: session, send: make(chan []byte, backlogSize+sendBuffer)}
	select {
	case h.join <- s:
	case <-h.stopped:
		conn.Close()
		return
	}
	go h.pump(s)
}

// pump writes queued frames and pings. A reader goroutine consumes control
// frames and reports when the peer goes away.
func (h *Hub) pump(s *subscriber) {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		s.conn.SetReadLimit(512)
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		select {
		case h.leave <- s:
		case <-h.stopped:
		}
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
