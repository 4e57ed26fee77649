// Package eventstream is a supplementary websocket push feed for
// EdgeCoder's operational events (peer joins, task completions, credit
// settlements, blacklist events). Grounded on the teacher's
// kernel/core/mesh/event_stream.go topic-subscription shape (wildcard
// topic matching, per-subscriber topic filters) generalized from its
// SharedArrayBuffer ring-queue transport to a plain websocket fan-out,
// using github.com/gorilla/websocket — the one piece of the teacher's
// WebRTC/WebSocket transport stack with a real home in this repo (see
// DESIGN.md's "Deleted teacher modules" section).
package eventstream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one pushed message. Payload is marshaled to JSON as-is.
type Event struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	IssuedAtMs int64  `json:"issued_at_ms"`
	Payload    any    `json:"payload"`
}

const (
	writeTimeout  = 10 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = (pongWait * 9) / 10
	sendBufferLen = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscriber struct {
	id     string
	topics map[string]struct{}
	send   chan []byte
	conn   *websocket.Conn
}

// Hub fans events out to websocket subscribers filtered by topic.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	logger      *slog.Logger
	nextID      uint64
}

// NewHub constructs an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{subscribers: make(map[string]*subscriber), logger: logger}
}

// ServeHTTP upgrades the request to a websocket and registers a
// subscriber. Topics are read from the "topics" query parameter as a
// comma-separated list; "*" and "prefix.*" wildcards are supported
// (same matching rules as the teacher's shouldEmitTopic). No topics
// means "all topics".
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("eventstream upgrade failed", "error", err)
		return
	}

	topics := parseTopics(r.URL.Query().Get("topics"))
	sub := h.register(conn, topics)
	defer h.unregister(sub)

	go sub.writePump()
	sub.readPump()
}

func parseTopics(raw string) map[string]struct{} {
	topics := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			topics[t] = struct{}{}
		}
	}
	return topics
}

func (h *Hub) register(conn *websocket.Conn, topics map[string]struct{}) *subscriber {
	h.mu.Lock()
	h.nextID++
	sub := &subscriber{
		id:     fmt.Sprintf("sub-%d", h.nextID),
		topics: topics,
		send:   make(chan []byte, sendBufferLen),
		conn:   conn,
	}
	h.subscribers[sub.id] = sub
	h.mu.Unlock()
	return sub
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub.id]; ok {
		delete(h.subscribers, sub.id)
		close(sub.send)
	}
	h.mu.Unlock()
	sub.conn.Close()
}

// Publish marshals an event for topic and fans it out to every
// subscriber whose topic filter matches, dropping (not blocking on) any
// subscriber whose send buffer is full.
func (h *Hub) Publish(topic string, id string, payload any) error {
	data, err := json.Marshal(Event{ID: id, Topic: topic, IssuedAtMs: time.Now().UnixMilli(), Payload: payload})
	if err != nil {
		return fmt.Errorf("eventstream: marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		if !topicMatches(sub.topics, topic) {
			continue
		}
		select {
		case sub.send <- data:
		default:
			h.logger.Warn("eventstream: dropping event for slow subscriber", "subscriber", sub.id, "topic", topic)
		}
	}
	return nil
}

// SubscriberCount reports how many active subscribers the hub has.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *subscriber) readPump() {
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// topicMatches mirrors the teacher's shouldEmitTopic/topicMatches
// wildcard rules: no filter or a bare "*" matches everything, a
// "prefix.*" filter matches any topic starting with "prefix.".
func topicMatches(topics map[string]struct{}, topic string) bool {
	if len(topics) == 0 {
		return true
	}
	if _, ok := topics["*"]; ok {
		return true
	}
	if _, ok := topics[topic]; ok {
		return true
	}
	for t := range topics {
		if strings.HasSuffix(t, ".*") {
			prefix := strings.TrimSuffix(t, ".*")
			if strings.HasPrefix(topic, prefix+".") {
				return true
			}
		}
	}
	return false
}
