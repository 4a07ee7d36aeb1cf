package events

import (
	"sync"
	"time"
)

// Event is one item pushed to session subscribers.
type Event struct {
	Type      string `json:"type"` // "turn" or "session"
	SessionID string `json:"sessionId"`
	UserInput string `json:"userInput,omitempty"`
	Response  string `json:"response,omitempty"`
	Status    string `json:"status,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Hub fans turn events out to per-session websocket subscribers. Slow or
// gone subscribers are dropped rather than blocking the turn pipeline.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for one session. The returned cancel
// function is safe to call more than once.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, 8)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// PublishTurn pushes a completed turn to the session's subscribers.
func (h *Hub) PublishTurn(sessionID, userInput, response string) {
	h.publish(sessionID, Event{
		Type:      "turn",
		SessionID: sessionID,
		UserInput: userInput,
		Response:  response,
		Timestamp: time.Now().UnixMilli(),
	})
}

// PublishSessionClosed tells subscribers the session is gone.
func (h *Hub) PublishSessionClosed(sessionID string) {
	h.publish(sessionID, Event{
		Type:      "session",
		SessionID: sessionID,
		Status:    "closed",
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Hub) publish(sessionID string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- event:
		default: // subscriber too slow, drop the event
		}
	}
}
