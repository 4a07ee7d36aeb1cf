package session

import (
	"sync"
	"time"
)

// Language is the closed set of interface languages a session can be
// created with. It is fixed at creation from the caller's locale.
type Language string

const (
	English Language = "English"
	Korean  Language = "Korean"
)

// LanguageFromCode maps the frontend locale code to a Language.
func LanguageFromCode(code string) Language {
	if code == "ko" {
		return Korean
	}
	return English
}

// Locale returns the recognition locale the transcription service expects.
func (l Language) Locale() string {
	if l == Korean {
		return "ko-KR"
	}
	return "en-US"
}

// Turn is one entry of the dialogue context: who said what, in order.
type Turn struct {
	Sender    string    `json:"sender"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session captures one live avatar conversation. The id, access token and
// stream URL are issued by the remote avatar service and opaque here.
type Session struct {
	ID          string
	AccessToken string
	StreamURL   string
	Language    Language
	CreatedAt   time.Time

	// turnMu serializes whole turns on this session so concurrent audio
	// uploads cannot interleave the dialogue context.
	turnMu sync.Mutex

	mu              sync.Mutex
	lastInteraction time.Time
	active          bool
	history         []Turn
}

// AcquireTurn blocks until this session's current turn (if any) finishes.
func (s *Session) AcquireTurn() {
	s.turnMu.Lock()
}

// ReleaseTurn ends the current turn.
func (s *Session) ReleaseTurn() {
	s.turnMu.Unlock()
}

// Active reports whether the session still admits turns.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// LastInteraction returns the timestamp of the last successful turn.
func (s *Session) LastInteraction() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastInteraction
}

// History returns a copy of the ordered dialogue context.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]Turn, len(s.history))
	copy(copied, s.history)
	return copied
}

// AppendExchange extends the dialogue context with one user/assistant pair.
// The context only ever grows; it is never rewritten.
func (s *Session) AppendExchange(userText, assistantText string) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		Turn{Sender: "user", Content: userText, CreatedAt: now},
		Turn{Sender: "assistant", Content: assistantText, CreatedAt: now},
	)
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	s.lastInteraction = at
	s.mu.Unlock()
}

// deactivate flips active to false. The transition is one-way; a session is
// never reactivated.
func (s *Session) deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}
