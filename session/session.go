// Package session holds per-conversation state for the orchestrator:
// persona, target language, bounded chat history and the language mismatch
// counter. State is memory-resident and lost on restart; callers are
// expected to tolerate that.
package session

import (
	"strings"
	"sync"

	"github.com/essket/pixorbi-bot/llm"
)

// Session is the state of one end-user conversation.
type Session struct {
	ID        string
	Character string
	Language  string
	Started   bool

	// History keeps the last N user/assistant pairs in insertion order;
	// it is passed verbatim as generation context.
	History []llm.Message

	// MismatchStreak counts consecutive inbound messages whose detected
	// language differs from Language.
	MismatchStreak int

	// Epoch is bumped on every reset so an in-flight turn can detect that
	// its session was cleared under it and discard its writes.
	Epoch uint64
}

// Clone returns a deep copy safe to use outside the store's lock.
func (s Session) Clone() Session {
	s.History = append([]llm.Message(nil), s.History...)
	return s
}

// Store is the session state boundary the orchestrator is given. A single
// sessionID must not be read and mutated by overlapping turns; the
// orchestrator serializes turns per session on top of this.
type Store interface {
	// Get returns the session for id, creating a default one if absent.
	Get(id string) Session
	// Put replaces the stored session for id.
	Put(id string, s Session)
	// AppendHistory appends one entry and enforces the pair bound.
	AppendHistory(id, role, content string)
	// Reset clears the session back to defaults, keeps the id and bumps
	// the epoch.
	Reset(id string)
}

// MemoryStore is the process-lifetime Store. maxPairs bounds history to
// 2*maxPairs entries, evicting the oldest first.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	maxPairs int
}

const DefaultMaxPairs = 12

func NewMemoryStore(maxPairs int) *MemoryStore {
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}
	return &MemoryStore{
		sessions: make(map[string]*Session),
		maxPairs: maxPairs,
	}
}

func (m *MemoryStore) Get(id string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked(id).Clone()
}

func (m *MemoryStore) Put(id string, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = id
	s.History = m.bound(append([]llm.Message(nil), s.History...))
	cur := *m.locked(id)
	s.Epoch = cur.Epoch
	*m.sessions[id] = s
}

func (m *MemoryStore) AppendHistory(id, role, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.locked(id)
	s.History = m.bound(append(s.History, llm.Message{Role: role, Content: content}))
}

func (m *MemoryStore) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.locked(id)
	*s = Session{ID: id, Epoch: s.Epoch + 1}
}

func (m *MemoryStore) locked(id string) *Session {
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := &Session{ID: id}
	m.sessions[id] = s
	return s
}

func (m *MemoryStore) bound(h []llm.Message) []llm.Message {
	max := 2 * m.maxPairs
	if len(h) <= max {
		return h
	}
	return append(h[:0:0], h[len(h)-max:]...)
}
