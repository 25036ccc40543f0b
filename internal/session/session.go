// Package session implements the Session/History store (spec §4.10): an
// append-only chat log with bounded retention and an optional compression
// checkpoint, single-writer per session per spec §5.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexrun/cortex/pkg/taskmodels"
)

// MaxHistorySize is the default retention cap: once exceeded, the oldest
// entries are dropped on append.
const MaxHistorySize = 100

// MaxAgeDays is the default age limit: older entries are pruned by
// LoadHistory, not on every append and not by Load.
const MaxAgeDays = 30

// Store owns one Session's append-only history. Writers must come through
// a single Store instance; it serializes every mutation behind a mutex so
// callers never need to coordinate externally.
type Store struct {
	mu         sync.Mutex
	session    taskmodels.Session
	maxHistory int
	maxAge     time.Duration
}

// New starts a fresh session with a generated ID.
func New() *Store {
	return NewWithRetention(MaxHistorySize, MaxAgeDays*24*time.Hour)
}

// NewWithRetention starts a fresh session with custom retention limits.
func NewWithRetention(maxHistory int, maxAge time.Duration) *Store {
	if maxHistory <= 0 {
		maxHistory = MaxHistorySize
	}
	if maxAge <= 0 {
		maxAge = MaxAgeDays * 24 * time.Hour
	}
	return &Store{
		session: taskmodels.Session{
			ID:        uuid.NewString(),
			StartTime: time.Now(),
		},
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// AppendMessage appends msg to the history, trimming the oldest entries
// once the store's history cap (MaxHistorySize by default) is exceeded.
// Ownership of msg transfers to the
// Session; callers must not mutate it afterwards.
func (s *Store) AppendMessage(msg taskmodels.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.session.History = append(s.session.History, msg)
	if len(s.session.History) > s.maxHistory {
		excess := len(s.session.History) - s.maxHistory
		s.session.History = s.session.History[excess:]
	}
	s.session.MessageCount = len(s.session.History)
}

// LoadHistory returns the current history, pruning entries older than the
// store's age limit (MaxAgeDays by default) first. The returned slice is a copy safe for the caller to
// retain.
func (s *Store) LoadHistory() []taskmodels.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.maxAge)
	kept := s.session.History[:0:0]
	for _, m := range s.session.History {
		if m.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, m)
	}
	s.session.History = kept
	s.session.MessageCount = len(kept)

	out := make([]taskmodels.ChatMessage, len(kept))
	copy(out, kept)
	return out
}

// Snapshot returns an immutable copy of the Session metadata plus history.
func (s *Store) Snapshot() taskmodels.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.session
	cp.History = append([]taskmodels.ChatMessage(nil), s.session.History...)
	return cp
}

// SetTokenCount records the engine's current token-count estimate, used to
// decide when compression is warranted.
func (s *Store) SetTokenCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.TokenCount = n
}

// TokenCount returns the last recorded token-count estimate.
func (s *Store) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.TokenCount
}

// CompressAndStartNewSession seals the current session (stamping EndTime,
// Compressed, Summary) and returns a fresh Store whose session carries
// ParentSessionID pointing back at the sealed one. Compression is
// engine-triggered (spec §9 open question (c)): only the Engine knows the
// next turn's projected size, so it alone decides when to call this.
func (s *Store) CompressAndStartNewSession(compressedHistory []taskmodels.ChatMessage, summary string) *Store {
	s.mu.Lock()
	now := time.Now()
	s.session.EndTime = &now
	s.session.Compressed = true
	s.session.Summary = summary
	parentID := s.session.ID
	s.mu.Unlock()

	next := NewWithRetention(s.maxHistory, s.maxAge)
	next.mu.Lock()
	next.session.ParentSessionID = parentID
	next.session.History = append([]taskmodels.ChatMessage(nil), compressedHistory...)
	next.session.MessageCount = len(next.session.History)
	next.mu.Unlock()
	return next
}

// RestoreFromSnapshot rebuilds a Store from a previously saved Session
// value, e.g. after a save-then-load round trip (spec §8).
func RestoreFromSnapshot(snapshot taskmodels.Session) *Store {
	return &Store{
		session:    snapshot,
		maxHistory: MaxHistorySize,
		maxAge:     MaxAgeDays * 24 * time.Hour,
	}
}
