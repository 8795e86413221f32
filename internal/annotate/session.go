package annotate

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"podaudit/internal/sample"
)

// Session is one reviewer's working state: the sampled work list and, once
// saved, the annotation record set. Records are overwritten wholesale on each
// save; there is no append.
type Session struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Sampled   *sample.Table
	Records   []Record
}

// Store holds live sessions in memory, keyed by session id. Each HTTP session
// sees only its own entry, which is what keeps concurrent reviewers from
// trampling each other's caches.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore creates an empty store. Sessions idle for longer than ttl are
// removed by Sweep; ttl <= 0 disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a new empty session and returns it.
func (s *Store) Create() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	sess := &Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns the live session, or false if it does not exist (or has been
// swept). Sessions are single-writer by contract, so handing out the pointer
// is fine.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// SaveSample stores the sampled work list for the session.
func (s *Store) SaveSample(id string, tbl *sample.Table) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Sampled = tbl
	sess.UpdatedAt = s.now()
	return true
}

// SaveRecords replaces the session's annotation set wholesale.
func (s *Store) SaveRecords(id string, records []Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.Records = records
	sess.UpdatedAt = s.now()
	return true
}

// Delete destroys a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Sweep removes sessions idle longer than the store TTL and returns how many
// were removed.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
