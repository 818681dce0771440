// Package sessionstore keeps bounded conversation history per session in memory.
package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
)

type entry struct {
	mu          sync.Mutex
	turns       []entities.Turn
	lastTouched time.Time
	evicted     bool
}

// MemoryStore implements ports.SessionStore.
// The map lock only guards membership; each session has its own lock so
// appends to different sessions never wait on each other.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	window      int
	idleTimeout time.Duration
	onEvict     func(sessionID string)
	now         func() time.Time
}

// NewMemoryStore creates a store that keeps the last window interactions per session.
func NewMemoryStore(window int, idleTimeout time.Duration) *MemoryStore {
	if window <= 0 {
		window = 5
	}
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &MemoryStore{
		sessions:    make(map[string]*entry),
		window:      window,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// SetEvictHook registers a callback run after idle sessions are dropped.
func (s *MemoryStore) SetEvictHook(hook func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = hook
}

// Get returns a copy of the session's turns, oldest first.
func (s *MemoryStore) Get(sessionID string) []entities.Turn {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return []entities.Turn{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return []entities.Turn{}
	}
	e.lastTouched = s.now()
	out := make([]entities.Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// Exists reports whether the session has a live record.
func (s *MemoryStore) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// Seed installs turns for an unknown session, trimmed to the window.
func (s *MemoryStore) Seed(sessionID string, turns []entities.Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; ok {
		return false
	}
	s.sessions[sessionID] = &entry{
		turns:       s.trim(append([]entities.Turn(nil), turns...)),
		lastTouched: s.now(),
	}
	return true
}

// Append adds the pair under the session lock and drops the oldest turns
// beyond the window.
func (s *MemoryStore) Append(sessionID string, user, assistant entities.Turn) {
	for {
		e := s.getOrCreate(sessionID)
		e.mu.Lock()
		if e.evicted {
			// lost a race with the janitor; the next lookup creates a fresh entry
			e.mu.Unlock()
			continue
		}
		e.turns = s.trim(append(e.turns, user, assistant))
		e.lastTouched = s.now()
		e.mu.Unlock()
		return
	}
}

// Clear empties the session. The id stays usable.
func (s *MemoryStore) Clear(sessionID string) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.turns = nil
	e.lastTouched = s.now()
	e.mu.Unlock()
}

// Count returns the number of sessions held.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// StartJanitor drops idle sessions every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireIdle()
			}
		}
	}()
}

func (s *MemoryStore) expireIdle() {
	now := s.now()
	var expired []string

	s.mu.Lock()
	for id, e := range s.sessions {
		// skip sessions with a request in flight
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.lastTouched) >= s.idleTimeout {
			e.evicted = true
			delete(s.sessions, id)
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}
	hook := s.onEvict
	s.mu.Unlock()

	if hook != nil {
		for _, id := range expired {
			hook(id)
		}
	}
}

func (s *MemoryStore) getOrCreate(sessionID string) *entry {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		return e
	}
	e = &entry{lastTouched: s.now()}
	s.sessions[sessionID] = e
	return e
}

// trim keeps the last 2*window turns. The result never aliases a dropped prefix.
func (s *MemoryStore) trim(turns []entities.Turn) []entities.Turn {
	limit := 2 * s.window
	if len(turns) <= limit {
		return turns
	}
	out := make([]entities.Turn, limit)
	copy(out, turns[len(turns)-limit:])
	return out
}
