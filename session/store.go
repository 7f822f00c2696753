package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Store manages the sessions of one front end. Named sessions are shared and
// reference counted; private sessions belong to a single connection.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session // by ID
	byName   map[string]*Session
	nextID   atomic.Uint64
	opts     []Option
	logger   zerolog.Logger
}

// NewStore creates a store whose sessions are built with opts.
func NewStore(logger zerolog.Logger, opts ...Option) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		byName:   make(map[string]*Session),
		opts:     opts,
		logger:   logger.With().Str("component", "session").Logger(),
	}
}

// Open returns the session called name, creating it on first use. An empty
// name always creates a new private session. Every Open must be paired with
// a Close.
func (st *Store) Open(name string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if name != "" {
		if s, ok := st.byName[name]; ok {
			s.refs++
			return s
		}
	}
	id := fmt.Sprintf("s-%d", st.nextID.Add(1))
	s := New(id, name, st.opts...)
	s.refs = 1
	st.sessions[id] = s
	if name != "" {
		st.byName[name] = s
	}
	st.logger.Debug().Str("session", id).Str("name", name).Msg("session opened")
	return s
}

// Close drops one reference to s. The last reference releases every object
// the session still holds.
func (st *Store) Close(s *Session) {
	st.mu.Lock()
	s.refs--
	if s.refs > 0 {
		st.mu.Unlock()
		return
	}
	delete(st.sessions, s.ID)
	if s.Name != "" && st.byName[s.Name] == s {
		delete(st.byName, s.Name)
	}
	st.mu.Unlock()

	s.Lock()
	n := s.Clear()
	s.Unlock()
	st.logger.Debug().Str("session", s.ID).Int("released", n).Msg("session closed")
}

// Get retrieves a session by ID.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Len returns the number of open sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
