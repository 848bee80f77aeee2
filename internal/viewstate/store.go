package viewstate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNoSession is returned by Get for unknown session ids.
var ErrNoSession = errors.New("viewstate: no such session")

// Store keeps one State per viewer session. Update serialises concurrent
// transitions of the same session.
type Store interface {
	// Get returns the state of id, or ErrNoSession.
	Get(ctx context.Context, id string) (State, error)
	// Update applies fn to the state of id, creating it with init first if
	// the session is unknown, and returns the stored result.
	Update(ctx context.Context, id string, init func() State, fn func(State) State) (State, error)
	// Delete forgets id.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a process-local Store. Sessions idle for longer than its
// TTL are dropped.
type MemoryStore struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, State]
}

// NewMemoryStore returns an empty MemoryStore. A session expires ttl after
// its last update; 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{sessions: expirable.NewLRU[string, State](0, nil, ttl)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (State, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return State{}, ErrNoSession
	}
	return s, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, init func() State, fn func(State) State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions.Get(id)
	if !ok {
		s = init()
	}
	s = fn(s)
	m.sessions.Add(id, s)
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.sessions.Remove(id)
	return nil
}
