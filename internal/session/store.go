package session

import (
	"context"
	"sync"
)

// Persisted keys. Both are written and removed together.
const (
	KeyUser          = "user"
	KeyAuthenticated = "isAuthenticated"

	authenticatedValue = "true"
)

// Store persists the serialized identity across restarts.
type Store interface {
	// Put stores the serialized identity and the authenticated flag as one unit.
	Put(ctx context.Context, user []byte) error
	// Get returns the serialized identity. ok is false unless both keys are
	// present and the flag reads "true".
	Get(ctx context.Context) (user []byte, ok bool, err error)
	// Clear removes both keys as one unit.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the persisted pair in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, user []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[KeyUser] = string(user)
	s.values[KeyAuthenticated] = authenticatedValue
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, hasUser := s.values[KeyUser]
	if !hasUser || user == "" || s.values[KeyAuthenticated] != authenticatedValue {
		return nil, false, nil
	}
	return []byte(user), true, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, KeyUser)
	delete(s.values, KeyAuthenticated)
	return nil
}

// Raw exposes a stored value for inspection.
func (s *MemoryStore) Raw(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// SetRaw writes a single key, bypassing the pairing. Used to seed damaged state.
func (s *MemoryStore) SetRaw(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

var _ Store = (*MemoryStore)(nil)
