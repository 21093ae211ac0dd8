package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultStateTTL bounds how long a user may take to complete the provider
// login before the attempt is rejected.
const DefaultStateTTL = 10 * time.Minute

// MemoryStateStore is the in-process StateStore used in tests and
// single-process development. Production deployments use the Redis-backed
// store from the store package.
type MemoryStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]AuthState
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &MemoryStateStore{
		ttl:     ttl,
		entries: map[string]AuthState{},
	}
}

func (s *MemoryStateStore) Save(_ context.Context, record AuthState) error {
	if s == nil {
		return fmt.Errorf("core: state store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("core: state token is required")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.entries[state] = record
	s.mu.Unlock()

	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (AuthState, error) {
	if s == nil {
		return AuthState{}, fmt.Errorf("core: state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return AuthState{}, fmt.Errorf("%w: empty state token", ErrInvalidState)
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok {
		return AuthState{}, fmt.Errorf("%w: state not found", ErrInvalidState)
	}
	if record.Expired(time.Now().UTC()) {
		return AuthState{}, fmt.Errorf("%w: state expired", ErrInvalidState)
	}
	return record, nil
}

func (s *MemoryStateStore) pruneLocked(now time.Time) {
	for key, record := range s.entries {
		if record.Expired(now) {
			delete(s.entries, key)
		}
	}
}

// GenerateStateToken returns an unguessable one-time state token.
func GenerateStateToken() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

var _ StateStore = (*MemoryStateStore)(nil)
