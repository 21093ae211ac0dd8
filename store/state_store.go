package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const statePrefix = "state:"

// StateStore persists authorization attempts as JSON under a TTL-bound key
// space. Consume is backed by the KV's atomic GetDel, which is what makes a
// replayed callback deterministically fail.
type StateStore struct {
	kv  KV
	ttl time.Duration
}

func NewStateStore(kv KV, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = core.DefaultStateTTL
	}
	return &StateStore{kv: kv, ttl: ttl}
}

func (s *StateStore) Save(ctx context.Context, record core.AuthState) error {
	if s == nil || s.kv == nil {
		return fmt.Errorf("store: state store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("store: state token is required")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	ttl := s.ttl
	if !record.ExpiresAt.IsZero() {
		if remaining := record.ExpiresAt.Sub(now); remaining > 0 {
			ttl = remaining
		}
	} else {
		record.ExpiresAt = record.CreatedAt.Add(ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: encode auth state: %w", err)
	}
	return s.kv.Set(ctx, statePrefix+state, payload, ttl)
}

func (s *StateStore) Consume(ctx context.Context, state string) (core.AuthState, error) {
	if s == nil || s.kv == nil {
		return core.AuthState{}, fmt.Errorf("store: state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.AuthState{}, fmt.Errorf("%w: empty state token", core.ErrInvalidState)
	}

	payload, err := s.kv.GetDel(ctx, statePrefix+state)
	if errors.Is(err, ErrNotFound) {
		return core.AuthState{}, fmt.Errorf("%w: state not found", core.ErrInvalidState)
	}
	if err != nil {
		return core.AuthState{}, err
	}

	var record core.AuthState
	if err := json.Unmarshal(payload, &record); err != nil {
		return core.AuthState{}, fmt.Errorf("store: decode auth state: %w", err)
	}
	if record.Expired(time.Now().UTC()) {
		return core.AuthState{}, fmt.Errorf("%w: state expired", core.ErrInvalidState)
	}
	return record, nil
}

var _ core.StateStore = (*StateStore)(nil)
