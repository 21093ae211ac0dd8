package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const credentialPrefix = "cred:"

// CredentialStore persists token records as JSON keyed by provider and
// owner. Records carry their own expiresAt, so no store TTL is applied: a
// refreshable credential must never disappear out from under its owner.
type CredentialStore struct {
	kv KV
}

func NewCredentialStore(kv KV) *CredentialStore {
	return &CredentialStore{kv: kv}
}

func credentialKey(providerID string, owner core.OwnerRef) string {
	return credentialPrefix + strings.TrimSpace(providerID) + ":" + owner.Key()
}

func (s *CredentialStore) Save(ctx context.Context, record core.TokenRecord) error {
	if s == nil || s.kv == nil {
		return fmt.Errorf("store: credential store is not configured")
	}
	if strings.TrimSpace(record.ProviderID) == "" {
		return fmt.Errorf("store: provider id is required")
	}
	if err := record.Owner.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: encode token record: %w", err)
	}
	return s.kv.Set(ctx, credentialKey(record.ProviderID, record.Owner), payload, 0)
}

func (s *CredentialStore) Get(ctx context.Context, providerID string, owner core.OwnerRef) (core.TokenRecord, error) {
	if s == nil || s.kv == nil {
		return core.TokenRecord{}, fmt.Errorf("store: credential store is not configured")
	}

	payload, err := s.kv.Get(ctx, credentialKey(providerID, owner))
	if errors.Is(err, ErrNotFound) {
		return core.TokenRecord{}, fmt.Errorf("%w: provider %q", core.ErrNotAuthorized, strings.TrimSpace(providerID))
	}
	if err != nil {
		return core.TokenRecord{}, err
	}

	var record core.TokenRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return core.TokenRecord{}, fmt.Errorf("store: decode token record: %w", err)
	}
	return record, nil
}

func (s *CredentialStore) Delete(ctx context.Context, providerID string, owner core.OwnerRef) error {
	if s == nil || s.kv == nil {
		return fmt.Errorf("store: credential store is not configured")
	}
	return s.kv.Delete(ctx, credentialKey(providerID, owner))
}

var _ core.CredentialStore = (*CredentialStore)(nil)
