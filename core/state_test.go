package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStateStoreConsumeOnce(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)
	ctx := context.Background()

	record := AuthState{
		State:      "state-token",
		ProviderID: "hubspot",
		Owner:      OwnerRef{UserID: "user-1", OrgID: "org-1"},
	}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}

	consumed, err := store.Consume(ctx, "state-token")
	if err != nil {
		t.Fatalf("expected consume to succeed, got %v", err)
	}
	if consumed.ProviderID != "hubspot" {
		t.Fatalf("expected provider hubspot, got %q", consumed.ProviderID)
	}
	if consumed.Owner.Key() != "user-1:org-1" {
		t.Fatalf("expected owner key user-1:org-1, got %q", consumed.Owner.Key())
	}

	if _, err := store.Consume(ctx, "state-token"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on replay, got %v", err)
	}
}

func TestMemoryStateStoreUnknownToken(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)

	if _, err := store.Consume(context.Background(), "missing"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := store.Consume(context.Background(), "  "); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for empty token, got %v", err)
	}
}

func TestMemoryStateStoreExpiry(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)
	ctx := context.Background()

	expired := AuthState{
		State:      "stale",
		ProviderID: "airtable",
		Owner:      OwnerRef{UserID: "user-1"},
		CreatedAt:  time.Now().UTC().Add(-2 * time.Minute),
		ExpiresAt:  time.Now().UTC().Add(-time.Minute),
	}
	if err := store.Save(ctx, expired); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}

	if _, err := store.Consume(ctx, "stale"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for expired state, got %v", err)
	}
}

func TestMemoryStateStoreRequiresToken(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)

	if err := store.Save(context.Background(), AuthState{}); err == nil {
		t.Fatal("expected save without state token to fail")
	}
}

func TestGenerateStateToken(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 64; i++ {
		token, err := GenerateStateToken()
		if err != nil {
			t.Fatalf("expected token generation to succeed, got %v", err)
		}
		if len(token) < 24 {
			t.Fatalf("expected token length >= 24, got %d", len(token))
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("expected unique tokens, got duplicate %q", token)
		}
		seen[token] = struct{}{}
	}
}
