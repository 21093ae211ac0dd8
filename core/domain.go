package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidOwner = errors.New("core: invalid owner reference")
)

// OwnerRef identifies the user/org pair a credential belongs to. The value is
// passed through the authorization flow unchanged and becomes part of every
// store key, so it must remain stable across requests.
type OwnerRef struct {
	UserID string
	OrgID  string
}

func (o OwnerRef) Validate() error {
	if strings.TrimSpace(o.UserID) == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidOwner)
	}
	return nil
}

// Key returns the canonical store/flight key fragment for this owner.
func (o OwnerRef) Key() string {
	user := strings.TrimSpace(o.UserID)
	org := strings.TrimSpace(o.OrgID)
	if org == "" {
		return user
	}
	return user + ":" + org
}

// AuthState is one in-flight authorization attempt. It exists only between
// Connect and CompleteCallback and is consumed exactly once.
type AuthState struct {
	State           string
	ProviderID      string
	Owner           OwnerRef
	RedirectURI     string
	RequestedScopes []string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

func (s AuthState) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(now.UTC())
}

// TokenRecord is the provider credential for one owner/provider pair. It is
// created at code exchange, rewritten in place by refresh, and deleted on
// revocation or provider-reported invalidation.
type TokenRecord struct {
	ID           string    `json:"id"`
	ProviderID   string    `json:"provider_id"`
	Owner        OwnerRef  `json:"owner"`
	TokenType    string    `json:"token_type"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Refreshable reports whether the record can be renewed without sending the
// owner back through authorization.
func (r TokenRecord) Refreshable() bool {
	return strings.TrimSpace(r.RefreshToken) != ""
}

func (r TokenRecord) Expired(now time.Time) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return !r.ExpiresAt.After(now.UTC())
}

// ExpiresWithin reports whether the record expires inside the given window.
// Records with no expiry never report true.
func (r TokenRecord) ExpiresWithin(now time.Time, window time.Duration) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	if window < 0 {
		window = 0
	}
	return !r.ExpiresAt.After(now.UTC().Add(window))
}

// RawRecord is a provider-native record as returned by the provider data API,
// prior to normalization.
type RawRecord = map[string]any

// IntegrationItem is the canonical provider-agnostic representation of one
// fetched record. Metadata keys are provider-defined and optional per item.
type IntegrationItem struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Email    string            `json:"email,omitempty"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata"`
}

func normalizeScopes(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		values = append(values, normalized)
	}
	sort.Strings(values)
	return values
}
