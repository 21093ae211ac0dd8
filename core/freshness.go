package core

import (
	"strings"
	"time"
)

// DefaultRefreshLeadWindow is the safety margin before expiry inside which a
// credential is refreshed ahead of use.
const DefaultRefreshLeadWindow = 2 * time.Minute

// TokenState captures the lifecycle flags derived from a stored record.
type TokenState struct {
	ExpiresAt       time.Time
	HasAccessToken  bool
	HasRefreshToken bool
	IsExpired       bool
	IsExpiringSoon  bool
}

// ResolveTokenState evaluates expiry and refreshability for a record.
func ResolveTokenState(now time.Time, record TokenRecord, leadWindow time.Duration) TokenState {
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}
	if leadWindow <= 0 {
		leadWindow = DefaultRefreshLeadWindow
	}

	state := TokenState{
		ExpiresAt:       record.ExpiresAt,
		HasAccessToken:  strings.TrimSpace(record.AccessToken) != "",
		HasRefreshToken: record.Refreshable(),
	}
	if record.ExpiresAt.IsZero() {
		return state
	}
	if record.Expired(now) {
		state.IsExpired = true
		return state
	}
	state.IsExpiringSoon = record.ExpiresWithin(now, leadWindow)
	return state
}

// ShouldRefresh reports whether a refresh must happen before using the record.
func ShouldRefresh(state TokenState) bool {
	if !state.HasAccessToken {
		return true
	}
	return state.IsExpired || state.IsExpiringSoon
}
