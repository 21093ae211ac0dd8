package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type BeginAuthRequest struct {
	ProviderID      string
	Owner           OwnerRef
	RedirectURI     string
	State           string
	RequestedScopes []string
}

type BeginAuthResponse struct {
	URL             string
	State           string
	RequestedScopes []string
}

type ExchangeRequest struct {
	ProviderID  string
	Owner       OwnerRef
	Code        string
	RedirectURI string
	Scopes      []string
}

// Provider is the per-service adapter contract. Each integrated provider owns
// its endpoint catalog and raw schema knowledge behind this shared surface so
// the orchestrator and fetcher stay provider agnostic.
type Provider interface {
	ID() string
	AuthKind() string
	DefaultScopes() []string

	// BeginAuth builds the provider authorization URL embedding client id,
	// redirect URI, requested scopes, and the caller-issued state token.
	BeginAuth(ctx context.Context, req BeginAuthRequest) (BeginAuthResponse, error)

	// ExchangeCode performs the provider code-for-token request. Exchange
	// failures wrap ErrExchangeFailed and are never retried: authorization
	// codes are single use.
	ExchangeCode(ctx context.Context, req ExchangeRequest) (TokenRecord, error)

	// Refresh renews the record. It fails ErrNoRefreshToken immediately when
	// the record carries no refresh token, and ErrRefreshFailed when the
	// provider rejects the stored refresh token.
	Refresh(ctx context.Context, record TokenRecord) (TokenRecord, error)

	// FetchItems requests provider data with the record's access token.
	// Failures are classified as ErrUnauthorized, ErrRateLimited, or
	// ErrTransient per the taxonomy in errors.go.
	FetchItems(ctx context.Context, record TokenRecord) ([]RawRecord, error)

	// Normalize maps one provider-native record to the canonical item shape.
	// It is pure: the same raw input always yields the same item.
	Normalize(raw RawRecord) IntegrationItem
}

type Registry interface {
	Register(provider Provider) error
	Get(providerID string) (Provider, bool)
	List() []Provider
}

// StateStore persists in-flight authorization attempts. Consume is atomic:
// two racing callbacks presenting the same state observe exactly one value.
type StateStore interface {
	Save(ctx context.Context, record AuthState) error
	Consume(ctx context.Context, state string) (AuthState, error)
}

// CredentialStore persists token records keyed by provider and owner. Records
// carry their own logical expiry; the store applies no TTL of its own so a
// refreshable credential is never lost silently.
type CredentialStore interface {
	Save(ctx context.Context, record TokenRecord) error
	Get(ctx context.Context, providerID string, owner OwnerRef) (TokenRecord, error)
	Delete(ctx context.Context, providerID string, owner OwnerRef) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
