package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Failure taxonomy. Every error leaving the service wraps exactly one of
// these sentinels so callers can branch with errors.Is.
var (
	// ErrInvalidState rejects a callback whose state token is missing,
	// already consumed, or expired. The caller must restart authorization.
	ErrInvalidState = errors.New("core: authorization state invalid")

	// ErrExchangeFailed reports a failed code-for-token exchange. Codes are
	// single use, so the exchange is never retried.
	ErrExchangeFailed = errors.New("core: code exchange failed")

	// ErrNoRefreshToken marks a credential whose expiry is terminal.
	ErrNoRefreshToken = errors.New("core: credential has no refresh token")

	// ErrRefreshFailed reports that the stored refresh token itself was
	// rejected by the provider.
	ErrRefreshFailed = errors.New("core: token refresh failed")

	// ErrUnauthorized reports an access token rejected at fetch time.
	ErrUnauthorized = errors.New("core: access token rejected")

	// ErrRateLimited reports a provider throttle response.
	ErrRateLimited = errors.New("core: provider rate limited")

	// ErrTransient reports a network or provider 5xx condition.
	ErrTransient = errors.New("core: transient provider error")

	// ErrNotAuthorized reports that no credential is on file.
	ErrNotAuthorized = errors.New("core: owner is not authorized")

	ErrProviderNotFound = errors.New("core: provider not registered")
)

const (
	IntegrationErrorBadInput        = "INTEGRATIONS_BAD_INPUT"
	IntegrationErrorProviderUnknown = "INTEGRATIONS_PROVIDER_NOT_FOUND"
	IntegrationErrorStateInvalid    = "INTEGRATIONS_STATE_INVALID"
	IntegrationErrorExchangeFailed  = "INTEGRATIONS_EXCHANGE_FAILED"
	IntegrationErrorNotAuthorized   = "INTEGRATIONS_NOT_AUTHORIZED"
	IntegrationErrorRefreshFailed   = "INTEGRATIONS_REFRESH_FAILED"
	IntegrationErrorRateLimited     = "INTEGRATIONS_RATE_LIMITED"
	IntegrationErrorUpstream        = "INTEGRATIONS_UPSTREAM_ERROR"
	IntegrationErrorInternal        = "INTEGRATIONS_INTERNAL_ERROR"
)

// RateLimitedError carries the provider's retry-after hint alongside the
// ErrRateLimited sentinel.
type RateLimitedError struct {
	ProviderID string
	RetryAfter time.Duration
}

func (e RateLimitedError) Error() string {
	return fmt.Sprintf("core: provider %q rate limited, retry after %s", e.ProviderID, e.RetryAfter)
}

func (RateLimitedError) Unwrap() error { return ErrRateLimited }

// RetryAfterHint extracts the provider retry-after hint from an error chain,
// falling back to the supplied default.
func RetryAfterHint(err error, fallback time.Duration) time.Duration {
	var limited RateLimitedError
	if errors.As(err, &limited) && limited.RetryAfter > 0 {
		return limited.RetryAfter
	}
	return fallback
}

func serviceErrorMapper(err error) *goerrors.Error {
	return mapServiceError(goerrors.New, err)
}

// mapServiceError builds the outgoing envelope through the supplied factory so
// hosts can swap in their own error construction.
func mapServiceError(factory ErrorFactory, err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrInvalidState):
		return newIntegrationError(factory, err, goerrors.CategoryAuth, IntegrationErrorStateInvalid)
	case errors.Is(err, ErrExchangeFailed):
		return newIntegrationError(factory, err, goerrors.CategoryAuth, IntegrationErrorExchangeFailed)
	case errors.Is(err, ErrNoRefreshToken), errors.Is(err, ErrRefreshFailed):
		return newIntegrationError(factory, err, goerrors.CategoryAuth, IntegrationErrorRefreshFailed)
	case errors.Is(err, ErrUnauthorized):
		return newIntegrationError(factory, err, goerrors.CategoryAuth, IntegrationErrorRefreshFailed)
	case errors.Is(err, ErrNotAuthorized):
		return newIntegrationError(factory, err, goerrors.CategoryNotFound, IntegrationErrorNotAuthorized)
	case errors.Is(err, ErrRateLimited):
		mapped := newIntegrationError(factory, err, goerrors.CategoryRateLimit, IntegrationErrorRateLimited)
		if hint := RetryAfterHint(err, 0); hint > 0 {
			mapped = mapped.WithMetadata(map[string]any{"retry_after_ms": hint.Milliseconds()})
		}
		return ensureErrorEnvelope(mapped)
	case errors.Is(err, ErrTransient):
		return newIntegrationError(factory, err, goerrors.CategoryExternal, IntegrationErrorUpstream)
	case errors.Is(err, ErrProviderNotFound):
		return newIntegrationError(factory, err, goerrors.CategoryNotFound, IntegrationErrorProviderUnknown)
	case errors.Is(err, ErrInvalidOwner):
		return newIntegrationError(factory, err, goerrors.CategoryBadInput, IntegrationErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newIntegrationError(factory, err, goerrors.CategoryBadInput, IntegrationErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

// newIntegrationError constructs the envelope through the factory and keeps
// the original error in the chain so errors.Is still sees the sentinel.
func newIntegrationError(factory ErrorFactory, err error, category goerrors.Category, textCode string) *goerrors.Error {
	if factory == nil {
		factory = goerrors.New
	}
	wrapped := factory(err.Error(), category).WithTextCode(textCode)
	wrapped.Source = err
	return ensureErrorEnvelope(wrapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = integrationHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIntegrationTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIntegrationTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return IntegrationErrorBadInput
	case goerrors.CategoryNotFound:
		return IntegrationErrorNotAuthorized
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return IntegrationErrorStateInvalid
	case goerrors.CategoryRateLimit:
		return IntegrationErrorRateLimited
	case goerrors.CategoryExternal:
		return IntegrationErrorUpstream
	default:
		return IntegrationErrorInternal
	}
}

func integrationHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
