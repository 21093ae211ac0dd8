package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/devkit"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestAdapter(t *testing.T, doer core.HTTPDoer, mutate func(*OAuth2Config)) *OAuth2Adapter {
	t.Helper()
	cfg := OAuth2Config{
		ID:            "acme",
		AuthURL:       "https://auth.acme.test/authorize",
		TokenURL:      "https://auth.acme.test/token",
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		RedirectURI:   "https://app.test/callback",
		DefaultScopes: []string{"read", "write"},
		Now:           fixedNow,
		HTTPClient:    doer,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	adapter, err := NewOAuth2Adapter(cfg)
	if err != nil {
		t.Fatalf("expected adapter construction to succeed, got %v", err)
	}
	return adapter
}

func TestBeginAuthBuildsAuthorizationURL(t *testing.T) {
	adapter := newTestAdapter(t, devkit.NewFakeHTTPDoer(), func(cfg *OAuth2Config) {
		cfg.ExtraAuthParams = map[string]string{"owner": "user"}
	})

	response, err := adapter.BeginAuth(context.Background(), core.BeginAuthRequest{
		Owner: core.OwnerRef{UserID: "user-1"},
		State: "state-token",
	})
	if err != nil {
		t.Fatalf("expected begin auth to succeed, got %v", err)
	}
	if response.State != "state-token" {
		t.Fatalf("expected caller state echoed, got %q", response.State)
	}

	parsed, err := url.Parse(response.URL)
	if err != nil {
		t.Fatalf("expected a parseable URL, got %v", err)
	}
	query := parsed.Query()
	if query.Get("response_type") != "code" {
		t.Fatalf("expected response_type=code, got %q", query.Get("response_type"))
	}
	if query.Get("client_id") != "client-id" {
		t.Fatalf("expected client id, got %q", query.Get("client_id"))
	}
	if query.Get("redirect_uri") != "https://app.test/callback" {
		t.Fatalf("expected redirect uri, got %q", query.Get("redirect_uri"))
	}
	if query.Get("scope") != "read write" {
		t.Fatalf("expected default scopes, got %q", query.Get("scope"))
	}
	if query.Get("state") != "state-token" {
		t.Fatalf("expected state embedded, got %q", query.Get("state"))
	}
	if query.Get("owner") != "user" {
		t.Fatalf("expected extra auth params, got %q", query.Get("owner"))
	}
}

func TestBeginAuthGeneratesStateWhenMissing(t *testing.T) {
	adapter := newTestAdapter(t, devkit.NewFakeHTTPDoer(), nil)

	response, err := adapter.BeginAuth(context.Background(), core.BeginAuthRequest{
		Owner: core.OwnerRef{UserID: "user-1"},
	})
	if err != nil {
		t.Fatalf("expected begin auth to succeed, got %v", err)
	}
	if strings.TrimSpace(response.State) == "" {
		t.Fatal("expected a generated state token")
	}
	if !strings.Contains(response.URL, "state="+response.State) {
		t.Fatalf("expected URL to embed the state, got %q", response.URL)
	}
}

func TestExchangeCodeComputesExpiry(t *testing.T) {
	doer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{
		Body: `{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":1800,"scope":"read write"}`,
	})
	adapter := newTestAdapter(t, doer, nil)

	record, err := adapter.ExchangeCode(context.Background(), core.ExchangeRequest{
		Owner: core.OwnerRef{UserID: "user-1"},
		Code:  "auth-code",
	})
	if err != nil {
		t.Fatalf("expected exchange to succeed, got %v", err)
	}
	if record.AccessToken != "access-1" || record.RefreshToken != "refresh-1" {
		t.Fatalf("expected tokens from payload, got %+v", record)
	}
	if record.TokenType != "bearer" {
		t.Fatalf("expected token type normalized, got %q", record.TokenType)
	}
	wantExpiry := fixedNow().Add(30 * time.Minute)
	if !record.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, record.ExpiresAt)
	}
	if len(record.Scopes) != 2 {
		t.Fatalf("expected granted scopes parsed, got %v", record.Scopes)
	}

	requests := doer.Requests()
	if len(requests) != 1 {
		t.Fatalf("expected a single token request, got %d", len(requests))
	}
	form, err := url.ParseQuery(requests[0].Body)
	if err != nil {
		t.Fatalf("expected form-encoded body, got %v", err)
	}
	if form.Get("grant_type") != "authorization_code" {
		t.Fatalf("expected authorization_code grant, got %q", form.Get("grant_type"))
	}
	if form.Get("code") != "auth-code" {
		t.Fatalf("expected code in body, got %q", form.Get("code"))
	}
	if form.Get("client_secret") != "" {
		t.Fatal("expected secret sent via basic auth, not the body")
	}
	if auth := requests[0].Header.Get("Authorization"); !strings.HasPrefix(auth, "Basic ") {
		t.Fatalf("expected basic auth header, got %q", auth)
	}
}

func TestExchangeCodeSecretInBody(t *testing.T) {
	doer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{
		Body: `{"access_token":"access-1","token_type":"bearer","expires_in":3600}`,
	})
	adapter := newTestAdapter(t, doer, func(cfg *OAuth2Config) {
		cfg.ClientSecretInBody = true
	})

	if _, err := adapter.ExchangeCode(context.Background(), core.ExchangeRequest{
		Owner: core.OwnerRef{UserID: "user-1"},
		Code:  "auth-code",
	}); err != nil {
		t.Fatalf("expected exchange to succeed, got %v", err)
	}

	requests := doer.Requests()
	form, err := url.ParseQuery(requests[0].Body)
	if err != nil {
		t.Fatalf("expected form-encoded body, got %v", err)
	}
	if form.Get("client_secret") != "client-secret" {
		t.Fatal("expected secret in the form body")
	}
	if requests[0].Header.Get("Authorization") != "" {
		t.Fatal("expected no basic auth header")
	}
}

func TestExchangeCodeJSONTokenRequest(t *testing.T) {
	doer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{
		Body: `{"access_token":"access-1","token_type":"bearer"}`,
	})
	adapter := newTestAdapter(t, doer, func(cfg *OAuth2Config) {
		cfg.TokenRequestJSON = true
	})

	if _, err := adapter.ExchangeCode(context.Background(), core.ExchangeRequest{
		Owner: core.OwnerRef{UserID: "user-1"},
		Code:  "auth-code",
	}); err != nil {
		t.Fatalf("expected exchange to succeed, got %v", err)
	}

	requests := doer.Requests()
	if got := requests[0].Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected JSON content type, got %q", got)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(requests[0].Body), &body); err != nil {
		t.Fatalf("expected JSON body, got %v", err)
	}
	if body["grant_type"] != "authorization_code" || body["code"] != "auth-code" {
		t.Fatalf("unexpected JSON body %v", body)
	}
}

func TestExchangeCodeFailureIsTerminal(t *testing.T) {
	doer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{
		Status: 400,
		Body:   `{"error":"invalid_grant","error_description":"code expired"}`,
	})
	adapter := newTestAdapter(t, doer, nil)

	_, err := adapter.ExchangeCode(context.Background(), core.ExchangeRequest{
		Owner: core.OwnerRef{UserID: "user-1"},
		Code:  "stale-code",
	})
	if !errors.Is(err, core.ErrExchangeFailed) {
		t.Fatalf("expected ErrExchangeFailed, got %v", err)
	}
	if len(doer.Requests()) != 1 {
		t.Fatalf("expected no retries for exchange, got %d requests", len(doer.Requests()))
	}
}

func TestExchangeCodeRequiresCode(t *testing.T) {
	adapter := newTestAdapter(t, devkit.NewFakeHTTPDoer(), nil)

	_, err := adapter.ExchangeCode(context.Background(), core.ExchangeRequest{
		Owner: core.OwnerRef{UserID: "user-1"},
	})
	if !errors.Is(err, core.ErrExchangeFailed) {
		t.Fatalf("expected ErrExchangeFailed, got %v", err)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	doer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{
		Body: `{"access_token":"access-2","refresh_token":"refresh-2","token_type":"bearer","expires_in":3600}`,
	})
	adapter := newTestAdapter(t, doer, nil)

	record := core.TokenRecord{
		ID:           "rec-1",
		ProviderID:   "acme",
		Owner:        core.OwnerRef{UserID: "user-1"},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    fixedNow().Add(-time.Minute),
	}
	refreshed, err := adapter.Refresh(context.Background(), record)
	if err != nil {
		t.Fatalf("expected refresh to succeed, got %v", err)
	}
	if refreshed.AccessToken != "access-2" {
		t.Fatalf("expected rotated access token, got %q", refreshed.AccessToken)
	}
	if refreshed.RefreshToken != "refresh-2" {
		t.Fatalf("expected rotated refresh token, got %q", refreshed.RefreshToken)
	}
	if !refreshed.ExpiresAt.After(record.ExpiresAt) {
		t.Fatalf("expected expiry to advance, got %v", refreshed.ExpiresAt)
	}
	if refreshed.ID != "rec-1" {
		t.Fatalf("expected record identity preserved, got %q", refreshed.ID)
	}
}

func TestRefreshKeepsRefreshTokenWhenOmitted(t *testing.T) {
	doer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{
		Body: `{"access_token":"access-2","token_type":"bearer","expires_in":3600}`,
	})
	adapter := newTestAdapter(t, doer, nil)

	refreshed, err := adapter.Refresh(context.Background(), core.TokenRecord{
		Owner:        core.OwnerRef{UserID: "user-1"},
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	})
	if err != nil {
		t.Fatalf("expected refresh to succeed, got %v", err)
	}
	if refreshed.RefreshToken != "refresh-1" {
		t.Fatalf("expected previous refresh token kept, got %q", refreshed.RefreshToken)
	}
}

func TestRefreshWithoutToken(t *testing.T) {
	adapter := newTestAdapter(t, devkit.NewFakeHTTPDoer(), nil)

	_, err := adapter.Refresh(context.Background(), core.TokenRecord{
		Owner:       core.OwnerRef{UserID: "user-1"},
		AccessToken: "access-1",
	})
	if !errors.Is(err, core.ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}

func TestRefreshClassification(t *testing.T) {
	tests := []struct {
		name     string
		script   devkit.HTTPScript
		sentinel error
	}{
		{
			name:     "rejected refresh token",
			script:   devkit.HTTPScript{Status: 400, Body: `{"error":"invalid_grant"}`},
			sentinel: core.ErrRefreshFailed,
		},
		{
			name:     "provider outage",
			script:   devkit.HTTPScript{Status: 503, Body: `{"error":"unavailable"}`},
			sentinel: core.ErrTransient,
		},
		{
			name:     "network failure",
			script:   devkit.HTTPScript{Err: errors.New("connection reset")},
			sentinel: core.ErrTransient,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter := newTestAdapter(t, devkit.NewFakeHTTPDoer(tc.script), nil)

			_, err := adapter.Refresh(context.Background(), core.TokenRecord{
				Owner:        core.OwnerRef{UserID: "user-1"},
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
			})
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("expected %v, got %v", tc.sentinel, err)
			}
		})
	}
}

func TestParseTokenPayloadFormEncoding(t *testing.T) {
	payload, err := parseTokenPayload(
		[]byte("access_token=access-1&token_type=bearer&expires_in=7200&scope=read"),
		"application/x-www-form-urlencoded",
	)
	if err != nil {
		t.Fatalf("expected form payload to parse, got %v", err)
	}
	if payload.AccessToken != "access-1" || payload.ExpiresIn != 7200 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
