package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const (
	defaultAuthKind            = "oauth2_auth_code"
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

// OAuth2Config parameterizes the shared authorization-code adapter for one
// provider. Values are fixed for the process lifetime once the adapter is
// constructed.
type OAuth2Config struct {
	ID           string
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// ClientSecretInBody sends the secret as a form field instead of HTTP
	// basic auth; some token endpoints only accept one of the two.
	ClientSecretInBody bool
	// TokenRequestJSON posts the token request as a JSON document instead of
	// the form encoding the RFC prescribes.
	TokenRequestJSON bool
	RedirectURI      string
	DefaultScopes    []string
	// ExtraAuthParams are appended verbatim to the authorization URL.
	ExtraAuthParams map[string]string
	// TokenTTL is the fallback token lifetime for endpoints that omit
	// expires_in. Zero means tokens without a reported lifetime never expire.
	TokenTTL            time.Duration
	TokenRequestTimeout time.Duration
	Now                 func() time.Time
	HTTPClient          core.HTTPDoer
}

// OAuth2Adapter implements the auth half of the provider contract: it builds
// authorization URLs, exchanges codes, and refreshes tokens. Concrete
// provider packages embed it and add their data fetch and normalization.
type OAuth2Adapter struct {
	cfg        OAuth2Config
	httpClient core.HTTPDoer
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

// tokenEndpointError is a token endpoint response the provider itself
// produced, as opposed to a transport failure reaching it.
type tokenEndpointError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *tokenEndpointError) Error() string {
	detail := strings.TrimSpace(e.Description)
	if detail == "" {
		detail = strings.TrimSpace(e.Code)
	}
	if detail == "" {
		detail = "unknown error"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("providers: token endpoint error (%d): %s", e.StatusCode, detail)
	}
	return fmt.Sprintf("providers: token endpoint error: %s", detail)
}

func NewOAuth2Adapter(cfg OAuth2Config) (*OAuth2Adapter, error) {
	cfg.ID = strings.TrimSpace(strings.ToLower(cfg.ID))
	if cfg.ID == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, fmt.Errorf("providers: auth url is required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("providers: token url is required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("providers: client id is required for provider %q", cfg.ID)
	}

	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	cfg.DefaultScopes = cloneStrings(cfg.DefaultScopes)
	cfg.ExtraAuthParams = cloneStringMap(cfg.ExtraAuthParams)
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			return time.Now().UTC()
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	return &OAuth2Adapter{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

func (p *OAuth2Adapter) ID() string {
	if p == nil {
		return ""
	}
	return p.cfg.ID
}

func (*OAuth2Adapter) AuthKind() string {
	return defaultAuthKind
}

func (p *OAuth2Adapter) DefaultScopes() []string {
	if p == nil {
		return []string{}
	}
	return cloneStrings(p.cfg.DefaultScopes)
}

// Now returns the adapter clock. Concrete providers use it so fixtures and
// real traffic share one time source.
func (p *OAuth2Adapter) Now() time.Time {
	if p == nil || p.cfg.Now == nil {
		return time.Now().UTC()
	}
	return p.cfg.Now().UTC()
}

// HTTPClient exposes the transport so concrete providers reuse the same doer
// for data fetches as the token endpoint calls.
func (p *OAuth2Adapter) HTTPClient() core.HTTPDoer {
	if p == nil {
		return nil
	}
	return p.httpClient
}

func (p *OAuth2Adapter) BeginAuth(_ context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if p == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: oauth2 adapter is nil")
	}
	if err := req.Owner.Validate(); err != nil {
		return core.BeginAuthResponse{}, err
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		generated, err := core.GenerateStateToken()
		if err != nil {
			return core.BeginAuthResponse{}, err
		}
		state = generated
	}
	requested := cloneStrings(req.RequestedScopes)
	if len(requested) == 0 {
		requested = cloneStrings(p.cfg.DefaultScopes)
	}
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = p.cfg.RedirectURI
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", p.cfg.ClientID)
	if redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}
	if len(requested) > 0 {
		values.Set("scope", strings.Join(requested, " "))
	}
	values.Set("state", state)
	for key, value := range p.cfg.ExtraAuthParams {
		if strings.TrimSpace(key) == "" {
			continue
		}
		values.Set(key, value)
	}

	authURL := p.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}

	return core.BeginAuthResponse{
		URL:             authURL,
		State:           state,
		RequestedScopes: requested,
	}, nil
}

// ExchangeCode performs the code-for-token request. Any failure wraps
// ErrExchangeFailed and is terminal: authorization codes are single use, so
// nothing here retries.
func (p *OAuth2Adapter) ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.TokenRecord, error) {
	if p == nil {
		return core.TokenRecord{}, fmt.Errorf("providers: oauth2 adapter is nil")
	}
	if err := req.Owner.Validate(); err != nil {
		return core.TokenRecord{}, err
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.TokenRecord{}, fmt.Errorf("%w: authorization code is required", core.ErrExchangeFailed)
	}

	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = p.cfg.RedirectURI
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}

	token, err := p.fetchToken(ctx, form)
	if err != nil {
		return core.TokenRecord{}, fmt.Errorf("%w: %v", core.ErrExchangeFailed, err)
	}

	granted := parseScopeList(token.Scope)
	if len(granted) == 0 {
		granted = cloneStrings(req.Scopes)
	}
	if len(granted) == 0 {
		granted = cloneStrings(p.cfg.DefaultScopes)
	}

	now := p.Now()
	return core.TokenRecord{
		ProviderID:   p.cfg.ID,
		Owner:        req.Owner,
		TokenType:    normalizeTokenType(token.TokenType),
		AccessToken:  strings.TrimSpace(token.AccessToken),
		RefreshToken: strings.TrimSpace(token.RefreshToken),
		Scopes:       granted,
		IssuedAt:     now,
		ExpiresAt:    p.resolveExpiresAt(now, token.ExpiresIn),
	}, nil
}

// Refresh renews the record against the token endpoint. Provider-reported
// rejections wrap ErrRefreshFailed; transport failures and 5xx responses wrap
// ErrTransient so the caller's retry policy can distinguish the two.
func (p *OAuth2Adapter) Refresh(ctx context.Context, record core.TokenRecord) (core.TokenRecord, error) {
	if p == nil {
		return core.TokenRecord{}, fmt.Errorf("providers: oauth2 adapter is nil")
	}
	refreshToken := strings.TrimSpace(record.RefreshToken)
	if refreshToken == "" {
		return core.TokenRecord{}, fmt.Errorf("%w: provider %q", core.ErrNoRefreshToken, p.cfg.ID)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	if len(record.Scopes) > 0 {
		form.Set("scope", strings.Join(record.Scopes, " "))
	}

	token, err := p.fetchToken(ctx, form)
	if err != nil {
		return core.TokenRecord{}, classifyRefreshError(err)
	}

	now := p.Now()
	refreshed := record
	refreshed.TokenType = normalizeTokenType(token.TokenType)
	refreshed.AccessToken = strings.TrimSpace(token.AccessToken)
	if next := strings.TrimSpace(token.RefreshToken); next != "" {
		refreshed.RefreshToken = next
	}
	if granted := parseScopeList(token.Scope); len(granted) > 0 {
		refreshed.Scopes = granted
	}
	refreshed.IssuedAt = now
	refreshed.ExpiresAt = p.resolveExpiresAt(now, token.ExpiresIn)
	return refreshed, nil
}

func classifyRefreshError(err error) error {
	var endpointErr *tokenEndpointError
	if errors.As(err, &endpointErr) {
		if endpointErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", core.ErrTransient, err)
		}
		return fmt.Errorf("%w: %v", core.ErrRefreshFailed, err)
	}
	// Network errors, timeouts, and unreadable payloads never prove the
	// refresh token is dead, so the stored record must survive them.
	return fmt.Errorf("%w: %v", core.ErrTransient, err)
}

func (p *OAuth2Adapter) fetchToken(ctx context.Context, form url.Values) (tokenEndpointPayload, error) {
	if p.httpClient == nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: oauth2 http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecretInBody && p.cfg.ClientSecret != "" {
		values.Set("client_secret", p.cfg.ClientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.cfg.TokenRequestTimeout)
	defer cancel()

	body, contentType, err := encodeTokenRequest(values, p.cfg.TokenRequestJSON)
	if err != nil {
		return tokenEndpointPayload{}, err
	}

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if !p.cfg.ClientSecretInBody && p.cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	}

	response, err := p.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token request failed: %w", err)
	}
	defer response.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: read token response: %w", readErr)
	}
	if int64(len(raw)) > maxTokenResponseBodyBytes {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}

	payload, parseErr := parseTokenPayload(raw, response.Header.Get("Content-Type"))
	if parseErr != nil {
		if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
			return tokenEndpointPayload{}, &tokenEndpointError{StatusCode: response.StatusCode}
		}
		return tokenEndpointPayload{}, fmt.Errorf("providers: decode token response: %w", parseErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, &tokenEndpointError{
			StatusCode:  response.StatusCode,
			Code:        payload.ErrorCode,
			Description: payload.ErrorDescription,
		}
	}
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, &tokenEndpointError{
			Code:        payload.ErrorCode,
			Description: payload.ErrorDescription,
		}
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint response missing access token")
	}
	return payload, nil
}

func encodeTokenRequest(values url.Values, asJSON bool) (string, string, error) {
	if !asJSON {
		return values.Encode(), "application/x-www-form-urlencoded", nil
	}
	document := map[string]string{}
	for key := range values {
		document[key] = values.Get(key)
	}
	encoded, err := json.Marshal(document)
	if err != nil {
		return "", "", fmt.Errorf("providers: encode token request: %w", err)
	}
	return string(encoded), "application/json", nil
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func (p *OAuth2Adapter) resolveExpiresAt(now time.Time, expiresIn int64) time.Time {
	ttl := p.cfg.TokenTTL
	if expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0
		}
		return parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func cloneStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, value := range in {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
