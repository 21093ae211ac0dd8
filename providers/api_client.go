package providers

import (
	"bytes"
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
	defaultAPIRequestTimeout   = 30 * time.Second
	defaultMaxTransientRetries = 2
	defaultMaxRateLimitWait    = 30 * time.Second
	defaultRateLimitRetryHint  = time.Second
	maxAPIResponseBodyBytes    = 8 << 20 // 8 MiB
	transientRetryInitialDelay = 250 * time.Millisecond
	transientRetryMaximumDelay = 2 * time.Second
)

// APIClient issues authenticated JSON requests against a provider data API
// and classifies failures into the shared taxonomy: 401/403 wrap
// ErrUnauthorized, 429 wraps ErrRateLimited with the parsed retry-after hint,
// 5xx and transport errors wrap ErrTransient.
//
// Transient failures are retried locally with at most MaxTransientRetries
// extra attempts; a rate-limited response is waited out and retried at most
// once per call, and only when the hint fits inside MaxRateLimitWait.
type APIClient struct {
	ProviderID          string
	HTTPClient          core.HTTPDoer
	RequestTimeout      time.Duration
	MaxTransientRetries int
	MaxRateLimitWait    time.Duration
	Backoff             core.BackoffScheduler
}

type apiRequest struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   any
}

func (c *APIClient) GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, accessToken string) (map[string]any, error) {
	return c.do(ctx, apiRequest{Method: http.MethodGet, URL: rawURL, Query: query, Header: header}, accessToken)
}

func (c *APIClient) PostJSON(ctx context.Context, rawURL string, body any, header http.Header, accessToken string) (map[string]any, error) {
	return c.do(ctx, apiRequest{Method: http.MethodPost, URL: rawURL, Header: header, Body: body}, accessToken)
}

func (c *APIClient) do(ctx context.Context, req apiRequest, accessToken string) (map[string]any, error) {
	if c == nil {
		return nil, fmt.Errorf("providers: api client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	transientRetries := 0
	rateLimitRetried := false
	for {
		payload, err := c.once(ctx, req, accessToken)
		if err == nil {
			return payload, nil
		}
		if errors.Is(err, core.ErrTransient) && transientRetries < c.maxTransientRetries() {
			transientRetries++
			if waitErr := sleepContext(ctx, c.nextTransientDelay(transientRetries)); waitErr != nil {
				return nil, waitErr
			}
			continue
		}
		if errors.Is(err, core.ErrRateLimited) && !rateLimitRetried {
			hint := core.RetryAfterHint(err, defaultRateLimitRetryHint)
			if hint <= c.maxRateLimitWait() {
				rateLimitRetried = true
				if waitErr := sleepContext(ctx, hint); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
		}
		return nil, err
	}
}

func (c *APIClient) once(ctx context.Context, req apiRequest, accessToken string) (map[string]any, error) {
	doer := c.HTTPClient
	if doer == nil {
		return nil, fmt.Errorf("providers: api http client is not configured")
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	target := req.URL
	if len(req.Query) > 0 {
		if strings.Contains(target, "?") {
			target += "&" + req.Query.Encode()
		} else {
			target += "?" + req.Query.Encode()
		}
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("providers: encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(requestCtx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, items := range req.Header {
		for _, item := range items {
			httpReq.Header.Set(key, item)
		}
	}
	if strings.TrimSpace(accessToken) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+strings.TrimSpace(accessToken))
	}

	response, err := doer.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s request failed: %v", core.ErrTransient, c.providerID(), err)
	}
	defer response.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(response.Body, maxAPIResponseBodyBytes+1))
	if readErr != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", core.ErrTransient, c.providerID(), readErr)
	}
	if int64(len(raw)) > maxAPIResponseBodyBytes {
		return nil, fmt.Errorf("providers: %s response exceeds %d bytes", c.providerID(), maxAPIResponseBodyBytes)
	}

	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: provider %q returned %d", core.ErrUnauthorized, c.providerID(), response.StatusCode)
	case response.StatusCode == http.StatusTooManyRequests:
		return nil, core.RateLimitedError{
			ProviderID: c.providerID(),
			RetryAfter: parseRetryAfterHeader(response.Header, time.Now().UTC()),
		}
	case response.StatusCode >= 500:
		return nil, fmt.Errorf("%w: provider %q returned %d", core.ErrTransient, c.providerID(), response.StatusCode)
	case response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("providers: %s api error (%d): %s", c.providerID(), response.StatusCode, summarizeBody(raw))
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]any{}, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("providers: decode %s response: %w", c.providerID(), err)
	}
	return decoded, nil
}

func (c *APIClient) providerID() string {
	if c == nil || strings.TrimSpace(c.ProviderID) == "" {
		return "provider"
	}
	return strings.TrimSpace(c.ProviderID)
}

func (c *APIClient) requestTimeout() time.Duration {
	if c != nil && c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return defaultAPIRequestTimeout
}

func (c *APIClient) maxTransientRetries() int {
	if c != nil && c.MaxTransientRetries > 0 {
		return c.MaxTransientRetries
	}
	return defaultMaxTransientRetries
}

func (c *APIClient) maxRateLimitWait() time.Duration {
	if c != nil && c.MaxRateLimitWait > 0 {
		return c.MaxRateLimitWait
	}
	return defaultMaxRateLimitWait
}

func (c *APIClient) nextTransientDelay(attempt int) time.Duration {
	if c != nil && c.Backoff != nil {
		return c.Backoff.NextDelay(attempt)
	}
	delay := transientRetryInitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= transientRetryMaximumDelay {
			return transientRetryMaximumDelay
		}
	}
	return delay
}

func parseRetryAfterHeader(header http.Header, now time.Time) time.Duration {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if retryAt, err := http.ParseTime(raw); err == nil {
		if retryAt.After(now) {
			return retryAt.Sub(now)
		}
	}
	return 0
}

func summarizeBody(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "empty body"
	}
	if len(trimmed) > 256 {
		trimmed = trimmed[:256] + "..."
	}
	return trimmed
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
