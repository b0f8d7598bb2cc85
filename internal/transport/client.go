// Package transport implements the authenticated request pipeline:
// every outbound API call gets the current access token attached, and
// an unauthorized response triggers a coalesced token refresh followed
// by exactly one replay of the original request.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/PersonalGroceryManager/go-client/internal/auth"
	"github.com/PersonalGroceryManager/go-client/internal/metrics"
)

// refreshKey is the single-flight key: there is only ever one kind of
// refresh, so all concurrent triggers coalesce onto it.
const refreshKey = "refresh"

// Client dispatches API requests with bearer authentication and
// retry-after-refresh semantics. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *auth.Session
	refresh    singleflight.Group
}

// New creates a pipeline client for the API at baseURL. Every request
// (including the refresh call) is bounded by timeout.
func New(baseURL string, session *auth.Session, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// URL joins an API path onto the configured base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// Do dispatches req with the current access token attached.
//
// The caller's request is never mutated: the outbound request is a
// clone with its own header set and, where a GetBody factory exists, a
// fresh body. On a 401 response the pipeline refreshes the session
// (coalescing concurrent refreshes into one server call) and replays
// the request exactly once with the new token. The second response is
// returned whatever its status; if the refresh itself fails, the
// original 401 is returned untouched.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	out, err := c.outbound(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(out)
	if err != nil {
		metrics.RequestErrors.Inc()
		return nil, err
	}
	metrics.Requests.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if !c.refreshSession(req.Context()) {
		// No second attempt without a fresh token; hand the 401 back.
		return resp, nil
	}

	retry, err := c.outbound(req)
	if err != nil {
		return resp, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	metrics.Retries.Inc()
	resp, err = c.httpClient.Do(retry)
	if err != nil {
		metrics.RequestErrors.Inc()
		return nil, err
	}
	metrics.Requests.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

// outbound clones req into a dispatchable request: fresh body, bearer
// header when a token is held, and a request id for server-side
// correlation.
func (c *Client) outbound(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("reissue request body: %w", err)
		}
		out.Body = body
	}
	if token, ok := c.session.AccessToken(); ok {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	out.Header.Set("X-Request-ID", uuid.NewString())
	return out, nil
}

// refreshSession coalesces concurrent refresh triggers into a single
// server call; every waiter observes the same outcome. The flight is
// cleared once settled, so a later expiry can trigger a new one.
func (c *Client) refreshSession(ctx context.Context) bool {
	// The flight outlives any one caller: a canceled trigger must not
	// fail the refresh for everyone who coalesced onto it.
	ctx = context.WithoutCancel(ctx)
	ok, _, _ := c.refresh.Do(refreshKey, func() (interface{}, error) {
		return c.doRefresh(ctx), nil
	})
	return ok.(bool)
}

// doRefresh calls the token refresh endpoint with the current refresh
// token as bearer credential. On success the new access token is
// stored; on any failure the stored tokens are left untouched.
func (c *Client) doRefresh(ctx context.Context) bool {
	refreshToken, ok := c.session.RefreshToken()
	if !ok {
		slog.Debug("no refresh token held, session cannot be refreshed")
		metrics.Refreshes.WithLabelValues(metrics.OutcomeFailure).Inc()
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL("/users/refresh"), nil)
	if err != nil {
		metrics.Refreshes.WithLabelValues(metrics.OutcomeFailure).Inc()
		return false
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("token refresh request failed", "error", err)
		metrics.Refreshes.WithLabelValues(metrics.OutcomeFailure).Inc()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("token refresh rejected", "status", resp.StatusCode)
		metrics.Refreshes.WithLabelValues(metrics.OutcomeFailure).Inc()
		return false
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		slog.Warn("token refresh returned malformed body", "error", err)
		metrics.Refreshes.WithLabelValues(metrics.OutcomeFailure).Inc()
		return false
	}

	c.session.StoreAccess(body.AccessToken)
	metrics.Refreshes.WithLabelValues(metrics.OutcomeSuccess).Inc()
	slog.Debug("access token refreshed")
	return true
}

// DoJSON is the convenience path for the API's JSON endpoints: it
// marshals body (when non-nil), dispatches through Do, decodes a 2xx
// response into out (when non-nil), and returns the response status.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
