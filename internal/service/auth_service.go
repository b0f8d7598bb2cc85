// Package service implements the client-side API services: thin,
// endpoint-shaped wrappers over the request pipeline.
//
// Failure policy: every operation converts faults (transport errors,
// bad statuses, malformed bodies) into a false/empty result and logs
// the cause, so callers never juggle error plumbing for what is
// ultimately "show a warning and move on".
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/PersonalGroceryManager/go-client/internal/auth"
	"github.com/PersonalGroceryManager/go-client/internal/models"
	"github.com/PersonalGroceryManager/go-client/internal/transport"
)

// AuthService covers account registration, login/logout, user
// resolution, and the caller's own spending history.
type AuthService struct {
	client  *transport.Client
	session *auth.Session
}

// NewAuthService creates an AuthService over the given pipeline and
// session manager.
func NewAuthService(client *transport.Client, session *auth.Session) *AuthService {
	return &AuthService{client: client, session: session}
}

// Register creates a new account. It does not log the user in.
func (s *AuthService) Register(ctx context.Context, username, email, password string) bool {
	body := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}
	code, err := s.client.DoJSON(ctx, http.MethodPost, "/users", body, nil)
	if err != nil {
		slog.Warn("register failed", "error", err)
		return false
	}
	if !ok2xx(code) {
		slog.Warn("register rejected", "status", code)
		return false
	}
	slog.Info("registered", "username", username)
	return true
}

// Login exchanges credentials for a token pair and stores it. A
// malformed response (missing access_token) fails without writing
// anything to the session.
func (s *AuthService) Login(ctx context.Context, username, password string) bool {
	body := map[string]string{
		"username": username,
		"password": password,
	}
	var pair models.TokenPair
	code, err := s.client.DoJSON(ctx, http.MethodPost, "/users/login", body, &pair)
	if err != nil {
		slog.Warn("login failed", "error", err)
		return false
	}
	if !ok2xx(code) {
		slog.Warn("login rejected", "status", code)
		return false
	}
	if pair.AccessToken == "" {
		slog.Warn("login response missing access_token")
		return false
	}

	s.session.Store(pair.AccessToken, pair.RefreshToken)
	slog.Info("logged in", "username", username)
	return true
}

// Logout discards the stored session.
func (s *AuthService) Logout() {
	s.session.Clear()
	slog.Info("logged out")
}

// ResolveUserID looks up the numeric id for a username. Returns 0 when
// no such user exists or the lookup fails.
func (s *AuthService) ResolveUserID(ctx context.Context, username string) int64 {
	var out struct {
		UserID int64 `json:"user_id"`
	}
	code, err := s.client.DoJSON(ctx, http.MethodGet, "/users/resolve/"+username, nil, &out)
	if err != nil || !ok2xx(code) {
		slog.Warn("user id resolution failed", "username", username, "status", code, "error", err)
		return 0
	}
	return out.UserID
}

// ResolveUsername looks up the username for a numeric id. Returns ""
// when no such user exists or the lookup fails.
func (s *AuthService) ResolveUsername(ctx context.Context, userID int64) string {
	var out struct {
		Username string `json:"username"`
	}
	path := fmt.Sprintf("/users/resolve/%d", userID)
	code, err := s.client.DoJSON(ctx, http.MethodGet, path, nil, &out)
	if err != nil || !ok2xx(code) {
		slog.Warn("username resolution failed", "user_id", userID, "status", code, "error", err)
		return ""
	}
	return out.Username
}

// SpendingHistory fetches the logged-in user's per-receipt costs.
// Returns an empty slice on failure.
func (s *AuthService) SpendingHistory(ctx context.Context) []models.UserCost {
	var history []models.UserCost
	code, err := s.client.DoJSON(ctx, http.MethodGet, "/users/costs", nil, &history)
	if err != nil || !ok2xx(code) {
		slog.Warn("spending history fetch failed", "status", code, "error", err)
		return nil
	}
	return history
}

// ok2xx reports whether an HTTP status code indicates success.
func ok2xx(code int) bool {
	return code >= 200 && code < 300
}
