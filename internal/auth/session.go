// Package auth owns the client's token lifecycle: storing the
// access/refresh token pair, answering "is this session valid", and
// clearing everything on logout.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PersonalGroceryManager/go-client/internal/storage"
)

// Session holds the current token pair, mirrored into a persistent
// CredentialStore under well-known keys. All methods are safe for
// concurrent use; Store and Clear are atomic with respect to readers.
//
// Only the session itself and the token-refresh operation may write
// the pair; everything else reads.
type Session struct {
	mu        sync.Mutex
	store     storage.CredentialStore
	verifyKey []byte

	access  string
	refresh string
}

// NewSession creates a session manager backed by store, loading any
// previously persisted token pair.
//
// verifyKey is the HS256 key used to validate access tokens locally.
// An empty key puts the session into a degraded mode where presence of
// an access token counts as authenticated; that is a deliberate
// configuration choice and is logged loudly here so it never passes
// silently.
func NewSession(store storage.CredentialStore, verifyKey string) *Session {
	s := &Session{
		store:     store,
		verifyKey: []byte(verifyKey),
	}
	if verifyKey == "" {
		slog.Warn("no token verification key configured; " +
			"IsAuthenticated degrades to a presence-only check")
	}

	ctx := context.Background()
	if v, err := store.Get(ctx, storage.KeyAccessToken); err == nil {
		s.access = v
	}
	if v, err := store.Get(ctx, storage.KeyRefreshToken); err == nil {
		s.refresh = v
	}
	return s
}

// Store persists a new token pair, overwriting any previous values.
func (s *Session) Store(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	s.persist(storage.KeyAccessToken, access)
	s.persist(storage.KeyRefreshToken, refresh)
}

// StoreAccess replaces only the access token, keeping the current
// refresh token. The refresh endpoint mints access tokens only, so
// this is the write path after a successful refresh.
func (s *Session) StoreAccess(access string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.persist(storage.KeyAccessToken, access)
}

// AccessToken returns the current access token, if one is held.
func (s *Session) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, s.access != ""
}

// RefreshToken returns the current refresh token, if one is held.
func (s *Session) RefreshToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh, s.refresh != ""
}

// Clear removes both tokens from memory and from the backing store.
// Subsequent IsAuthenticated calls return false.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	ctx := context.Background()
	if err := s.store.Delete(ctx, storage.KeyAccessToken); err != nil {
		slog.Warn("failed to delete persisted access token", "error", err)
	}
	if err := s.store.Delete(ctx, storage.KeyRefreshToken); err != nil {
		slog.Warn("failed to delete persisted refresh token", "error", err)
	}
}

// IsAuthenticated reports whether a valid session exists. With a
// verification key configured, the access token's signature and expiry
// must both validate; without one, presence alone is sufficient.
//
// Verification failures are swallowed into false — a malformed token
// is "not authenticated", never a fault the caller has to handle.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	access := s.access
	s.mu.Unlock()

	if access == "" {
		return false
	}
	if len(s.verifyKey) == 0 {
		return true
	}
	if _, err := s.parseVerified(access); err != nil {
		slog.Debug("access token failed verification", "error", err)
		return false
	}
	return true
}

// UserID extracts the authenticated user's id from the access token's
// subject claim. In degraded mode the claim is read without signature
// verification, matching the presence-only authentication check.
func (s *Session) UserID() (int64, bool) {
	s.mu.Lock()
	access := s.access
	s.mu.Unlock()

	if access == "" {
		return 0, false
	}

	var claims jwt.MapClaims
	if len(s.verifyKey) == 0 {
		parsed, _, err := jwt.NewParser().ParseUnverified(access, jwt.MapClaims{})
		if err != nil {
			return 0, false
		}
		claims = parsed.Claims.(jwt.MapClaims)
	} else {
		parsed, err := s.parseVerified(access)
		if err != nil {
			return 0, false
		}
		claims = parsed
	}

	// The backend issues the user id as the subject claim; depending
	// on the server version it arrives as a number or a string.
	switch sub := claims["sub"].(type) {
	case float64:
		return int64(sub), true
	case string:
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

// parseVerified validates the token's signature and registered claims
// (including expiry) against the configured HS256 key.
func (s *Session) parseVerified(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.verifyKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// persist mirrors a value into the backing store. A storage failure
// downgrades persistence for this run but keeps the in-memory pair
// usable, so a broken disk does not log the user out.
func (s *Session) persist(key, value string) {
	if err := s.store.Set(context.Background(), key, value); err != nil {
		slog.Warn("failed to persist credential", "key", key, "error", err)
	}
}
