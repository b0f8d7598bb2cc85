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

// GroupService covers group creation, membership, and name resolution.
type GroupService struct {
	client  *transport.Client
	session *auth.Session
}

// NewGroupService creates a GroupService over the given pipeline and
// session manager.
func NewGroupService(client *transport.Client, session *auth.Session) *GroupService {
	return &GroupService{client: client, session: session}
}

// Resolve looks up the id for a group name. Returns 0 when no group
// with that name exists or the lookup fails.
func (s *GroupService) Resolve(ctx context.Context, groupName string) int64 {
	var out struct {
		GroupID int64 `json:"group_id"`
	}
	code, err := s.client.DoJSON(ctx, http.MethodGet, "/groups/resolve/"+groupName, nil, &out)
	if err != nil || !ok2xx(code) {
		slog.Warn("group resolution failed", "group", groupName, "status", code, "error", err)
		return 0
	}
	return out.GroupID
}

// JoinedGroups fetches all groups the logged-in user belongs to.
// Returns an empty slice on failure.
func (s *GroupService) JoinedGroups(ctx context.Context) []models.Group {
	var groups []models.Group
	code, err := s.client.DoJSON(ctx, http.MethodGet, "/users/groups", nil, &groups)
	if err != nil || !ok2xx(code) {
		slog.Warn("joined groups fetch failed", "status", code, "error", err)
		return nil
	}
	return groups
}

// Create registers a new group. The creator does not automatically
// join it; call Join afterwards for that.
func (s *GroupService) Create(ctx context.Context, groupName, description string) bool {
	if groupName == "" {
		return false
	}
	body := map[string]string{
		"group_name":  groupName,
		"description": description,
	}
	code, err := s.client.DoJSON(ctx, http.MethodPost, "/groups", body, nil)
	if err != nil || !ok2xx(code) {
		slog.Warn("group creation failed", "group", groupName, "status", code, "error", err)
		return false
	}
	slog.Info("group created", "group", groupName)
	return true
}

// Join adds the logged-in user to the named group. The user id comes
// from the session's access token, the group id from name resolution;
// failing either lookup fails the join.
func (s *GroupService) Join(ctx context.Context, groupName string) bool {
	userID, ok := s.session.UserID()
	if !ok {
		slog.Warn("cannot join group without a logged-in user")
		return false
	}
	groupID := s.Resolve(ctx, groupName)
	if groupID == 0 {
		return false
	}

	path := fmt.Sprintf("/groups/%d/users/%d", groupID, userID)
	code, err := s.client.DoJSON(ctx, http.MethodPost, path, nil, nil)
	if err != nil || !ok2xx(code) {
		slog.Warn("group join failed", "group", groupName, "status", code, "error", err)
		return false
	}
	slog.Info("joined group", "group", groupName)
	return true
}

// Members fetches the users belonging to a group. Returns an empty
// slice on failure.
func (s *GroupService) Members(ctx context.Context, groupID int64) []models.User {
	var users []models.User
	path := fmt.Sprintf("/groups/%d/users", groupID)
	code, err := s.client.DoJSON(ctx, http.MethodGet, path, nil, &users)
	if err != nil || !ok2xx(code) {
		slog.Warn("group members fetch failed", "group_id", groupID, "status", code, "error", err)
		return nil
	}
	return users
}
