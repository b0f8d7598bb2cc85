package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/PersonalGroceryManager/go-client/internal/models"
	"github.com/PersonalGroceryManager/go-client/internal/transport"
)

// ReceiptService covers receipt upload and deletion, line items, and
// the per-user allocations edited in the receipt view.
type ReceiptService struct {
	client *transport.Client
	groups *GroupService
}

// NewReceiptService creates a ReceiptService over the given pipeline.
// The group service handles name resolution for group-scoped lookups.
func NewReceiptService(client *transport.Client, groups *GroupService) *ReceiptService {
	return &ReceiptService{client: client, groups: groups}
}

// ReceiptsInGroup fetches all receipts belonging to the named group.
// Returns an empty slice when the group does not exist or the fetch
// fails.
func (s *ReceiptService) ReceiptsInGroup(ctx context.Context, groupName string) []models.Receipt {
	groupID := s.groups.Resolve(ctx, groupName)
	if groupID == 0 {
		return nil
	}

	var out struct {
		Receipts []models.Receipt `json:"receipts"`
	}
	path := fmt.Sprintf("/groups/%d/receipts", groupID)
	code, err := s.client.DoJSON(ctx, http.MethodGet, path, nil, &out)
	if err != nil || !ok2xx(code) {
		slog.Warn("receipts fetch failed", "group", groupName, "status", code, "error", err)
		return nil
	}
	return out.Receipts
}

// Upload posts a receipt file to a group as a multipart form.
func (s *ReceiptService) Upload(ctx context.Context, groupID int64, filename string, file io.Reader) bool {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		slog.Warn("receipt upload failed", "error", err)
		return false
	}
	if _, err := io.Copy(part, file); err != nil {
		slog.Warn("receipt upload failed", "error", err)
		return false
	}
	if err := form.Close(); err != nil {
		slog.Warn("receipt upload failed", "error", err)
		return false
	}

	path := fmt.Sprintf("/groups/%d/receipts", groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.URL(path), &buf)
	if err != nil {
		slog.Warn("receipt upload failed", "error", err)
		return false
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Warn("receipt upload failed", "error", err)
		return false
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if !ok2xx(resp.StatusCode) {
		slog.Warn("receipt upload rejected", "status", resp.StatusCode)
		return false
	}
	slog.Info("receipt uploaded", "group_id", groupID, "file", filename)
	return true
}

// Delete removes a receipt.
func (s *ReceiptService) Delete(ctx context.Context, receiptID int64) bool {
	path := fmt.Sprintf("/receipts/%d", receiptID)
	code, err := s.client.DoJSON(ctx, http.MethodDelete, path, nil, nil)
	if err != nil || !ok2xx(code) {
		slog.Warn("receipt deletion failed", "receipt_id", receiptID, "status", code, "error", err)
		return false
	}
	slog.Info("receipt deleted", "receipt_id", receiptID)
	return true
}

// Items fetches a receipt's line items. Returns an empty slice on
// failure.
func (s *ReceiptService) Items(ctx context.Context, receiptID int64) []models.Item {
	var items []models.Item
	path := fmt.Sprintf("/receipts/%d/items", receiptID)
	code, err := s.client.DoJSON(ctx, http.MethodGet, path, nil, &items)
	if err != nil || !ok2xx(code) {
		slog.Warn("items fetch failed", "receipt_id", receiptID, "status", code, "error", err)
		return nil
	}
	return items
}

// Allocations fetches the user-item unit claims for a receipt.
// Returns an empty slice on failure.
func (s *ReceiptService) Allocations(ctx context.Context, receiptID int64) []models.UserItem {
	var allocations []models.UserItem
	path := fmt.Sprintf("/receipts/user-items/%d", receiptID)
	code, err := s.client.DoJSON(ctx, http.MethodGet, path, nil, &allocations)
	if err != nil || !ok2xx(code) {
		slog.Warn("allocations fetch failed", "receipt_id", receiptID, "status", code, "error", err)
		return nil
	}
	return allocations
}

// AddUser associates a user with a receipt so items can be allocated
// to them.
func (s *ReceiptService) AddUser(ctx context.Context, receiptID, userID int64) bool {
	path := fmt.Sprintf("/receipts/%d/users/%d", receiptID, userID)
	code, err := s.client.DoJSON(ctx, http.MethodPost, path, nil, nil)
	if err != nil || !ok2xx(code) {
		slog.Warn("adding user to receipt failed",
			"receipt_id", receiptID, "user_id", userID, "status", code, "error", err)
		return false
	}
	return true
}

// SaveAllocations replaces the unit claims for the given user-item
// pairs.
func (s *ReceiptService) SaveAllocations(ctx context.Context, allocations []models.UserItem) bool {
	code, err := s.client.DoJSON(ctx, http.MethodPut, "/receipts/user-items", allocations, nil)
	if err != nil || !ok2xx(code) {
		slog.Warn("allocations save failed", "status", code, "error", err)
		return false
	}
	return true
}

// SaveUserCosts uploads computed per-user receipt costs, typically the
// output of the cost calculator after editing allocations.
func (s *ReceiptService) SaveUserCosts(ctx context.Context, costs []models.UserCost) bool {
	code, err := s.client.DoJSON(ctx, http.MethodPut, "/users/costs", costs, nil)
	if err != nil || !ok2xx(code) {
		slog.Warn("user costs save failed", "status", code, "error", err)
		return false
	}
	return true
}
