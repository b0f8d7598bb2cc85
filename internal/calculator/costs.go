// Package calculator implements the pure money math of the client:
// per-item cost allocation, spending summaries, and settle-up
// suggestions. Nothing here performs I/O; every function is
// deterministic in its inputs.
package calculator

import (
	"errors"
	"fmt"

	"github.com/PersonalGroceryManager/go-client/internal/models"
)

// ErrZeroQuantity reports an item whose divisible measure (quantity or
// weight) is missing or zero, making a per-unit price undefined.
var ErrZeroQuantity = errors.New("item has no divisible quantity")

// UserCosts computes each user's share of every item and aggregates
// into a per-user total.
//
// For each item the divisible measure is its quantity when present,
// otherwise its weight. Each allocation contributes
// unit * price / totalQuantity to its user's running total. Users
// without any allocation get no entry in the result, and items without
// allocations contribute nothing.
//
// An allocated item with a missing or zero measure fails with
// ErrZeroQuantity (wrapped with the item id) rather than silently
// producing a non-finite share.
func UserCosts(items []models.Item, allocations []models.UserItem) (map[int64]float64, error) {
	// Index allocations by item so each item is priced once.
	byItem := make(map[int64][]models.UserItem)
	for _, a := range allocations {
		byItem[a.ItemID] = append(byItem[a.ItemID], a)
	}

	costs := make(map[int64]float64)
	for _, item := range items {
		itemAllocs := byItem[item.ID]
		if len(itemAllocs) == 0 {
			continue
		}

		totalQuantity := divisibleMeasure(item)
		if totalQuantity == 0 {
			return nil, fmt.Errorf("item %d (%s): %w", item.ID, item.Name, ErrZeroQuantity)
		}

		pricePerUnit := item.Price / totalQuantity
		for _, a := range itemAllocs {
			costs[a.UserID] += a.Unit * pricePerUnit
		}
	}
	return costs, nil
}

// divisibleMeasure returns the item's total divisible units: quantity
// if present, otherwise weight, otherwise zero.
func divisibleMeasure(item models.Item) float64 {
	if item.Quantity != nil {
		return *item.Quantity
	}
	if item.Weight != nil {
		return *item.Weight
	}
	return 0
}
