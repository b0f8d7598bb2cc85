package calculator

import (
	"time"

	"github.com/PersonalGroceryManager/go-client/internal/models"
)

// SpendingSummary aggregates a user's spending history as returned by
// the costs endpoint. It backs the CLI's trend display.
type SpendingSummary struct {
	Receipts int
	Total    float64
	Mean     float64
	First    time.Time // earliest receipt slot
	Last     time.Time // latest receipt slot
}

// Summarize folds a spending history into totals. An empty history
// yields the zero summary.
func Summarize(history []models.UserCost) SpendingSummary {
	var s SpendingSummary
	if len(history) == 0 {
		return s
	}

	for _, row := range history {
		s.Receipts++
		s.Total += row.Cost

		slot := time.Unix(int64(row.SlotTime), 0)
		if s.First.IsZero() || slot.Before(s.First) {
			s.First = slot
		}
		if slot.After(s.Last) {
			s.Last = slot
		}
	}
	s.Mean = s.Total / float64(s.Receipts)
	return s
}
