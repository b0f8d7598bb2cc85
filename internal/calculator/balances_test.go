package calculator

import (
	"math"
	"testing"

	"github.com/PersonalGroceryManager/go-client/internal/models"
)

func TestSettleDebts(t *testing.T) {
	tests := []struct {
		name string
		net  map[int64]float64
		want []DebtEdge
	}{
		{
			name: "one debtor one creditor",
			net:  map[int64]float64{1: -7.50, 2: 7.50},
			want: []DebtEdge{{FromUserID: 1, ToUserID: 2, Amount: 7.50}},
		},
		{
			name: "two debtors settle against one payer",
			net:  map[int64]float64{1: -2.50, 2: -7.50, 3: 10.00},
			want: []DebtEdge{
				{FromUserID: 1, ToUserID: 3, Amount: 2.50},
				{FromUserID: 2, ToUserID: 3, Amount: 7.50},
			},
		},
		{
			name: "balanced group needs no transfers",
			net:  map[int64]float64{1: 0, 2: 0},
			want: nil,
		},
		{
			name: "floating point residue is ignored",
			net:  map[int64]float64{1: -0.004, 2: 0.004},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SettleDebts(tt.net)
			if len(got) != len(tt.want) {
				t.Fatalf("SettleDebts() = %v, want %v", got, tt.want)
			}
			for i, edge := range got {
				want := tt.want[i]
				if edge.FromUserID != want.FromUserID || edge.ToUserID != want.ToUserID {
					t.Errorf("edge %d = %+v, want %+v", i, edge, want)
				}
				if math.Abs(edge.Amount-want.Amount) > 0.01 {
					t.Errorf("edge %d amount = %v, want %v", i, edge.Amount, want.Amount)
				}
			}
		})
	}
}

func TestSettleDebts_ClearsAllBalances(t *testing.T) {
	net := map[int64]float64{1: -12.30, 2: -5.20, 3: 10.00, 4: 7.50}

	remaining := make(map[int64]float64, len(net))
	for id, v := range net {
		remaining[id] = v
	}
	for _, edge := range SettleDebts(net) {
		remaining[edge.FromUserID] += edge.Amount
		remaining[edge.ToUserID] -= edge.Amount
	}
	for id, v := range remaining {
		if math.Abs(v) > 0.01 {
			t.Errorf("user %d still has balance %v after settling", id, v)
		}
	}
}

func TestSummarize(t *testing.T) {
	history := []models.UserCost{
		{ReceiptID: 1, SlotTime: 1_700_000_000, Cost: 12.40},
		{ReceiptID: 2, SlotTime: 1_700_604_800, Cost: 7.60},
		{ReceiptID: 3, SlotTime: 1_701_209_600, Cost: 10.00},
	}

	s := Summarize(history)
	if s.Receipts != 3 {
		t.Errorf("Receipts = %d, want 3", s.Receipts)
	}
	if math.Abs(s.Total-30.0) > 0.01 {
		t.Errorf("Total = %v, want 30.0", s.Total)
	}
	if math.Abs(s.Mean-10.0) > 0.01 {
		t.Errorf("Mean = %v, want 10.0", s.Mean)
	}
	if !s.First.Before(s.Last) {
		t.Errorf("First (%v) should precede Last (%v)", s.First, s.Last)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Receipts != 0 || s.Total != 0 || s.Mean != 0 {
		t.Errorf("Summarize(nil) = %+v, want zero summary", s)
	}
}
