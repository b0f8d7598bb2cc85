package calculator

import "sort"

// DebtEdge represents a debt from one user to another.
type DebtEdge struct {
	FromUserID int64 // user who owes
	ToUserID   int64 // user who is owed
	Amount     float64
}

// noiseFloor is the smallest transfer worth suggesting; anything below
// it is floating-point residue from the proportional splits.
const noiseFloor = 0.01

// SettleDebts turns a set of net balances (positive = owed money,
// negative = owes money) into a short list of transfers that clears
// them. Debtors and creditors are matched greedily, so the number of
// edges is at most members-1.
//
// The input is typically built from UserCosts output plus knowledge of
// who paid each receipt: the payer's net goes up by the receipt total,
// every participant's net goes down by their computed share.
func SettleDebts(net map[int64]float64) []DebtEdge {
	var debtors, creditors []int64
	for id, balance := range net {
		switch {
		case balance < -noiseFloor:
			debtors = append(debtors, id)
		case balance > noiseFloor:
			creditors = append(creditors, id)
		}
	}

	// Deterministic output regardless of map iteration order.
	sort.Slice(debtors, func(i, j int) bool { return debtors[i] < debtors[j] })
	sort.Slice(creditors, func(i, j int) bool { return creditors[i] < creditors[j] })

	owed := make(map[int64]float64, len(net))
	for id, balance := range net {
		owed[id] = balance
	}

	var edges []DebtEdge
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor, creditor := debtors[i], creditors[j]

		amount := -owed[debtor]
		if owed[creditor] < amount {
			amount = owed[creditor]
		}

		if amount > noiseFloor {
			edges = append(edges, DebtEdge{
				FromUserID: debtor,
				ToUserID:   creditor,
				Amount:     amount,
			})
		}

		owed[debtor] += amount
		owed[creditor] -= amount

		if -owed[debtor] <= noiseFloor {
			i++
		}
		if owed[creditor] <= noiseFloor {
			j++
		}
	}
	return edges
}
