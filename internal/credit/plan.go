package credit

// debit is one planned deduction against a single grant row.
type debit struct {
	EntryID string
	Type    Type
	Amount  int64
}

// planConsumption decides how n units spread across the locked grant rows:
// class order daily, subscription, purchased, kickstart; oldest first within
// a class. Returns nil and the available total when the rows cannot cover n.
// Pure; the caller holds the row locks and applies the plan.
func planConsumption(grants []*Entry, n int64) ([]debit, int64) {
	var available int64
	for _, g := range grants {
		available += g.Remaining()
	}
	if available < n {
		return nil, available
	}

	var plan []debit
	remaining := n
	for _, class := range consumeOrder {
		if remaining == 0 {
			break
		}
		// grants arrive ordered by created_at, so a single pass per
		// class keeps oldest-first
		for _, g := range grants {
			if remaining == 0 {
				break
			}
			if g.Type != class || g.Remaining() <= 0 {
				continue
			}
			take := g.Remaining()
			if take > remaining {
				take = remaining
			}
			plan = append(plan, debit{EntryID: g.ID, Type: g.Type, Amount: take})
			remaining -= take
		}
	}
	return plan, available
}

// perClassTotals folds a plan into class sums.
func perClassTotals(plan []debit) map[Type]int64 {
	totals := make(map[Type]int64)
	for _, d := range plan {
		totals[d.Type] += d.Amount
	}
	return totals
}
