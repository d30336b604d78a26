package finance

import "dormy/internal/core"

// Summarize reduces non-voided ledger entries into per-category and
// total outstanding figures. No grouping, no classification: the raw
// total here is what the semester-opening-balance computation and the
// whole-dorm view both build on, so it deliberately counts rows (legacy
// imports included) that the grouping engine leaves out.
func Summarize(entries []core.LedgerEntry) core.OutstandingBalance {
	total := core.ZeroMoney()
	maintenance := core.ZeroMoney()
	fines := core.ZeroMoney()
	contributions := core.ZeroMoney()
	for _, e := range entries {
		if e.Voided() {
			continue
		}
		total = total.Add(e.Amount)
		switch e.Category {
		case core.CategoryMaintenanceFee:
			maintenance = maintenance.Add(e.Amount)
		case core.CategorySAFines:
			fines = fines.Add(e.Amount)
		case core.CategoryContributions:
			contributions = contributions.Add(e.Amount)
		}
	}
	return core.OutstandingBalance{
		Total:          total.Round2(),
		MaintenanceFee: maintenance.Round2(),
		SAFines:        fines.Round2(),
		Contributions:  contributions.Round2(),
	}
}
