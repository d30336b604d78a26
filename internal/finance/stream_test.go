package finance

import (
	"testing"
	"time"

	"dormy/internal/core"
)

func twoSemesterInput() Input {
	return Input{
		SemesterIDs: []int64{10, 11},
		Entries: []core.LedgerEntry{
			entry(1, 500, core.EntryCharge, "Dues", contribMeta("c-1")),
		},
		Semesters: map[int64]core.Semester{
			10: {ID: 10, ShortLabel: "25-26 1st", StartsOn: core.NewDate(2025, 8, 1), EndsOn: core.NewDate(2025, 12, 31)},
			11: {ID: 11, ShortLabel: "25-26 2nd", StartsOn: core.NewDate(2026, 1, 1), EndsOn: core.NewDate(2026, 6, 30)},
		},
		Snapshots: []core.SemesterSnapshot{
			{SemesterID: 10, SemesterLabel: "25-26 1st", StartsOn: core.NewDate(2025, 8, 1), HandoverIn: core.ZeroMoney()},
			{SemesterID: 11, SemesterLabel: "25-26 2nd", StartsOn: core.NewDate(2026, 1, 1), HandoverIn: core.MoneyFromInt(1250)},
		},
	}
}

func TestHandoverRowSynthesis(t *testing.T) {
	view := BuildView(twoSemesterInput(), "")
	var handovers []StreamRow
	for _, row := range view.Stream {
		if row.Source == SourceHandover {
			handovers = append(handovers, row)
		}
	}
	if len(handovers) != 1 {
		t.Fatalf("expected one handover row (first semester has none), got %d", len(handovers))
	}
	h := handovers[0]
	if h.Kind != KindInflow {
		t.Fatalf("non-negative handover is an inflow, got %s", h.Kind)
	}
	if !h.Amount.Equal(core.MoneyFromInt(1250)) {
		t.Fatalf("amount = %s", h.Amount)
	}
	if !h.EffectiveAt.Equal(core.NewDate(2026, 1, 1).Midday()) {
		t.Fatalf("handover anchors at midday of the semester start, got %v", h.EffectiveAt)
	}
}

func TestNegativeHandoverIsExpense(t *testing.T) {
	in := twoSemesterInput()
	in.Snapshots[1].HandoverIn = core.MoneyFromInt(-300)
	view := BuildView(in, "handover")
	if len(view.Stream) != 1 {
		t.Fatalf("expected only the handover row, got %d", len(view.Stream))
	}
	row := view.Stream[0]
	if row.Kind != KindExpense {
		t.Fatalf("deficit handover should be an expense, got %s", row.Kind)
	}
	if !row.Amount.Equal(core.MoneyFromInt(300)) {
		t.Fatalf("amount is shown as a magnitude, got %s", row.Amount)
	}
}

func TestSingleSemesterHasNoHandover(t *testing.T) {
	in := twoSemesterInput()
	in.SemesterIDs = []int64{10}
	view := BuildView(in, "")
	for _, row := range view.Stream {
		if row.Source == SourceHandover {
			t.Fatal("the chronologically first selected semester must not get a handover row")
		}
	}
}

func TestStreamSortedNewestFirst(t *testing.T) {
	view := BuildView(twoSemesterInput(), "")
	for i := 1; i < len(view.Stream); i++ {
		if view.Stream[i].EffectiveAt.After(view.Stream[i-1].EffectiveAt) {
			t.Fatalf("stream not descending at index %d", i)
		}
	}
}

// A date-only expense on the same calendar day as a timestamped payment
// sorts by the midday anchor, not midnight, so small timezone offsets
// cannot flip the order across a day boundary.
func TestMiddayAnchoring(t *testing.T) {
	in := Input{
		SemesterIDs: []int64{10},
		Entries: []core.LedgerEntry{
			func() core.LedgerEntry {
				e := entry(1, -100, core.EntryPayment, "Morning payment", contribMeta("c-1"))
				e.PostedAt = time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC)
				return e
			}(),
		},
		Expenses: []core.Expense{
			{ID: 1, SemesterID: 10, Title: "Same-day purchase", Amount: core.MoneyFromInt(50), PurchasedAt: core.NewDate(2025, 9, 10), Status: core.ExpenseApproved, Origin: core.OriginManual},
		},
	}
	view := BuildView(in, "")
	if len(view.Stream) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(view.Stream))
	}
	// Midday (12:00) sorts after 08:00, so the purchase leads.
	if view.Stream[0].Title != "Same-day purchase" {
		t.Fatalf("expected the midday-anchored row first, got %q", view.Stream[0].Title)
	}
}

func TestSearchFilter(t *testing.T) {
	in := twoSemesterInput()
	view := BuildView(in, "dues")
	if len(view.Stream) != 1 || view.Stream[0].Title != "Dues" {
		t.Fatalf("search filter failed: %+v", view.Stream)
	}
	if empty := BuildView(in, "zzz-no-match"); len(empty.Stream) != 0 {
		t.Fatalf("expected no rows, got %d", len(empty.Stream))
	}
	if all := BuildView(in, "  "); len(all.Stream) == 0 {
		t.Fatal("blank search must keep everything")
	}
}

func TestStreamTotals(t *testing.T) {
	in := Input{
		SemesterIDs: []int64{10},
		Entries: []core.LedgerEntry{
			entry(1, 500, core.EntryCharge, "Dues", contribMeta("c-1")),
			entry(2, -200, core.EntryPayment, "Dues", contribMeta("c-1")),
			entry(3, -50, core.EntryPayment, "Donation", core.ManualInflowMetadata{}),
		},
		Expenses: []core.Expense{
			{ID: 1, SemesterID: 10, Title: "Paint", Amount: core.MoneyFromInt(80), PurchasedAt: core.NewDate(2025, 9, 10), Status: core.ExpenseApproved, Origin: core.OriginManual},
		},
	}
	view := BuildView(in, "")
	// Inflows: contribution group collected 200 + manual 50; expense 80.
	if !view.TotalInflow.Equal(core.MoneyFromInt(250)) {
		t.Fatalf("total inflow = %s, want 250.00", view.TotalInflow)
	}
	if !view.TotalExpense.Equal(core.MoneyFromInt(80)) {
		t.Fatalf("total expense = %s, want 80.00", view.TotalExpense)
	}
	if !view.Net.Equal(core.MoneyFromInt(170)) {
		t.Fatalf("net = %s, want 170.00", view.Net)
	}
}
