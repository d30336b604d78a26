package finance

import (
	"reflect"
	"testing"
	"time"

	"dormy/internal/core"
)

func entry(id int64, amount int64, entryType core.EntryType, note string, metadata core.EntryMetadata) core.LedgerEntry {
	return core.LedgerEntry{
		ID:         id,
		DormID:     1,
		SemesterID: 10,
		Category:   core.CategoryContributions,
		EntryType:  entryType,
		Amount:     core.MoneyFromInt(amount),
		PostedAt:   time.Date(2025, 9, int(id%27)+1, 8, 0, 0, 0, time.UTC),
		Note:       note,
		Metadata:   metadata,
	}
}

func contribMeta(id string) core.EntryMetadata {
	return core.ContributionMetadata{ContributionID: id}
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Intramurals Fee: GCash", "Intramurals Fee"},
		{"Intramurals Fee: Cash", "Intramurals Fee"},
		{"Intramurals Fee", "Intramurals Fee"}, // already clean: fixed point
		{"Intramurals   Fee :  cash", "Intramurals Fee"},
		{"Budget: Snacks", "Budget: Snacks"}, // not a payment method, keep
		{"  padded   title  ", "padded title"},
		{"Dues: Maya", "Dues"},
	}
	for i, tc := range cases {
		if got := NormalizeTitle(tc.in); got != tc.want {
			t.Fatalf("case %d: NormalizeTitle(%q) = %q, want %q", i, tc.in, got, tc.want)
		}
	}
	// Normalizing twice is the same as once.
	for _, tc := range cases {
		once := NormalizeTitle(tc.in)
		if twice := NormalizeTitle(once); twice != once {
			t.Fatalf("not a fixed point: %q -> %q -> %q", tc.in, once, twice)
		}
	}
}

func TestPaymentMethodSuffixMerging(t *testing.T) {
	in := Input{
		SemesterIDs: []int64{10},
		Entries: []core.LedgerEntry{
			entry(1, 500, core.EntryCharge, "Intramurals Fee: GCash", core.UnknownMetadata{}),
			entry(2, 500, core.EntryCharge, "Intramurals Fee: Cash", core.UnknownMetadata{}),
		},
	}
	groups, _ := groupContributions(in)
	if len(groups) != 1 {
		t.Fatalf("expected one merged group, got %d", len(groups))
	}
	if !groups[0].Charged.Equal(core.MoneyFromInt(1000)) {
		t.Fatalf("charged = %s, want 1000.00", groups[0].Charged)
	}
}

func TestSimpleContributionScenario(t *testing.T) {
	in := Input{
		SemesterIDs: []int64{10},
		Entries: []core.LedgerEntry{
			entry(1, 500, core.EntryCharge, "Intramurals Fee", contribMeta("c-1")),
			entry(2, -500, core.EntryPayment, "Intramurals Fee", contribMeta("c-1")),
		},
	}
	groups, _ := groupContributions(in)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if !g.Charged.Equal(core.MoneyFromInt(500)) {
		t.Fatalf("charged = %s", g.Charged)
	}
	if !g.Collected.Equal(core.MoneyFromInt(500)) {
		t.Fatalf("collected = %s", g.Collected)
	}
	if !g.Remaining.IsZero() {
		t.Fatalf("remaining = %s, want 0.00", g.Remaining)
	}
}

// remaining = charged - collected must hold exactly for every group.
func TestSumConservation(t *testing.T) {
	in := Input{
		SemesterIDs: []int64{10},
		Entries: []core.LedgerEntry{
			entry(1, 500, core.EntryCharge, "Dues", contribMeta("c-1")),
			entry(2, -150, core.EntryPayment, "Dues", contribMeta("c-1")),
			entry(3, -75, core.EntryPayment, "Dues", contribMeta("c-1")),
			entry(4, 300, core.EntryCharge, "Shirts", contribMeta("c-2")),
			entry(5, -400, core.EntryPayment, "Shirts", contribMeta("c-2")), // over-payment
		},
	}
	groups, _ := groupContributions(in)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	for _, g := range groups {
		if want := g.Charged.Sub(g.Collected); !g.Remaining.Equal(want) {
			t.Fatalf("group %s: remaining %s != charged %s - collected %s", g.Key, g.Remaining, g.Charged, g.Collected)
		}
	}
	// The over-paid group surfaces a negative remaining.
	if !groups[1].Remaining.Equal(core.MoneyFromInt(-100)) {
		t.Fatalf("over-payment remaining = %s, want -100.00", groups[1].Remaining)
	}
}

// A positive-amount entry typed "payment" still counts as collected.
func TestEntryTypeTiebreak(t *testing.T) {
	in := Input{
		SemesterIDs: []int64{10},
		Entries: []core.LedgerEntry{
			entry(1, 500, core.EntryCharge, "Dues", contribMeta("c-1")),
			entry(2, 500, core.EntryPayment, "Dues", contribMeta("c-1")),
		},
	}
	groups, _ := groupContributions(in)
	g := groups[0]
	if !g.Collected.Equal(core.MoneyFromInt(500)) {
		t.Fatalf("collected = %s, want 500.00", g.Collected)
	}
	if !g.Remaining.IsZero() {
		t.Fatalf("remaining = %s, want 0.00", g.Remaining)
	}
}

func TestLegacyImportExcluded(t *testing.T) {
	in := Input{
		SemesterIDs: []int64{10},
		Entries: []core.LedgerEntry{
			entry(1, 500, core.EntryCharge, "Dues", contribMeta("c-1")),
			entry(2, 120, core.EntryImport, "old row", core.LegacyImportMetadata{ImportSource: "gdrive_2022"}),
		},
	}
	groups, manual := groupContributions(in)
	if len(groups) != 1 {
		t.Fatalf("legacy row must not group, got %d groups", len(groups))
	}
	if len(manual) != 0 {
		t.Fatalf("legacy row must not be a manual inflow")
	}
	// The summarizer still counts it in raw totals.
	balance := Summarize(in.Entries)
	if !balance.Contributions.Equal(core.MoneyFromInt(620)) {
		t.Fatalf("raw total = %s, want 620.00", balance.Contributions)
	}
}

func TestManualInflowClassification(t *testing.T) {
	in := Input{
		SemesterIDs: []int64{10},
		Entries: []core.LedgerEntry{
			entry(1, -250, core.EntryPayment, "Donation from alumni", core.ManualInflowMetadata{}),
			entry(2, 100, core.EntryCharge, "", core.ManualInflowMetadata{}),
		},
	}
	groups, manual := groupContributions(in)
	if len(groups) != 0 {
		t.Fatalf("manual inflows must not group, got %d", len(groups))
	}
	if len(manual) != 2 {
		t.Fatalf("expected 2 manual inflows, got %d", len(manual))
	}
	rows := BuildView(in, "").ManualInflows
	if rows[0].Title != "Donation from alumni" {
		t.Fatalf("title = %q", rows[0].Title)
	}
	if !rows[0].Amount.Equal(core.MoneyFromInt(250)) {
		t.Fatalf("manual inflow amount is absolute, got %s", rows[0].Amount)
	}
	if rows[1].Title != "Manual inflow" {
		t.Fatalf("blank note should default, got %q", rows[1].Title)
	}
}

func TestVoidedEntriesExcluded(t *testing.T) {
	now := time.Now()
	voided := entry(2, -500, core.EntryPayment, "Dues", contribMeta("c-1"))
	voided.VoidedAt = &now
	in := Input{
		SemesterIDs: []int64{10},
		Entries: []core.LedgerEntry{
			entry(1, 500, core.EntryCharge, "Dues", contribMeta("c-1")),
			voided,
		},
	}
	groups, _ := groupContributions(in)
	if groups[0].EntryCount != 1 {
		t.Fatalf("voided entry grouped: count %d", groups[0].EntryCount)
	}
	if !groups[0].Collected.IsZero() {
		t.Fatalf("voided payment counted: %s", groups[0].Collected)
	}
}

func TestFallbackKeyUsesSemesterAndEvent(t *testing.T) {
	eid := int64(7)
	a := entry(1, 500, core.EntryCharge, "Fee", core.UnknownMetadata{})
	a.EventID = &eid
	b := entry(2, 500, core.EntryCharge, "Fee", core.UnknownMetadata{})
	b.SemesterID = 11 // different semester, must not merge
	in := Input{
		SemesterIDs: []int64{10, 11},
		Entries:     []core.LedgerEntry{a, b},
		EventTitles: map[int64]string{7: "Acquaintance Party"},
	}
	groups, _ := groupContributions(in)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups across semesters, got %d", len(groups))
	}
	if groups[0].LinkedEventTitle != "Acquaintance Party" {
		t.Fatalf("event title not linked: %q", groups[0].LinkedEventTitle)
	}
}

func TestExpenseGrouping(t *testing.T) {
	in := Input{
		SemesterIDs: []int64{10},
		Expenses: []core.Expense{
			{ID: 1, SemesterID: 10, Title: "Paint", GroupTitle: "Mural supplies", Amount: core.MoneyFromInt(350), PurchasedAt: core.NewDate(2025, 9, 10), Status: core.ExpenseApproved, Origin: core.OriginGrouped},
			{ID: 2, SemesterID: 10, Title: "Brushes", GroupTitle: "Mural supplies", Amount: core.MoneyFromInt(150), PurchasedAt: core.NewDate(2025, 9, 12), Status: core.ExpensePending, Origin: core.OriginGrouped},
			{ID: 3, SemesterID: 10, Title: "Rejected thing", GroupTitle: "Mural supplies", Amount: core.MoneyFromInt(999), PurchasedAt: core.NewDate(2025, 9, 13), Status: core.ExpenseRejected, Origin: core.OriginGrouped},
			{ID: 4, SemesterID: 10, Title: "Snacks run", Amount: core.MoneyFromInt(80), PurchasedAt: core.NewDate(2025, 9, 14), Status: core.ExpenseApproved, Origin: core.OriginManual},
		},
	}
	groups, manual := groupExpenses(in)
	if len(groups) != 1 {
		t.Fatalf("expected 1 expense group, got %d", len(groups))
	}
	g := groups[0]
	if !g.ApprovedAmount.Equal(core.MoneyFromInt(350)) {
		t.Fatalf("approved = %s", g.ApprovedAmount)
	}
	if !g.PendingAmount.Equal(core.MoneyFromInt(150)) {
		t.Fatalf("pending = %s", g.PendingAmount)
	}
	if g.ExpenseCount != 2 {
		t.Fatalf("rejected row counted: %d", g.ExpenseCount)
	}
	if len(manual) != 1 || manual[0].Title != "Snacks run" {
		t.Fatalf("manual expenses = %+v", manual)
	}
}

// Two invocations over the same snapshot must be byte-identical.
func TestGroupingIdempotence(t *testing.T) {
	eid := int64(7)
	withEvent := entry(3, 200, core.EntryCharge, "Intramurals Fee: GCash", core.UnknownMetadata{})
	withEvent.EventID = &eid
	in := Input{
		SemesterIDs: []int64{10},
		Entries: []core.LedgerEntry{
			entry(1, 500, core.EntryCharge, "Dues", contribMeta("c-1")),
			entry(2, -150, core.EntryPayment, "Dues", contribMeta("c-1")),
			withEvent,
			entry(4, -90, core.EntryPayment, "Donation", core.ManualInflowMetadata{}),
		},
		Expenses: []core.Expense{
			{ID: 1, SemesterID: 10, Title: "Paint", GroupTitle: "Mural supplies", Amount: core.MoneyFromInt(350), PurchasedAt: core.NewDate(2025, 9, 10), Status: core.ExpenseApproved, Origin: core.OriginGrouped},
		},
		EventTitles: map[int64]string{7: "Acquaintance Party"},
		Semesters: map[int64]core.Semester{
			10: {ID: 10, ShortLabel: "25-26 1st", StartsOn: core.NewDate(2025, 8, 1), EndsOn: core.NewDate(2025, 12, 31)},
		},
		Snapshots: []core.SemesterSnapshot{
			{SemesterID: 10, SemesterLabel: "25-26 1st", StartsOn: core.NewDate(2025, 8, 1), HandoverIn: core.ZeroMoney()},
		},
	}
	first := BuildView(in, "")
	second := BuildView(in, "")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("grouping is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}
