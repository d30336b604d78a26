// Package finance turns the flat ledger/expense stream into the derived
// views the treasurer screens show: contribution groups, expense groups,
// manual entries, handover rows, outstanding balances. Everything here
// is a pure reduction over a fetched snapshot of rows; nothing is
// persisted, so repeated runs over the same rows must produce identical
// output.
package finance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"dormy/internal/core"
)

type (
	// Input is the row snapshot a grouping pass runs over. Entries and
	// expenses are the contributions-category rows for the selected
	// semesters; snapshots are the externally computed opening balances
	// in chronological order.
	Input struct {
		SemesterIDs []int64
		Entries     []core.LedgerEntry
		Expenses    []core.Expense
		EventTitles map[int64]string
		Semesters   map[int64]core.Semester
		Snapshots   []core.SemesterSnapshot
	}

	// ContributionGroup is the derived cluster of charge/payment rows
	// that share a grouping key. It has no storage identity.
	ContributionGroup struct {
		Key              string
		Title            string
		LinkedEventTitle string
		Charged          core.Money
		Collected        core.Money
		Remaining        core.Money
		LatestActivityAt time.Time
		SemesterLabels   []string
		EntryCount       int
	}

	ExpenseGroup struct {
		Key                     string
		Title                   string
		LinkedContributionTitle string
		ApprovedAmount          core.Money
		PendingAmount           core.Money
		LatestPurchaseAt        time.Time
		SemesterLabels          []string
		ExpenseCount            int
	}
)

type contributionAcc struct {
	key      string
	title    string
	eventID  *int64
	entries  []core.LedgerEntry
	labels   []string
	labelSet map[string]bool
}

type expenseAcc struct {
	key      string
	title    string
	linked   string
	expenses []core.Expense
	labels   []string
	labelSet map[string]bool
}

// Payment-method annotations recorded as a trailing ": method" suffix on
// contribution titles. Same-purpose charges that differ only in the
// suffix must land in one group.
var paymentMethodSuffixes = map[string]bool{
	"cash":          true,
	"gcash":         true,
	"maya":          true,
	"paymaya":       true,
	"bank":          true,
	"bank transfer": true,
	"online":        true,
}

// NormalizeTitle strips a trailing payment-method annotation and
// collapses runs of whitespace. Normalizing an already-clean title is a
// fixed point.
func NormalizeTitle(s string) string {
	s = collapseWhitespace(s)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		tail := strings.ToLower(strings.TrimSpace(s[i+1:]))
		if paymentMethodSuffixes[tail] {
			s = strings.TrimSpace(s[:i])
		}
	}
	return s
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// keyPart lowercases a normalized title for use inside a grouping key so
// casing differences cannot split a group.
func keyPart(s string) string {
	return strings.ToLower(NormalizeTitle(s))
}

// fallbackGroupKey builds the deterministic key for entries without an
// explicit contribution id: semester + normalized title + normalized
// linked-event title.
func fallbackGroupKey(e core.LedgerEntry, eventTitle string) string {
	return fmt.Sprintf("sem:%d|title:%s|event:%s", e.SemesterID, keyPart(e.Note), keyPart(eventTitle))
}

// groupContributions classifies the contribution-category entries and
// reduces the structured ones into groups. Manual inflows are returned
// separately; legacy imported rows are dropped from grouping entirely.
// Group order is first-appearance order of the key in the input slice,
// which keeps two passes over the same snapshot byte-identical.
func groupContributions(in Input) (groups []ContributionGroup, manualInflows []core.LedgerEntry) {
	accs := make(map[string]*contributionAcc)
	var order []string

	for _, e := range in.Entries {
		if e.Voided() {
			continue
		}
		var key string
		switch md := e.Metadata.(type) {
		case core.ManualInflowMetadata:
			manualInflows = append(manualInflows, e)
			continue
		case core.LegacyImportMetadata:
			// Unstructured historical rows: raw totals only, never grouped.
			continue
		case core.ContributionMetadata:
			key = "contrib:" + md.ContributionID
		default:
			key = fallbackGroupKey(e, in.EventTitles[derefID(e.EventID)])
		}

		acc, ok := accs[key]
		if !ok {
			acc = &contributionAcc{
				key:      key,
				title:    NormalizeTitle(e.Note),
				eventID:  e.EventID,
				labelSet: make(map[string]bool),
			}
			if acc.title == "" {
				acc.title = "Contribution"
			}
			accs[key] = acc
			order = append(order, key)
		}
		acc.entries = append(acc.entries, e)
		if sem, ok := in.Semesters[e.SemesterID]; ok && !acc.labelSet[sem.ShortLabel] {
			acc.labelSet[sem.ShortLabel] = true
			acc.labels = append(acc.labels, sem.ShortLabel)
		}
	}

	groups = make([]ContributionGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, finishContributionGroup(accs[key], in.EventTitles))
	}
	return groups, manualInflows
}

// finishContributionGroup runs the money reduction for one group.
// Sums stay exact until the single Round2 at the group boundary, so
// collected + remaining == charged holds without cent drift.
func finishContributionGroup(acc *contributionAcc, eventTitles map[int64]string) ContributionGroup {
	charged := core.ZeroMoney()
	collected := core.ZeroMoney()
	remaining := core.ZeroMoney()
	var latest time.Time
	for _, e := range acc.entries {
		if e.IsPayment() {
			collected = collected.Add(e.Amount.Abs())
		} else {
			charged = charged.Add(e.Amount)
		}
		remaining = remaining.Add(signedAmount(e))
		if e.PostedAt.After(latest) {
			latest = e.PostedAt
		}
	}
	return ContributionGroup{
		Key:              acc.key,
		Title:            acc.title,
		LinkedEventTitle: eventTitles[derefID(acc.eventID)],
		Charged:          charged.Round2(),
		Collected:        collected.Round2(),
		Remaining:        remaining.Round2(),
		LatestActivityAt: latest,
		SemesterLabels:   acc.labels,
		EntryCount:       len(acc.entries),
	}
}

// signedAmount folds the entry-type tiebreak into the sign convention:
// a payment recorded with a positive amount still subtracts.
func signedAmount(e core.LedgerEntry) core.Money {
	if e.IsPayment() {
		return e.Amount.Abs().Neg()
	}
	return e.Amount
}

// groupExpenses splits contribution-category expenses into manual rows
// (reported individually) and title-keyed groups. Rejected expenses are
// excluded from both.
func groupExpenses(in Input) (groups []ExpenseGroup, manualExpenses []core.Expense) {
	accs := make(map[string]*expenseAcc)
	var order []string

	for _, x := range in.Expenses {
		if x.Status == core.ExpenseRejected {
			continue
		}
		if x.Origin == core.OriginManual {
			manualExpenses = append(manualExpenses, x)
			continue
		}
		key := "exp:" + keyPart(x.GroupingTitle())
		acc, ok := accs[key]
		if !ok {
			acc = &expenseAcc{
				key:      key,
				title:    NormalizeTitle(x.GroupingTitle()),
				labelSet: make(map[string]bool),
			}
			accs[key] = acc
			order = append(order, key)
		}
		acc.expenses = append(acc.expenses, x)
		if acc.linked == "" && x.ContributionRefName != "" {
			acc.linked = x.ContributionRefName
		}
		if sem, ok := in.Semesters[x.SemesterID]; ok && !acc.labelSet[sem.ShortLabel] {
			acc.labelSet[sem.ShortLabel] = true
			acc.labels = append(acc.labels, sem.ShortLabel)
		}
	}

	groups = make([]ExpenseGroup, 0, len(order))
	for _, key := range order {
		acc := accs[key]
		approved := core.ZeroMoney()
		pending := core.ZeroMoney()
		var latest time.Time
		for _, x := range acc.expenses {
			switch x.Status {
			case core.ExpenseApproved:
				approved = approved.Add(x.Amount)
			case core.ExpensePending:
				pending = pending.Add(x.Amount)
			}
			if t := x.PurchasedAt.Midday(); t.After(latest) {
				latest = t
			}
		}
		groups = append(groups, ExpenseGroup{
			Key:                     acc.key,
			Title:                   acc.title,
			LinkedContributionTitle: acc.linked,
			ApprovedAmount:          approved.Round2(),
			PendingAmount:           pending.Round2(),
			LatestPurchaseAt:        latest,
			SemesterLabels:          acc.labels,
			ExpenseCount:            len(acc.expenses),
		})
	}
	return groups, manualExpenses
}

// handoverSnapshots selects the opening-balance snapshots that become
// handover rows: every selected semester beyond the chronologically
// first one. The first semester is judged among the selected set, so a
// missing snapshot row for it cannot promote the next semester into
// "first" and swallow its handover.
func handoverSnapshots(in Input) []core.SemesterSnapshot {
	if len(in.SemesterIDs) == 0 {
		return nil
	}
	selected := make(map[int64]bool, len(in.SemesterIDs))
	for _, id := range in.SemesterIDs {
		selected[id] = true
	}
	first := in.SemesterIDs[0]
	for _, id := range in.SemesterIDs[1:] {
		a, okA := in.Semesters[id]
		b, okB := in.Semesters[first]
		if okA && okB && a.StartsOn.Before(b.StartsOn) {
			first = id
		}
	}
	var picked []core.SemesterSnapshot
	for _, snap := range in.Snapshots {
		if selected[snap.SemesterID] && snap.SemesterID != first {
			picked = append(picked, snap)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].StartsOn.Before(picked[j].StartsOn)
	})
	return picked
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
