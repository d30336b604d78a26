package finance

import (
	"sort"
	"strings"
	"time"

	"dormy/internal/core"
)

const (
	KindInflow  StreamKind = "inflow"
	KindExpense StreamKind = "expense"
)

const (
	SourceContribution  StreamSource = "contribution"
	SourceExpenseGroup  StreamSource = "expense_group"
	SourceManualInflow  StreamSource = "manual_inflow"
	SourceManualExpense StreamSource = "manual_expense"
	SourceHandover      StreamSource = "handover"
)

type (
	StreamKind   string
	StreamSource string

	// StreamRow is the unifying projection every derived record is
	// flattened into for the treasurer's merged financial stream.
	StreamRow struct {
		Kind           StreamKind
		Source         StreamSource
		Title          string
		Subtitle       string
		Amount         core.Money
		EffectiveAt    time.Time
		SemesterLabels []string
	}

	// View is the full output of one grouping pass.
	View struct {
		Contributions  []ContributionGroup
		ExpenseGroups  []ExpenseGroup
		ManualInflows  []StreamRow
		ManualExpenses []StreamRow
		Stream         []StreamRow
		TotalInflow    core.Money
		TotalExpense   core.Money
		Net            core.Money
	}
)

// BuildView runs the whole pass: classify, group, synthesize handover
// rows, merge, filter, sort, total. It is a pure function of its input;
// two calls over the same snapshot return identical views.
func BuildView(in Input, search string) View {
	groups, manualInflowEntries := groupContributions(in)
	expenseGroups, manualExpenseRows := groupExpenses(in)

	var stream []StreamRow
	for _, snap := range handoverSnapshots(in) {
		stream = append(stream, handoverRow(snap))
	}
	for _, g := range groups {
		stream = append(stream, StreamRow{
			Kind:           KindInflow,
			Source:         SourceContribution,
			Title:          g.Title,
			Subtitle:       g.LinkedEventTitle,
			Amount:         g.Collected,
			EffectiveAt:    g.LatestActivityAt,
			SemesterLabels: g.SemesterLabels,
		})
	}
	for _, g := range expenseGroups {
		stream = append(stream, StreamRow{
			Kind:           KindExpense,
			Source:         SourceExpenseGroup,
			Title:          g.Title,
			Subtitle:       g.LinkedContributionTitle,
			Amount:         g.ApprovedAmount,
			EffectiveAt:    g.LatestPurchaseAt,
			SemesterLabels: g.SemesterLabels,
		})
	}

	view := View{
		Contributions: groups,
		ExpenseGroups: expenseGroups,
	}
	for _, e := range manualInflowEntries {
		row := manualInflowRow(e, in.Semesters)
		view.ManualInflows = append(view.ManualInflows, row)
		stream = append(stream, row)
	}
	for _, x := range manualExpenseRows {
		row := manualExpenseRow(x, in.Semesters)
		view.ManualExpenses = append(view.ManualExpenses, row)
		stream = append(stream, row)
	}

	stream = filterStream(stream, search)
	sortStream(stream)
	view.Stream = stream

	inflow := core.ZeroMoney()
	outflow := core.ZeroMoney()
	for _, row := range stream {
		if row.Kind == KindInflow {
			inflow = inflow.Add(row.Amount)
		} else {
			outflow = outflow.Add(row.Amount)
		}
	}
	view.TotalInflow = inflow.Round2()
	view.TotalExpense = outflow.Round2()
	view.Net = inflow.Sub(outflow).Round2()
	return view
}

// handoverRow turns an opening-balance snapshot into the synthetic
// continuity row: a non-negative balance arrives as an inflow, a deficit
// as an expense, always shown as a magnitude.
func handoverRow(snap core.SemesterSnapshot) StreamRow {
	kind := KindInflow
	if snap.HandoverIn.IsNegative() {
		kind = KindExpense
	}
	return StreamRow{
		Kind:           kind,
		Source:         SourceHandover,
		Title:          "Handover from previous semester",
		Subtitle:       snap.SemesterLabel,
		Amount:         snap.HandoverIn.Abs().Round2(),
		EffectiveAt:    snap.StartsOn.Midday(),
		SemesterLabels: []string{snap.SemesterLabel},
	}
}

func manualInflowRow(e core.LedgerEntry, semesters map[int64]core.Semester) StreamRow {
	title := collapseWhitespace(e.Note)
	if title == "" {
		title = "Manual inflow"
	}
	return StreamRow{
		Kind:           KindInflow,
		Source:         SourceManualInflow,
		Title:          title,
		Amount:         e.Amount.Abs().Round2(),
		EffectiveAt:    e.PostedAt,
		SemesterLabels: semesterLabel(semesters, e.SemesterID),
	}
}

func manualExpenseRow(x core.Expense, semesters map[int64]core.Semester) StreamRow {
	return StreamRow{
		Kind:           KindExpense,
		Source:         SourceManualExpense,
		Title:          collapseWhitespace(x.Title),
		Subtitle:       x.TransparencyNotes,
		Amount:         x.Amount.Round2(),
		EffectiveAt:    x.PurchasedAt.Midday(),
		SemesterLabels: semesterLabel(semesters, x.SemesterID),
	}
}

func semesterLabel(semesters map[int64]core.Semester, id int64) []string {
	if sem, ok := semesters[id]; ok {
		return []string{sem.ShortLabel}
	}
	return nil
}

// filterStream keeps rows whose title, subtitle or source label contains
// the search text, case-insensitively. An empty search keeps everything.
func filterStream(rows []StreamRow, search string) []StreamRow {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return rows
	}
	kept := rows[:0]
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.Title), search) ||
			strings.Contains(strings.ToLower(row.Subtitle), search) ||
			strings.Contains(string(row.Source), search) {
			kept = append(kept, row)
		}
	}
	return kept
}

// sortStream orders newest-first. Construction order is deterministic,
// and the stable sort plus the tiebreaks keep equal-timestamp rows in a
// fixed order across invocations.
func sortStream(rows []StreamRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].EffectiveAt.Equal(rows[j].EffectiveAt) {
			return rows[i].EffectiveAt.After(rows[j].EffectiveAt)
		}
		if rows[i].Source != rows[j].Source {
			return rows[i].Source < rows[j].Source
		}
		return rows[i].Title < rows[j].Title
	})
}
