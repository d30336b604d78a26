package core

import (
	"strings"
	"time"
)

// Semester statuses are advisory; whether a semester is current is
// derived from its date range, not from the status alone.
const (
	SemesterPlanned  SemesterStatus = "planned"
	SemesterActive   SemesterStatus = "active"
	SemesterArchived SemesterStatus = "archived"
)

// Ledger categories. The enumeration is shared between the grouping
// engine and the outstanding-balance summarizer so the two can never
// disagree about what exists.
const (
	CategoryMaintenanceFee LedgerCategory = "maintenance_fee"
	CategorySAFines        LedgerCategory = "sa_fines"
	CategoryContributions  LedgerCategory = "contributions"
)

const (
	EntryCharge  EntryType = "charge"
	EntryPayment EntryType = "payment"
	EntryImport  EntryType = "import"
)

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
	ExpenseRejected ExpenseStatus = "rejected"
)

// Expense origin distinguishes manually recorded outflows from ones that
// belong to a titled expense group. Legacy rows that carried the old
// notes sentinel are backfilled to manual by migration; runtime code
// only ever looks at this field.
const (
	OriginGrouped ExpenseOrigin = "grouped"
	OriginManual  ExpenseOrigin = "manual"
)

const (
	OccupantActive  OccupantStatus = "active"
	OccupantRemoved OccupantStatus = "removed"
)

type (
	SemesterStatus string
	LedgerCategory string
	EntryType      string
	ExpenseStatus  string
	ExpenseOrigin  string
	OccupantStatus string

	// Semester is one academic term for a dorm. A nil DormID marks a
	// global template row shared across dorms.
	Semester struct {
		ID         int64
		DormID     *int64
		SchoolYear string // "2025-2026"
		TermLabel  string // "1st Semester" | "2nd Semester"
		ShortLabel string // "25-26 1st"
		StartsOn   Date
		EndsOn     Date
		Status     SemesterStatus
	}

	// SemesterPlan carries the caller-supplied fields for a create or
	// update; IDs and status are assigned by the registry.
	SemesterPlan struct {
		SchoolYear string
		TermLabel  string
		ShortLabel string
		StartsOn   Date
		EndsOn     Date
	}

	// ArchiveSnapshot is the immutable audit record written once per
	// archive-and-rollover. Counts are informational; money rows are
	// never moved or deleted.
	ArchiveSnapshot struct {
		ID               int64
		SemesterID       int64
		Label            string
		CreatedAt        time.Time
		EventCount       int
		FineCount        int
		CleaningWeeks    int
		EvaluationCycles int
		FinancialSummary OutstandingBalance
	}

	// LedgerEntry is a signed financial record. Entries are immutable
	// once posted except for voiding and an administrative occupant
	// reassignment; they are never deleted.
	LedgerEntry struct {
		ID         int64
		DormID     int64
		SemesterID int64
		OccupantID *int64
		EventID    *int64
		Category   LedgerCategory
		EntryType  EntryType
		Amount     Money // positive = charge, negative = payment
		PostedAt   time.Time
		Note       string
		Metadata   EntryMetadata
		VoidedAt   *time.Time
	}

	Expense struct {
		ID                  int64
		DormID              int64
		SemesterID          int64
		Category            LedgerCategory
		Title               string
		Amount              Money // always positive
		PurchasedAt         Date
		Status              ExpenseStatus
		Origin              ExpenseOrigin
		GroupTitle          string // expense_group_title, may be empty
		ContributionRefName string // links a spend to the contribution that funded it
		TransparencyNotes   string
	}

	Occupant struct {
		ID     int64
		DormID int64
		Name   string
		Status OccupantStatus
	}

	RoomAssignment struct {
		ID         int64
		OccupantID int64
		RoomLabel  string
		StartsOn   Date
		EndsOn     *Date // nil while the assignment is open
	}

	// SemesterSnapshot is one element of the externally computed
	// opening-balance list: the running balance carried into the
	// semester as of the end of the previous one.
	SemesterSnapshot struct {
		SemesterID    int64
		SemesterLabel string
		StartsOn      Date
		HandoverIn    Money // signed
	}
)

// Voided reports whether the entry has been logically deleted. Voided
// entries are excluded from every aggregation but kept for audit.
func (e LedgerEntry) Voided() bool {
	return e.VoidedAt != nil
}

// IsPayment applies the sign convention: a negative amount is a payment,
// and the entry type is the authoritative tiebreak when the sign alone
// is ambiguous.
func (e LedgerEntry) IsPayment() bool {
	return e.Amount.IsNegative() || e.EntryType == EntryPayment
}

func (p SemesterPlan) Validate() error {
	if strings.TrimSpace(p.SchoolYear) == "" {
		return wrapValidation("school year is required")
	}
	if strings.TrimSpace(p.TermLabel) == "" {
		return wrapValidation("term label is required")
	}
	if err := p.StartsOn.Validate(); err != nil {
		return err
	}
	if err := p.EndsOn.Validate(); err != nil {
		return err
	}
	if p.StartsOn.After(p.EndsOn) {
		return ErrDateRange
	}
	return nil
}

// Label is the semester's display name, e.g. "1st Semester 2025-2026".
func (s Semester) Label() string {
	return s.TermLabel + " " + s.SchoolYear
}

// Contains reports whether day falls inside the semester's range.
func (s Semester) Contains(day Date) bool {
	return Covers(s.StartsOn, s.EndsOn, day)
}

func (x Expense) Validate() error {
	if strings.TrimSpace(x.Title) == "" {
		return wrapValidation("expense title is required")
	}
	if !x.Amount.IsPositive() {
		return wrapValidation("expense amount must be positive")
	}
	if err := x.PurchasedAt.Validate(); err != nil {
		return err
	}
	switch x.Status {
	case ExpensePending, ExpenseApproved, ExpenseRejected:
	default:
		return wrapValidation("unknown expense status %q", x.Status)
	}
	return nil
}

// Approved reports whether the expense counts against a fund balance.
func (x Expense) Approved() bool {
	return x.Status == ExpenseApproved
}

// GroupingTitle is the title expense rows group under: the explicit
// group title when present, the expense's own title otherwise.
func (x Expense) GroupingTitle() string {
	if t := strings.TrimSpace(x.GroupTitle); t != "" {
		return t
	}
	return strings.TrimSpace(x.Title)
}

// OutstandingBalance is the flat per-category reduction produced by the
// summarizer: signed sums of all non-voided entries, no grouping.
type OutstandingBalance struct {
	Total          Money
	MaintenanceFee Money
	SAFines        Money
	Contributions  Money
}

// ByCategory returns the per-category figure, zero for unknown names.
func (b OutstandingBalance) ByCategory(c LedgerCategory) Money {
	switch c {
	case CategoryMaintenanceFee:
		return b.MaintenanceFee
	case CategorySAFines:
		return b.SAFines
	case CategoryContributions:
		return b.Contributions
	}
	return ZeroMoney()
}
