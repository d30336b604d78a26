// Package semester holds the semester registry (CRUD over term plans
// with overlap validation) and the lifecycle coordinator that runs the
// archive-and-rollover transition.
package semester

import (
	"context"

	"dormy/internal/core"
)

// Scope selects which semesters an operation sees: one dorm's rows, or
// the global template rows when DormID is nil.
type Scope struct {
	DormID *int64
}

func DormScope(dormID int64) Scope {
	return Scope{DormID: &dormID}
}

func GlobalScope() Scope {
	return Scope{}
}

// DependentCounts are the per-semester record counts frozen into an
// archive snapshot.
type DependentCounts struct {
	Events           int
	Fines            int
	CleaningWeeks    int
	EvaluationCycles int
}

// Total is the number of rows blocking a semester delete.
func (c DependentCounts) Total() int {
	return c.Events + c.Fines + c.CleaningWeeks + c.EvaluationCycles
}

// Store is the write-capable slice of the row store the registry and
// coordinator operate on. WithinTx runs fn against a transactional view
// of the same store; any error aborts the whole transaction.
type Store interface {
	SemesterByID(ctx context.Context, id int64) (core.Semester, error)
	SemestersInScope(ctx context.Context, scope Scope) ([]core.Semester, error)
	InsertSemester(ctx context.Context, s core.Semester) (int64, error)
	UpdateSemester(ctx context.Context, s core.Semester) error
	DeleteSemester(ctx context.Context, id int64) error
	// SetSemesterStatus flips status only when the row still holds
	// expect, reporting core.ErrConcurrentModification otherwise.
	SetSemesterStatus(ctx context.Context, id int64, expect, next core.SemesterStatus) error

	CountSemesterDependents(ctx context.Context, semesterID int64) (DependentCounts, error)
	InsertArchiveSnapshot(ctx context.Context, snap core.ArchiveSnapshot) (int64, error)

	ActiveOccupants(ctx context.Context, dormID int64) ([]core.Occupant, error)
	RemoveOccupant(ctx context.Context, occupantID int64, closedOn core.Date) error

	LedgerEntriesForDorm(ctx context.Context, dormID int64) ([]core.LedgerEntry, error)

	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// RoleResolver is the permission collaborator. It returns the caller's
// role for the dorm scope, empty when the caller has none.
type RoleResolver interface {
	RoleOf(ctx context.Context, userID, dormID int64) (string, error)
}

// AuditSink records staff actions. Best effort: implementations must
// not fail the operation they are recording.
type AuditSink interface {
	LogEvent(ctx context.Context, dormID, actorID int64, action, entityType string, entityID int64, metadata map[string]any)
}

// Roles allowed to drive semester transitions.
const (
	RoleAdmin   = "admin"
	RoleAdviser = "adviser"
)
