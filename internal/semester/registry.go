package semester

import (
	"context"
	"fmt"
	"log/slog"

	"dormy/internal/core"
)

// Registry is CRUD over semester plans plus active-semester resolution.
// It validates date ranges and the no-overlap invariant; it never
// auto-creates (that is the coordinator's job).
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// CreateSemester validates the plan against the overlap invariant and
// inserts it as planned.
func (r *Registry) CreateSemester(ctx context.Context, scope Scope, plan core.SemesterPlan) (core.Semester, error) {
	if err := plan.Validate(); err != nil {
		return core.Semester{}, err
	}
	if err := r.checkOverlap(ctx, scope, plan, 0); err != nil {
		return core.Semester{}, err
	}
	sem := semesterFromPlan(scope, plan, core.SemesterPlanned)
	id, err := r.store.InsertSemester(ctx, sem)
	if err != nil {
		return core.Semester{}, fmt.Errorf("insert semester: %w", err)
	}
	sem.ID = id
	slog.InfoContext(ctx, "semester created",
		"semester_id", id, "label", sem.Label(), "starts_on", sem.StartsOn.String(), "ends_on", sem.EndsOn.String())
	return sem, nil
}

// UpdateSemester replaces the plan fields of an existing semester,
// re-checking the overlap invariant against every other semester in
// scope.
func (r *Registry) UpdateSemester(ctx context.Context, scope Scope, id int64, plan core.SemesterPlan) (core.Semester, error) {
	if err := plan.Validate(); err != nil {
		return core.Semester{}, err
	}
	existing, err := r.store.SemesterByID(ctx, id)
	if err != nil {
		return core.Semester{}, err
	}
	if err := r.checkOverlap(ctx, scope, plan, id); err != nil {
		return core.Semester{}, err
	}
	existing.SchoolYear = plan.SchoolYear
	existing.TermLabel = plan.TermLabel
	existing.ShortLabel = plan.ShortLabel
	existing.StartsOn = plan.StartsOn
	existing.EndsOn = plan.EndsOn
	if err := r.store.UpdateSemester(ctx, existing); err != nil {
		return core.Semester{}, fmt.Errorf("update semester: %w", err)
	}
	return existing, nil
}

// DeleteSemester removes a semester that owns no dependent records. The
// foreign-key conflict is surfaced to the caller, never retried.
func (r *Registry) DeleteSemester(ctx context.Context, scope Scope, id int64) error {
	counts, err := r.store.CountSemesterDependents(ctx, id)
	if err != nil {
		return fmt.Errorf("count dependents: %w", err)
	}
	if counts.Total() > 0 {
		return fmt.Errorf("%w: semester %d has %d dependent rows", core.ErrForeignKeyConflict, id, counts.Total())
	}
	return r.store.DeleteSemester(ctx, id)
}

// ResolveActiveSemester picks the semester whose date range contains
// asOf. Temporal containment, not the status column, decides; the
// overlap invariant guarantees at most one match.
func (r *Registry) ResolveActiveSemester(ctx context.Context, scope Scope, asOf core.Date) (core.Semester, error) {
	semesters, err := r.store.SemestersInScope(ctx, scope)
	if err != nil {
		return core.Semester{}, fmt.Errorf("list semesters: %w", err)
	}
	for _, sem := range semesters {
		if sem.Contains(asOf) {
			return sem, nil
		}
	}
	return core.Semester{}, fmt.Errorf("%w: no semester covers %s", core.ErrNotFound, asOf)
}

func (r *Registry) ListSemesters(ctx context.Context, scope Scope) ([]core.Semester, error) {
	return r.store.SemestersInScope(ctx, scope)
}

// checkOverlap rejects a plan whose inclusive range intersects any other
// semester in scope. excludeID skips the semester being updated.
func (r *Registry) checkOverlap(ctx context.Context, scope Scope, plan core.SemesterPlan, excludeID int64) error {
	semesters, err := r.store.SemestersInScope(ctx, scope)
	if err != nil {
		return fmt.Errorf("list semesters: %w", err)
	}
	for _, sem := range semesters {
		if sem.ID == excludeID {
			continue
		}
		if core.RangesOverlap(sem.StartsOn, sem.EndsOn, plan.StartsOn, plan.EndsOn) {
			return fmt.Errorf("%w: %s to %s conflicts with %s (%s to %s)",
				core.ErrOverlap, plan.StartsOn, plan.EndsOn, sem.Label(), sem.StartsOn, sem.EndsOn)
		}
	}
	return nil
}

func semesterFromPlan(scope Scope, plan core.SemesterPlan, status core.SemesterStatus) core.Semester {
	return core.Semester{
		DormID:     scope.DormID,
		SchoolYear: plan.SchoolYear,
		TermLabel:  plan.TermLabel,
		ShortLabel: plan.ShortLabel,
		StartsOn:   plan.StartsOn,
		EndsOn:     plan.EndsOn,
		Status:     status,
	}
}
