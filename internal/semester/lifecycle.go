package semester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"dormy/internal/core"
	"dormy/internal/finance"
)

const (
	TermFirst  = "1st Semester"
	TermSecond = "2nd Semester"
)

// Coordinator drives the per-dorm lifecycle state machine:
// NoActiveSemester -> Active -> (Archived, new Active). Reads go through
// the registry; the archive transition runs as one transaction.
type Coordinator struct {
	store Store
	roles RoleResolver
	audit AuditSink
}

func NewCoordinator(store Store, roles RoleResolver, audit AuditSink) *Coordinator {
	return &Coordinator{store: store, roles: roles, audit: audit}
}

// ArchiveRequest carries the staff-supplied inputs of an
// archive-and-rollover.
type ArchiveRequest struct {
	DormID              int64
	ActiveSemesterID    int64
	NextPlan            core.SemesterPlan
	RetainedOccupantIDs []int64
	ApplyTurnover       bool
}

// EnsureActiveSemester resolves the semester covering today and, when
// none exists, creates and activates the inferred successor of the
// latest known semester. Idempotent: a second call while a semester is
// active changes nothing.
func (c *Coordinator) EnsureActiveSemester(ctx context.Context, scope Scope, today core.Date) (core.Semester, error) {
	registry := NewRegistry(c.store)
	if sem, err := registry.ResolveActiveSemester(ctx, scope, today); err == nil {
		return sem, nil
	} else if !isNotFound(err) {
		return core.Semester{}, err
	}

	semesters, err := c.store.SemestersInScope(ctx, scope)
	if err != nil {
		return core.Semester{}, fmt.Errorf("list semesters: %w", err)
	}
	plan := inferSuccessorPlan(latestSemester(semesters), today)
	plan = clampPlanToGap(plan, semesters, today)
	if err := plan.Validate(); err != nil {
		return core.Semester{}, err
	}
	if err := registry.checkOverlap(ctx, scope, plan, 0); err != nil {
		return core.Semester{}, err
	}
	sem := semesterFromPlan(scope, plan, core.SemesterActive)
	id, err := c.store.InsertSemester(ctx, sem)
	if err != nil {
		return core.Semester{}, fmt.Errorf("insert semester: %w", err)
	}
	sem.ID = id
	slog.InfoContext(ctx, "activated inferred semester",
		"semester_id", id, "label", sem.Label(), "starts_on", sem.StartsOn.String(), "ends_on", sem.EndsOn.String())
	return sem, nil
}

// ArchiveAndRollover performs the semester transition as a single
// all-or-nothing unit: snapshot, archive flip, next-semester insert,
// optional occupant turnover, activation. Ledger rows are never moved
// or zeroed; balances carry forward only through the handover figure.
func (c *Coordinator) ArchiveAndRollover(ctx context.Context, actorID int64, req ArchiveRequest) (core.Semester, error) {
	if err := c.requireStaffRole(ctx, actorID, req.DormID); err != nil {
		return core.Semester{}, err
	}
	if err := req.NextPlan.Validate(); err != nil {
		return core.Semester{}, err
	}

	retained := make(map[int64]bool, len(req.RetainedOccupantIDs))
	for _, id := range req.RetainedOccupantIDs {
		retained[id] = true
	}

	var next core.Semester
	err := c.store.WithinTx(ctx, func(tx Store) error {
		current, err := tx.SemesterByID(ctx, req.ActiveSemesterID)
		if err != nil {
			return err
		}
		if current.Status != core.SemesterActive {
			return fmt.Errorf("%w: semester %d is %s, not active", core.ErrConcurrentModification, current.ID, current.Status)
		}

		counts, err := tx.CountSemesterDependents(ctx, current.ID)
		if err != nil {
			return fmt.Errorf("count dependents: %w", err)
		}
		entries, err := tx.LedgerEntriesForDorm(ctx, req.DormID)
		if err != nil {
			return fmt.Errorf("fetch ledger entries: %w", err)
		}
		snap := core.ArchiveSnapshot{
			SemesterID:       current.ID,
			Label:            current.Label(),
			CreatedAt:        time.Now().UTC(),
			EventCount:       counts.Events,
			FineCount:        counts.Fines,
			CleaningWeeks:    counts.CleaningWeeks,
			EvaluationCycles: counts.EvaluationCycles,
			FinancialSummary: finance.Summarize(entries),
		}
		if _, err := tx.InsertArchiveSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("insert archive snapshot: %w", err)
		}

		// Optimistic guard: a racing transition has already flipped the
		// status, and this one must fail cleanly instead of
		// double-archiving.
		if err := tx.SetSemesterStatus(ctx, current.ID, core.SemesterActive, core.SemesterArchived); err != nil {
			return err
		}

		registry := NewRegistry(tx)
		if err := registry.checkOverlap(ctx, Scope{DormID: current.DormID}, req.NextPlan, 0); err != nil {
			return err
		}
		next = semesterFromPlan(Scope{DormID: current.DormID}, req.NextPlan, core.SemesterPlanned)
		nextID, err := tx.InsertSemester(ctx, next)
		if err != nil {
			return fmt.Errorf("insert next semester: %w", err)
		}
		next.ID = nextID

		if req.ApplyTurnover {
			if err := applyTurnover(ctx, tx, req.DormID, retained); err != nil {
				return err
			}
		}

		if err := tx.SetSemesterStatus(ctx, nextID, core.SemesterPlanned, core.SemesterActive); err != nil {
			return err
		}
		next.Status = core.SemesterActive
		return nil
	})
	if err != nil {
		return core.Semester{}, err
	}

	// Audit after commit; a sink failure never unwinds the rollover.
	c.audit.LogEvent(ctx, req.DormID, actorID, "semester.archive_rollover", "semester", req.ActiveSemesterID, map[string]any{
		"next_semester_id": next.ID,
		"next_label":       next.Label(),
		"turnover":         req.ApplyTurnover,
	})
	slog.InfoContext(ctx, "semester archived and rolled over",
		"dorm_id", req.DormID, "archived_id", req.ActiveSemesterID, "next_id", next.ID, "turnover", req.ApplyTurnover)
	return next, nil
}

// applyTurnover removes every active occupant not explicitly retained
// and closes their open room assignments as of today. Retained
// occupants are untouched.
func applyTurnover(ctx context.Context, tx Store, dormID int64, retained map[int64]bool) error {
	occupants, err := tx.ActiveOccupants(ctx, dormID)
	if err != nil {
		return fmt.Errorf("list active occupants: %w", err)
	}
	closedOn := core.Today()
	for _, occ := range occupants {
		if retained[occ.ID] {
			continue
		}
		if err := tx.RemoveOccupant(ctx, occ.ID, closedOn); err != nil {
			return fmt.Errorf("remove occupant %d: %w", occ.ID, err)
		}
	}
	return nil
}

func (c *Coordinator) requireStaffRole(ctx context.Context, actorID, dormID int64) error {
	role, err := c.roles.RoleOf(ctx, actorID, dormID)
	if err != nil {
		return fmt.Errorf("resolve role: %w", err)
	}
	if role != RoleAdmin && role != RoleAdviser {
		return fmt.Errorf("%w: role %q may not manage semesters", core.ErrPermission, role)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}

// latestSemester returns the semester with the greatest end date, zero
// value when none exist.
func latestSemester(semesters []core.Semester) core.Semester {
	var latest core.Semester
	for _, sem := range semesters {
		if latest.ID == 0 && latest.EndsOn.IsZero() {
			latest = sem
			continue
		}
		if sem.EndsOn.After(latest.EndsOn) {
			latest = sem
		}
	}
	return latest
}

// inferSuccessorPlan derives the next term deterministically: the term
// flips 1st <-> 2nd and the school year rolls at the 2nd -> 1st
// boundary. First terms run Aug 1 - Dec 31, second terms Jan 1 - Jun 30.
// With no prior semester at all, the plan is anchored on today. When
// today falls before the computed window (mid-year gaps), the window is
// widened backwards so the new semester actually covers today.
func inferSuccessorPlan(latest core.Semester, today core.Date) core.SemesterPlan {
	var plan core.SemesterPlan
	switch {
	case latest.EndsOn.IsZero():
		plan = planAnchoredOn(today)
	case strings.HasPrefix(latest.TermLabel, "1st"):
		startYear := schoolYearStart(latest.SchoolYear, today)
		plan = secondTermPlan(startYear)
	default:
		startYear := schoolYearStart(latest.SchoolYear, today) + 1
		plan = firstTermPlan(startYear)
	}
	if today.Before(plan.StartsOn) {
		plan.StartsOn = today
	}
	if today.After(plan.EndsOn) {
		plan.EndsOn = core.NewDate(today.Year(), 12, 31)
	}
	return plan
}

// clampPlanToGap shrinks an inferred plan to the free window around
// today: the widened bounds may not reach back into a semester that
// ended before today nor forward into one that starts after it. The
// clamped plan still covers today, and it upholds the no-overlap
// invariant even though the insert bypasses the registry's create path.
func clampPlanToGap(plan core.SemesterPlan, semesters []core.Semester, today core.Date) core.SemesterPlan {
	for _, sem := range semesters {
		if sem.EndsOn.Before(today) && !sem.EndsOn.Before(plan.StartsOn) {
			plan.StartsOn = sem.EndsOn.AddDays(1)
		}
		if sem.StartsOn.After(today) && !sem.StartsOn.After(plan.EndsOn) {
			plan.EndsOn = sem.StartsOn.AddDays(-1)
		}
	}
	return plan
}

func planAnchoredOn(today core.Date) core.SemesterPlan {
	if int(today.Month()) >= 7 {
		return firstTermPlan(today.Year())
	}
	return secondTermPlan(today.Year() - 1)
}

func firstTermPlan(startYear int) core.SemesterPlan {
	return core.SemesterPlan{
		SchoolYear: schoolYearLabel(startYear),
		TermLabel:  TermFirst,
		ShortLabel: shortLabel(startYear, "1st"),
		StartsOn:   core.NewDate(startYear, 8, 1),
		EndsOn:     core.NewDate(startYear, 12, 31),
	}
}

func secondTermPlan(startYear int) core.SemesterPlan {
	return core.SemesterPlan{
		SchoolYear: schoolYearLabel(startYear),
		TermLabel:  TermSecond,
		ShortLabel: shortLabel(startYear, "2nd"),
		StartsOn:   core.NewDate(startYear+1, 1, 1),
		EndsOn:     core.NewDate(startYear+1, 6, 30),
	}
}

func schoolYearLabel(startYear int) string {
	return fmt.Sprintf("%d-%d", startYear, startYear+1)
}

func shortLabel(startYear int, term string) string {
	return fmt.Sprintf("%02d-%02d %s", startYear%100, (startYear+1)%100, term)
}

// schoolYearStart parses the leading year of a "2025-2026" label,
// falling back to today's year when the label is malformed.
func schoolYearStart(label string, today core.Date) int {
	head, _, _ := strings.Cut(label, "-")
	if y, err := strconv.Atoi(strings.TrimSpace(head)); err == nil && y > 0 {
		return y
	}
	return today.Year()
}
