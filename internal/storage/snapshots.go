package storage

import (
	"context"
	"fmt"
	"sort"

	"dormy/internal/core"
	"dormy/internal/semester"
)

// SemesterSnapshots produces the chronologically ordered opening-balance
// list the grouping engine consumes. The handover into semester n is the
// running balance through the end of semester n-1: payments collected
// minus approved expenses, accumulated across all earlier semesters.
// The first semester always opens at zero.
func (r *Repository) SemesterSnapshots(ctx context.Context, dormID int64) ([]core.SemesterSnapshot, error) {
	semesters, err := r.SemestersInScope(ctx, semester.DormScope(dormID))
	if err != nil {
		return nil, err
	}
	if len(semesters) == 0 {
		return nil, nil
	}
	sort.SliceStable(semesters, func(i, j int) bool {
		return semesters[i].StartsOn.Before(semesters[j].StartsOn)
	})

	entries, err := r.LedgerEntriesForDorm(ctx, dormID)
	if err != nil {
		return nil, err
	}
	expenses, err := r.Expenses(ctx, dormID, nil, "")
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}

	collectedBySemester := make(map[int64]core.Money)
	for _, e := range entries {
		if !e.IsPayment() {
			continue
		}
		prev, ok := collectedBySemester[e.SemesterID]
		if !ok {
			prev = core.ZeroMoney()
		}
		collectedBySemester[e.SemesterID] = prev.Add(e.Amount.Abs())
	}
	spentBySemester := make(map[int64]core.Money)
	for _, x := range expenses {
		if !x.Approved() {
			continue
		}
		prev, ok := spentBySemester[x.SemesterID]
		if !ok {
			prev = core.ZeroMoney()
		}
		spentBySemester[x.SemesterID] = prev.Add(x.Amount)
	}

	snapshots := make([]core.SemesterSnapshot, 0, len(semesters))
	running := core.ZeroMoney()
	for _, sem := range semesters {
		snapshots = append(snapshots, core.SemesterSnapshot{
			SemesterID:    sem.ID,
			SemesterLabel: sem.ShortLabel,
			StartsOn:      sem.StartsOn,
			HandoverIn:    running.Round2(),
		})
		if collected, ok := collectedBySemester[sem.ID]; ok {
			running = running.Add(collected)
		}
		if spent, ok := spentBySemester[sem.ID]; ok {
			running = running.Sub(spent)
		}
	}
	return snapshots, nil
}
