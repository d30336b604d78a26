package finance

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"dormy/internal/core"
)

// Store is the filtered read surface of the row store the finance views
// pull from. A nil semester-id slice means "all semesters"; an empty
// category means "all categories".
type Store interface {
	LedgerEntries(ctx context.Context, dormID int64, semesterIDs []int64, category core.LedgerCategory, excludeVoided bool) ([]core.LedgerEntry, error)
	Expenses(ctx context.Context, dormID int64, semesterIDs []int64, category core.LedgerCategory) ([]core.Expense, error)
	EventTitles(ctx context.Context, dormID int64, eventIDs []int64) (map[int64]string, error)
	SemestersByID(ctx context.Context, ids []int64) (map[int64]core.Semester, error)
}

// SnapshotProvider supplies the externally computed per-semester opening
// balances, ordered chronologically.
type SnapshotProvider interface {
	SemesterSnapshots(ctx context.Context, dormID int64) ([]core.SemesterSnapshot, error)
}

// Service owns read orchestration: it fetches the independent row sets
// concurrently, then runs the synchronous grouping pass. It holds no
// state between calls, so any number of requests may run in parallel.
type Service struct {
	store     Store
	snapshots SnapshotProvider
}

func NewService(store Store, snapshots SnapshotProvider) *Service {
	return &Service{store: store, snapshots: snapshots}
}

// ContributionView fetches the contribution rows for the selected
// semesters and builds the merged financial stream.
func (s *Service) ContributionView(ctx context.Context, dormID int64, semesterIDs []int64, search string) (View, error) {
	in, err := s.fetchInput(ctx, dormID, semesterIDs)
	if err != nil {
		return View{}, err
	}
	view := BuildView(in, search)
	slog.DebugContext(ctx, "built contribution view",
		"dorm_id", dormID,
		"semesters", len(semesterIDs),
		"contribution_groups", len(view.Contributions),
		"expense_groups", len(view.ExpenseGroups),
		"stream_rows", len(view.Stream))
	return view, nil
}

// OutstandingBalances reduces every non-voided entry for the dorm into
// the per-category outstanding totals. An empty semesterIDs slice spans
// all semesters.
func (s *Service) OutstandingBalances(ctx context.Context, dormID int64, semesterIDs []int64) (core.OutstandingBalance, error) {
	entries, err := s.store.LedgerEntries(ctx, dormID, semesterIDs, "", true)
	if err != nil {
		return core.OutstandingBalance{}, fmt.Errorf("fetch ledger entries: %w", err)
	}
	return Summarize(entries), nil
}

// fetchInput pulls the independent row sets in parallel. Event titles
// depend on the entry rows, so they are chained after entries inside the
// same goroutine while expenses, semesters and snapshots load alongside.
func (s *Service) fetchInput(ctx context.Context, dormID int64, semesterIDs []int64) (Input, error) {
	in := Input{SemesterIDs: semesterIDs}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		entries, err := s.store.LedgerEntries(gctx, dormID, semesterIDs, core.CategoryContributions, true)
		if err != nil {
			return fmt.Errorf("fetch ledger entries: %w", err)
		}
		in.Entries = entries
		titles, err := s.store.EventTitles(gctx, dormID, eventIDs(entries))
		if err != nil {
			return fmt.Errorf("fetch event titles: %w", err)
		}
		in.EventTitles = titles
		return nil
	})
	g.Go(func() error {
		expenses, err := s.store.Expenses(gctx, dormID, semesterIDs, core.CategoryContributions)
		if err != nil {
			return fmt.Errorf("fetch expenses: %w", err)
		}
		in.Expenses = expenses
		return nil
	})
	g.Go(func() error {
		semesters, err := s.store.SemestersByID(gctx, semesterIDs)
		if err != nil {
			return fmt.Errorf("fetch semesters: %w", err)
		}
		in.Semesters = semesters
		return nil
	})
	g.Go(func() error {
		snaps, err := s.snapshots.SemesterSnapshots(gctx, dormID)
		if err != nil {
			return fmt.Errorf("fetch semester snapshots: %w", err)
		}
		in.Snapshots = snaps
		return nil
	})

	if err := g.Wait(); err != nil {
		return Input{}, err
	}
	return in, nil
}

func eventIDs(entries []core.LedgerEntry) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, e := range entries {
		if e.EventID == nil || seen[*e.EventID] {
			continue
		}
		seen[*e.EventID] = true
		ids = append(ids, *e.EventID)
	}
	return ids
}
