package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dormy/internal/core"
)

const ledgerColumns = "id, dorm_id, semester_id, occupant_id, event_id, category, entry_type, amount, posted_at, note, metadata, voided_at"

// LedgerEntries reads entries filtered by dorm, semesters and category.
// A nil semesterIDs slice spans all semesters; an empty category spans
// all categories. Rows come back ordered by id so grouping passes see a
// stable input order.
func (r *Repository) LedgerEntries(ctx context.Context, dormID int64, semesterIDs []int64, category core.LedgerCategory, excludeVoided bool) ([]core.LedgerEntry, error) {
	query := "SELECT " + ledgerColumns + " FROM ledger_entries WHERE dorm_id = ?"
	args := []any{dormID}
	if len(semesterIDs) > 0 {
		query += " AND semester_id IN (" + placeholders(len(semesterIDs)) + ")"
		args = append(args, int64Args(semesterIDs)...)
	}
	if category != "" {
		query += " AND category = ?"
		args = append(args, string(category))
	}
	if excludeVoided {
		query += " AND voided_at IS NULL"
	}
	query += " ORDER BY id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []core.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LedgerEntriesForDorm is the summarizer's read: every non-voided entry
// for the dorm across all semesters and categories.
func (r *Repository) LedgerEntriesForDorm(ctx context.Context, dormID int64) ([]core.LedgerEntry, error) {
	return r.LedgerEntries(ctx, dormID, nil, "", true)
}

func (r *Repository) InsertLedgerEntry(ctx context.Context, e core.LedgerEntry, rawMetadata []byte) (int64, error) {
	metadata := string(rawMetadata)
	if metadata == "" {
		metadata = "{}"
	}
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO ledger_entries
		 (dorm_id, semester_id, occupant_id, event_id, category, entry_type, amount, posted_at, note, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DormID, e.SemesterID, e.OccupantID, e.EventID,
		string(e.Category), string(e.EntryType), encodeMoney(e.Amount),
		encodeTime(e.PostedAt), e.Note, metadata)
	if err != nil {
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}
	return res.LastInsertId()
}

// VoidLedgerEntry logically deletes an entry. Already-voided entries
// stay untouched; the void timestamp is written once.
func (r *Repository) VoidLedgerEntry(ctx context.Context, id int64, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE ledger_entries SET voided_at = ? WHERE id = ? AND voided_at IS NULL",
		encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("void ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: ledger entry %d (missing or already voided)", core.ErrNotFound, id)
	}
	return nil
}

// ReassignLedgerEntry is the administrative occupant override, the only
// mutation allowed on a posted entry apart from voiding.
func (r *Repository) ReassignLedgerEntry(ctx context.Context, id int64, occupantID *int64) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE ledger_entries SET occupant_id = ? WHERE id = ?", occupantID, id)
	if err != nil {
		return fmt.Errorf("reassign ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: ledger entry %d", core.ErrNotFound, id)
	}
	return nil
}

func (r *Repository) Expenses(ctx context.Context, dormID int64, semesterIDs []int64, category core.LedgerCategory) ([]core.Expense, error) {
	query := `SELECT id, dorm_id, semester_id, category, title, amount, purchased_at, status, origin,
	                 expense_group_title, contribution_ref_title, transparency_notes
	          FROM expenses WHERE dorm_id = ?`
	args := []any{dormID}
	if len(semesterIDs) > 0 {
		query += " AND semester_id IN (" + placeholders(len(semesterIDs)) + ")"
		args = append(args, int64Args(semesterIDs)...)
	}
	if category != "" {
		query += " AND category = ?"
		args = append(args, string(category))
	}
	query += " ORDER BY id"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var x core.Expense
		var category, amount, purchasedAt, status, origin string
		if err := rows.Scan(&x.ID, &x.DormID, &x.SemesterID, &category, &x.Title, &amount, &purchasedAt,
			&status, &origin, &x.GroupTitle, &x.ContributionRefName, &x.TransparencyNotes); err != nil {
			return nil, err
		}
		x.Category = core.LedgerCategory(category)
		x.Status = core.ExpenseStatus(status)
		x.Origin = core.ExpenseOrigin(origin)
		if x.Amount, err = decodeMoney(amount); err != nil {
			return nil, err
		}
		if x.PurchasedAt, err = decodeDate(purchasedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, x)
	}
	return expenses, rows.Err()
}

func (r *Repository) InsertExpense(ctx context.Context, x core.Expense) (int64, error) {
	if err := x.Validate(); err != nil {
		return 0, err
	}
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO expenses
		 (dorm_id, semester_id, category, title, amount, purchased_at, status, origin,
		  expense_group_title, contribution_ref_title, transparency_notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		x.DormID, x.SemesterID, string(x.Category), x.Title, encodeMoney(x.Amount),
		encodeDate(x.PurchasedAt), string(x.Status), string(x.Origin),
		x.GroupTitle, x.ContributionRefName, x.TransparencyNotes)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	return res.LastInsertId()
}

func (r *Repository) SetExpenseStatus(ctx context.Context, id int64, status core.ExpenseStatus) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE expenses SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("set expense status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: expense %d", core.ErrNotFound, id)
	}
	return nil
}

func (r *Repository) EventTitles(ctx context.Context, dormID int64, eventIDs []int64) (map[int64]string, error) {
	titles := make(map[int64]string, len(eventIDs))
	if len(eventIDs) == 0 {
		return titles, nil
	}
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, title FROM events WHERE dorm_id = ? AND id IN ("+placeholders(len(eventIDs))+")",
		append([]any{dormID}, int64Args(eventIDs)...)...)
	if err != nil {
		return nil, fmt.Errorf("query event titles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, err
		}
		titles[id] = title
	}
	return titles, rows.Err()
}

func (r *Repository) InsertEvent(ctx context.Context, dormID, semesterID int64, title string) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO events (dorm_id, semester_id, title) VALUES (?, ?, ?)",
		dormID, semesterID, title)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

func scanLedgerEntry(rows *sql.Rows) (core.LedgerEntry, error) {
	var e core.LedgerEntry
	var occupantID, eventID sql.NullInt64
	var category, entryType, amount, postedAt, metadata string
	var voidedAt sql.NullString
	if err := rows.Scan(&e.ID, &e.DormID, &e.SemesterID, &occupantID, &eventID,
		&category, &entryType, &amount, &postedAt, &e.Note, &metadata, &voidedAt); err != nil {
		return core.LedgerEntry{}, err
	}
	if occupantID.Valid {
		e.OccupantID = &occupantID.Int64
	}
	if eventID.Valid {
		e.EventID = &eventID.Int64
	}
	e.Category = core.LedgerCategory(category)
	e.EntryType = core.EntryType(entryType)

	var err error
	if e.Amount, err = decodeMoney(amount); err != nil {
		return core.LedgerEntry{}, err
	}
	if e.PostedAt, err = decodeTime(postedAt); err != nil {
		return core.LedgerEntry{}, err
	}
	if voidedAt.Valid {
		t, err := decodeTime(voidedAt.String)
		if err != nil {
			return core.LedgerEntry{}, err
		}
		e.VoidedAt = &t
	}
	e.Metadata = core.DecodeEntryMetadata([]byte(metadata))
	return e, nil
}
