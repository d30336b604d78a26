package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dormy/internal/core"
	"dormy/internal/semester"
)

const semesterColumns = "id, dorm_id, school_year, term_label, short_label, starts_on, ends_on, status"

func (r *Repository) SemesterByID(ctx context.Context, id int64) (core.Semester, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+semesterColumns+" FROM semesters WHERE id = ?", id)
	sem, err := scanSemester(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Semester{}, fmt.Errorf("%w: semester %d", core.ErrNotFound, id)
	}
	return sem, err
}

func (r *Repository) SemestersInScope(ctx context.Context, scope semester.Scope) ([]core.Semester, error) {
	query := "SELECT " + semesterColumns + " FROM semesters WHERE dorm_id IS NULL ORDER BY starts_on"
	var args []any
	if scope.DormID != nil {
		query = "SELECT " + semesterColumns + " FROM semesters WHERE dorm_id = ? ORDER BY starts_on"
		args = append(args, *scope.DormID)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query semesters: %w", err)
	}
	defer rows.Close()

	var semesters []core.Semester
	for rows.Next() {
		sem, err := scanSemester(rows)
		if err != nil {
			return nil, err
		}
		semesters = append(semesters, sem)
	}
	return semesters, rows.Err()
}

func (r *Repository) SemestersByID(ctx context.Context, ids []int64) (map[int64]core.Semester, error) {
	out := make(map[int64]core.Semester, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+semesterColumns+" FROM semesters WHERE id IN ("+placeholders(len(ids))+")",
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query semesters by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sem, err := scanSemester(rows)
		if err != nil {
			return nil, err
		}
		out[sem.ID] = sem
	}
	return out, rows.Err()
}

func (r *Repository) InsertSemester(ctx context.Context, s core.Semester) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO semesters (dorm_id, school_year, term_label, short_label, starts_on, ends_on, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.DormID, s.SchoolYear, s.TermLabel, s.ShortLabel,
		encodeDate(s.StartsOn), encodeDate(s.EndsOn), string(s.Status))
	if err != nil {
		return 0, fmt.Errorf("insert semester: %w", err)
	}
	return res.LastInsertId()
}

func (r *Repository) UpdateSemester(ctx context.Context, s core.Semester) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE semesters
		 SET school_year = ?, term_label = ?, short_label = ?, starts_on = ?, ends_on = ?, status = ?
		 WHERE id = ?`,
		s.SchoolYear, s.TermLabel, s.ShortLabel,
		encodeDate(s.StartsOn), encodeDate(s.EndsOn), string(s.Status), s.ID)
	if err != nil {
		return fmt.Errorf("update semester: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: semester %d", core.ErrNotFound, s.ID)
	}
	return nil
}

func (r *Repository) DeleteSemester(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM semesters WHERE id = ?", id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: semester %d", core.ErrForeignKeyConflict, id)
	}
	if err != nil {
		return fmt.Errorf("delete semester: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: semester %d", core.ErrNotFound, id)
	}
	return nil
}

// SetSemesterStatus is the optimistic archive guard: the flip applies
// only when the row still holds the expected status.
func (r *Repository) SetSemesterStatus(ctx context.Context, id int64, expect, next core.SemesterStatus) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE semesters SET status = ? WHERE id = ? AND status = ?",
		string(next), id, string(expect))
	if err != nil {
		return fmt.Errorf("set semester status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: semester %d is no longer %s", core.ErrConcurrentModification, id, expect)
	}
	return nil
}

func (r *Repository) CountSemesterDependents(ctx context.Context, semesterID int64) (semester.DependentCounts, error) {
	var counts semester.DependentCounts
	row := r.q.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM events WHERE semester_id = ?),
			(SELECT COUNT(*) FROM fines WHERE semester_id = ?),
			(SELECT COUNT(*) FROM cleaning_weeks WHERE semester_id = ?),
			(SELECT COUNT(*) FROM evaluation_cycles WHERE semester_id = ?)`,
		semesterID, semesterID, semesterID, semesterID)
	if err := row.Scan(&counts.Events, &counts.Fines, &counts.CleaningWeeks, &counts.EvaluationCycles); err != nil {
		return counts, fmt.Errorf("count semester dependents: %w", err)
	}
	// Ledger rows are not frozen into snapshot counts; they still block
	// deletes through the foreign-key constraint in DeleteSemester.
	return counts, nil
}

func (r *Repository) InsertArchiveSnapshot(ctx context.Context, snap core.ArchiveSnapshot) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO semester_archives
		 (semester_id, label, created_at, event_count, fine_count, cleaning_weeks, evaluation_cycles,
		  total_outstanding, maintenance_fee_total, sa_fines_total, contributions_total)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SemesterID, snap.Label, encodeTime(snap.CreatedAt),
		snap.EventCount, snap.FineCount, snap.CleaningWeeks, snap.EvaluationCycles,
		encodeMoney(snap.FinancialSummary.Total),
		encodeMoney(snap.FinancialSummary.MaintenanceFee),
		encodeMoney(snap.FinancialSummary.SAFines),
		encodeMoney(snap.FinancialSummary.Contributions))
	if err != nil {
		return 0, fmt.Errorf("insert archive snapshot: %w", err)
	}
	return res.LastInsertId()
}

func (r *Repository) ActiveOccupants(ctx context.Context, dormID int64) ([]core.Occupant, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, dorm_id, name, status FROM occupants WHERE dorm_id = ? AND status = ? ORDER BY id",
		dormID, string(core.OccupantActive))
	if err != nil {
		return nil, fmt.Errorf("query active occupants: %w", err)
	}
	defer rows.Close()

	var occupants []core.Occupant
	for rows.Next() {
		var occ core.Occupant
		var status string
		if err := rows.Scan(&occ.ID, &occ.DormID, &occ.Name, &status); err != nil {
			return nil, err
		}
		occ.Status = core.OccupantStatus(status)
		occupants = append(occupants, occ)
	}
	return occupants, rows.Err()
}

// RemoveOccupant marks the occupant removed and closes any open room
// assignment as of closedOn.
func (r *Repository) RemoveOccupant(ctx context.Context, occupantID int64, closedOn core.Date) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE occupants SET status = ? WHERE id = ?",
		string(core.OccupantRemoved), occupantID)
	if err != nil {
		return fmt.Errorf("update occupant status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: occupant %d", core.ErrNotFound, occupantID)
	}
	_, err = r.q.ExecContext(ctx,
		"UPDATE room_assignments SET ends_on = ? WHERE occupant_id = ? AND ends_on IS NULL",
		encodeDate(closedOn), occupantID)
	if err != nil {
		return fmt.Errorf("close room assignments: %w", err)
	}
	return nil
}

func (r *Repository) InsertOccupant(ctx context.Context, occ core.Occupant) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO occupants (dorm_id, name, status) VALUES (?, ?, ?)",
		occ.DormID, occ.Name, string(occ.Status))
	if err != nil {
		return 0, fmt.Errorf("insert occupant: %w", err)
	}
	return res.LastInsertId()
}

func (r *Repository) InsertRoomAssignment(ctx context.Context, a core.RoomAssignment) (int64, error) {
	var endsOn any
	if a.EndsOn != nil {
		endsOn = encodeDate(*a.EndsOn)
	}
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO room_assignments (occupant_id, room_label, starts_on, ends_on) VALUES (?, ?, ?, ?)",
		a.OccupantID, a.RoomLabel, encodeDate(a.StartsOn), endsOn)
	if err != nil {
		return 0, fmt.Errorf("insert room assignment: %w", err)
	}
	return res.LastInsertId()
}

// OpenAssignments returns the occupant's room assignments that have no
// end date yet.
func (r *Repository) OpenAssignments(ctx context.Context, occupantID int64) ([]core.RoomAssignment, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, occupant_id, room_label, starts_on, ends_on FROM room_assignments WHERE occupant_id = ? AND ends_on IS NULL",
		occupantID)
	if err != nil {
		return nil, fmt.Errorf("query open assignments: %w", err)
	}
	defer rows.Close()

	var assignments []core.RoomAssignment
	for rows.Next() {
		var a core.RoomAssignment
		var startsOn string
		var endsOn sql.NullString
		if err := rows.Scan(&a.ID, &a.OccupantID, &a.RoomLabel, &startsOn, &endsOn); err != nil {
			return nil, err
		}
		if a.StartsOn, err = decodeDate(startsOn); err != nil {
			return nil, err
		}
		if endsOn.Valid {
			d, err := decodeDate(endsOn.String)
			if err != nil {
				return nil, err
			}
			a.EndsOn = &d
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSemester(row rowScanner) (core.Semester, error) {
	var sem core.Semester
	var dormID sql.NullInt64
	var startsOn, endsOn, status string
	if err := row.Scan(&sem.ID, &dormID, &sem.SchoolYear, &sem.TermLabel, &sem.ShortLabel, &startsOn, &endsOn, &status); err != nil {
		return core.Semester{}, err
	}
	if dormID.Valid {
		sem.DormID = &dormID.Int64
	}
	var err error
	if sem.StartsOn, err = decodeDate(startsOn); err != nil {
		return core.Semester{}, err
	}
	if sem.EndsOn, err = decodeDate(endsOn); err != nil {
		return core.Semester{}, err
	}
	sem.Status = core.SemesterStatus(status)
	return sem, nil
}
