package semester

import (
	"context"
	"fmt"

	"dormy/internal/core"
)

// memStore is an in-memory Store with copy-on-write transactions: fn
// runs against a deep copy and the copy replaces the original only on
// success. That gives the tests real all-or-nothing semantics to probe.
type memStore struct {
	nextID      int64
	semesters   map[int64]core.Semester
	snapshots   []core.ArchiveSnapshot
	occupants   map[int64]core.Occupant
	assignments map[int64]core.RoomAssignment
	entries     []core.LedgerEntry
	dependents  map[int64]DependentCounts
	removedOn   map[int64]core.Date
}

func newMemStore() *memStore {
	return &memStore{
		nextID:      1,
		semesters:   make(map[int64]core.Semester),
		occupants:   make(map[int64]core.Occupant),
		assignments: make(map[int64]core.RoomAssignment),
		dependents:  make(map[int64]DependentCounts),
		removedOn:   make(map[int64]core.Date),
	}
}

func (m *memStore) clone() *memStore {
	c := newMemStore()
	c.nextID = m.nextID
	for k, v := range m.semesters {
		c.semesters[k] = v
	}
	c.snapshots = append(c.snapshots, m.snapshots...)
	for k, v := range m.occupants {
		c.occupants[k] = v
	}
	for k, v := range m.assignments {
		c.assignments[k] = v
	}
	c.entries = append(c.entries, m.entries...)
	for k, v := range m.dependents {
		c.dependents[k] = v
	}
	for k, v := range m.removedOn {
		c.removedOn[k] = v
	}
	return c
}

func (m *memStore) replaceWith(other *memStore) {
	m.nextID = other.nextID
	m.semesters = other.semesters
	m.snapshots = other.snapshots
	m.occupants = other.occupants
	m.assignments = other.assignments
	m.entries = other.entries
	m.dependents = other.dependents
	m.removedOn = other.removedOn
}

func (m *memStore) WithinTx(_ context.Context, fn func(tx Store) error) error {
	tx := m.clone()
	if err := fn(tx); err != nil {
		return err
	}
	m.replaceWith(tx)
	return nil
}

func (m *memStore) SemesterByID(_ context.Context, id int64) (core.Semester, error) {
	sem, ok := m.semesters[id]
	if !ok {
		return core.Semester{}, fmt.Errorf("%w: semester %d", core.ErrNotFound, id)
	}
	return sem, nil
}

func (m *memStore) SemestersInScope(_ context.Context, scope Scope) ([]core.Semester, error) {
	var out []core.Semester
	for id := int64(1); id < m.nextID; id++ {
		sem, ok := m.semesters[id]
		if !ok {
			continue
		}
		if scope.DormID == nil {
			if sem.DormID == nil {
				out = append(out, sem)
			}
		} else if sem.DormID != nil && *sem.DormID == *scope.DormID {
			out = append(out, sem)
		}
	}
	return out, nil
}

func (m *memStore) InsertSemester(_ context.Context, s core.Semester) (int64, error) {
	s.ID = m.nextID
	m.nextID++
	m.semesters[s.ID] = s
	return s.ID, nil
}

func (m *memStore) UpdateSemester(_ context.Context, s core.Semester) error {
	if _, ok := m.semesters[s.ID]; !ok {
		return fmt.Errorf("%w: semester %d", core.ErrNotFound, s.ID)
	}
	m.semesters[s.ID] = s
	return nil
}

func (m *memStore) DeleteSemester(_ context.Context, id int64) error {
	if _, ok := m.semesters[id]; !ok {
		return fmt.Errorf("%w: semester %d", core.ErrNotFound, id)
	}
	if m.dependents[id].Total() > 0 {
		return fmt.Errorf("%w: semester %d", core.ErrForeignKeyConflict, id)
	}
	delete(m.semesters, id)
	return nil
}

func (m *memStore) SetSemesterStatus(_ context.Context, id int64, expect, next core.SemesterStatus) error {
	sem, ok := m.semesters[id]
	if !ok || sem.Status != expect {
		return fmt.Errorf("%w: semester %d is no longer %s", core.ErrConcurrentModification, id, expect)
	}
	sem.Status = next
	m.semesters[id] = sem
	return nil
}

func (m *memStore) CountSemesterDependents(_ context.Context, semesterID int64) (DependentCounts, error) {
	return m.dependents[semesterID], nil
}

func (m *memStore) InsertArchiveSnapshot(_ context.Context, snap core.ArchiveSnapshot) (int64, error) {
	snap.ID = m.nextID
	m.nextID++
	m.snapshots = append(m.snapshots, snap)
	return snap.ID, nil
}

func (m *memStore) ActiveOccupants(_ context.Context, dormID int64) ([]core.Occupant, error) {
	var out []core.Occupant
	for id := int64(1); id < m.nextID; id++ {
		occ, ok := m.occupants[id]
		if ok && occ.DormID == dormID && occ.Status == core.OccupantActive {
			out = append(out, occ)
		}
	}
	return out, nil
}

func (m *memStore) RemoveOccupant(_ context.Context, occupantID int64, closedOn core.Date) error {
	occ, ok := m.occupants[occupantID]
	if !ok {
		return fmt.Errorf("%w: occupant %d", core.ErrNotFound, occupantID)
	}
	occ.Status = core.OccupantRemoved
	m.occupants[occupantID] = occ
	m.removedOn[occupantID] = closedOn
	for id, a := range m.assignments {
		if a.OccupantID == occupantID && a.EndsOn == nil {
			d := closedOn
			a.EndsOn = &d
			m.assignments[id] = a
		}
	}
	return nil
}

func (m *memStore) LedgerEntriesForDorm(context.Context, int64) ([]core.LedgerEntry, error) {
	return m.entries, nil
}

func (m *memStore) addOccupant(dormID int64, status core.OccupantStatus) int64 {
	id := m.nextID
	m.nextID++
	m.occupants[id] = core.Occupant{ID: id, DormID: dormID, Name: fmt.Sprintf("occupant-%d", id), Status: status}
	m.assignments[id] = core.RoomAssignment{ID: id, OccupantID: id, RoomLabel: "A-1", StartsOn: core.NewDate(2025, 8, 1)}
	return id
}

// fixedRoles resolves every caller to one role.
type fixedRoles struct {
	role string
}

func (r fixedRoles) RoleOf(context.Context, int64, int64) (string, error) {
	return r.role, nil
}

// recordingSink captures audit calls.
type recordingSink struct {
	actions []string
}

func (s *recordingSink) LogEvent(_ context.Context, _, _ int64, action, _ string, _ int64, _ map[string]any) {
	s.actions = append(s.actions, action)
}
