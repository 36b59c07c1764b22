// Package domain holds the immutable scheduling snapshot the solvers consume:
// calendar, batches, subjects, faculty, rooms, allocations, fixed slots and
// the constraint configuration. The snapshot is built once per solve from the
// catalogue and never mutated by the engine.
package domain

// Snapshot is the complete read-only input of one scheduling run.
type Snapshot struct {
	Calendar    Calendar
	Batches     []Batch
	Subjects    []Subject
	Faculty     []Faculty
	Rooms       []Room
	Allocations []Allocation
	FixedSlots  []FixedSlot
	Constraints ConstraintSet

	batchByID   map[string]Batch
	subjectByID map[string]Subject
	facultyByID map[string]Faculty
	roomByID    map[string]Room
}

// NewSnapshot indexes the catalogue slices for id lookup.
func NewSnapshot(cal Calendar, batches []Batch, subjects []Subject, faculty []Faculty, rooms []Room, allocations []Allocation, fixed []FixedSlot, constraints ConstraintSet) *Snapshot {
	s := &Snapshot{
		Calendar:    cal,
		Batches:     batches,
		Subjects:    subjects,
		Faculty:     faculty,
		Rooms:       rooms,
		Allocations: allocations,
		FixedSlots:  fixed,
		Constraints: constraints,
		batchByID:   make(map[string]Batch, len(batches)),
		subjectByID: make(map[string]Subject, len(subjects)),
		facultyByID: make(map[string]Faculty, len(faculty)),
		roomByID:    make(map[string]Room, len(rooms)),
	}
	for _, b := range batches {
		s.batchByID[b.ID] = b
	}
	for _, sub := range subjects {
		s.subjectByID[sub.ID] = sub
	}
	for _, f := range faculty {
		s.facultyByID[f.ID] = f
	}
	for _, r := range rooms {
		s.roomByID[r.ID] = r
	}
	return s
}

// BatchByID looks up a batch.
func (s *Snapshot) BatchByID(id string) (Batch, bool) {
	b, ok := s.batchByID[id]
	return b, ok
}

// SubjectByID looks up a subject.
func (s *Snapshot) SubjectByID(id string) (Subject, bool) {
	sub, ok := s.subjectByID[id]
	return sub, ok
}

// FacultyByID looks up a faculty member.
func (s *Snapshot) FacultyByID(id string) (Faculty, bool) {
	f, ok := s.facultyByID[id]
	return f, ok
}

// RoomByID looks up a room.
func (s *Snapshot) RoomByID(id string) (Room, bool) {
	r, ok := s.roomByID[id]
	return r, ok
}

// Classrooms returns the lecture-room pool in catalogue order.
func (s *Snapshot) Classrooms() []Room {
	out := make([]Room, 0, len(s.Rooms))
	for _, r := range s.Rooms {
		if r.Kind == RoomClassroom {
			out = append(out, r)
		}
	}
	return out
}

// Labs returns the lab-room pool in catalogue order.
func (s *Snapshot) Labs() []Room {
	out := make([]Room, 0, len(s.Rooms))
	for _, r := range s.Rooms {
		if r.Kind == RoomLab {
			out = append(out, r)
		}
	}
	return out
}

// SubjectTypeOf returns the catalogue type of a subject id, defaulting to
// theory for unknown ids.
func (s *Snapshot) SubjectTypeOf(id string) SubjectType {
	sub, ok := s.subjectByID[id]
	if !ok {
		return SubjectTheory
	}
	if sub.Type == SubjectPractical {
		return SubjectPractical
	}
	return SubjectTheory
}

// ForBatches returns a narrowed snapshot containing only the selected
// batches and the allocations and fixed slots that reference them. Subjects,
// faculty, rooms, calendar and constraints are shared (read-only).
func (s *Snapshot) ForBatches(batchIDs []string) *Snapshot {
	selected := make(map[string]struct{}, len(batchIDs))
	for _, id := range batchIDs {
		selected[id] = struct{}{}
	}

	batches := make([]Batch, 0, len(batchIDs))
	for _, b := range s.Batches {
		if _, ok := selected[b.ID]; ok {
			batches = append(batches, b)
		}
	}
	allocations := make([]Allocation, 0, len(s.Allocations))
	for _, a := range s.Allocations {
		if _, ok := selected[a.BatchID]; ok {
			allocations = append(allocations, a)
		}
	}
	fixed := make([]FixedSlot, 0, len(s.FixedSlots))
	for _, fs := range s.FixedSlots {
		if _, ok := selected[fs.BatchID]; ok {
			fixed = append(fixed, fs)
		}
	}

	return NewSnapshot(s.Calendar, batches, s.Subjects, s.Faculty, s.Rooms, allocations, fixed, s.Constraints)
}
