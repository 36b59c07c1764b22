package domain

// SubjectType distinguishes lecture subjects from practical (lab) subjects.
type SubjectType string

const (
	SubjectTheory    SubjectType = "theory"
	SubjectPractical SubjectType = "practical"
)

// RoomKind distinguishes lecture rooms from lab rooms.
type RoomKind string

const (
	RoomClassroom RoomKind = "classroom"
	RoomLab       RoomKind = "lab"
)

// SessionKind labels one schedulable unit as a single theory period or a
// contiguous lab block.
type SessionKind string

const (
	SessionTheory SessionKind = "theory"
	SessionLab    SessionKind = "lab"
)

// Batch is a cohort of students scheduled as a unit.
type Batch struct {
	ID        string
	Name      string
	Headcount int
}

// Subject describes weekly contact hours for one course. LabHours describe a
// single contiguous weekly block, not separate one-period events.
type Subject struct {
	ID          string
	Code        string
	Name        string
	Type        SubjectType
	Credits     int
	TheoryHours int
	LabHours    int
}

// Faculty is an opaque teaching identity used for conflict and gap checks.
type Faculty struct {
	ID   string
	Name string
}

// Room is a teaching space. Lab sessions prefer lab rooms and fall back to
// classrooms when no lab rooms exist.
type Room struct {
	ID       string
	Name     string
	Kind     RoomKind
	Capacity int
}

// Allocation is the (batch, subject, faculty) teaching contract for a term.
// One allocation expands into many requirements.
type Allocation struct {
	BatchID   string
	SubjectID string
	FacultyID string
}

// FixedSlot is a pre-pinned assignment that bypasses search and must appear
// verbatim in every produced schedule.
type FixedSlot struct {
	BatchID   string
	SubjectID string
	FacultyID string
	RoomID    string
	RoomKind  RoomKind
	Day       string
	Period    string
}

// Requirement is one atomic schedulable unit derived from an allocation:
// a single weekly theory period, or a lab block of Duration consecutive
// periods on one day. Priority equals the subject's credit weight, +2 for
// labs.
type Requirement struct {
	BatchID   string
	SubjectID string
	FacultyID string
	Kind      SessionKind
	Duration  int
	Priority  int
}

// ScheduledSlot is one placed period of the output schedule. Fixed entries
// are carried through every candidate unchanged.
type ScheduledSlot struct {
	BatchID     string
	DayIndex    int
	PeriodIndex int
	SubjectID   string
	FacultyID   string
	RoomID      string
	RoomKind    RoomKind
	Fixed       bool
}

// CloneSlots returns an independent copy of a schedule.
func CloneSlots(slots []ScheduledSlot) []ScheduledSlot {
	if slots == nil {
		return nil
	}
	out := make([]ScheduledSlot, len(slots))
	copy(out, slots)
	return out
}
