package dto

// GridCell is one occupied cell of a timetable grid view.
type GridCell struct {
	BatchID     string `json:"batch_id,omitempty"`
	BatchName   string `json:"batch_name,omitempty"`
	SubjectID   string `json:"subject_id"`
	SubjectCode string `json:"subject_code"`
	SubjectName string `json:"subject_name"`
	FacultyID   string `json:"faculty_id"`
	FacultyName string `json:"faculty_name"`
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
	Kind        string `json:"kind"`
	IsFixed     bool   `json:"is_fixed"`
}

// GridRow is one working day of a grid view, one cell pointer per period.
// Unoccupied periods are nil.
type GridRow struct {
	Day   string      `json:"day"`
	Cells []*GridCell `json:"cells"`
}

// TimetableView is a day-by-period matrix of a saved timetable, narrowed to
// one batch, one faculty member or one room.
type TimetableView struct {
	TimetableID string    `json:"timetable_id"`
	Kind        string    `json:"kind"`
	EntityID    string    `json:"entity_id"`
	EntityName  string    `json:"entity_name"`
	Days        []string  `json:"days"`
	Periods     []string  `json:"periods"`
	Rows        []GridRow `json:"rows"`
}

// ValidationReport lists hard-rule violations found in a saved timetable.
type ValidationReport struct {
	TimetableID string            `json:"timetable_id"`
	Valid       bool              `json:"valid"`
	Conflicts   []ConflictPayload `json:"conflicts"`
}
