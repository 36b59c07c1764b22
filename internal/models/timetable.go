package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TimetableStatus tracks the lifecycle of a saved timetable.
type TimetableStatus string

const (
	TimetableStatusDraft    TimetableStatus = "draft"
	TimetableStatusActive   TimetableStatus = "active"
	TimetableStatusArchived TimetableStatus = "archived"
)

// Timetable is a persisted scheduling result. Only one timetable may be
// active at a time; activating one archives the previous active row.
type Timetable struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Algorithm    string          `db:"algorithm" json:"algorithm"`
	Status       TimetableStatus `db:"status" json:"status"`
	FitnessScore float64         `db:"fitness_score" json:"fitness_score"`
	BatchIDs     types.JSONText  `db:"batch_ids" json:"batch_ids"`
	CreatedBy    *string         `db:"created_by" json:"created_by,omitempty"`
	ElapsedMs    int64           `db:"elapsed_ms" json:"elapsed_ms"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// TimetableSlot is one scheduled period of a saved timetable. Day and period
// are stored as calendar indexes, not labels, so renaming a working day does
// not orphan saved schedules.
type TimetableSlot struct {
	ID          string    `db:"id" json:"id"`
	TimetableID string    `db:"timetable_id" json:"timetable_id"`
	BatchID     string    `db:"batch_id" json:"batch_id"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	FacultyID   string    `db:"faculty_id" json:"faculty_id"`
	RoomID      string    `db:"room_id" json:"room_id"`
	DayIndex    int       `db:"day_index" json:"day_index"`
	PeriodIndex int       `db:"period_index" json:"period_index"`
	Kind        string    `db:"kind" json:"kind"`
	IsFixed     bool      `db:"is_fixed" json:"is_fixed"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TimetableFilter narrows timetable listings.
type TimetableFilter struct {
	Status    string `form:"status"`
	Algorithm string `form:"algorithm"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}
