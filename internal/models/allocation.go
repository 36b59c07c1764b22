package models

import "time"

// Allocation is the (batch, subject, faculty) teaching contract for a term.
// The triple is unique.
type Allocation struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	FacultyID string    `db:"faculty_id" json:"faculty_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AllocationDetail enriches allocations with display names for responses.
type AllocationDetail struct {
	Allocation
	BatchName   string `db:"batch_name" json:"batch_name"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	FacultyName string `db:"faculty_name" json:"faculty_name"`
}

// FixedSlot pins an assignment to a day/period ahead of generation. Day and
// Period store calendar labels, resolved to indexes at solve time.
type FixedSlot struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	FacultyID string    `db:"faculty_id" json:"faculty_id"`
	RoomID    string    `db:"room_id" json:"room_id"`
	Day       string    `db:"day" json:"day"`
	Period    string    `db:"period" json:"period"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
