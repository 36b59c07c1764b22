package models

import "time"

// Subject types stored in the subjects table.
const (
	SubjectTypeTheory    = "theory"
	SubjectTypePractical = "practical"
)

// Subject represents an academic subject. TheoryHours count weekly
// single-period sessions; LabHours describe one contiguous weekly block.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	SubjectType string    `db:"subject_type" json:"subject_type"`
	Credits     int       `db:"credits" json:"credits"`
	TheoryHours int       `db:"theory_hours" json:"theory_hours"`
	LabHours    int       `db:"lab_hours" json:"lab_hours"`
	Department  string    `db:"department" json:"department"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Department  string
	SubjectType string
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
