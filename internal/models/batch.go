package models

import "time"

// Batch represents a student cohort scheduled as one unit.
type Batch struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Department string    `db:"department" json:"department"`
	Semester   int       `db:"semester" json:"semester"`
	Headcount  int       `db:"headcount" json:"headcount"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// BatchFilter defines filter criteria for listing batches.
type BatchFilter struct {
	Department string
	Semester   *int
	Active     *bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
