package models

import "time"

// ConstraintConfig is one runtime-tunable scheduling rule. Hard rules gate
// feasibility; soft rules contribute weighted penalty.
type ConstraintConfig struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Kind        string    `db:"kind" json:"kind"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	Weight      float64   `db:"weight" json:"weight"`
	Description string    `db:"description" json:"description"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ConstraintUpdate carries the mutable fields of a constraint config.
type ConstraintUpdate struct {
	Name    string   `json:"name" validate:"required"`
	Enabled *bool    `json:"enabled"`
	Weight  *float64 `json:"weight" validate:"omitempty,gte=0"`
}
