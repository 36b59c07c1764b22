package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// College is the institution profile and the calendar source. WorkingDays
// and TimeSlots are ordered JSON arrays; their element order defines the
// chronological day and period indexes used across the scheduler.
type College struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	WorkingDays types.JSONText `db:"working_days" json:"working_days"`
	TimeSlots   types.JSONText `db:"time_slots" json:"time_slots"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Calendar decodes the stored day and time-slot arrays.
func (c *College) Calendar() (days, periods []string, err error) {
	if len(c.WorkingDays) > 0 {
		if err := json.Unmarshal(c.WorkingDays, &days); err != nil {
			return nil, nil, fmt.Errorf("decode working days: %w", err)
		}
	}
	if len(c.TimeSlots) > 0 {
		if err := json.Unmarshal(c.TimeSlots, &periods); err != nil {
			return nil, nil, fmt.Errorf("decode time slots: %w", err)
		}
	}
	return days, periods, nil
}
