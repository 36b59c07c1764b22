package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Activity action constants represent actions to be logged.
const (
	ActivityLogin             = "LOGIN"
	ActivityLogout            = "LOGOUT"
	ActivityPasswordChange    = "PASSWORD_CHANGE"
	ActivityUserCreate        = "USER_CREATE"
	ActivityUserUpdate        = "USER_UPDATE"
	ActivityUserDelete        = "USER_DELETE"
	ActivityCatalogWrite      = "CATALOG_WRITE"
	ActivityGenerate          = "GENERATE"
	ActivityTimetableSave     = "TIMETABLE_SAVE"
	ActivityTimetableActivate = "TIMETABLE_ACTIVATE"
	ActivityTimetableDelete   = "TIMETABLE_DELETE"
	ActivityExport            = "EXPORT"
)

// ActivityLog represents one audit-trail record. Username is denormalised so
// the log stays readable after a user is deleted.
type ActivityLog struct {
	ID        string         `db:"id" json:"id"`
	UserID    *string        `db:"user_id" json:"user_id,omitempty"`
	Username  string         `db:"username" json:"username"`
	Action    string         `db:"action" json:"action"`
	Entity    string         `db:"entity" json:"entity"`
	EntityID  *string        `db:"entity_id" json:"entity_id,omitempty"`
	Detail    types.JSONText `db:"detail" json:"detail,omitempty"`
	IPAddress string         `db:"ip_address" json:"ip_address"`
	UserAgent string         `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// ActivityLogFilter scopes activity listing.
type ActivityLogFilter struct {
	UserID   string
	Action   string
	Entity   string
	Page     int
	PageSize int
}

// Actor identifies who performs an audited mutation.
type Actor struct {
	ID        string
	Username  string
	IP        string
	UserAgent string
}
