package models

import "time"

// DashboardSummary is the landing-page aggregate: catalog counts plus a
// glance at the active timetable.
type DashboardSummary struct {
	Batches         int                `json:"batches"`
	Subjects        int                `json:"subjects"`
	Faculty         int                `json:"faculty"`
	Rooms           int                `json:"rooms"`
	Allocations     int                `json:"allocations"`
	Timetables      int                `json:"timetables"`
	ActiveTimetable *TimetableOverview `json:"active_timetable,omitempty"`
	Metrics         *SystemMetrics     `json:"metrics,omitempty"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// TimetableOverview is the condensed form of a timetable used in summaries.
type TimetableOverview struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Algorithm    string  `json:"algorithm"`
	FitnessScore float64 `json:"fitness_score"`
	SlotCount    int     `json:"slot_count"`
}

// FacultyLoad reports how one faculty member's periods spread across the week.
type FacultyLoad struct {
	FacultyID    string `json:"faculty_id"`
	FacultyName  string `json:"faculty_name"`
	TotalPeriods int    `json:"total_periods"`
	PerDay       []int  `json:"per_day"`
	GapCount     int    `json:"gap_count"`
}

// RoomUtilization reports occupancy of one room against the full weekly grid.
type RoomUtilization struct {
	RoomID      string  `json:"room_id"`
	RoomName    string  `json:"room_name"`
	UsedPeriods int     `json:"used_periods"`
	TotalCells  int     `json:"total_cells"`
	Utilization float64 `json:"utilization"`
}

// TimetableAnalytics is the full analytics payload for one timetable.
type TimetableAnalytics struct {
	Timetable       TimetableOverview `json:"timetable"`
	FacultyLoads    []FacultyLoad     `json:"faculty_loads"`
	RoomUtilization []RoomUtilization `json:"room_utilization"`
	SlotsPerDay     []int             `json:"slots_per_day"`
	ConflictCount   int               `json:"conflict_count"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// SystemMetrics is a point-in-time snapshot of the service counters kept by
// the metrics collector, surfaced on the dashboard.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	GenerationsTotal         uint64    `json:"generations_total"`
	AverageGenerationMs      float64   `json:"average_generation_ms"`
	ActiveRuns               int64     `json:"active_runs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
