package dto

import "time"

// GenerateOptions tunes a single solver run. Zero values fall back to the
// configured scheduler defaults.
type GenerateOptions struct {
	IgnoreFixedSlots bool    `json:"ignore_fixed_slots"`
	MaxIterations    int     `json:"max_iterations" validate:"omitempty,min=1"`
	PopulationSize   int     `json:"population_size" validate:"omitempty,min=2"`
	MaxGenerations   int     `json:"max_generations" validate:"omitempty,min=1"`
	CrossoverRate    float64 `json:"crossover_rate" validate:"omitempty,gte=0,lte=1"`
	MutationRate     float64 `json:"mutation_rate" validate:"omitempty,gte=0,lte=1"`
	EliteSize        int     `json:"elite_size" validate:"omitempty,min=1"`
	TournamentSize   int     `json:"tournament_size" validate:"omitempty,min=1"`
	Sequential       bool    `json:"sequential"`
	Workers          int     `json:"workers" validate:"omitempty,min=1"`
	Seed             int64   `json:"seed"`
}

// GenerateRequest asks the engine to build a timetable for the given batches.
type GenerateRequest struct {
	Algorithm string           `json:"algorithm"`
	BatchIDs  []string         `json:"batch_ids" validate:"required,min=1,dive,required"`
	Async     bool             `json:"async"`
	Options   *GenerateOptions `json:"options" validate:"omitempty"`
}

// RunStatus tracks a generation run through its lifecycle.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunProgress is the live progress of a running solve.
type RunProgress struct {
	Stage     string  `json:"stage"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Best      float64 `json:"best,omitempty"`
	Average   float64 `json:"average,omitempty"`
}

// RunError carries the failure of a finished run in API form.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScheduledSlotPayload is one scheduled period with calendar labels resolved.
type ScheduledSlotPayload struct {
	BatchID     string `json:"batch_id"`
	SubjectID   string `json:"subject_id"`
	FacultyID   string `json:"faculty_id"`
	RoomID      string `json:"room_id"`
	Kind        string `json:"kind"`
	DayIndex    int    `json:"day_index"`
	PeriodIndex int    `json:"period_index"`
	Day         string `json:"day"`
	Period      string `json:"period"`
	Fixed       bool   `json:"fixed"`
}

// TracePoint is one entry of the solve trace.
type TracePoint struct {
	Generation int     `json:"generation"`
	Best       float64 `json:"best"`
	Average    float64 `json:"average"`
	Conflicts  int     `json:"conflicts"`
}

// ConflictPayload reports one hard-rule violation in a produced schedule.
type ConflictPayload struct {
	Constraint  string `json:"constraint"`
	DayIndex    int    `json:"day_index"`
	PeriodIndex int    `json:"period_index"`
	EntityID    string `json:"entity_id"`
	Count       int    `json:"count"`
	Message     string `json:"message"`
}

// GenerationResult is the outcome of a completed run.
type GenerationResult struct {
	Method      string                 `json:"method"`
	BestFitness float64                `json:"best_fitness"`
	ElapsedMs   int64                  `json:"elapsed_ms"`
	SlotCount   int                    `json:"slot_count"`
	Slots       []ScheduledSlotPayload `json:"slots"`
	Trace       []TracePoint           `json:"trace,omitempty"`
	Conflicts   []ConflictPayload      `json:"conflicts,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
}

// GenerationRun is the API view of one run, polled by id in async mode.
type GenerationRun struct {
	ID         string            `json:"id"`
	Status     RunStatus         `json:"status"`
	Algorithm  string            `json:"algorithm"`
	BatchIDs   []string          `json:"batch_ids"`
	Async      bool              `json:"async"`
	Progress   *RunProgress      `json:"progress,omitempty"`
	Result     *GenerationResult `json:"result,omitempty"`
	Error      *RunError         `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// SaveRunRequest persists a completed run as a timetable.
type SaveRunRequest struct {
	Name     string `json:"name" validate:"required"`
	Activate bool   `json:"activate"`
}
