// Package solver implements the timetable scheduling engine: a deterministic
// greedy CSP solver and a genetic-algorithm solver over the immutable domain
// snapshot, plus the shared parallel evaluation pool. The package is a
// library with an in-process contract; it persists nothing and holds no state
// between runs beyond its own configuration.
package solver

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
)

// Choice selects the solving algorithm.
type Choice string

const (
	ChoiceCSP             Choice = "csp"
	ChoiceCSPMinConflicts Choice = "csp_min_conflicts"
	ChoiceGeneticCPU      Choice = "genetic_cpu"
	ChoiceGeneticGPU      Choice = "genetic_gpu"
)

// ParseChoice validates a solver choice string.
func ParseChoice(raw string) (Choice, error) {
	switch Choice(raw) {
	case ChoiceCSP, ChoiceCSPMinConflicts, ChoiceGeneticCPU, ChoiceGeneticGPU:
		return Choice(raw), nil
	default:
		return "", newConfigErr("unknown algorithm %q (choose csp, csp_min_conflicts, genetic_cpu or genetic_gpu)", raw)
	}
}

// Progress stages reported through ProgressFunc.
const (
	StageRequirements = "requirements"
	StageGeneration   = "generation"
)

// Progress is one progress report. The CSP path reports completed
// requirements; the genetic path reports completed generations along with the
// generation's best and average fitness.
type Progress struct {
	Stage     string
	Completed int
	Total     int
	Best      float64
	Average   float64
}

// ProgressFunc receives progress reports during a solve. May be nil.
type ProgressFunc func(Progress)

// TraceRecord is one entry of the solve trace: per generation for the
// genetic path, a single closing record for the CSP path.
type TraceRecord struct {
	Generation int     `json:"generation"`
	Best       float64 `json:"best"`
	Average    float64 `json:"average"`
	Conflicts  int     `json:"conflicts"`
}

// Result is the outcome of a solve. Slots are owned by the caller.
type Result struct {
	Slots       []domain.ScheduledSlot
	Trace       []TraceRecord
	Method      string
	Elapsed     time.Duration
	BestFitness float64
}

// Solver runs one scheduling search over a fixed snapshot.
type Solver interface {
	Run(ctx context.Context, onProgress ProgressFunc) (*Result, error)
}

// Options configures a solve. Zero values adopt the documented defaults;
// IgnoreFixedSlots and Sequential invert the default-on behaviours.
type Options struct {
	Choice           Choice
	IgnoreFixedSlots bool
	// MaxIterations is an advisory ceiling kept for interface parity; the
	// constructive CSP path does not consult it.
	MaxIterations  int
	PopulationSize int
	MaxGenerations int
	CrossoverRate  float64
	MutationRate   float64
	EliteSize      int
	TournamentSize int
	Sequential     bool
	Workers        int
	// Seed fixes the genetic solver's random stream; 0 derives one from the
	// clock.
	Seed   int64
	Logger *zap.Logger
}

const (
	defaultMaxIterations  = 10000
	defaultPopulationSize = 100
	defaultMaxGenerations = 100
	defaultCrossoverRate  = 0.8
	defaultMutationRate   = 0.01
	defaultEliteSize      = 5
	defaultTournamentSize = 5
)

func (o *Options) normalize() error {
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaultMaxIterations
	}
	if o.PopulationSize <= 0 {
		o.PopulationSize = defaultPopulationSize
	}
	if o.MaxGenerations <= 0 {
		o.MaxGenerations = defaultMaxGenerations
	}
	if o.CrossoverRate == 0 {
		o.CrossoverRate = defaultCrossoverRate
	}
	if o.MutationRate == 0 {
		o.MutationRate = defaultMutationRate
	}
	if o.EliteSize <= 0 {
		o.EliteSize = defaultEliteSize
	}
	if o.TournamentSize <= 0 {
		o.TournamentSize = defaultTournamentSize
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers()
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	if o.CrossoverRate < 0 || o.CrossoverRate > 1 {
		return newConfigErr("crossover rate %.3f outside [0, 1]", o.CrossoverRate)
	}
	if o.MutationRate < 0 || o.MutationRate > 1 {
		return newConfigErr("mutation rate %.3f outside [0, 1]", o.MutationRate)
	}
	if o.PopulationSize < 2 {
		return newConfigErr("population size %d below minimum of 2", o.PopulationSize)
	}
	if o.EliteSize >= o.PopulationSize {
		return newConfigErr("elite size %d must be smaller than population %d", o.EliteSize, o.PopulationSize)
	}
	if o.TournamentSize > o.PopulationSize {
		return newConfigErr("tournament size %d exceeds population %d", o.TournamentSize, o.PopulationSize)
	}
	return nil
}

func defaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// New builds the solver selected by opts.Choice over the snapshot, narrowed
// to the selected batches. Catalogue prerequisites are validated here so
// configuration problems surface before any search work starts.
func New(snap *domain.Snapshot, batchIDs []string, opts Options) (Solver, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, newConfigErr("nil snapshot")
	}
	if snap.Calendar.Empty() {
		return nil, newConfigErr("college calendar has no working days or periods")
	}
	if len(batchIDs) == 0 {
		return nil, newConfigErr("no batches selected")
	}

	narrowed := snap.ForBatches(batchIDs)
	if len(narrowed.Batches) == 0 {
		return nil, newConfigErr("no batches found for ids %v", batchIDs)
	}
	if len(narrowed.Allocations) == 0 {
		return nil, newConfigErr("no subject allocations for the selected batches")
	}
	if len(narrowed.Classrooms()) == 0 {
		return nil, newConfigErr("no classrooms configured")
	}
	if opts.IgnoreFixedSlots {
		narrowed.FixedSlots = nil
	}

	reqs, pinned, err := expandRequirements(narrowed)
	if err != nil {
		return nil, err
	}

	switch opts.Choice {
	case ChoiceCSP, ChoiceCSPMinConflicts:
		return newCSPSolver(narrowed, reqs, pinned, opts), nil
	case ChoiceGeneticCPU, ChoiceGeneticGPU:
		return newGeneticSolver(narrowed, reqs, pinned, opts), nil
	default:
		return nil, newConfigErr("unknown algorithm %q (choose csp, csp_min_conflicts, genetic_cpu or genetic_gpu)", string(opts.Choice))
	}
}

// Conflict is one hard-rule violation found by ValidateSchedule.
type Conflict struct {
	Constraint  string `json:"constraint"`
	DayIndex    int    `json:"day_index"`
	PeriodIndex int    `json:"period_index"`
	EntityID    string `json:"entity_id"`
	Count       int    `json:"count"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: entity %s booked %d times at day %d period %d", c.Constraint, c.EntityID, c.Count, c.DayIndex, c.PeriodIndex)
}

// ValidateSchedule scans a finished schedule for hard-constraint violations.
// The genetic path never fails on conflicts, so callers needing a guarantee
// run this over the returned slots. Disabled constraints are skipped.
func ValidateSchedule(snap *domain.Snapshot, slots []domain.ScheduledSlot) []Conflict {
	type cell struct{ day, period int }
	faculty := make(map[cell]map[string]int)
	batches := make(map[cell]map[string]int)
	rooms := make(map[cell]map[string]int)

	bump := func(m map[cell]map[string]int, c cell, id string) {
		inner, ok := m[c]
		if !ok {
			inner = make(map[string]int)
			m[c] = inner
		}
		inner[id]++
	}

	for _, s := range slots {
		c := cell{s.DayIndex, s.PeriodIndex}
		bump(faculty, c, s.FacultyID)
		bump(batches, c, s.BatchID)
		bump(rooms, c, s.RoomID)
	}

	var conflicts []Conflict
	collect := func(name string, m map[cell]map[string]int) {
		if !snap.Constraints.Enabled(name) {
			return
		}
		for c, counts := range m {
			for id, n := range counts {
				if n > 1 {
					conflicts = append(conflicts, Conflict{
						Constraint:  name,
						DayIndex:    c.day,
						PeriodIndex: c.period,
						EntityID:    id,
						Count:       n,
					})
				}
			}
		}
	}
	collect(domain.ConstraintNoFacultyConflict, faculty)
	collect(domain.ConstraintNoBatchConflict, batches)
	collect(domain.ConstraintNoRoomConflict, rooms)

	if snap.Constraints.Enabled(domain.ConstraintRoomCapacity) {
		for _, s := range slots {
			room, okRoom := snap.RoomByID(s.RoomID)
			batch, okBatch := snap.BatchByID(s.BatchID)
			if okRoom && okBatch && room.Capacity < batch.Headcount {
				conflicts = append(conflicts, Conflict{
					Constraint:  domain.ConstraintRoomCapacity,
					DayIndex:    s.DayIndex,
					PeriodIndex: s.PeriodIndex,
					EntityID:    s.RoomID,
					Count:       1,
				})
			}
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if a.DayIndex != b.DayIndex {
			return a.DayIndex < b.DayIndex
		}
		if a.PeriodIndex != b.PeriodIndex {
			return a.PeriodIndex < b.PeriodIndex
		}
		if a.Constraint != b.Constraint {
			return a.Constraint < b.Constraint
		}
		return a.EntityID < b.EntityID
	})
	return conflicts
}
