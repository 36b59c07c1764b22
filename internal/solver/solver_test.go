package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmesh/timetable-api/internal/domain"
)

func weekCalendar() domain.Calendar {
	return domain.NewCalendar(
		[]string{"monday", "tuesday", "wednesday"},
		[]string{"09:00", "10:00", "11:00", "12:00", "14:00", "15:00"},
	)
}

func defaultSet() domain.ConstraintSet {
	return domain.NewConstraintSet(domain.DefaultConstraints())
}

// conflictOnlySet keeps just the three clash rules, so any clash-free
// schedule scores the full fitness ceiling.
func conflictOnlySet() domain.ConstraintSet {
	return domain.NewConstraintSet([]domain.ConstraintSpec{
		{Name: domain.ConstraintNoFacultyConflict, Kind: domain.ConstraintHard, Enabled: true, Weight: 10},
		{Name: domain.ConstraintNoBatchConflict, Kind: domain.ConstraintHard, Enabled: true, Weight: 10},
		{Name: domain.ConstraintNoRoomConflict, Kind: domain.ConstraintHard, Enabled: true, Weight: 10},
	})
}

// singleBatchSnapshot is the shared catalogue: one batch, a three-hour theory
// subject and a two-period lab block, two classrooms and one lab room.
func singleBatchSnapshot() *domain.Snapshot {
	return domain.NewSnapshot(
		weekCalendar(),
		[]domain.Batch{{ID: "b1", Name: "CS-3A", Headcount: 30}},
		[]domain.Subject{
			{ID: "s-dsa", Code: "CS301", Name: "Data Structures", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 3},
			{ID: "s-os-lab", Code: "CS342", Name: "OS Lab", Type: domain.SubjectPractical, Credits: 4, LabHours: 2},
		},
		[]domain.Faculty{{ID: "f1", Name: "Rao"}, {ID: "f2", Name: "Iyer"}},
		[]domain.Room{
			{ID: "r1", Name: "C-101", Kind: domain.RoomClassroom, Capacity: 60},
			{ID: "r2", Name: "C-102", Kind: domain.RoomClassroom, Capacity: 60},
			{ID: "l1", Name: "Lab-1", Kind: domain.RoomLab, Capacity: 30},
		},
		[]domain.Allocation{
			{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1"},
			{BatchID: "b1", SubjectID: "s-os-lab", FacultyID: "f2"},
		},
		nil,
		defaultSet(),
	)
}

func TestParseChoice(t *testing.T) {
	for _, raw := range []string{"csp", "csp_min_conflicts", "genetic_cpu", "genetic_gpu"} {
		choice, err := ParseChoice(raw)
		require.NoError(t, err)
		assert.Equal(t, Choice(raw), choice)
	}

	_, err := ParseChoice("simulated_annealing")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "simulated_annealing")

	_, err = ParseChoice("")
	assert.Error(t, err)
}

func TestOptionsNormalizeDefaults(t *testing.T) {
	opts := Options{}
	require.NoError(t, opts.normalize())

	assert.Equal(t, defaultPopulationSize, opts.PopulationSize)
	assert.Equal(t, defaultMaxGenerations, opts.MaxGenerations)
	assert.Equal(t, defaultCrossoverRate, opts.CrossoverRate)
	assert.Equal(t, defaultMutationRate, opts.MutationRate)
	assert.Equal(t, defaultEliteSize, opts.EliteSize)
	assert.Equal(t, defaultTournamentSize, opts.TournamentSize)
	assert.Equal(t, defaultMaxIterations, opts.MaxIterations)
	assert.GreaterOrEqual(t, opts.Workers, 1)
	assert.NotZero(t, opts.Seed)
	assert.NotNil(t, opts.Logger)
}

func TestOptionsNormalizeRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"crossover rate above one", Options{CrossoverRate: 1.5}},
		{"negative mutation rate", Options{MutationRate: -0.2}},
		{"elite not smaller than population", Options{PopulationSize: 10, EliteSize: 10}},
		{"tournament larger than population", Options{PopulationSize: 10, TournamentSize: 11}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.normalize()
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestNewRejectsBadCatalogue(t *testing.T) {
	cal := weekCalendar()
	rooms := []domain.Room{{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60}}
	batches := []domain.Batch{{ID: "b1", Headcount: 30}}
	subjects := []domain.Subject{{ID: "s1", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 1}}
	faculty := []domain.Faculty{{ID: "f1"}}
	allocs := []domain.Allocation{{BatchID: "b1", SubjectID: "s1", FacultyID: "f1"}}

	t.Run("nil snapshot", func(t *testing.T) {
		_, err := New(nil, []string{"b1"}, Options{Choice: ChoiceCSP})
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("empty calendar", func(t *testing.T) {
		snap := domain.NewSnapshot(domain.NewCalendar(nil, nil), batches, subjects, faculty, rooms, allocs, nil, defaultSet())
		_, err := New(snap, []string{"b1"}, Options{Choice: ChoiceCSP})
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "calendar")
	})

	t.Run("no batch selection", func(t *testing.T) {
		snap := domain.NewSnapshot(cal, batches, subjects, faculty, rooms, allocs, nil, defaultSet())
		_, err := New(snap, nil, Options{Choice: ChoiceCSP})
		assert.Error(t, err)
	})

	t.Run("unknown batch ids", func(t *testing.T) {
		snap := domain.NewSnapshot(cal, batches, subjects, faculty, rooms, allocs, nil, defaultSet())
		_, err := New(snap, []string{"ghost"}, Options{Choice: ChoiceCSP})
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "ghost")
	})

	t.Run("no allocations", func(t *testing.T) {
		snap := domain.NewSnapshot(cal, batches, subjects, faculty, rooms, nil, nil, defaultSet())
		_, err := New(snap, []string{"b1"}, Options{Choice: ChoiceCSP})
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "allocations")
	})

	t.Run("no classrooms", func(t *testing.T) {
		labOnly := []domain.Room{{ID: "l1", Kind: domain.RoomLab, Capacity: 30}}
		snap := domain.NewSnapshot(cal, batches, subjects, faculty, labOnly, allocs, nil, defaultSet())
		_, err := New(snap, []string{"b1"}, Options{Choice: ChoiceCSP})
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Reason, "classrooms")
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		snap := domain.NewSnapshot(cal, batches, subjects, faculty, rooms, allocs, nil, defaultSet())
		_, err := New(snap, []string{"b1"}, Options{Choice: "tabu_search"})
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("zero-hour subjects yield empty requirements", func(t *testing.T) {
		idle := []domain.Subject{{ID: "s1", Type: domain.SubjectTheory, Credits: 3}}
		snap := domain.NewSnapshot(cal, batches, idle, faculty, rooms, allocs, nil, defaultSet())
		_, err := New(snap, []string{"b1"}, Options{Choice: ChoiceCSP})
		var emptyErr *EmptyRequirementsError
		require.ErrorAs(t, err, &emptyErr)
		assert.Equal(t, []string{"b1"}, emptyErr.BatchIDs)
	})
}

func TestValidateSchedule(t *testing.T) {
	build := func(cs domain.ConstraintSet) *domain.Snapshot {
		return domain.NewSnapshot(
			weekCalendar(),
			[]domain.Batch{{ID: "b1", Headcount: 30}, {ID: "b2", Headcount: 30}},
			nil,
			[]domain.Faculty{{ID: "f1"}},
			[]domain.Room{
				{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60},
				{ID: "r2", Kind: domain.RoomClassroom, Capacity: 60},
				{ID: "tiny", Kind: domain.RoomClassroom, Capacity: 10},
			},
			nil, nil, cs,
		)
	}
	slots := []domain.ScheduledSlot{
		{BatchID: "b1", DayIndex: 0, PeriodIndex: 0, FacultyID: "f1", RoomID: "r1"},
		{BatchID: "b2", DayIndex: 0, PeriodIndex: 0, FacultyID: "f1", RoomID: "r2"},
		{BatchID: "b1", DayIndex: 0, PeriodIndex: 1, FacultyID: "f1", RoomID: "tiny"},
	}

	conflicts := ValidateSchedule(build(defaultSet()), slots)
	require.Len(t, conflicts, 2)
	assert.Equal(t, domain.ConstraintNoFacultyConflict, conflicts[0].Constraint)
	assert.Equal(t, "f1", conflicts[0].EntityID)
	assert.Equal(t, 2, conflicts[0].Count)
	assert.Equal(t, domain.ConstraintRoomCapacity, conflicts[1].Constraint)
	assert.Equal(t, "tiny", conflicts[1].EntityID)
	assert.Contains(t, conflicts[0].String(), "f1")

	t.Run("disabled constraints are skipped", func(t *testing.T) {
		specs := domain.DefaultConstraints()
		for i := range specs {
			if specs[i].Name == domain.ConstraintNoFacultyConflict {
				specs[i].Enabled = false
			}
		}
		conflicts := ValidateSchedule(build(domain.NewConstraintSet(specs)), slots)
		require.Len(t, conflicts, 1)
		assert.Equal(t, domain.ConstraintRoomCapacity, conflicts[0].Constraint)
	})

	t.Run("clean schedule", func(t *testing.T) {
		clean := []domain.ScheduledSlot{
			{BatchID: "b1", DayIndex: 0, PeriodIndex: 0, FacultyID: "f1", RoomID: "r1"},
			{BatchID: "b1", DayIndex: 1, PeriodIndex: 0, FacultyID: "f1", RoomID: "r1"},
		}
		assert.Empty(t, ValidateSchedule(build(defaultSet()), clean))
	})
}

func TestSolverRunsEndToEnd(t *testing.T) {
	snap := singleBatchSnapshot()

	for _, choice := range []Choice{ChoiceCSP, ChoiceCSPMinConflicts, ChoiceGeneticCPU, ChoiceGeneticGPU} {
		t.Run(string(choice), func(t *testing.T) {
			s, err := New(snap, []string{"b1"}, Options{
				Choice:         choice,
				Seed:           17,
				PopulationSize: 20,
				MaxGenerations: 10,
			})
			require.NoError(t, err)

			res, err := s.Run(context.Background(), nil)
			require.NoError(t, err)
			require.Len(t, res.Slots, 5)
			assert.NotEmpty(t, res.Method)
			assert.NotEmpty(t, res.Trace)
			assert.Greater(t, res.BestFitness, 0.0)
			assert.LessOrEqual(t, res.BestFitness, fitnessCeiling)
		})
	}
}
