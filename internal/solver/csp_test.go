package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmesh/timetable-api/internal/domain"
)

func runCSP(t *testing.T, snap *domain.Snapshot, batchIDs []string, opts Options) *Result {
	t.Helper()
	if opts.Choice == "" {
		opts.Choice = ChoiceCSP
	}
	s, err := New(snap, batchIDs, opts)
	require.NoError(t, err)
	res, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	return res
}

func TestCSPSpreadsTheoryAcrossDays(t *testing.T) {
	snap := domain.NewSnapshot(
		weekCalendar(),
		[]domain.Batch{{ID: "b1", Headcount: 30}},
		[]domain.Subject{{ID: "s-dsa", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 3}},
		[]domain.Faculty{{ID: "f1"}},
		[]domain.Room{{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60}},
		[]domain.Allocation{{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1"}},
		nil,
		defaultSet(),
	)

	res := runCSP(t, snap, []string{"b1"}, Options{})
	require.Len(t, res.Slots, 3)

	days := map[int]bool{}
	for _, slot := range res.Slots {
		days[slot.DayIndex] = true
		assert.Equal(t, 0, slot.PeriodIndex)
		assert.Equal(t, "r1", slot.RoomID)
		assert.False(t, slot.Fixed)
	}
	assert.Len(t, days, 3, "repetition pressure should push hours onto fresh days")

	assert.Equal(t, cspMethod, res.Method)
	require.Len(t, res.Trace, 1)
	assert.InDelta(t, fitnessCeiling, res.BestFitness, 1e-9)
	assert.Empty(t, ValidateSchedule(snap, res.Slots))
}

func TestCSPKeepsFixedSlotsVerbatim(t *testing.T) {
	snap := domain.NewSnapshot(
		weekCalendar(),
		[]domain.Batch{{ID: "b1", Headcount: 30}},
		[]domain.Subject{{ID: "s-dsa", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 1}},
		[]domain.Faculty{{ID: "f1"}, {ID: "f3"}},
		[]domain.Room{
			{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60},
			{ID: "r2", Kind: domain.RoomClassroom, Capacity: 60},
		},
		[]domain.Allocation{{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1"}},
		[]domain.FixedSlot{{
			BatchID: "b1", SubjectID: "s-mentor", FacultyID: "f3",
			RoomID: "r2", RoomKind: domain.RoomClassroom,
			Day: "monday", Period: "10:00",
		}},
		defaultSet(),
	)

	res := runCSP(t, snap, []string{"b1"}, Options{})
	require.Len(t, res.Slots, 2)

	pinned := res.Slots[0]
	assert.True(t, pinned.Fixed)
	assert.Equal(t, "s-mentor", pinned.SubjectID)
	assert.Equal(t, "f3", pinned.FacultyID)
	assert.Equal(t, "r2", pinned.RoomID)
	assert.Equal(t, 0, pinned.DayIndex)
	assert.Equal(t, 1, pinned.PeriodIndex)

	placed := res.Slots[1]
	assert.False(t, placed.Fixed)
	assert.Equal(t, "s-dsa", placed.SubjectID)
	assert.Equal(t, 0, placed.DayIndex)
	assert.Equal(t, 0, placed.PeriodIndex, "placement should pack against the pinned period")

	t.Run("ignore fixed slots", func(t *testing.T) {
		res := runCSP(t, snap, []string{"b1"}, Options{IgnoreFixedSlots: true})
		require.Len(t, res.Slots, 1)
		assert.Equal(t, "s-dsa", res.Slots[0].SubjectID)
	})
}

func TestCSPInfeasibleReportsRequirement(t *testing.T) {
	snap := domain.NewSnapshot(
		domain.NewCalendar([]string{"monday"}, []string{"09:00", "10:00"}),
		[]domain.Batch{{ID: "b1", Headcount: 30}},
		[]domain.Subject{
			{ID: "s-a", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 2},
			{ID: "s-b", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 2},
		},
		[]domain.Faculty{{ID: "f1"}},
		[]domain.Room{{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60}},
		[]domain.Allocation{
			{BatchID: "b1", SubjectID: "s-a", FacultyID: "f1"},
			{BatchID: "b1", SubjectID: "s-b", FacultyID: "f1"},
		},
		nil,
		defaultSet(),
	)

	s, err := New(snap, []string{"b1"}, Options{Choice: ChoiceCSP})
	require.NoError(t, err)

	_, err = s.Run(context.Background(), nil)
	var infeasible *InfeasibleScheduleError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, "b1", infeasible.BatchID)
	assert.Equal(t, "s-b", infeasible.SubjectID)
	assert.Equal(t, domain.SessionTheory, infeasible.Kind)
	assert.Equal(t, 2, infeasible.Index)
	assert.Equal(t, 4, infeasible.Total)
	assert.Contains(t, err.Error(), "relaxing")
}

func TestCSPDivisionExclusivity(t *testing.T) {
	snap := domain.NewSnapshot(
		domain.NewCalendar(
			[]string{"monday", "tuesday"},
			[]string{"09:00", "10:00", "11:00", "12:00", "14:00", "15:00"},
		),
		[]domain.Batch{{ID: "b1", Headcount: 30}},
		[]domain.Subject{
			{ID: "s-adv", Type: domain.SubjectTheory, Credits: 5, TheoryHours: 1},
			{ID: "s-ml-lab", Type: domain.SubjectPractical, Credits: 2, LabHours: 1},
			{ID: "s-intro", Type: domain.SubjectTheory, Credits: 1, TheoryHours: 1},
		},
		[]domain.Faculty{{ID: "f1"}, {ID: "f2"}, {ID: "f3"}},
		[]domain.Room{
			{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60},
			{ID: "l1", Kind: domain.RoomLab, Capacity: 60},
		},
		[]domain.Allocation{
			{BatchID: "b1", SubjectID: "s-adv", FacultyID: "f1"},
			{BatchID: "b1", SubjectID: "s-ml-lab", FacultyID: "f2"},
			{BatchID: "b1", SubjectID: "s-intro", FacultyID: "f3"},
		},
		nil,
		defaultSet(),
	)

	res := runCSP(t, snap, []string{"b1"}, Options{})
	require.Len(t, res.Slots, 3)

	bySubject := map[string]domain.ScheduledSlot{}
	for _, slot := range res.Slots {
		bySubject[slot.SubjectID] = slot
	}

	// Theory owns monday's morning division, so the lab is pushed to the
	// next day instead of the adjacent free period.
	assert.Equal(t, 0, bySubject["s-adv"].DayIndex)
	assert.Equal(t, 0, bySubject["s-adv"].PeriodIndex)
	assert.Equal(t, 1, bySubject["s-ml-lab"].DayIndex)
	assert.Equal(t, 0, bySubject["s-ml-lab"].PeriodIndex)
	assert.Equal(t, "l1", bySubject["s-ml-lab"].RoomID)
	assert.Equal(t, domain.RoomLab, bySubject["s-ml-lab"].RoomKind)

	// A second theory beside the first is fine; beside the lab it is not.
	assert.Equal(t, 0, bySubject["s-intro"].DayIndex)
	assert.Equal(t, 1, bySubject["s-intro"].PeriodIndex)
}

func TestCSPRoomCapacity(t *testing.T) {
	build := func(cs domain.ConstraintSet) *domain.Snapshot {
		return domain.NewSnapshot(
			weekCalendar(),
			[]domain.Batch{{ID: "b1", Headcount: 100}},
			[]domain.Subject{{ID: "s1", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 1}},
			[]domain.Faculty{{ID: "f1"}},
			[]domain.Room{
				{ID: "r-small", Kind: domain.RoomClassroom, Capacity: 60},
				{ID: "r-big", Kind: domain.RoomClassroom, Capacity: 120},
			},
			[]domain.Allocation{{BatchID: "b1", SubjectID: "s1", FacultyID: "f1"}},
			nil,
			cs,
		)
	}

	res := runCSP(t, build(defaultSet()), []string{"b1"}, Options{})
	require.Len(t, res.Slots, 1)
	assert.Equal(t, "r-big", res.Slots[0].RoomID)

	t.Run("disabled capacity admits any room", func(t *testing.T) {
		specs := domain.DefaultConstraints()
		for i := range specs {
			if specs[i].Name == domain.ConstraintRoomCapacity {
				specs[i].Enabled = false
			}
		}
		res := runCSP(t, build(domain.NewConstraintSet(specs)), []string{"b1"}, Options{})
		require.Len(t, res.Slots, 1)
		assert.Equal(t, "r-small", res.Slots[0].RoomID)
	})
}

func TestCSPLabFallsBackToClassroom(t *testing.T) {
	snap := domain.NewSnapshot(
		weekCalendar(),
		[]domain.Batch{{ID: "b1", Headcount: 30}},
		[]domain.Subject{{ID: "s-lab", Type: domain.SubjectPractical, Credits: 4, LabHours: 2}},
		[]domain.Faculty{{ID: "f1"}},
		[]domain.Room{{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60}},
		[]domain.Allocation{{BatchID: "b1", SubjectID: "s-lab", FacultyID: "f1"}},
		nil,
		defaultSet(),
	)

	res := runCSP(t, snap, []string{"b1"}, Options{})
	require.Len(t, res.Slots, 2)
	for _, slot := range res.Slots {
		assert.Equal(t, "r1", slot.RoomID)
		assert.Equal(t, domain.RoomClassroom, slot.RoomKind)
	}
	assert.Equal(t, res.Slots[0].DayIndex, res.Slots[1].DayIndex)
	assert.Equal(t, res.Slots[0].PeriodIndex+1, res.Slots[1].PeriodIndex)
}

func TestCSPDeterministic(t *testing.T) {
	snap := singleBatchSnapshot()
	first := runCSP(t, snap, []string{"b1"}, Options{})
	second := runCSP(t, snap, []string{"b1"}, Options{})
	assert.Equal(t, first.Slots, second.Slots)
	assert.Equal(t, first.BestFitness, second.BestFitness)
	assert.Empty(t, ValidateSchedule(snap, first.Slots))
}

func TestCSPReportsProgress(t *testing.T) {
	s, err := New(singleBatchSnapshot(), []string{"b1"}, Options{Choice: ChoiceCSPMinConflicts})
	require.NoError(t, err)

	var reports []Progress
	_, err = s.Run(context.Background(), func(p Progress) { reports = append(reports, p) })
	require.NoError(t, err)

	require.NotEmpty(t, reports)
	assert.Equal(t, StageRequirements, reports[0].Stage)
	assert.Equal(t, 0, reports[0].Completed)
	assert.Equal(t, 4, reports[0].Total)
}

func TestCSPContextCancelled(t *testing.T) {
	s, err := New(singleBatchSnapshot(), []string{"b1"}, Options{Choice: ChoiceCSP})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
