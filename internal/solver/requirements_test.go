package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmesh/timetable-api/internal/domain"
)

func TestExpandRequirements(t *testing.T) {
	reqs, pinned, err := expandRequirements(singleBatchSnapshot())
	require.NoError(t, err)
	assert.Empty(t, pinned)
	require.Len(t, reqs, 4)

	for _, r := range reqs[:3] {
		assert.Equal(t, domain.SessionTheory, r.Kind)
		assert.Equal(t, "s-dsa", r.SubjectID)
		assert.Equal(t, 1, r.Duration)
		assert.Equal(t, 3, r.Priority)
	}

	lab := reqs[3]
	assert.Equal(t, domain.SessionLab, lab.Kind)
	assert.Equal(t, "s-os-lab", lab.SubjectID)
	assert.Equal(t, 2, lab.Duration)
	assert.Equal(t, 6, lab.Priority)
}

func TestExpandRequirementsPinsFixedSlots(t *testing.T) {
	snap := domain.NewSnapshot(
		weekCalendar(),
		[]domain.Batch{{ID: "b1", Headcount: 30}},
		[]domain.Subject{
			{ID: "s-sem", Name: "Seminar", Type: domain.SubjectTheory, Credits: 2, TheoryHours: 1},
			{ID: "s-dsa", Name: "Data Structures", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 2},
		},
		[]domain.Faculty{{ID: "f1"}, {ID: "f2"}},
		[]domain.Room{{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60}},
		[]domain.Allocation{
			{BatchID: "b1", SubjectID: "s-sem", FacultyID: "f2"},
			{BatchID: "b1", SubjectID: "s-dsa", FacultyID: "f1"},
		},
		[]domain.FixedSlot{{
			BatchID: "b1", SubjectID: "s-sem", FacultyID: "f2",
			RoomID: "r1", RoomKind: domain.RoomClassroom,
			Day: "tuesday", Period: "11:00",
		}},
		defaultSet(),
	)

	reqs, pinned, err := expandRequirements(snap)
	require.NoError(t, err)

	require.Len(t, pinned, 1)
	assert.True(t, pinned[0].Fixed)
	assert.Equal(t, 1, pinned[0].DayIndex)
	assert.Equal(t, 2, pinned[0].PeriodIndex)
	assert.Equal(t, "r1", pinned[0].RoomID)

	// The pinned triple must not be expanded a second time.
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, "s-dsa", r.SubjectID)
	}
}

func TestExpandRequirementsRejectsUnknownLabels(t *testing.T) {
	base := func(day, period string) *domain.Snapshot {
		return domain.NewSnapshot(
			weekCalendar(),
			[]domain.Batch{{ID: "b1", Headcount: 30}},
			[]domain.Subject{{ID: "s1", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 1}},
			[]domain.Faculty{{ID: "f1"}},
			[]domain.Room{{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60}},
			[]domain.Allocation{{BatchID: "b1", SubjectID: "s1", FacultyID: "f1"}},
			[]domain.FixedSlot{{
				BatchID: "b1", SubjectID: "s2", FacultyID: "f2",
				RoomID: "r1", RoomKind: domain.RoomClassroom,
				Day: day, Period: period,
			}},
			defaultSet(),
		)
	}

	_, _, err := expandRequirements(base("sunday", "09:00"))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "sunday")

	_, _, err = expandRequirements(base("monday", "23:00"))
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "23:00")
}

func TestExpandRequirementsSkipsDanglingAllocations(t *testing.T) {
	snap := domain.NewSnapshot(
		weekCalendar(),
		[]domain.Batch{{ID: "b1", Headcount: 30}},
		[]domain.Subject{{ID: "s1", Type: domain.SubjectTheory, Credits: 3, TheoryHours: 2}},
		[]domain.Faculty{{ID: "f1"}},
		[]domain.Room{{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60}},
		[]domain.Allocation{
			{BatchID: "b1", SubjectID: "ghost-subject", FacultyID: "f1"},
			{BatchID: "b1", SubjectID: "s1", FacultyID: "f1"},
		},
		nil,
		defaultSet(),
	)

	reqs, _, err := expandRequirements(snap)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		assert.Equal(t, "s1", r.SubjectID)
	}
}

func TestExpandRequirementsEmpty(t *testing.T) {
	snap := domain.NewSnapshot(
		weekCalendar(),
		[]domain.Batch{{ID: "b1", Headcount: 30}},
		[]domain.Subject{{ID: "s1", Type: domain.SubjectTheory, Credits: 3}},
		[]domain.Faculty{{ID: "f1"}},
		[]domain.Room{{ID: "r1", Kind: domain.RoomClassroom, Capacity: 60}},
		[]domain.Allocation{{BatchID: "b1", SubjectID: "s1", FacultyID: "f1"}},
		nil,
		defaultSet(),
	)

	_, _, err := expandRequirements(snap)
	var emptyErr *EmptyRequirementsError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, []string{"b1"}, emptyErr.BatchIDs)
	assert.Contains(t, emptyErr.Error(), "b1")
}
