package solver

import (
	"github.com/campusmesh/timetable-api/internal/domain"
)

type allocationTriple struct {
	batchID   string
	subjectID string
	facultyID string
}

// expandRequirements turns the snapshot's allocations into atomic scheduling
// requirements and re-emits pinned fixed slots as verbatim scheduled entries.
// A (batch, subject, faculty) triple covered by a fixed slot is recorded and
// excluded from expansion; pinned work is never re-solved, by either solver.
func expandRequirements(snap *domain.Snapshot) ([]domain.Requirement, []domain.ScheduledSlot, error) {
	pinned := make([]domain.ScheduledSlot, 0, len(snap.FixedSlots))
	pinnedTriples := make(map[allocationTriple]struct{}, len(snap.FixedSlots))

	for _, fs := range snap.FixedSlots {
		dayIdx, ok := snap.Calendar.DayIndex(fs.Day)
		if !ok {
			return nil, nil, newConfigErr("fixed slot references unknown day %q", fs.Day)
		}
		periodIdx, ok := snap.Calendar.PeriodIndex(fs.Period)
		if !ok {
			return nil, nil, newConfigErr("fixed slot references unknown period %q", fs.Period)
		}
		pinned = append(pinned, domain.ScheduledSlot{
			BatchID:     fs.BatchID,
			DayIndex:    dayIdx,
			PeriodIndex: periodIdx,
			SubjectID:   fs.SubjectID,
			FacultyID:   fs.FacultyID,
			RoomID:      fs.RoomID,
			RoomKind:    fs.RoomKind,
			Fixed:       true,
		})
		pinnedTriples[allocationTriple{fs.BatchID, fs.SubjectID, fs.FacultyID}] = struct{}{}
	}

	var reqs []domain.Requirement
	for _, alloc := range snap.Allocations {
		subject, ok := snap.SubjectByID(alloc.SubjectID)
		if !ok {
			continue
		}
		if _, ok := snap.BatchByID(alloc.BatchID); !ok {
			continue
		}
		if _, ok := pinnedTriples[allocationTriple{alloc.BatchID, alloc.SubjectID, alloc.FacultyID}]; ok {
			continue
		}

		for i := 0; i < subject.TheoryHours; i++ {
			reqs = append(reqs, domain.Requirement{
				BatchID:   alloc.BatchID,
				SubjectID: alloc.SubjectID,
				FacultyID: alloc.FacultyID,
				Kind:      domain.SessionTheory,
				Duration:  1,
				Priority:  subject.Credits,
			})
		}
		if subject.LabHours > 0 {
			reqs = append(reqs, domain.Requirement{
				BatchID:   alloc.BatchID,
				SubjectID: alloc.SubjectID,
				FacultyID: alloc.FacultyID,
				Kind:      domain.SessionLab,
				Duration:  subject.LabHours,
				Priority:  subject.Credits + 2,
			})
		}
	}

	if len(reqs) == 0 {
		ids := make([]string, 0, len(snap.Batches))
		for _, b := range snap.Batches {
			ids = append(ids, b.ID)
		}
		return nil, nil, &EmptyRequirementsError{BatchIDs: ids}
	}

	return reqs, pinned, nil
}
