package solver

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/campusmesh/timetable-api/internal/domain"
)

const cspMethod = "greedy CSP with least-constraining-value placement"

// progress is reported once per this many requirements.
const cspProgressStride = 5

type occKey struct {
	id     string
	day    int
	period int
}

type entityDay struct {
	id  string
	day int
}

type subjectDay struct {
	batchID   string
	subjectID string
	day       int
}

type slotRef struct {
	period      int
	subjectType domain.SubjectType
}

// cspState is the incrementally maintained occupancy index over the partial
// schedule. Every hard filter and soft penalty reads from these maps instead
// of rescanning the slot list.
type cspState struct {
	facultyOcc map[occKey]bool
	batchOcc   map[occKey]bool
	roomOcc    map[occKey]bool

	batchDayRefs    map[entityDay][]slotRef
	batchDayTimes   map[entityDay][]int
	facultyDayTimes map[entityDay][]int
	practicalToday  map[entityDay]int
	theoryRepeats   map[subjectDay]int

	slots []domain.ScheduledSlot
}

func newCSPState(capacity int) *cspState {
	return &cspState{
		facultyOcc:      make(map[occKey]bool),
		batchOcc:        make(map[occKey]bool),
		roomOcc:         make(map[occKey]bool),
		batchDayRefs:    make(map[entityDay][]slotRef),
		batchDayTimes:   make(map[entityDay][]int),
		facultyDayTimes: make(map[entityDay][]int),
		practicalToday:  make(map[entityDay]int),
		theoryRepeats:   make(map[subjectDay]int),
		slots:           make([]domain.ScheduledSlot, 0, capacity),
	}
}

func (st *cspState) add(slot domain.ScheduledSlot, subjectType domain.SubjectType) {
	st.facultyOcc[occKey{slot.FacultyID, slot.DayIndex, slot.PeriodIndex}] = true
	st.batchOcc[occKey{slot.BatchID, slot.DayIndex, slot.PeriodIndex}] = true
	st.roomOcc[occKey{slot.RoomID, slot.DayIndex, slot.PeriodIndex}] = true

	batchKey := entityDay{slot.BatchID, slot.DayIndex}
	st.batchDayRefs[batchKey] = append(st.batchDayRefs[batchKey], slotRef{slot.PeriodIndex, subjectType})

	times := st.batchDayTimes[batchKey]
	pos := sort.SearchInts(times, slot.PeriodIndex)
	times = append(times, 0)
	copy(times[pos+1:], times[pos:])
	times[pos] = slot.PeriodIndex
	st.batchDayTimes[batchKey] = times

	facKey := entityDay{slot.FacultyID, slot.DayIndex}
	st.facultyDayTimes[facKey] = append(st.facultyDayTimes[facKey], slot.PeriodIndex)

	if subjectType == domain.SubjectPractical {
		st.practicalToday[batchKey]++
	}
	if slot.RoomKind == domain.RoomClassroom {
		st.theoryRepeats[subjectDay{slot.BatchID, slot.SubjectID, slot.DayIndex}]++
	}

	st.slots = append(st.slots, slot)
}

// cspSolver is the constructive, non-backtracking greedy solver. Fixed slots
// seed the schedule; requirements are placed most-constrained-first; an
// unplaceable requirement aborts the whole solve.
type cspSolver struct {
	snap   *domain.Snapshot
	reqs   []domain.Requirement
	pinned []domain.ScheduledSlot
	logger *zap.Logger

	// minConflicts is accepted for interface parity with the
	// csp_min_conflicts choice; the greedy path is identical.
	minConflicts bool
}

func newCSPSolver(snap *domain.Snapshot, reqs []domain.Requirement, pinned []domain.ScheduledSlot, opts Options) *cspSolver {
	ordered := make([]domain.Requirement, len(reqs))
	copy(ordered, reqs)
	// Most-constrained-first: descending priority, then descending duration
	// so labs precede theory of equal priority.
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].Duration > ordered[j].Duration
	})

	return &cspSolver{
		snap:         snap,
		reqs:         ordered,
		pinned:       pinned,
		logger:       opts.Logger,
		minConflicts: opts.Choice == ChoiceCSPMinConflicts,
	}
}

func (s *cspSolver) Run(ctx context.Context, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	total := len(s.reqs)

	st := newCSPState(len(s.pinned) + total)
	for _, slot := range s.pinned {
		st.add(slot, s.snap.SubjectTypeOf(slot.SubjectID))
	}

	for idx, req := range s.reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if onProgress != nil && idx%cspProgressStride == 0 {
			onProgress(Progress{Stage: StageRequirements, Completed: idx, Total: total})
		}

		batch, _ := s.snap.BatchByID(req.BatchID)
		rooms := s.candidateRooms(req.Kind, batch.Headcount)

		day, period, room, found := s.bestPlacement(req, rooms, batch.Headcount, st)
		if !found {
			return nil, &InfeasibleScheduleError{
				BatchID:   req.BatchID,
				SubjectID: req.SubjectID,
				FacultyID: req.FacultyID,
				Kind:      req.Kind,
				Index:     idx,
				Total:     total,
			}
		}

		if req.Duration > 1 && s.snap.Calendar.SpansDivisions(period, req.Duration) {
			s.logger.Debug("lab block spans day divisions",
				zap.String("batch_id", req.BatchID),
				zap.String("subject_id", req.SubjectID),
				zap.Int("day", day),
				zap.Int("start_period", period))
		}

		subjectType := s.snap.SubjectTypeOf(req.SubjectID)
		kind := domain.RoomClassroom
		if req.Kind == domain.SessionLab {
			kind = room.Kind
		}
		for i := 0; i < req.Duration; i++ {
			st.add(domain.ScheduledSlot{
				BatchID:     req.BatchID,
				DayIndex:    day,
				PeriodIndex: period + i,
				SubjectID:   req.SubjectID,
				FacultyID:   req.FacultyID,
				RoomID:      room.ID,
				RoomKind:    kind,
			}, subjectType)
		}
	}

	fitness := newFitnessEvaluator(s.snap).fitness(st.slots)
	return &Result{
		Slots:       st.slots,
		Trace:       []TraceRecord{{Generation: 0, Best: fitness, Conflicts: 0}},
		Method:      cspMethod,
		Elapsed:     time.Since(start),
		BestFitness: fitness,
	}, nil
}

// candidateRooms returns the room pool for a requirement kind: labs prefer
// lab rooms and fall back to classrooms when none exist. Capacity filtering
// applies when the room_capacity constraint is enabled.
func (s *cspSolver) candidateRooms(kind domain.SessionKind, headcount int) []domain.Room {
	var pool []domain.Room
	if kind == domain.SessionLab {
		pool = s.snap.Labs()
		if len(pool) == 0 {
			pool = s.snap.Classrooms()
		}
	} else {
		pool = s.snap.Classrooms()
	}

	if !s.snap.Constraints.Enabled(domain.ConstraintRoomCapacity) {
		return pool
	}
	fitting := make([]domain.Room, 0, len(pool))
	for _, r := range pool {
		if r.Capacity >= headcount {
			fitting = append(fitting, r)
		}
	}
	return fitting
}

// bestPlacement scans slots chronologically (day index, then period index)
// and every candidate room, keeping the first surviving placement with the
// minimum soft penalty. Strict comparison preserves chronological order as
// the tie-break, which keeps this path fully deterministic.
func (s *cspSolver) bestPlacement(req domain.Requirement, rooms []domain.Room, headcount int, st *cspState) (day, period int, room domain.Room, found bool) {
	cal := s.snap.Calendar
	bestPenalty := 0.0

	for d := 0; d < len(cal.Days); d++ {
		for p := 0; p < len(cal.Periods); p++ {
			var slotPenalty float64
			slotScored := false
			for _, r := range rooms {
				if s.blocked(req, d, p, r, headcount, st) {
					continue
				}
				// The soft penalty is independent of the room, so one score
				// covers every room surviving this (day, period).
				if !slotScored {
					slotPenalty = s.penalty(req, d, p, st)
					slotScored = true
				}
				if !found || slotPenalty < bestPenalty {
					day, period, room = d, p, r
					bestPenalty = slotPenalty
					found = true
				}
			}
		}
	}
	return day, period, room, found
}

// blocked applies every enabled hard constraint to one candidate placement.
func (s *cspSolver) blocked(req domain.Requirement, day, startPeriod int, room domain.Room, headcount int, st *cspState) bool {
	cal := s.snap.Calendar
	cs := s.snap.Constraints

	// The whole block must fit inside the day.
	if startPeriod+req.Duration > len(cal.Periods) {
		return true
	}

	for i := 0; i < req.Duration; i++ {
		p := startPeriod + i
		if cs.Enabled(domain.ConstraintNoFacultyConflict) && st.facultyOcc[occKey{req.FacultyID, day, p}] {
			return true
		}
		if cs.Enabled(domain.ConstraintNoBatchConflict) && st.batchOcc[occKey{req.BatchID, day, p}] {
			return true
		}
		if cs.Enabled(domain.ConstraintNoRoomConflict) && st.roomOcc[occKey{room.ID, day, p}] {
			return true
		}
	}

	if cs.Enabled(domain.ConstraintRoomCapacity) && room.Capacity < headcount {
		return true
	}

	if s.divisionBlocked(req, day, startPeriod, st) {
		return true
	}

	if gapCreated(st.batchDayTimes[entityDay{req.BatchID, day}], startPeriod) {
		return true
	}

	return false
}

// divisionBlocked enforces one session type per day division per batch: a
// theory placement may not land in a division already holding a practical
// entry for the batch, and vice versa. The candidate's division is taken
// from its start period; existing entries contribute the division of each
// occupied period.
func (s *cspSolver) divisionBlocked(req domain.Requirement, day, startPeriod int, st *cspState) bool {
	div := s.snap.Calendar.Division(startPeriod)
	for _, ref := range st.batchDayRefs[entityDay{req.BatchID, day}] {
		if s.snap.Calendar.Division(ref.period) != div {
			continue
		}
		if req.Kind == domain.SessionTheory && ref.subjectType == domain.SubjectPractical {
			return true
		}
		if req.Kind == domain.SessionLab && ref.subjectType == domain.SubjectTheory {
			return true
		}
	}
	return false
}

// gapCreated reports whether inserting candidate into the batch's sorted
// period list for the day would leave an idle period between two classes.
// An empty day never gaps.
func gapCreated(times []int, candidate int) bool {
	if len(times) == 0 {
		return false
	}
	prev := 0
	seen := false
	step := func(t int) bool {
		if seen && t-prev > 1 {
			return true
		}
		prev = t
		seen = true
		return false
	}

	inserted := false
	for _, t := range times {
		if !inserted && candidate <= t {
			if step(candidate) {
				return true
			}
			inserted = true
		}
		if step(t) {
			return true
		}
	}
	if !inserted && step(candidate) {
		return true
	}
	return false
}

// penalty scores one placement against the enabled soft constraints; lower
// is better. Mirrors the weights the catalogue was tuned with.
func (s *cspSolver) penalty(req domain.Requirement, day, startPeriod int, st *cspState) float64 {
	cs := s.snap.Constraints
	total := 0.0

	if cs.Enabled(domain.ConstraintPriorityBias) {
		if subject, ok := s.snap.SubjectByID(req.SubjectID); ok && subject.Credits >= 4 {
			if s.snap.Calendar.Division(startPeriod) == domain.DivisionLateNoon {
				total += cs.Weight(domain.ConstraintPriorityBias, 3.0)
			}
		}
	}

	if cs.Enabled(domain.ConstraintLabAlternation) && req.Kind == domain.SessionLab {
		if count := st.practicalToday[entityDay{req.BatchID, day}]; count > 0 {
			total += float64(count) * cs.Weight(domain.ConstraintLabAlternation, 3.0)
		}
	}

	if cs.Enabled(domain.ConstraintMinimizeFacultyGaps) {
		weight := cs.Weight(domain.ConstraintMinimizeFacultyGaps, 2.0)
		for _, t := range st.facultyDayTimes[entityDay{req.FacultyID, day}] {
			gap := startPeriod - t
			if gap < 0 {
				gap = -gap
			}
			if gap > 1 {
				total += float64(gap-1) * weight * 0.5
			}
		}
	}

	// Same-day theory repetition: heavy but never hard-blocking.
	if req.Kind == domain.SessionTheory {
		if count := st.theoryRepeats[subjectDay{req.BatchID, req.SubjectID, day}]; count > 0 {
			total += 50.0 * float64(count)
		}
	}

	// Chronological bias keeps equal-penalty placements early in the day.
	total += float64(startPeriod) * 0.1

	return total
}
