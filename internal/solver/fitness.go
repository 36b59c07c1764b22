package solver

import (
	"sort"

	"github.com/campusmesh/timetable-api/internal/domain"
)

// fitnessCeiling is the score of a penalty-free schedule; the generational
// loop stops early once best fitness reaches earlyStopFitness.
const (
	fitnessCeiling   = 1000.0
	earlyStopFitness = 999.0
)

// evaluator scores one complete candidate schedule. Implementations must be
// pure over the snapshot so the pool can run them concurrently.
type evaluator interface {
	fitness(slots []domain.ScheduledSlot) float64
}

type constraintTerm struct {
	active bool
	weight float64
}

// fitnessTerms resolves the constraint configuration once per solve. The
// genetic path activates a term only when its entry is present AND enabled;
// a sparse configuration silently drops terms, unlike the CSP's
// default-enabled hard gating.
type fitnessTerms struct {
	facultyConflict constraintTerm
	batchConflict   constraintTerm
	roomConflict    constraintTerm
	facultyGaps     constraintTerm
	batchGaps       constraintTerm
	balancedLoad    constraintTerm
}

func resolveTerms(cs domain.ConstraintSet) fitnessTerms {
	term := func(name string) constraintTerm {
		spec, ok := cs.Spec(name)
		return constraintTerm{active: ok && spec.Enabled, weight: spec.Weight}
	}
	return fitnessTerms{
		facultyConflict: term(domain.ConstraintNoFacultyConflict),
		batchConflict:   term(domain.ConstraintNoBatchConflict),
		roomConflict:    term(domain.ConstraintNoRoomConflict),
		facultyGaps:     term(domain.ConstraintMinimizeFacultyGaps),
		batchGaps:       term(domain.ConstraintMinimizeBatchGaps),
		balancedLoad:    term(domain.ConstraintBalancedFacultyLoad),
	}
}

// fitnessEvaluator is the reference scoring path: float64, struct-shaped
// genes. Hard constraints are soft-relaxed to weight × (count − 1) per
// duplicated entity per (day, period) cell, because genetic individuals are
// never hard-filtered.
type fitnessEvaluator struct {
	terms fitnessTerms
	days  int
}

func newFitnessEvaluator(snap *domain.Snapshot) *fitnessEvaluator {
	return &fitnessEvaluator{
		terms: resolveTerms(snap.Constraints),
		days:  len(snap.Calendar.Days),
	}
}

func (e *fitnessEvaluator) fitness(slots []domain.ScheduledSlot) float64 {
	return fitnessCeiling / (1.0 + e.penalty(slots))
}

func (e *fitnessEvaluator) penalty(slots []domain.ScheduledSlot) float64 {
	penalty := 0.0

	if e.terms.facultyConflict.active {
		penalty += conflictPenalty(slots, e.terms.facultyConflict.weight, func(s domain.ScheduledSlot) string { return s.FacultyID })
	}
	if e.terms.batchConflict.active {
		penalty += conflictPenalty(slots, e.terms.batchConflict.weight, func(s domain.ScheduledSlot) string { return s.BatchID })
	}
	if e.terms.roomConflict.active {
		penalty += conflictPenalty(slots, e.terms.roomConflict.weight, func(s domain.ScheduledSlot) string { return s.RoomID })
	}
	if e.terms.facultyGaps.active {
		penalty += gapPenalty(slots, e.terms.facultyGaps.weight, func(s domain.ScheduledSlot) string { return s.FacultyID })
	}
	if e.terms.batchGaps.active {
		penalty += gapPenalty(slots, e.terms.batchGaps.weight, func(s domain.ScheduledSlot) string { return s.BatchID })
	}
	if e.terms.balancedLoad.active {
		penalty += loadVariancePenalty(slots, e.terms.balancedLoad.weight, e.days)
	}

	return penalty
}

// conflictPenalty charges weight × (count − 1) for every entity booked more
// than once in the same (day, period) cell.
func conflictPenalty(slots []domain.ScheduledSlot, weight float64, keyOf func(domain.ScheduledSlot) string) float64 {
	counts := make(map[occKey]int, len(slots))
	for _, s := range slots {
		counts[occKey{keyOf(s), s.DayIndex, s.PeriodIndex}]++
	}
	penalty := 0.0
	for _, n := range counts {
		if n > 1 {
			penalty += weight * float64(n-1)
		}
	}
	return penalty
}

// gapPenalty charges weight × gap × 0.5 for every idle stretch between
// chronologically adjacent same-day slots of one entity.
func gapPenalty(slots []domain.ScheduledSlot, weight float64, keyOf func(domain.ScheduledSlot) string) float64 {
	byDay := make(map[entityDay][]int)
	for _, s := range slots {
		key := entityDay{keyOf(s), s.DayIndex}
		byDay[key] = append(byDay[key], s.PeriodIndex)
	}
	penalty := 0.0
	for _, periods := range byDay {
		if len(periods) < 2 {
			continue
		}
		sort.Ints(periods)
		for i := 0; i < len(periods)-1; i++ {
			gap := periods[i+1] - periods[i] - 1
			if gap > 0 {
				penalty += weight * float64(gap) * 0.5
			}
		}
	}
	return penalty
}

// loadVariancePenalty charges weight × variance × 0.3 per faculty, where the
// variance is taken over the faculty's daily load across every working day,
// idle days included.
func loadVariancePenalty(slots []domain.ScheduledSlot, weight float64, days int) float64 {
	if days == 0 {
		return 0
	}
	daily := make(map[entityDay]int)
	seen := make(map[string]struct{})
	for _, s := range slots {
		daily[entityDay{s.FacultyID, s.DayIndex}]++
		seen[s.FacultyID] = struct{}{}
	}

	penalty := 0.0
	for facultyID := range seen {
		sum, maxLoad := 0, 0
		for d := 0; d < days; d++ {
			load := daily[entityDay{facultyID, d}]
			sum += load
			if load > maxLoad {
				maxLoad = load
			}
		}
		if maxLoad == 0 {
			continue
		}
		avg := float64(sum) / float64(days)
		variance := 0.0
		for d := 0; d < days; d++ {
			diff := float64(daily[entityDay{facultyID, d}]) - avg
			variance += diff * diff
		}
		variance /= float64(days)
		penalty += weight * variance * 0.3
	}
	return penalty
}

// arrayEvaluator is the vectorized scoring backend behind the genetic_gpu
// choice: genes are flattened to int32 tuples and penalties accumulate in
// float32. Scores match the reference path modulo float32 rounding.
type arrayEvaluator struct {
	terms   fitnessTerms
	days    int32
	periods int32

	batchIndex   map[string]int32
	facultyIndex map[string]int32
	roomIndex    map[string]int32
}

// geneWidth is the encoded tuple: batch, day, period, faculty, room.
const geneWidth = 5

func newArrayEvaluator(snap *domain.Snapshot) *arrayEvaluator {
	a := &arrayEvaluator{
		terms:        resolveTerms(snap.Constraints),
		days:         int32(len(snap.Calendar.Days)),
		periods:      int32(len(snap.Calendar.Periods)),
		batchIndex:   make(map[string]int32, len(snap.Batches)),
		facultyIndex: make(map[string]int32, len(snap.Faculty)),
		roomIndex:    make(map[string]int32, len(snap.Rooms)),
	}
	for i, b := range snap.Batches {
		a.batchIndex[b.ID] = int32(i)
	}
	for i, f := range snap.Faculty {
		a.facultyIndex[f.ID] = int32(i)
	}
	for i, r := range snap.Rooms {
		a.roomIndex[r.ID] = int32(i)
	}
	return a
}

func (a *arrayEvaluator) encode(slots []domain.ScheduledSlot) []int32 {
	encoded := make([]int32, 0, len(slots)*geneWidth)
	for _, s := range slots {
		encoded = append(encoded,
			a.batchIndex[s.BatchID],
			int32(s.DayIndex),
			int32(s.PeriodIndex),
			a.facultyIndex[s.FacultyID],
			a.roomIndex[s.RoomID],
		)
	}
	return encoded
}

func (a *arrayEvaluator) fitness(slots []domain.ScheduledSlot) float64 {
	encoded := a.encode(slots)
	var penalty float32

	cells := a.days * a.periods
	cellOf := func(i int) int64 {
		return int64(encoded[i+1])*int64(a.periods) + int64(encoded[i+2])
	}

	countConflicts := func(field int, weight float32) float32 {
		counts := make(map[int64]int32, len(slots))
		for i := 0; i < len(encoded); i += geneWidth {
			counts[int64(encoded[i+field])*int64(cells)+cellOf(i)]++
		}
		var p float32
		for _, n := range counts {
			if n > 1 {
				p += weight * float32(n-1)
			}
		}
		return p
	}

	if a.terms.facultyConflict.active {
		penalty += countConflicts(3, float32(a.terms.facultyConflict.weight))
	}
	if a.terms.batchConflict.active {
		penalty += countConflicts(0, float32(a.terms.batchConflict.weight))
	}
	if a.terms.roomConflict.active {
		penalty += countConflicts(4, float32(a.terms.roomConflict.weight))
	}

	gapPenalty32 := func(field int, weight float32) float32 {
		byDay := make(map[int64][]int32)
		for i := 0; i < len(encoded); i += geneWidth {
			key := int64(encoded[i+field])*int64(a.days) + int64(encoded[i+1])
			byDay[key] = append(byDay[key], encoded[i+2])
		}
		var p float32
		for _, periods := range byDay {
			if len(periods) < 2 {
				continue
			}
			sort.Slice(periods, func(x, y int) bool { return periods[x] < periods[y] })
			for i := 0; i < len(periods)-1; i++ {
				if gap := periods[i+1] - periods[i] - 1; gap > 0 {
					p += weight * float32(gap) * 0.5
				}
			}
		}
		return p
	}

	if a.terms.facultyGaps.active {
		penalty += gapPenalty32(3, float32(a.terms.facultyGaps.weight))
	}
	if a.terms.batchGaps.active {
		penalty += gapPenalty32(0, float32(a.terms.batchGaps.weight))
	}

	if a.terms.balancedLoad.active {
		weight := float32(a.terms.balancedLoad.weight)
		daily := make(map[int64]int32)
		seen := make(map[int32]struct{})
		for i := 0; i < len(encoded); i += geneWidth {
			fid := encoded[i+3]
			daily[int64(fid)*int64(a.days)+int64(encoded[i+1])]++
			seen[fid] = struct{}{}
		}
		for fid := range seen {
			var sum, maxLoad int32
			for d := int32(0); d < a.days; d++ {
				load := daily[int64(fid)*int64(a.days)+int64(d)]
				sum += load
				if load > maxLoad {
					maxLoad = load
				}
			}
			if maxLoad == 0 {
				continue
			}
			avg := float32(sum) / float32(a.days)
			var variance float32
			for d := int32(0); d < a.days; d++ {
				diff := float32(daily[int64(fid)*int64(a.days)+int64(d)]) - avg
				variance += diff * diff
			}
			variance /= float32(a.days)
			penalty += weight * variance * 0.3
		}
	}

	return float64(float32(fitnessCeiling) / (1.0 + penalty))
}
