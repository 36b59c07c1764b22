package domain

// ConstraintKind separates feasibility gates from weighted preferences.
type ConstraintKind string

const (
	ConstraintHard ConstraintKind = "hard"
	ConstraintSoft ConstraintKind = "soft"
)

// Constraint names. The set is data-driven (name-keyed, runtime-configurable
// weight and enabled flag); these constants cover the catalogue the solvers
// consult.
const (
	ConstraintNoFacultyConflict    = "no_faculty_conflict"
	ConstraintNoBatchConflict      = "no_batch_conflict"
	ConstraintNoRoomConflict       = "no_room_conflict"
	ConstraintRespectFixedSlots    = "respect_fixed_slots"
	ConstraintRoomCapacity         = "room_capacity"
	ConstraintWeeklyHoursMet       = "weekly_hours_met"
	ConstraintBalancedFacultyLoad  = "balanced_faculty_load"
	ConstraintMinimizeFacultyGaps  = "minimize_faculty_gaps"
	ConstraintMinimizeBatchGaps    = "minimize_batch_gaps"
	ConstraintConsecutiveLabHours  = "consecutive_lab_hours"
	ConstraintLabAlternation       = "lab_alternation"
	ConstraintNoMorningGaps        = "no_morning_gaps"
	ConstraintAvoidConsecutiveType = "avoid_consecutive_same_type"
	ConstraintInterestBased        = "interest_based_scheduling"
	ConstraintPriorityBias         = "priority_bias_scheduling"
	ConstraintMinimizeGaps         = "minimize_gaps"
)

// ConstraintSpec is one named scheduling rule. Hard specs gate feasibility;
// soft specs contribute weighted penalty only.
type ConstraintSpec struct {
	Name        string
	Kind        ConstraintKind
	Enabled     bool
	Weight      float64
	Description string
}

// ConstraintSet is a name-keyed view over constraint specs.
type ConstraintSet struct {
	specs map[string]ConstraintSpec
}

// NewConstraintSet indexes specs by name. Later duplicates win.
func NewConstraintSet(specs []ConstraintSpec) ConstraintSet {
	m := make(map[string]ConstraintSpec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return ConstraintSet{specs: m}
}

// Enabled reports whether the named constraint is active. Unknown names
// default to enabled so a sparse configuration keeps the core conflict rules
// in force.
func (cs ConstraintSet) Enabled(name string) bool {
	spec, ok := cs.specs[name]
	if !ok {
		return true
	}
	return spec.Enabled
}

// Weight returns the configured weight for the named constraint, or fallback
// when the name is unknown.
func (cs ConstraintSet) Weight(name string, fallback float64) float64 {
	spec, ok := cs.specs[name]
	if !ok {
		return fallback
	}
	return spec.Weight
}

// Spec returns the full spec for a name.
func (cs ConstraintSet) Spec(name string) (ConstraintSpec, bool) {
	spec, ok := cs.specs[name]
	return spec, ok
}

// Names returns all configured constraint names (unordered).
func (cs ConstraintSet) Names() []string {
	out := make([]string, 0, len(cs.specs))
	for name := range cs.specs {
		out = append(out, name)
	}
	return out
}

// DefaultConstraints is the stock constraint catalogue with the weights the
// scheduler was tuned against.
func DefaultConstraints() []ConstraintSpec {
	return []ConstraintSpec{
		{Name: ConstraintNoFacultyConflict, Kind: ConstraintHard, Enabled: true, Weight: 10.0, Description: "Faculty cannot teach multiple classes simultaneously"},
		{Name: ConstraintNoBatchConflict, Kind: ConstraintHard, Enabled: true, Weight: 10.0, Description: "Batch cannot attend multiple classes simultaneously"},
		{Name: ConstraintNoRoomConflict, Kind: ConstraintHard, Enabled: true, Weight: 10.0, Description: "Room cannot host multiple classes simultaneously"},
		{Name: ConstraintRespectFixedSlots, Kind: ConstraintHard, Enabled: true, Weight: 10.0, Description: "Honor manually pinned fixed slots"},
		{Name: ConstraintRoomCapacity, Kind: ConstraintHard, Enabled: true, Weight: 8.0, Description: "Room capacity must accommodate batch size"},
		{Name: ConstraintWeeklyHoursMet, Kind: ConstraintSoft, Enabled: true, Weight: 5.0, Description: "Meet required weekly hours for each subject"},
		{Name: ConstraintBalancedFacultyLoad, Kind: ConstraintSoft, Enabled: true, Weight: 3.0, Description: "Distribute load evenly across faculty days"},
		{Name: ConstraintMinimizeFacultyGaps, Kind: ConstraintSoft, Enabled: true, Weight: 2.0, Description: "Minimize idle periods between classes for faculty"},
		{Name: ConstraintMinimizeBatchGaps, Kind: ConstraintSoft, Enabled: true, Weight: 2.0, Description: "Minimize idle periods between classes for batches"},
		{Name: ConstraintConsecutiveLabHours, Kind: ConstraintSoft, Enabled: true, Weight: 4.0, Description: "Schedule lab sessions in consecutive periods"},
		{Name: ConstraintLabAlternation, Kind: ConstraintSoft, Enabled: true, Weight: 3.0, Description: "Alternate labs across different days"},
		{Name: ConstraintNoMorningGaps, Kind: ConstraintSoft, Enabled: true, Weight: 3.5, Description: "Avoid gaps in the morning schedule"},
		{Name: ConstraintAvoidConsecutiveType, Kind: ConstraintSoft, Enabled: true, Weight: 2.5, Description: "Avoid long runs of the same session type"},
		{Name: ConstraintInterestBased, Kind: ConstraintSoft, Enabled: true, Weight: 2.0, Description: "Schedule around student engagement patterns"},
		{Name: ConstraintPriorityBias, Kind: ConstraintSoft, Enabled: true, Weight: 3.0, Description: "Prefer better time slots for high-credit subjects"},
		{Name: ConstraintMinimizeGaps, Kind: ConstraintSoft, Enabled: true, Weight: 2.5, Description: "General gap minimization across the timetable"},
	}
}
