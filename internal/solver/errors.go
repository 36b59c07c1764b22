package solver

import (
	"fmt"
	"strings"

	"github.com/campusmesh/timetable-api/internal/domain"
)

// ConfigurationError reports invalid or missing catalogue prerequisites
// detected before any search work begins. Fatal, never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "solver configuration: " + e.Reason
}

func newConfigErr(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// EmptyRequirementsError means requirement expansion produced nothing to
// schedule for the selected batches.
type EmptyRequirementsError struct {
	BatchIDs []string
}

func (e *EmptyRequirementsError) Error() string {
	if len(e.BatchIDs) == 0 {
		return "no scheduling requirements produced"
	}
	return "no scheduling requirements produced for batches " + strings.Join(e.BatchIDs, ", ")
}

// InfeasibleScheduleError is raised by the CSP path when a requirement has no
// legal (slot, room) combination left. It identifies the offending
// requirement; no backtracking is attempted.
type InfeasibleScheduleError struct {
	BatchID   string
	SubjectID string
	FacultyID string
	Kind      domain.SessionKind
	Index     int
	Total     int
}

func (e *InfeasibleScheduleError) Error() string {
	return fmt.Sprintf(
		"no feasible slot for %s requirement %d/%d (batch %s, subject %s, faculty %s); try relaxing constraints",
		e.Kind, e.Index+1, e.Total, e.BatchID, e.SubjectID, e.FacultyID,
	)
}
