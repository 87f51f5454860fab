package router

import (
	"fmt"
	"strings"
)

// AttemptFailure captures why one fallback candidate was abandoned.
type AttemptFailure struct {
	ModelID string
	Reason  string
}

// ServiceUnavailableError is returned when every ranked candidate was
// exhausted without a successful call. No credit is charged in that case.
type ServiceUnavailableError struct {
	Failures []AttemptFailure
}

func (e *ServiceUnavailableError) Error() string {
	if e == nil || len(e.Failures) == 0 {
		return "router: no candidates available"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.ModelID, f.Reason))
	}
	return "router: all candidates exhausted: " + strings.Join(parts, "; ")
}
