package depgraph

import (
	"errors"
	"fmt"
)

// Kind classifies a validation failure so callers can surface a specific
// message instead of a generic one.
type Kind string

const (
	KindSelfDependency   Kind = "self_dependency"
	KindCircular         Kind = "circular_dependency"
	KindDueDateOrder     Kind = "due_date_order"
	KindDependenciesOpen Kind = "dependencies_open"
	KindHasDependents    Kind = "has_dependents"
	KindUnknownTask      Kind = "unknown_task"
)

// ValidationError reports a refused graph mutation. Violations are never
// silently ignored; they always reach the initiating caller.
type ValidationError struct {
	Kind    Kind
	TaskID  string
	OtherID string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindSelfDependency:
		return fmt.Sprintf("task %s cannot depend on itself", e.TaskID)
	case KindCircular:
		return fmt.Sprintf("adding dependency %s -> %s would create a circular dependency", e.TaskID, e.OtherID)
	case KindDueDateOrder:
		return fmt.Sprintf("task %s is due before its dependency %s", e.TaskID, e.OtherID)
	case KindDependenciesOpen:
		return fmt.Sprintf("cannot complete task %s: dependency %s is not completed", e.TaskID, e.OtherID)
	case KindHasDependents:
		return fmt.Sprintf("cannot delete task %s: task %s depends on it", e.TaskID, e.OtherID)
	case KindUnknownTask:
		return fmt.Sprintf("unknown task %s", e.TaskID)
	}
	return fmt.Sprintf("dependency validation failed for task %s", e.TaskID)
}

// IsKind reports whether err is a ValidationError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}
