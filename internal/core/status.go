// Package core holds the task record schema, the status machine, the naming
// derivations, and the error taxonomy shared by every other package. Nothing
// here touches the filesystem or external processes.
package core

// Status is one of the fixed task lifecycle states.
type Status string

const (
	StatusTodo      Status = "todo"
	StatusPlanning  Status = "planning"
	StatusBuilding  Status = "building"
	StatusReview    Status = "review"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// validStatuses is the full legal alphabet; anything else fails Validate.
var validStatuses = map[Status]bool{
	StatusTodo:      true,
	StatusPlanning:  true,
	StatusBuilding:  true,
	StatusReview:    true,
	StatusDone:      true,
	StatusFailed:    true,
	StatusCancelled: true,
}

// transitions is the authoritative legal-transition graph from spec.md §3.2.
var transitions = map[Status]map[Status]bool{
	StatusTodo:      {StatusPlanning: true, StatusCancelled: true},
	StatusPlanning:  {StatusBuilding: true, StatusFailed: true, StatusCancelled: true},
	StatusBuilding:  {StatusReview: true, StatusFailed: true},
	StatusReview:    {StatusDone: true, StatusCancelled: true},
	StatusFailed:    {StatusTodo: true, StatusCancelled: true},
	StatusDone:      {},
	StatusCancelled: {},
}

// IsValidStatus reports whether s is one of the seven known states.
func IsValidStatus(s Status) bool {
	return validStatuses[s]
}

// IsValidTransition reports whether moving from s to next is legal. A
// transition to the same status is never legal — callers that don't intend
// to change status should omit it from the patch entirely.
func IsValidTransition(from, to Status) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Terminal reports whether s is a state with no outgoing transitions.
func Terminal(s Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}
