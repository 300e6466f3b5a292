package core

import "testing"

func TestIsValidTransitionTable(t *testing.T) {
	legal := map[Status][]Status{
		StatusTodo:      {StatusPlanning, StatusCancelled},
		StatusPlanning:  {StatusBuilding, StatusFailed, StatusCancelled},
		StatusBuilding:  {StatusReview, StatusFailed},
		StatusReview:    {StatusDone, StatusCancelled},
		StatusFailed:    {StatusTodo, StatusCancelled},
	}
	all := []Status{StatusTodo, StatusPlanning, StatusBuilding, StatusReview, StatusDone, StatusFailed, StatusCancelled}

	for from, tos := range legal {
		allowed := map[Status]bool{}
		for _, to := range tos {
			allowed[to] = true
			if !IsValidTransition(from, to) {
				t.Errorf("expected %s -> %s to be legal", from, to)
			}
		}
		for _, to := range all {
			if !allowed[to] && IsValidTransition(from, to) {
				t.Errorf("expected %s -> %s to be illegal", from, to)
			}
		}
	}

	for _, terminal := range []Status{StatusDone, StatusCancelled} {
		for _, to := range all {
			if IsValidTransition(terminal, to) {
				t.Errorf("terminal state %s must have no outgoing transitions, got %s", terminal, to)
			}
		}
		if !Terminal(terminal) {
			t.Errorf("%s should be terminal", terminal)
		}
	}
}
