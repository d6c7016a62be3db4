package orchestrator

import (
	"fmt"

	"github.com/aescanero/costume-orders/pkg/domain"
)

// State is a workflow execution state.
type State string

const (
	StateStart      State = "start"
	StatePersisting State = "persisting"
	StatePublishing State = "publishing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

var transitions = map[State][]State{
	StateStart:      {StatePersisting},
	StatePersisting: {StatePublishing, StateFailed},
	StatePublishing: {StateSucceeded, StateFailed},
}

// stateTracker follows one execution through the state machine. It is not
// shared between executions.
type stateTracker struct {
	current     State
	failedStage domain.Stage
}

func newStateTracker() *stateTracker {
	return &stateTracker{current: StateStart}
}

// advance moves to the next state. An illegal transition is a bug in the
// manager and panics.
func (s *stateTracker) advance(to State) {
	for _, allowed := range transitions[s.current] {
		if allowed == to {
			s.current = to
			return
		}
	}
	panic(fmt.Sprintf("orchestrator: illegal transition %s -> %s", s.current, to))
}

// fail moves to Failed and records the stage that was active.
func (s *stateTracker) fail() {
	switch s.current {
	case StatePersisting:
		s.failedStage = domain.StagePersist
	case StatePublishing:
		s.failedStage = domain.StagePublish
	}
	s.advance(StateFailed)
}

func (s *stateTracker) State() State {
	return s.current
}
