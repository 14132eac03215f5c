package saga

import "fmt"

type State string

const (
	StateValidated                 State = "validated"
	StateDebited                   State = "debited"
	StateCredited                  State = "credited"
	StateRecorded                  State = "recorded"
	StateCompensating              State = "compensating"
	StateCompensationCredited      State = "compensation_credited"
	StateFailed                    State = "failed"
	StateRejectedInsufficientFunds State = "rejected_insufficient_funds"
	StateInconsistent              State = "inconsistent"
	StatePendingClaim              State = "pending_claim"
)

var transitions = map[State][]State{
	StateValidated:            {StateDebited, StateFailed, StateRejectedInsufficientFunds, StatePendingClaim, StateCompensating},
	StateDebited:              {StateCredited, StateCompensating},
	StateCredited:             {StateRecorded},
	StateCompensating:         {StateCompensationCredited, StateInconsistent},
	StateCompensationCredited: {StateFailed},
}

func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// machine tracks the states one operation has passed through.
type machine struct {
	current State
	trail   []State
}

func newMachine() *machine {
	return &machine{current: StateValidated, trail: []State{StateValidated}}
}

func (m *machine) to(next State) error {
	for _, allowed := range transitions[m.current] {
		if allowed == next {
			m.current = next
			m.trail = append(m.trail, next)
			return nil
		}
	}
	return fmt.Errorf("illegal saga transition %s -> %s", m.current, next)
}
