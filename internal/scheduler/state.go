package scheduler

// State is the lifecycle state of a run.
//
//	Pending -> Ramping <-> Holding -> Draining -> Completed
//	any non-terminal state -> Cancelled
type State int32

const (
	StatePending State = iota
	StateRamping
	StateHolding
	StateDraining
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRamping:
		return "ramping"
	case StateHolding:
		return "holding"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

func (s State) canTransition(next State) bool {
	if next == StateCancelled {
		return !s.Terminal()
	}
	switch s {
	case StatePending:
		return next == StateRamping || next == StateHolding || next == StateDraining
	case StateRamping:
		return next == StateHolding || next == StateDraining
	case StateHolding:
		return next == StateRamping || next == StateDraining
	case StateDraining:
		return next == StateCompleted
	default:
		return false
	}
}
