package fetch

// State is the lifecycle position of one metadata fetch.
type State int32

const (
	Pending State = iota
	Fetching
	Finished
	Error
	Duplicate
	Cancelled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fetching:
		return "fetching"
	case Finished:
		return "finished"
	case Error:
		return "error"
	case Duplicate:
		return "duplicate"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// validTransitions defines the adjacency list of allowed state transitions.
var validTransitions = map[State][]State{
	Pending:  {Fetching, Finished, Error, Duplicate, Cancelled},
	Fetching: {Finished, Error, Duplicate, Cancelled},
}

// CanTransition reports whether a fetch may move from one state to another.
func CanTransition(from, to State) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
