package lifecycle

// State is a node lifecycle phase. States only move forward.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateGateWaiting
	StateAttaching
	StateAnnouncing
	StateSteady
	StateStopped
	StateFailed
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateConnecting:  "connecting",
	StateGateWaiting: "gate_waiting",
	StateAttaching:   "attaching",
	StateAnnouncing:  "announcing",
	StateSteady:      "steady",
	StateStopped:     "stopped",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Transition is one observed state change.
type Transition struct {
	From State
	To   State
}
