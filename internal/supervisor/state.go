// Package supervisor owns the per-account connection lifecycle: pairing,
// session restore, reconnection, and the outbound command surface.
package supervisor

// State is the connection lifecycle state of one account.
type State string

const (
	StateInit              State = "INIT"
	StateAwaitingPair      State = "AWAITING_PAIR"
	StateConnecting        State = "CONNECTING"
	StateOpen              State = "OPEN"
	StateClosedRecoverable State = "CLOSED_RECOVERABLE"
	StateClosedTerminal    State = "CLOSED_TERMINAL"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateClosedTerminal }

// legalTransitions encodes the lifecycle graph. OPEN is reachable only
// from CONNECTING; CLOSED_TERMINAL is reachable from everywhere and is
// the single sink.
var legalTransitions = map[State][]State{
	StateInit:              {StateAwaitingPair, StateConnecting, StateClosedTerminal},
	StateAwaitingPair:      {StateConnecting, StateClosedRecoverable, StateClosedTerminal},
	StateConnecting:        {StateOpen, StateClosedRecoverable, StateClosedTerminal},
	StateOpen:              {StateClosedRecoverable, StateClosedTerminal},
	StateClosedRecoverable: {StateConnecting, StateClosedTerminal},
	StateClosedTerminal:    {},
}

func canTransition(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
