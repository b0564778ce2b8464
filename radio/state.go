package radio

import "fmt"

// State is the state of the radio hardware.
type State int

// The radio states. A radio starts in NotInitialized and goes back to it on
// every power cycle.
const (
	NotInitialized State = iota
	Receiving
	Transmitting
	SendInProgress
)

func (s State) String() string {
	switch s {
	case NotInitialized:
		return "NotInitialized"
	case Receiving:
		return "Receiving"
	case Transmitting:
		return "Transmitting"
	case SendInProgress:
		return "SendInProgress"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
