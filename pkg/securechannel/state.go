package securechannel

// State of an Engine.
type State int

const (
	Closed State = iota
	Connected
	Open
	Aborted
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connected:
		return "connected"
	case Open:
		return "open"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}
