package link

// State is the receiver link lifecycle, mutated only by the link itself and
// read by the supervisor for health and restart decisions.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateFaulted:
		return "faulted"
	}
	return "unknown"
}
