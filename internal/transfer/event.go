package transfer

type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventCompleted
	EventFailed
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event reports a session change. Session is a copy taken when the event
// was raised.
type Event struct {
	Kind    EventKind
	PeerID  string
	Session Session
	Err     error
}
