package transfer

import (
	"fmt"

	"github.com/google/uuid"
)

type State int

const (
	StateIdle State = iota
	StateMetadataReceived
	StateStreaming
	StateDraining
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMetadataReceived:
		return "metadata-received"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Session is one media transfer from a single peer. ReceivedSize counts
// accepted bytes; AppliedSize counts bytes the buffer confirmed.
type Session struct {
	ID             string
	PeerID         string
	ExpectedSize   uint64
	ReceivedSize   uint64
	AppliedSize    uint64
	MimeDescriptor string
	CompleteSeen   bool
	State          State
	Err            error
}

func newSession(peerID string, size uint64, mimeDescriptor string) *Session {
	return &Session{
		ID:             uuid.NewString(),
		PeerID:         peerID,
		ExpectedSize:   size,
		MimeDescriptor: mimeDescriptor,
		State:          StateMetadataReceived,
	}
}

func (s *Session) Progress() float64 {
	if s.ExpectedSize == 0 {
		if s.State == StateComplete {
			return 1
		}
		return 0
	}
	return float64(s.AppliedSize) / float64(s.ExpectedSize)
}
