// Package signaling relays WebRTC session descriptions between peers in
// the same room over WebSocket.
package signaling

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	TypeJoin    = "join"
	TypeWelcome = "welcome"
	TypeJoined  = "joined"
	TypeLeft    = "left"
	TypeSignal  = "signal"
	TypeError   = "error"
)

var (
	ErrRoomRequired = errors.New("room code required")
	ErrPeerRequired = errors.New("peer id required")
	ErrPeerTaken    = errors.New("peer id already in room")
	ErrNotWelcomed  = errors.New("server did not welcome peer")
)

// Envelope is the JSON frame exchanged with the relay.
type Envelope struct {
	Type    string   `json:"type"`
	Room    string   `json:"room,omitempty"`
	From    string   `json:"from,omitempty"`
	To      string   `json:"to,omitempty"`
	Peers   []string `json:"peers,omitempty"`
	Payload []byte   `json:"payload,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// NewRoomCode returns a six character uppercase room code.
func NewRoomCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:6])
}

func NormalizeRoom(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
