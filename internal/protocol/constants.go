package protocol

const (
	// ChunkSize is the payload size of every video-chunk except the last.
	ChunkSize = 256 * 1024
	// MaxMessageSize bounds a decoded channel message.
	MaxMessageSize = ChunkSize + 1024
)

type MessageType uint16

const (
	MsgVideoMetadata MessageType = 0x0001
	MsgVideoChunk    MessageType = 0x0002
	MsgVideoComplete MessageType = 0x0003
	MsgVideoRequest  MessageType = 0x0004
	MsgControl       MessageType = 0x0010
)

func (t MessageType) String() string {
	switch t {
	case MsgVideoMetadata:
		return "video-metadata"
	case MsgVideoChunk:
		return "video-chunk"
	case MsgVideoComplete:
		return "video-complete"
	case MsgVideoRequest:
		return "video-request"
	case MsgControl:
		return "control"
	default:
		return "unknown"
	}
}

type Action string

const (
	ActionPlay  Action = "play"
	ActionPause Action = "pause"
	ActionSeek  Action = "seek"
)

func (a Action) Valid() bool {
	switch a {
	case ActionPlay, ActionPause, ActionSeek:
		return true
	default:
		return false
	}
}
