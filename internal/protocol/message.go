package protocol

type Message interface {
	Type() MessageType
}

// VideoMetadata opens a transfer session on the receiving side.
type VideoMetadata struct {
	MimeDescriptor string
	Size           uint64
}

func (VideoMetadata) Type() MessageType { return MsgVideoMetadata }

type VideoChunk struct {
	Data   []byte
	Offset uint64
}

func (VideoChunk) Type() MessageType { return MsgVideoChunk }

type VideoComplete struct{}

func (VideoComplete) Type() MessageType { return MsgVideoComplete }

type VideoRequest struct{}

func (VideoRequest) Type() MessageType { return MsgVideoRequest }

// Control carries a play/pause/seek command. Time is in seconds.
type Control struct {
	Action     Action
	Originator string
	Time       float64
}

func (Control) Type() MessageType { return MsgControl }
