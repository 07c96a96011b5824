package protocol

import (
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidAction  = errors.New("invalid control action")
	ErrMessageTooLong = errors.New("message too long")
)

const (
	fieldType       protowire.Number = 1
	fieldSize       protowire.Number = 2
	fieldMime       protowire.Number = 3
	fieldOffset     protowire.Number = 4
	fieldData       protowire.Number = 5
	fieldAction     protowire.Number = 6
	fieldTime       protowire.Number = 7
	fieldOriginator protowire.Number = 8
)

// Codec encodes one message per channel frame as a flat protobuf-wire
// record. Field numbers are fixed; unknown fields are skipped.
type Codec struct{}

func NewCodec() *Codec {
	return &Codec{}
}

func (c *Codec) Encode(w io.Writer, msg Message) error {
	data, err := c.EncodeToBytes(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (c *Codec) Decode(r io.Reader) (Message, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxMessageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLong
	}
	return c.DecodeFromBytes(data)
}

func (c *Codec) EncodeToBytes(msg Message) ([]byte, error) {
	b := protowire.AppendTag(nil, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(msg.Type()))

	switch m := msg.(type) {
	case *VideoMetadata:
		b = appendMetadata(b, *m)
	case VideoMetadata:
		b = appendMetadata(b, m)
	case *VideoChunk:
		b = appendChunk(b, *m)
	case VideoChunk:
		b = appendChunk(b, m)
	case *VideoComplete, VideoComplete, *VideoRequest, VideoRequest:
	case *Control:
		return appendControl(b, *m)
	case Control:
		return appendControl(b, m)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	return b, nil
}

func appendMetadata(b []byte, m VideoMetadata) []byte {
	b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Size)
	b = protowire.AppendTag(b, fieldMime, protowire.BytesType)
	return protowire.AppendString(b, m.MimeDescriptor)
}

func appendChunk(b []byte, m VideoChunk) []byte {
	b = protowire.AppendTag(b, fieldOffset, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Offset)
	b = protowire.AppendTag(b, fieldData, protowire.BytesType)
	return protowire.AppendBytes(b, m.Data)
}

func appendControl(b []byte, m Control) ([]byte, error) {
	if !m.Action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, m.Action)
	}
	b = protowire.AppendTag(b, fieldAction, protowire.BytesType)
	b = protowire.AppendString(b, string(m.Action))
	b = protowire.AppendTag(b, fieldTime, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(m.Time))
	b = protowire.AppendTag(b, fieldOriginator, protowire.BytesType)
	return protowire.AppendString(b, m.Originator), nil
}

// record collects the decoded fields and which of them were present.
type record struct {
	seen       map[protowire.Number]bool
	typ        MessageType
	size       uint64
	mime       string
	offset     uint64
	data       []byte
	action     string
	time       float64
	originator string
}

func (c *Codec) DecodeFromBytes(data []byte) (Message, error) {
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLong, len(data))
	}
	rec := record{seen: make(map[protowire.Number]bool)}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			if v > math.MaxUint16 {
				return nil, fmt.Errorf("%w: %d", ErrUnknownType, v)
			}
			rec.typ = MessageType(v)
			data = data[n:]
		case (num == fieldSize || num == fieldOffset) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			if num == fieldSize {
				rec.size = v
			} else {
				rec.offset = v
			}
			data = data[n:]
		case num == fieldData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			rec.data = append([]byte(nil), v...)
			data = data[n:]
		case (num == fieldMime || num == fieldAction || num == fieldOriginator) && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			switch num {
			case fieldMime:
				rec.mime = v
			case fieldAction:
				rec.action = v
			default:
				rec.originator = v
			}
			data = data[n:]
		case num == fieldTime && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			rec.time = math.Float64frombits(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			continue
		}
		rec.seen[num] = true
	}

	return rec.message()
}

func (r record) require(fields ...protowire.Number) error {
	for _, f := range fields {
		if !r.seen[f] {
			return fmt.Errorf("%w: %s field %d", ErrMissingField, r.typ, f)
		}
	}
	return nil
}

func (r record) message() (Message, error) {
	if err := r.require(fieldType); err != nil {
		return nil, err
	}

	switch r.typ {
	case MsgVideoMetadata:
		if err := r.require(fieldSize, fieldMime); err != nil {
			return nil, err
		}
		return &VideoMetadata{Size: r.size, MimeDescriptor: r.mime}, nil
	case MsgVideoChunk:
		if err := r.require(fieldOffset, fieldData); err != nil {
			return nil, err
		}
		return &VideoChunk{Offset: r.offset, Data: r.data}, nil
	case MsgVideoComplete:
		return &VideoComplete{}, nil
	case MsgVideoRequest:
		return &VideoRequest{}, nil
	case MsgControl:
		if err := r.require(fieldAction, fieldTime, fieldOriginator); err != nil {
			return nil, err
		}
		action := Action(r.action)
		if !action.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAction, r.action)
		}
		return &Control{Action: action, Time: r.time, Originator: r.originator}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint16(r.typ))
	}
}
