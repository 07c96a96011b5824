package transport

import (
	"context"
	"errors"
	"io"
)

var ErrConnClosed = errors.New("connection closed")

type Transport interface {
	Connect(ctx context.Context, peerID string, metadata ConnectionMetadata) (Conn, error)
	Accept() <-chan Conn
	Close() error
}

// Conn is an ordered, message-based channel to one peer. Recv is closed
// when the channel goes away.
type Conn interface {
	PeerID() string
	Send(data []byte) error
	Recv() <-chan []byte
	Close() error
}

type ConnectionMetadata struct {
	Room string
}

type Signaler interface {
	SendSignal(ctx context.Context, peerID string, signal []byte) error
	RecvSignal() <-chan Signal
	io.Closer
}

type Signal struct {
	PeerID  string
	Payload []byte
}

// SignalHandler is implemented by transports that consume relayed
// signaling payloads.
type SignalHandler interface {
	HandleSignal(signal Signal) error
}

// ServeSignals feeds every signal from s into h until ctx is done or the
// signal channel closes. Handler errors go to onErr.
func ServeSignals(ctx context.Context, s Signaler, h SignalHandler, onErr func(Signal, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-s.RecvSignal():
			if !ok {
				return
			}
			if err := h.HandleSignal(sig); err != nil && onErr != nil {
				onErr(sig, err)
			}
		}
	}
}
