package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/peer-watch/internal/transport"
	"github.com/sirupsen/logrus"
)

// Client is a room member on the relay. It implements transport.Signaler.
type Client struct {
	id   string
	room string
	conn *websocket.Conn
	log  logrus.FieldLogger

	signals chan transport.Signal
	events  chan Envelope

	writeMu sync.Mutex
	mu      sync.Mutex
	peers   map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the relay at url and joins room as peerID. It returns
// once the relay has welcomed the peer.
func Dial(ctx context.Context, url, room, peerID string, log logrus.FieldLogger) (*Client, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signaling server: %w", err)
	}
	conn.SetReadLimit(maxEnvelope)

	c := &Client{
		id:      peerID,
		room:    NormalizeRoom(room),
		conn:    conn,
		log:     log.WithField("room", NormalizeRoom(room)),
		signals: make(chan transport.Signal, 16),
		events:  make(chan Envelope, 16),
		peers:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	if err := c.write(Envelope{Type: TypeJoin, Room: c.room, From: peerID}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	var welcome Envelope
	if err := conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read welcome: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch welcome.Type {
	case TypeWelcome:
	case TypeError:
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotWelcomed, welcome.Error)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("%w: got %s", ErrNotWelcomed, welcome.Type)
	}

	for _, p := range welcome.Peers {
		c.peers[p] = struct{}{}
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Room() string {
	return c.room
}

// Peers returns the peers currently in the room, excluding this one.
func (c *Client) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.peers))
	for p := range c.peers {
		out = append(out, p)
	}
	return out
}

// Events delivers joined and left notices. It is closed with the client.
func (c *Client) Events() <-chan Envelope {
	return c.events
}

func (c *Client) SendSignal(ctx context.Context, peerID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return transport.ErrConnClosed
	default:
	}
	return c.write(Envelope{Type: TypeSignal, To: peerID, Payload: payload})
}

func (c *Client) RecvSignal() <-chan transport.Signal {
	return c.signals
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) write(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer close(c.signals)

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.log.Warnf("Signaling connection lost: %v", err)
				}
			}
			return
		}

		switch env.Type {
		case TypeSignal:
			select {
			case c.signals <- transport.Signal{PeerID: env.From, Payload: env.Payload}:
			case <-c.done:
				return
			}
		case TypeJoined, TypeLeft:
			c.mu.Lock()
			if env.Type == TypeJoined {
				c.peers[env.From] = struct{}{}
			} else {
				delete(c.peers, env.From)
			}
			c.mu.Unlock()

			select {
			case c.events <- env:
			case <-c.done:
				return
			}
		case TypeError:
			c.log.Warnf("Signaling error: %s", env.Error)
		default:
			c.log.Debugf("Ignoring %s envelope", env.Type)
		}
	}
}
