// Package registry tracks live peer channels and fans messages out to them.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
	"github.com/rudransh-shrivastava/peer-watch/internal/transport"
	"go.uber.org/multierr"
)

var ErrUnknownPeer = errors.New("unknown peer")

type Registry struct {
	codec *protocol.Codec

	mu    sync.RWMutex
	conns map[string]transport.Conn
}

func New() *Registry {
	return &Registry{
		codec: protocol.NewCodec(),
		conns: make(map[string]transport.Conn),
	}
}

// Add registers conn and returns the channel it replaced, if any.
func (r *Registry) Add(conn transport.Conn) transport.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[conn.PeerID()]
	r.conns[conn.PeerID()] = conn
	return prev
}

// Remove drops peerID only if it is still registered with conn.
func (r *Registry) Remove(peerID string, conn transport.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[peerID]; ok && (conn == nil || cur == conn) {
		delete(r.conns, peerID)
		return true
	}
	return false
}

func (r *Registry) Get(peerID string) (transport.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[peerID]
	return c, ok
}

func (r *Registry) Peers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]string, 0, len(r.conns))
	for id := range r.conns {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return peers
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) Send(peerID string, msg protocol.Message) error {
	conn, ok := r.Get(peerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}

	data, err := r.codec.EncodeToBytes(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Type(), err)
	}
	if err := conn.Send(data); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", msg.Type(), peerID, err)
	}
	return nil
}

// Broadcast sends msg to every registered peer. A failing channel does not
// stop delivery to the others; all failures are returned together.
func (r *Registry) Broadcast(msg protocol.Message) error {
	data, err := r.codec.EncodeToBytes(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Type(), err)
	}

	r.mu.RLock()
	conns := make([]transport.Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	var errs error
	for _, c := range conns {
		if err := c.Send(data); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.PeerID(), err))
		}
	}
	return errs
}

// Close closes every channel and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]transport.Conn)
	r.mu.Unlock()

	var errs error
	for _, c := range conns {
		errs = multierr.Append(errs, c.Close())
	}
	return errs
}
