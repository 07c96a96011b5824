// Package webrtc implements WebRTC transport.
package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-watch/internal/transport"
)

var errTransportClosed = errors.New("transport closed")

var defaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

func DefaultSTUNServers() []string {
	return append([]string(nil), defaultSTUNServers...)
}

// DefaultDataChannelConfig is ordered and fully reliable: chunks must
// arrive in offset order and never be dropped.
func DefaultDataChannelConfig() *webrtc.DataChannelInit {
	protocolName := "peer-watch"
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: nil,
		Protocol:       &protocolName,
	}
}

// Transport opens one ordered data channel per peer. SDP is exchanged
// through the Signaler without trickle ICE.
type Transport struct {
	config      webrtc.Configuration
	signaler    transport.Signaler
	connections map[string]*connection
	incoming    chan transport.Conn
	closed      bool
	mu          sync.RWMutex
}

// New creates a WebRTC transport.
func New(signaler transport.Signaler, stunServers []string) *Transport {
	iceServers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, server := range stunServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{server}})
	}

	return &Transport{
		config: webrtc.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: webrtc.ICETransportPolicyAll,
		},
		signaler:    signaler,
		connections: make(map[string]*connection),
		incoming:    make(chan transport.Conn, 16),
	}
}

// Connect offers a data channel to peerID and returns once it is open.
func (t *Transport) Connect(ctx context.Context, peerID string, _ transport.ConnectionMetadata) (transport.Conn, error) {
	pc, err := webrtc.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn := newConnection(peerID, pc, t.signaler, true)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = pc.Close()
		return nil, errTransportClosed
	}
	if old, ok := t.connections[peerID]; ok {
		_ = old.Close()
	}
	t.connections[peerID] = conn
	t.mu.Unlock()

	if err := t.offer(ctx, conn); err != nil {
		t.drop(peerID, conn)
		_ = conn.Close()
		return nil, err
	}

	if err := conn.waitOpen(ctx); err != nil {
		t.drop(peerID, conn)
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open data channel: %w", err)
	}
	return conn, nil
}

func (t *Transport) offer(ctx context.Context, conn *connection) error {
	if err := conn.createDataChannel(DefaultDataChannelConfig()); err != nil {
		return err
	}

	offer, err := conn.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(conn.pc)
	if err := conn.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	local := conn.pc.LocalDescription()
	if err := t.signaler.SendSignal(ctx, conn.peerID, []byte(local.SDP)); err != nil {
		return fmt.Errorf("failed to send offer: %w", err)
	}
	return nil
}

func (t *Transport) Accept() <-chan transport.Conn {
	return t.incoming
}

// HandleSignal applies an offer or answer relayed from peerID. An offer
// from an unknown peer creates the answering side; the conn is delivered
// on Accept once its data channel opens.
func (t *Transport) HandleSignal(signal transport.Signal) error {
	t.mu.RLock()
	conn, exists := t.connections[signal.PeerID]
	closed := t.closed
	t.mu.RUnlock()

	if closed {
		return errTransportClosed
	}

	if !exists {
		pc, err := webrtc.NewPeerConnection(t.config)
		if err != nil {
			return fmt.Errorf("failed to create peer connection: %w", err)
		}

		conn = newConnection(signal.PeerID, pc, t.signaler, false)
		conn.onOpen = func() {
			t.mu.RLock()
			defer t.mu.RUnlock()
			if t.closed {
				return
			}
			select {
			case t.incoming <- conn:
			default:
				_ = conn.Close()
			}
		}

		t.mu.Lock()
		t.connections[signal.PeerID] = conn
		t.mu.Unlock()
	}

	return conn.handleSignal(signal.Payload)
}

func (t *Transport) drop(peerID string, conn *connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connections[peerID] == conn {
		delete(t.connections, peerID)
	}
}

// Forget removes a closed peer so a later offer starts fresh.
func (t *Transport) Forget(peerID string) {
	t.mu.Lock()
	conn := t.connections[peerID]
	delete(t.connections, peerID)
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	for _, conn := range t.connections {
		_ = conn.Close()
	}
	t.connections = make(map[string]*connection)
	close(t.incoming)
	return nil
}
