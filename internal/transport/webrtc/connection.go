package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
	"github.com/rudransh-shrivastava/peer-watch/internal/transport"
)

const (
	// Messages are split into fragments no larger than this. Each fragment
	// carries a one-byte marker: fragMore or fragLast.
	maxFragment = 16 * 1024

	fragMore byte = 0
	fragLast byte = 1

	// A message reassembling past this is dropped whole.
	maxMessage = protocol.MaxMessageSize

	maxBufferedAmount uint64 = 1 << 20
	lowBufferedAmount uint64 = 256 << 10

	sendStallTimeout = 30 * time.Second
)

var (
	errNotReady    = errors.New("data channel not ready")
	errSendStalled = errors.New("data channel send stalled")
)

type connection struct {
	peerID      string
	pc          *webrtc.PeerConnection
	dc          *webrtc.DataChannel
	signaler    transport.Signaler
	recvChan    chan []byte
	isInitiator bool
	onOpen      func()
	opened      chan struct{}
	closed      chan struct{}
	openOnce    sync.Once
	closeOnce   sync.Once
	drained     chan struct{}
	partial     []byte
	discarding  bool
	stall       time.Duration
	sendMu      sync.Mutex
	deliverMu   sync.Mutex
	mu          sync.Mutex
}

func newConnection(peerID string, pc *webrtc.PeerConnection, signaler transport.Signaler, isInitiator bool) *connection {
	conn := &connection{
		peerID:      peerID,
		pc:          pc,
		signaler:    signaler,
		recvChan:    make(chan []byte, 256),
		isInitiator: isInitiator,
		opened:      make(chan struct{}),
		closed:      make(chan struct{}),
		drained:     make(chan struct{}, 1),
		stall:       sendStallTimeout,
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			conn.shutdown()
		}
	})

	if !isInitiator {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			conn.setupDataChannel(dc)
		})
	}

	return conn
}

func (c *connection) createDataChannel(init *webrtc.DataChannelInit) error {
	dc, err := c.pc.CreateDataChannel("media", init)
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	c.setupDataChannel(dc)
	return nil
}

func (c *connection) setupDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.SetBufferedAmountLowThreshold(lowBufferedAmount)
	dc.OnBufferedAmountLow(func() {
		select {
		case c.drained <- struct{}{}:
		default:
		}
	})

	dc.OnOpen(func() {
		c.openOnce.Do(func() {
			close(c.opened)
			if c.onOpen != nil {
				c.onOpen()
			}
		})
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.deliver(msg.Data)
	})

	dc.OnClose(func() {
		c.shutdown()
	})
}

// deliver reassembles fragments and hands whole messages to Recv. It
// blocks while the reader is behind, which backs up the channel instead
// of dropping data. Fragments of an oversized message are discarded up to
// its last fragment.
func (c *connection) deliver(frag []byte) {
	if len(frag) == 0 {
		return
	}
	if c.discarding || len(c.partial)+len(frag)-1 > maxMessage {
		c.partial = nil
		c.discarding = frag[0] != fragLast
		return
	}
	c.partial = append(c.partial, frag[1:]...)
	if frag[0] != fragLast {
		return
	}
	msg := c.partial
	c.partial = nil

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	select {
	case <-c.closed:
		return
	default:
	}

	select {
	case c.recvChan <- msg:
	case <-c.closed:
	}
}

func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.deliverMu.Lock()
		close(c.recvChan)
		c.deliverMu.Unlock()
	})
}

func (c *connection) waitOpen(ctx context.Context) error {
	select {
	case <-c.opened:
		return nil
	case <-c.closed:
		return transport.ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connection) handleSignal(payload []byte) error {
	sdp := string(payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc.RemoteDescription() != nil {
		return nil
	}

	desc := webrtc.SessionDescription{SDP: sdp}
	if c.isInitiator {
		desc.Type = webrtc.SDPTypeAnswer
	} else {
		desc.Type = webrtc.SDPTypeOffer
	}

	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	if c.isInitiator {
		return nil
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	<-gathered

	local := c.pc.LocalDescription()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.signaler.SendSignal(ctx, c.peerID, []byte(local.SDP)); err != nil {
		return fmt.Errorf("failed to send answer: %w", err)
	}
	return nil
}

func (c *connection) PeerID() string {
	return c.peerID
}

func (c *connection) Send(data []byte) error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errNotReady
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	for {
		n := min(len(data), maxFragment)
		frag := make([]byte, n+1)
		frag[0] = fragMore
		if n == len(data) {
			frag[0] = fragLast
		}
		copy(frag[1:], data[:n])

		if err := c.waitBuffered(dc.BufferedAmount); err != nil {
			return err
		}
		if err := dc.Send(frag); err != nil {
			return fmt.Errorf("failed to send fragment: %w", err)
		}

		data = data[n:]
		if len(data) == 0 {
			return nil
		}
	}
}

// waitBuffered blocks until the channel's send buffer drops below
// maxBufferedAmount. A peer that stops reading fails the send after the
// stall timeout.
func (c *connection) waitBuffered(buffered func() uint64) error {
	if buffered() <= maxBufferedAmount {
		return nil
	}

	stall := time.NewTimer(c.stall)
	defer stall.Stop()

	for buffered() > maxBufferedAmount {
		select {
		case <-c.drained:
		case <-c.closed:
			return transport.ErrConnClosed
		case <-stall.C:
			return fmt.Errorf("%w: %d bytes buffered", errSendStalled, buffered())
		case <-time.After(time.Second):
		}
	}
	return nil
}

func (c *connection) Recv() <-chan []byte {
	return c.recvChan
}

func (c *connection) Close() error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	err := c.pc.Close()
	c.shutdown()
	return err
}
