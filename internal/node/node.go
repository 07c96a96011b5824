// Package node wires one watch-party participant: its peer channels, the
// chunk receiver per channel, the media sender and the playback sync.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rudransh-shrivastava/peer-watch/internal/playback"
	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
	"github.com/rudransh-shrivastava/peer-watch/internal/registry"
	"github.com/rudransh-shrivastava/peer-watch/internal/store"
	"github.com/rudransh-shrivastava/peer-watch/internal/transfer"
	"github.com/rudransh-shrivastava/peer-watch/internal/transport"
	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("node closed")

type Options struct {
	LocalID string
	Room    string
	Config  Config
	// Source is served to peers that request media. It may be set later
	// with SetSource.
	Source  transfer.Source
	History store.HistoryRepository
	NewSink transfer.SinkFactory
	Clock   clock.Clock
	Logger  *logrus.Logger

	// OnEvent and OnStatus run on internal goroutines and must not block.
	OnEvent  func(transfer.Event)
	OnStatus func(string)
}

type Node struct {
	id   string
	room string
	cfg  Config

	registry   *registry.Registry
	sender     *transfer.Sender
	player     *playback.VirtualPlayer
	controller *playback.Controller
	codec      *protocol.Codec
	history    store.HistoryRepository
	newSink    transfer.SinkFactory
	clock      clock.Clock
	logger     logrus.FieldLogger

	onEvent  func(transfer.Event)
	onStatus func(string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	source transfer.Source
	links  map[string]*link
	closed bool
}

// link is one attached channel and the receiver reading from it.
type link struct {
	conn     transport.Conn
	receiver *transfer.Receiver
	cancel   context.CancelFunc
}

func New(opts Options) *Node {
	if opts.Config.Transfer.ChunkSize <= 0 {
		opts.Config = DefaultConfig()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(transfer.Event) {}
	}
	if opts.OnStatus == nil {
		opts.OnStatus = func(string) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	log := opts.Logger.WithFields(logrus.Fields{"node": opts.LocalID, "room": opts.Room})

	n := &Node{
		id:       opts.LocalID,
		room:     opts.Room,
		cfg:      opts.Config,
		registry: registry.New(),
		codec:    protocol.NewCodec(),
		history:  opts.History,
		newSink:  opts.NewSink,
		clock:    opts.Clock,
		logger:   log,
		onEvent:  opts.OnEvent,
		onStatus: opts.OnStatus,
		ctx:      ctx,
		cancel:   cancel,
		source:   opts.Source,
		links:    make(map[string]*link),
	}

	n.sender = transfer.NewSender(transfer.SenderOptions{
		Config: opts.Config.Transfer,
		Clock:  opts.Clock,
		Logger: log,
	})

	n.player = playback.NewVirtualPlayer(opts.Clock)
	n.controller = playback.NewController(playback.ControllerOptions{
		LocalID:     opts.LocalID,
		Player:      n.player,
		Broadcaster: n.registry,
		Config:      opts.Config.Playback,
		Clock:       opts.Clock,
		Logger:      log,
		OnStatus:    n.status,
	})
	n.player.OnEvent(func(action protocol.Action) {
		n.controller.OnLocal(action)
	})

	return n
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Room() string {
	return n.room
}

// Player is the local playback clock. Play, Pause and SeekTo on it are
// broadcast to the room.
func (n *Node) Player() *playback.VirtualPlayer {
	return n.player
}

func (n *Node) SetSource(src transfer.Source) {
	n.mu.Lock()
	n.source = src
	n.mu.Unlock()
}

func (n *Node) Peers() []string {
	return n.registry.Peers()
}

// Snapshot returns the receive state for the channel to peerID.
func (n *Node) Snapshot(peerID string) (transfer.Snapshot, bool) {
	n.mu.Lock()
	l, ok := n.links[peerID]
	n.mu.Unlock()
	if !ok {
		return transfer.Snapshot{}, false
	}
	return l.receiver.Snapshot(), true
}

// Attach registers conn and starts reading from it. A channel already
// attached for the same peer is closed and replaced.
func (n *Node) Attach(conn transport.Conn) error {
	peerID := conn.PeerID()

	ctx, cancel := context.WithCancel(n.ctx)
	l := &link{conn: conn, cancel: cancel}
	l.receiver = transfer.NewReceiver(transfer.ReceiverOptions{
		PeerID:   peerID,
		Config:   n.cfg.Transfer,
		NewSink:  n.newSink,
		Playhead: n.player.CurrentTime,
		Clock:    n.clock,
		Logger:   n.logger,
		OnEvent:  n.handleEvent,
	})

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		cancel()
		return ErrClosed
	}
	prev := n.links[peerID]
	n.links[peerID] = l
	n.registry.Add(conn)
	n.wg.Add(2)
	n.mu.Unlock()

	if prev != nil {
		n.logger.Infof("Replacing channel to %s", peerID)
		_ = prev.conn.Close()
	}

	go func() {
		defer n.wg.Done()
		_ = l.receiver.Run(ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.readLoop(l)
	}()

	n.logger.Infof("Peer %s connected", peerID)
	n.record(peerID, store.KindInfo, fmt.Sprintf("%s connected", peerID))
	return nil
}

// AcceptFrom attaches every channel t accepts until ctx is done or t is
// closed.
func (n *Node) AcceptFrom(ctx context.Context, t transport.Transport) {
	for {
		select {
		case <-ctx.Done():
			return
		case conn, ok := <-t.Accept():
			if !ok {
				return
			}
			if err := n.Attach(conn); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// RequestMedia asks peerID to stream its media to this node.
func (n *Node) RequestMedia(peerID string) error {
	if err := n.registry.Send(peerID, &protocol.VideoRequest{}); err != nil {
		return fmt.Errorf("failed to request media: %w", err)
	}
	n.logger.Infof("Requested media from %s", peerID)
	return nil
}

// Close closes every channel and waits for their loops to stop.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.cancel()
	err := n.registry.Close()
	n.wg.Wait()
	n.controller.Close()
	return err
}

func (n *Node) readLoop(l *link) {
	peerID := l.conn.PeerID()
	defer n.detach(l)

	for data := range l.conn.Recv() {
		msg, err := n.codec.DecodeFromBytes(data)
		if err != nil {
			n.logger.Warnf("Dropping malformed message from %s: %v", peerID, err)
			continue
		}
		n.dispatch(l, msg)
	}
}

func (n *Node) detach(l *link) {
	peerID := l.conn.PeerID()

	if err := l.receiver.Abort(nil); err != nil && !errors.Is(err, transfer.ErrReceiverClosed) {
		n.logger.Debugf("Abort for %s failed: %v", peerID, err)
	}
	l.cancel()
	<-l.receiver.Done()

	n.mu.Lock()
	current := n.links[peerID] == l
	if current {
		delete(n.links, peerID)
	}
	n.mu.Unlock()

	if current {
		n.sender.Cancel(peerID)
	}
	n.registry.Remove(peerID, l.conn)
	_ = l.conn.Close()

	n.logger.Infof("Peer %s disconnected", peerID)
	n.record(peerID, store.KindDisconnect, fmt.Sprintf("%s disconnected", peerID))
}

func (n *Node) serve(peerID string) {
	defer n.wg.Done()

	n.mu.Lock()
	src := n.source
	n.mu.Unlock()

	send := func(msg protocol.Message) error {
		return n.registry.Send(peerID, msg)
	}

	err := n.sender.Serve(n.ctx, peerID, send, src)
	switch {
	case err == nil:
		n.record(peerID, store.KindInfo, fmt.Sprintf("served media to %s", peerID))
	case errors.Is(err, context.Canceled):
	case errors.Is(err, transfer.ErrNoSource):
		n.logger.Debugf("No media to serve to %s", peerID)
	default:
		n.logger.Warnf("Failed to serve %s: %v", peerID, err)
		n.record(peerID, store.KindError, fmt.Sprintf("serving %s failed: %v", peerID, err))
	}
}

func (n *Node) handleEvent(ev transfer.Event) {
	switch ev.Kind {
	case transfer.EventStarted:
		n.record(ev.PeerID, store.KindInfo, fmt.Sprintf("receiving %d bytes of %s from %s",
			ev.Session.ExpectedSize, ev.Session.MimeDescriptor, ev.PeerID))
	case transfer.EventCompleted:
		n.record(ev.PeerID, store.KindInfo, fmt.Sprintf("received %d bytes from %s", ev.Session.AppliedSize, ev.PeerID))
	case transfer.EventFailed:
		n.record(ev.PeerID, store.KindError, fmt.Sprintf("transfer from %s failed: %v", ev.PeerID, ev.Err))
	case transfer.EventDisconnected:
		n.record(ev.PeerID, store.KindDisconnect, fmt.Sprintf("transfer from %s interrupted", ev.PeerID))
	}
	n.onEvent(ev)
}

func (n *Node) status(line string) {
	n.logger.Info(line)
	n.record(n.id, store.KindStatus, line)
	n.onStatus(line)
}

func (n *Node) record(peerID string, kind store.LogKind, msg string) {
	if n.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := n.history.Append(ctx, store.LogEntry{
		Room:    n.room,
		PeerID:  peerID,
		Kind:    kind,
		Message: msg,
	})
	if err != nil {
		n.logger.Warnf("Failed to record history: %v", err)
	}
}
