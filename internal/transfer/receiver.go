package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rudransh-shrivastava/peer-watch/internal/buffer"
	"github.com/sirupsen/logrus"
)

// SinkFactory builds a fresh buffer sink for each session.
type SinkFactory func() *buffer.Sink

type ReceiverOptions struct {
	PeerID   string
	Config   Config
	NewSink  SinkFactory
	Playhead func() float64
	Clock    clock.Clock
	Logger   logrus.FieldLogger
	// OnEvent runs on the receiver loop and must not call back into the
	// receiver.
	OnEvent func(Event)
}

// Snapshot is a read-only view of the receiver.
type Snapshot struct {
	Session      Session
	Active       bool
	Pending      int
	PendingBytes int64
	InFlight     bool
	Ranges       []buffer.Range
}

// Receiver runs the receiving side of one peer channel. Every state change
// happens on the goroutine running Run; the exported methods post to it.
type Receiver struct {
	peerID   string
	cfg      Config
	newSink  SinkFactory
	playhead func() float64
	clock    clock.Clock
	log      logrus.FieldLogger
	onEvent  func(Event)

	calls chan func()
	done  chan struct{}

	// loop-owned
	session   *Session
	sink      *buffer.Sink
	ready     <-chan error
	sinkReady bool
	queue     *Queue
	inflight  *buffer.Op
	attempts  int
	warned    bool
	settle    *clock.Timer
	opTimer   *clock.Timer
}

func NewReceiver(opts ReceiverOptions) *Receiver {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Playhead == nil {
		opts.Playhead = func() float64 { return 0 }
	}
	if opts.NewSink == nil {
		opts.NewSink = func() *buffer.Sink {
			return buffer.NewSink(buffer.NewMemoryHost(buffer.DefaultMemoryConfig()), buffer.DefaultConfig())
		}
	}
	if opts.Config.MaxAttempts <= 0 {
		opts.Config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}

	return &Receiver{
		peerID:   opts.PeerID,
		cfg:      opts.Config,
		newSink:  opts.NewSink,
		playhead: opts.Playhead,
		clock:    opts.Clock,
		log:      opts.Logger.WithField("peer", opts.PeerID),
		onEvent:  opts.OnEvent,
		calls:    make(chan func()),
		done:     make(chan struct{}),
		queue:    NewQueue(),
	}
}

func (r *Receiver) PeerID() string {
	return r.peerID
}

// Run drives the receiver until ctx is cancelled. The current session is
// released on return.
func (r *Receiver) Run(ctx context.Context) error {
	defer close(r.done)
	defer r.teardown()

	for {
		var opDone <-chan struct{}
		if r.inflight != nil {
			opDone = r.inflight.Done()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-r.calls:
			fn()
		case err := <-r.ready:
			r.ready = nil
			r.onReady(err)
		case <-opDone:
			r.onOpDone()
		case <-timerC(r.settle):
			r.settle = nil
			r.onSettle()
		case <-timerC(r.opTimer):
			r.opTimer = nil
			r.onTimeout()
		}

		r.pump()
	}
}

func timerC(t *clock.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// Done is closed once Run has returned.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

func (r *Receiver) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case r.calls <- func() { reply <- fn() }:
	case <-r.done:
		return ErrReceiverClosed
	}
	return <-reply
}

// OnMetadata starts a new session, discarding the current one.
func (r *Receiver) OnMetadata(size uint64, mimeDescriptor string) error {
	return r.call(func() error {
		return r.handleMetadata(size, mimeDescriptor)
	})
}

// OnChunk accepts the next chunk and returns once it is queued.
func (r *Receiver) OnChunk(offset uint64, data []byte) error {
	return r.call(func() error {
		return r.handleChunk(offset, data)
	})
}

// OnComplete records the sender's end-of-stream marker. Finalization is
// driven by the applied byte count, not by this message.
func (r *Receiver) OnComplete() error {
	return r.call(func() error {
		if r.session == nil {
			return ErrNoSession
		}
		r.session.CompleteSeen = true
		if r.session.ReceivedSize < r.session.ExpectedSize {
			r.sessionLog().Warnf("Complete received at %d of %d bytes", r.session.ReceivedSize, r.session.ExpectedSize)
		}
		return nil
	})
}

// Abort ends the current session because the channel went away.
func (r *Receiver) Abort(reason error) error {
	return r.call(func() error {
		if r.session == nil || r.session.State.Terminal() {
			r.teardown()
			return nil
		}
		err := ErrChannelClosed
		if reason != nil {
			err = fmt.Errorf("%w: %v", ErrChannelClosed, reason)
		}
		r.fail(err)
		return nil
	})
}

func (r *Receiver) Snapshot() Snapshot {
	var snap Snapshot
	err := r.call(func() error {
		snap = r.snapshot()
		return nil
	})
	if err != nil {
		return Snapshot{Session: Session{PeerID: r.peerID}}
	}
	return snap
}

func (r *Receiver) snapshot() Snapshot {
	snap := Snapshot{
		Session:      Session{PeerID: r.peerID},
		Pending:      r.queue.Len(),
		PendingBytes: r.queue.Bytes(),
		InFlight:     r.inflight != nil,
	}
	if r.session != nil {
		snap.Session = *r.session
		snap.Active = !r.session.State.Terminal()
	}
	if r.sink != nil {
		snap.Ranges = r.sink.Ranges()
	}
	return snap
}

func (r *Receiver) handleMetadata(size uint64, mimeDescriptor string) error {
	if _, err := buffer.ParseMime(mimeDescriptor); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	if old := r.session; old != nil {
		unflushed := r.queue.Len() > 0 || r.inflight != nil
		active := old.State == StateStreaming || old.State == StateDraining
		if active && unflushed && old.ExpectedSize != size {
			r.fail(fmt.Errorf("%w: announced %d bytes while %d-byte session has %d chunks pending",
				ErrSessionConflict, size, old.ExpectedSize, r.queue.Len()))
			r.teardown()
			return ErrSessionConflict
		}
		if !old.State.Terminal() {
			r.sessionLog().Infof("Session replaced at %d of %d bytes", old.ReceivedSize, old.ExpectedSize)
		}
		r.teardown()
	}

	r.session = newSession(r.peerID, size, mimeDescriptor)
	r.sink = r.newSink()
	r.ready = r.sink.Open(mimeDescriptor)
	r.sinkReady = false
	r.attempts = 0
	r.warned = false

	r.sessionLog().Infof("Session started: %d bytes of %s", size, mimeDescriptor)
	r.emit(EventStarted, nil)
	return nil
}

func (r *Receiver) handleChunk(offset uint64, data []byte) error {
	s := r.session
	if s == nil {
		return ErrNoSession
	}

	if offset != s.ReceivedSize {
		err := fmt.Errorf("%w: got offset %d, expected %d", ErrOutOfOrderChunk, offset, s.ReceivedSize)
		if !s.State.Terminal() {
			r.fail(err)
		}
		return err
	}

	switch s.State {
	case StateMetadataReceived, StateStreaming:
	case StateDraining:
		err := fmt.Errorf("%w: %d bytes after all %d were received", ErrUnexpectedChunk, len(data), s.ExpectedSize)
		r.fail(err)
		return err
	default:
		return fmt.Errorf("%w: session is %s", ErrUnexpectedChunk, s.State)
	}

	size := uint64(len(data))
	if s.ReceivedSize+size > s.ExpectedSize {
		err := fmt.Errorf("%w: %d+%d > %d", ErrSizeExceeded, s.ReceivedSize, size, s.ExpectedSize)
		r.fail(err)
		return err
	}
	if size == 0 {
		return nil
	}

	s.State = StateStreaming
	s.ReceivedSize += size
	r.queue.Enqueue(Chunk{Offset: offset, Data: data})

	if !r.warned && r.cfg.QueueHighWatermark > 0 && r.queue.Bytes() > r.cfg.QueueHighWatermark {
		r.warned = true
		r.sessionLog().Warnf("Pending queue holds %d bytes, above %d", r.queue.Bytes(), r.cfg.QueueHighWatermark)
	}

	if s.ReceivedSize == s.ExpectedSize {
		s.State = StateDraining
		r.sessionLog().Debugf("All %d bytes received, draining %d chunks", s.ExpectedSize, r.queue.Len())
	}
	return nil
}

func (r *Receiver) onReady(err error) {
	if r.session == nil || r.session.State.Terminal() {
		return
	}
	if err != nil {
		r.fail(fmt.Errorf("%w: %v", ErrInvalidMetadata, err))
		return
	}

	r.sinkReady = true
	if r.session.ExpectedSize == 0 {
		r.session.State = StateDraining
	}
}

// pump is the only place buffer operations start. It appends the queue
// head; the head leaves the queue only once the append succeeded.
func (r *Receiver) pump() {
	s := r.session
	if s == nil || s.State.Terminal() || !r.sinkReady || r.inflight != nil || r.settle != nil {
		return
	}

	chunk, ok := r.queue.Peek()
	if !ok {
		if s.State == StateDraining {
			r.settle = r.clock.Timer(r.cfg.SettleDelay)
		}
		return
	}

	op, err := r.sink.Append(chunk.Data)
	if err != nil {
		r.fail(fmt.Errorf("%w: append at %d: %v", ErrSinkFailed, chunk.Offset, err))
		return
	}
	r.attempts++
	r.start(op)
}

func (r *Receiver) start(op *buffer.Op) {
	r.inflight = op
	if r.cfg.OperationTimeout > 0 {
		r.opTimer = r.clock.Timer(r.cfg.OperationTimeout)
	}
}

func (r *Receiver) onOpDone() {
	op := r.inflight
	r.inflight = nil
	stopTimer(&r.opTimer)

	if r.session == nil || r.session.State.Terminal() {
		return
	}
	err := op.Err()

	switch op.Kind {
	case buffer.OpAppend:
		switch {
		case err == nil:
			chunk, _ := r.queue.Pop()
			r.attempts = 0
			r.session.AppliedSize += uint64(chunk.Len())
			r.emit(EventProgress, nil)
		case errors.Is(err, buffer.ErrCapacityExceeded):
			if r.attempts >= r.cfg.MaxAttempts {
				r.fail(fmt.Errorf("%w: %d attempts at offset %d", ErrRetriesExhausted, r.attempts, r.session.AppliedSize))
				return
			}
			playhead := r.playhead()
			r.sessionLog().Debugf("Buffer full on attempt %d, evicting behind %.2fs", r.attempts, playhead)
			evict, err := r.sink.EvictBehind(playhead)
			if err != nil {
				r.fail(fmt.Errorf("%w: evict: %v", ErrSinkFailed, err))
				return
			}
			r.start(evict)
		default:
			r.fail(fmt.Errorf("%w: append: %v", ErrSinkFailed, err))
		}

	case buffer.OpEvict:
		if err != nil {
			r.fail(fmt.Errorf("%w: evict: %v", ErrSinkFailed, err))
		}

	case buffer.OpFinalize:
		if err != nil {
			r.fail(fmt.Errorf("%w: finalize: %v", ErrSinkFailed, err))
			return
		}
		r.session.State = StateComplete
		r.sessionLog().Infof("Session complete: %d bytes", r.session.AppliedSize)
		r.emit(EventCompleted, nil)
	}
}

func (r *Receiver) onSettle() {
	s := r.session
	if s == nil || s.State != StateDraining || r.queue.Len() > 0 || r.inflight != nil {
		return
	}

	op, err := r.sink.Finalize()
	if err != nil {
		r.fail(fmt.Errorf("%w: finalize: %v", ErrSinkFailed, err))
		return
	}
	r.start(op)
}

func (r *Receiver) onTimeout() {
	if r.inflight == nil || r.session == nil || r.session.State.Terminal() {
		return
	}
	r.fail(fmt.Errorf("%w: %s did not complete within %s", ErrSinkStalled, r.inflight.Kind, r.cfg.OperationTimeout))
}

// fail moves the session to Failed and drops its queue and sink. The
// session itself is kept so observers can inspect the cause.
func (r *Receiver) fail(err error) {
	s := r.session
	if s == nil || s.State.Terminal() {
		return
	}
	s.State = StateFailed
	s.Err = err

	r.release()

	kind := EventFailed
	if errors.Is(err, ErrChannelClosed) {
		kind = EventDisconnected
		r.sessionLog().Warnf("Session aborted: %v", err)
	} else {
		r.sessionLog().Errorf("Session failed: %v", err)
	}
	r.emit(kind, err)
}

// release frees the session's queue, sink and timers. An in-flight
// operation is abandoned; the sink closes its host once it finishes.
func (r *Receiver) release() {
	r.queue.Clear()
	r.inflight = nil
	r.ready = nil
	r.sinkReady = false
	stopTimer(&r.settle)
	stopTimer(&r.opTimer)
	if r.sink != nil {
		r.sink.Release()
		r.sink = nil
	}
}

func (r *Receiver) teardown() {
	r.release()
	r.session = nil
}

func stopTimer(t **clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (r *Receiver) emit(kind EventKind, err error) {
	r.onEvent(Event{
		Kind:    kind,
		PeerID:  r.peerID,
		Session: *r.session,
		Err:     err,
	})
}

func (r *Receiver) sessionLog() logrus.FieldLogger {
	if r.session == nil {
		return r.log
	}
	return r.log.WithField("session", r.session.ID)
}
