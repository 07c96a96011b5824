package buffer

import (
	"context"
	"sync"
)

type Config struct {
	// RetentionBehindPlayhead is how many seconds behind the playhead
	// EvictBehind keeps.
	RetentionBehindPlayhead float64
}

func DefaultConfig() Config {
	return Config{RetentionBehindPlayhead: 10}
}

type OpKind int

const (
	OpAppend OpKind = iota
	OpEvict
	OpFinalize
)

func (k OpKind) String() string {
	switch k {
	case OpAppend:
		return "append"
	case OpEvict:
		return "evict"
	case OpFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Op is the completion handle of one asynchronous sink operation.
type Op struct {
	Kind OpKind
	done chan struct{}
	err  error
}

func newOp(kind OpKind) *Op {
	return &Op{Kind: kind, done: make(chan struct{})}
}

func completedOp(kind OpKind) *Op {
	op := newOp(kind)
	close(op.done)
	return op
}

func (o *Op) finish(err error) {
	o.err = err
	close(o.done)
}

func (o *Op) Done() <-chan struct{} {
	return o.done
}

// Err is valid once Done is closed.
func (o *Op) Err() error {
	return o.err
}

func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sink wraps a Host with a single operation lease: at most one append,
// evict or finalize is in flight at any time.
type Sink struct {
	host Host
	cfg  Config

	mu        sync.Mutex
	window    *Window
	busy      bool
	finalized bool
	released  bool
	closeOnce sync.Once
}

func NewSink(host Host, cfg Config) *Sink {
	return &Sink{
		host:   host,
		cfg:    cfg,
		window: NewWindow(),
	}
}

// Open initializes the host with the descriptor. The returned channel
// yields once when the sink is ready for appends.
func (s *Sink) Open(mimeDescriptor string) <-chan error {
	ready := make(chan error, 1)
	go func() {
		ready <- s.host.Open(mimeDescriptor)
		close(ready)
	}()
	return ready
}

func (s *Sink) Append(data []byte) (*Op, error) {
	op, err := s.acquire(OpAppend)
	if err != nil {
		return nil, err
	}
	go s.run(op, func() error {
		return s.host.Append(data)
	})
	return op, nil
}

// Evict removes [start, end). A range with end <= start completes
// immediately without touching the host.
func (s *Sink) Evict(start, end float64) (*Op, error) {
	if end <= start {
		return completedOp(OpEvict), nil
	}

	op, err := s.acquire(OpEvict)
	if err != nil {
		return nil, err
	}
	go s.run(op, func() error {
		return s.host.Evict(start, end)
	})
	return op, nil
}

// EvictBehind evicts from the oldest retained timestamp up to the
// playhead minus the retention window.
func (s *Sink) EvictBehind(playhead float64) (*Op, error) {
	s.mu.Lock()
	start, ok := s.window.Start()
	s.mu.Unlock()

	if !ok {
		return completedOp(OpEvict), nil
	}
	return s.Evict(start, max(start, playhead-s.cfg.RetentionBehindPlayhead))
}

// Finalize marks end-of-stream on the host once. Later calls complete
// immediately.
func (s *Sink) Finalize() (*Op, error) {
	s.mu.Lock()
	switch {
	case s.finalized:
		s.mu.Unlock()
		return completedOp(OpFinalize), nil
	case s.released:
		s.mu.Unlock()
		return nil, ErrReleased
	case s.busy:
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.busy = true
	s.finalized = true
	s.mu.Unlock()

	op := newOp(OpFinalize)
	go s.run(op, s.host.Finalize)
	return op, nil
}

// Release closes the host. An operation still in flight finishes first;
// its result is no longer folded into the window.
func (s *Sink) Release() {
	s.mu.Lock()
	s.released = true
	busy := s.busy
	s.mu.Unlock()

	if !busy {
		s.closeHost()
	}
}

func (s *Sink) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Sink) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

func (s *Sink) Ranges() []Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Ranges()
}

func (s *Sink) Window() *Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewWindow(s.window.Ranges()...)
}

func (s *Sink) acquire(kind OpKind) (*Op, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.released:
		return nil, ErrReleased
	case s.busy:
		return nil, ErrBusy
	case s.finalized && kind == OpAppend:
		return nil, ErrFinalized
	}

	s.busy = true
	return newOp(kind), nil
}

func (s *Sink) run(op *Op, fn func() error) {
	err := fn()

	s.mu.Lock()
	released := s.released
	if !released {
		s.window.Reset(s.host.Ranges())
	}
	s.busy = false
	s.mu.Unlock()

	if released {
		s.closeHost()
	}
	op.finish(err)
}

func (s *Sink) closeHost() {
	s.closeOnce.Do(func() {
		_ = s.host.Close()
	})
}
