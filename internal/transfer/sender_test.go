package transfer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rudransh-shrivastava/peer-watch/internal/buffer"
	"github.com/rudransh-shrivastava/peer-watch/internal/logger"
	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
)

type sentLog struct {
	mu   sync.Mutex
	msgs []protocol.Message
	hook func(protocol.Message)
}

func (l *sentLog) send(msg protocol.Message) error {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	hook := l.hook
	l.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	return nil
}

func (l *sentLog) all() []protocol.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Message(nil), l.msgs...)
}

func newTestSender(delay time.Duration, clk clock.Clock) *Sender {
	cfg := DefaultConfig()
	cfg.ChunkSize = 4
	cfg.ChunkDelay = delay
	return NewSender(SenderOptions{Config: cfg, Clock: clk, Logger: logger.Discard()})
}

func TestSenderServe(t *testing.T) {
	sender := newTestSender(0, nil)
	var log sentLog

	data := []byte("0123456789")
	if err := sender.Serve(context.Background(), "peer-b", log.send, NewBytesSource(data, "video/mp4")); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	msgs := log.all()
	if len(msgs) != 5 {
		t.Fatalf("expected metadata, 3 chunks and complete, got %d messages", len(msgs))
	}

	meta, ok := msgs[0].(*protocol.VideoMetadata)
	if !ok || meta.Size != 10 || meta.MimeDescriptor != "video/mp4" {
		t.Errorf("unexpected metadata %+v", msgs[0])
	}

	var got []byte
	var offset uint64
	for _, m := range msgs[1:4] {
		chunk := m.(*protocol.VideoChunk)
		if chunk.Offset != offset {
			t.Errorf("expected offset %d, got %d", offset, chunk.Offset)
		}
		offset += uint64(len(chunk.Data))
		got = append(got, chunk.Data...)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("expected %q, got %q", data, got)
	}

	if _, ok := msgs[4].(*protocol.VideoComplete); !ok {
		t.Errorf("expected complete, got %T", msgs[4])
	}
	if sender.Active("peer-b") {
		t.Error("expected no active send after completion")
	}
}

func TestSenderEmptySource(t *testing.T) {
	sender := newTestSender(0, nil)
	var log sentLog

	if err := sender.Serve(context.Background(), "p", log.send, NewBytesSource(nil, "video/mp4")); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if msgs := log.all(); len(msgs) != 2 {
		t.Errorf("expected metadata and complete, got %d", len(msgs))
	}
}

func TestSenderNoSource(t *testing.T) {
	sender := newTestSender(0, nil)
	if err := sender.Serve(context.Background(), "p", func(protocol.Message) error { return nil }, nil); !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestSenderNewRequestCancelsPrevious(t *testing.T) {
	mock := clock.NewMock()
	sender := newTestSender(time.Second, mock)
	src := NewBytesSource([]byte("0123456789"), "video/mp4")

	firstChunk := make(chan struct{}, 1)
	first := &sentLog{hook: func(m protocol.Message) {
		if _, ok := m.(*protocol.VideoChunk); ok {
			select {
			case firstChunk <- struct{}{}:
			default:
			}
		}
	}}

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- sender.Serve(context.Background(), "peer-b", first.send, src)
	}()
	<-firstChunk

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	second := &sentLog{}
	secondErr := make(chan error, 1)
	go func() {
		secondErr <- sender.Serve(ctx, "peer-b", second.send, src)
	}()

	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected first send cancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first send was not cancelled")
	}

	for _, m := range first.all() {
		if _, ok := m.(*protocol.VideoComplete); ok {
			t.Error("cancelled send must not complete")
		}
	}

	cancel()
	select {
	case <-secondErr:
	case <-time.After(2 * time.Second):
		t.Fatal("second send did not stop")
	}
}

func TestSenderNewRequestNotHeldByWedgedSend(t *testing.T) {
	sender := newTestSender(0, nil)
	src := NewBytesSource([]byte("0123456789"), "video/mp4")

	wedged := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	stuck := func(m protocol.Message) error {
		if _, ok := m.(*protocol.VideoChunk); ok {
			close(wedged)
			<-release
		}
		return nil
	}
	go func() { _ = sender.Serve(context.Background(), "peer-b", stuck, src) }()
	<-wedged

	ctx, cancel := context.WithCancel(context.Background())
	secondErr := make(chan error, 1)
	go func() {
		secondErr <- sender.Serve(ctx, "peer-b", (&sentLog{}).send, src)
	}()

	cancel()
	select {
	case err := <-secondErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("new request blocked behind a wedged send")
	}
}

func TestSenderToReceiver(t *testing.T) {
	rs := setupReceiver(t, buffer.DefaultMemoryConfig(), nil)

	cfg := DefaultConfig()
	cfg.ChunkDelay = 0
	sender := NewSender(SenderOptions{Config: cfg, Logger: logger.Discard()})

	data := bytes.Repeat([]byte{7}, protocol.ChunkSize*2+100)
	deliver := func(msg protocol.Message) error {
		switch m := msg.(type) {
		case *protocol.VideoMetadata:
			return rs.recv.OnMetadata(m.Size, m.MimeDescriptor)
		case *protocol.VideoChunk:
			return rs.recv.OnChunk(m.Offset, m.Data)
		case *protocol.VideoComplete:
			return rs.recv.OnComplete()
		}
		return nil
	}

	if err := sender.Serve(context.Background(), "peer-a", deliver, NewBytesSource(data, testMime)); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	snap := settle(t, rs)
	if snap.Session.AppliedSize != uint64(len(data)) {
		t.Errorf("expected %d applied, got %d", len(data), snap.Session.AppliedSize)
	}
}
