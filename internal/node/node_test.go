package node

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peer-watch/internal/logger"
	"github.com/rudransh-shrivastava/peer-watch/internal/registry"
	"github.com/rudransh-shrivastava/peer-watch/internal/store"
	"github.com/rudransh-shrivastava/peer-watch/internal/transfer"
	"github.com/rudransh-shrivastava/peer-watch/internal/transport"
)

type recorder struct {
	mu       sync.Mutex
	events   []transfer.Event
	statuses []string
}

func (r *recorder) event(ev transfer.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) status(line string) {
	r.mu.Lock()
	r.statuses = append(r.statuses, line)
	r.mu.Unlock()
}

func (r *recorder) hasEvent(kind transfer.EventKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func (r *recorder) statusLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Transfer.ChunkSize = 1024
	cfg.Transfer.ChunkDelay = 0
	cfg.Transfer.SettleDelay = 10 * time.Millisecond
	return cfg
}

func setupNode(t *testing.T, id string, src transfer.Source, history store.HistoryRepository) (*Node, *recorder) {
	t.Helper()

	rec := &recorder{}
	n := New(Options{
		LocalID:  id,
		Room:     "ROOM01",
		Config:   testConfig(),
		Source:   src,
		History:  history,
		Logger:   logger.Discard(),
		OnEvent:  rec.event,
		OnStatus: rec.status,
	})
	t.Cleanup(func() { _ = n.Close() })
	return n, rec
}

func connect(t *testing.T, a, b *Node) {
	t.Helper()

	aSide, bSide := transport.Pipe(a.ID(), b.ID())
	if err := a.Attach(aSide); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if err := b.Attach(bSide); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRequestMediaTransfers(t *testing.T) {
	media := bytes.Repeat([]byte("frame"), 1000)
	host, _ := setupNode(t, "host", transfer.NewBytesSource(media, `video/mp4; codecs="avc1.42E01E"`), nil)
	viewer, rec := setupNode(t, "viewer", nil, nil)
	connect(t, host, viewer)

	if err := viewer.RequestMedia("host"); err != nil {
		t.Fatalf("RequestMedia failed: %v", err)
	}

	waitUntil(t, "transfer completion", func() bool { return rec.hasEvent(transfer.EventCompleted) })

	snap, ok := viewer.Snapshot("host")
	if !ok {
		t.Fatal("Expected a link to host")
	}
	if snap.Session.State != transfer.StateComplete {
		t.Errorf("Expected complete session, got %s", snap.Session.State)
	}
	if snap.Session.AppliedSize != uint64(len(media)) {
		t.Errorf("Expected %d bytes applied, got %d", len(media), snap.Session.AppliedSize)
	}
	if !rec.hasEvent(transfer.EventStarted) {
		t.Error("Expected a started event")
	}
}

func TestRequestUnknownPeer(t *testing.T) {
	n, _ := setupNode(t, "viewer", nil, nil)

	if err := n.RequestMedia("nobody"); !errors.Is(err, registry.ErrUnknownPeer) {
		t.Errorf("Expected ErrUnknownPeer, got %v", err)
	}
}

func TestPlaybackSyncs(t *testing.T) {
	alice, aliceRec := setupNode(t, "alice", nil, nil)
	bob, bobRec := setupNode(t, "bob", nil, nil)
	connect(t, alice, bob)

	alice.Player().SeekTo(42)
	waitUntil(t, "remote seek", func() bool {
		pos := bob.Player().CurrentTime()
		return pos >= 42 && pos < 43
	})

	lines := bobRec.statusLines()
	if len(lines) != 1 || lines[0] != "alice seeked the video to 00:42" {
		t.Errorf("Expected seek status line, got %v", lines)
	}

	time.Sleep(100 * time.Millisecond)
	if got := aliceRec.statusLines(); len(got) != 0 {
		t.Errorf("Expected no echo back to alice, got %v", got)
	}
}

func TestMalformedMessageKeepsChannel(t *testing.T) {
	host, _ := setupNode(t, "host", transfer.NewBytesSource([]byte("tiny"), "video/webm"), nil)
	viewer, rec := setupNode(t, "viewer", nil, nil)

	hostSide, viewerSide := transport.Pipe("host", "viewer")
	if err := host.Attach(hostSide); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if err := viewer.Attach(viewerSide); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	if err := viewerSide.Send([]byte{0xff, 0xff, 0xff}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := viewer.RequestMedia("host"); err != nil {
		t.Fatalf("RequestMedia failed: %v", err)
	}

	waitUntil(t, "transfer completion", func() bool { return rec.hasEvent(transfer.EventCompleted) })
}

func TestDisconnectIsolatedAndRecorded(t *testing.T) {
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(db) })
	history := store.NewHistoryStore(db)

	hub, _ := setupNode(t, "hub", nil, history)
	bob, _ := setupNode(t, "bob", nil, nil)
	carol, _ := setupNode(t, "carol", nil, nil)
	connect(t, hub, bob)
	connect(t, hub, carol)

	if err := bob.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	waitUntil(t, "bob removed", func() bool {
		peers := hub.Peers()
		return len(peers) == 1 && peers[0] == "carol"
	})

	waitUntil(t, "disconnect recorded", func() bool {
		entries, err := history.Recent(context.Background(), "ROOM01", 0)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		for _, e := range entries {
			if e.Kind == store.KindDisconnect && e.PeerID == "bob" {
				return true
			}
		}
		return false
	})

	carol.Player().Play()
	waitUntil(t, "hub playing", func() bool { return !hub.Player().Paused() })
}

func TestAttachAfterClose(t *testing.T) {
	n, _ := setupNode(t, "alice", nil, nil)
	_ = n.Close()

	conn, _ := transport.Pipe("alice", "bob")
	if err := n.Attach(conn); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
