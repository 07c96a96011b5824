package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rudransh-shrivastava/peer-watch/internal/logger"
	"github.com/rudransh-shrivastava/peer-watch/internal/node"
	"github.com/rudransh-shrivastava/peer-watch/internal/transfer"
)

func setupNode(t *testing.T) *node.Node {
	t.Helper()
	n := node.New(node.Options{LocalID: "me", Room: "ROOM01", Logger: logger.Discard()})
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestRunCommand(t *testing.T) {
	n := setupNode(t)
	var out bytes.Buffer

	if err := runCommand(n, "seek 65", &out); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if err := runCommand(n, "status", &out); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "paused at 01:05") {
		t.Errorf("Expected paused at 01:05, got %q", out.String())
	}

	if err := runCommand(n, "play", &out); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if n.Player().Paused() {
		t.Error("Expected player to be playing")
	}
}

func TestRunCommandErrors(t *testing.T) {
	n := setupNode(t)
	var out bytes.Buffer

	tests := []struct {
		line string
		want string
	}{
		{"seek", "usage"},
		{"seek soon", "invalid position"},
		{"rewind", "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			err := runCommand(n, tt.line, &out)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if err := runCommand(n, "quit", &out); !errors.Is(err, errQuit) {
		t.Errorf("Expected errQuit, got %v", err)
	}
	if err := runCommand(n, "   ", &out); err != nil {
		t.Errorf("Expected blank line to be ignored, got %v", err)
	}
}

func TestProgressView(t *testing.T) {
	var out bytes.Buffer
	v := &progressView{out: &out}

	session := transfer.Session{PeerID: "host", ExpectedSize: 100}
	v.handle(transfer.Event{Kind: transfer.EventStarted, PeerID: "host", Session: session})
	session.AppliedSize = 100
	v.handle(transfer.Event{Kind: transfer.EventProgress, PeerID: "host", Session: session})
	v.handle(transfer.Event{Kind: transfer.EventCompleted, PeerID: "host", Session: session})

	if !strings.Contains(out.String(), "Buffered 100 bytes from host") {
		t.Errorf("Expected completion line, got %q", out.String())
	}
	if len(v.bars) != 0 {
		t.Errorf("Expected finished bar to be dropped, got %d", len(v.bars))
	}

	v.handle(transfer.Event{Kind: transfer.EventFailed, PeerID: "other", Err: transfer.ErrSizeExceeded})
	if !strings.Contains(out.String(), "Transfer from other stopped") {
		t.Errorf("Expected failure line, got %q", out.String())
	}
}

func TestSpillSinkRestartsFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.webm"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer f.Close()

	factory := spillSink(f)

	write := func(data string) {
		sink := factory()
		defer sink.Release()

		if err := <-sink.Open("video/webm"); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		op, err := sink.Append([]byte(data))
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		<-op.Done()
		if op.Err() != nil {
			t.Fatalf("Append op failed: %v", op.Err())
		}
	}

	write("first session")
	write("second")

	got, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Expected only the latest session, got %q", got)
	}
}
