package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rudransh-shrivastava/peer-watch/internal/logger"
	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
)

type fakePlayer struct {
	mu     sync.Mutex
	time   float64
	paused bool
	seeks  []float64
	plays  int
	pauses int
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.time
}

func (p *fakePlayer) SeekTo(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.time = t
	p.seeks = append(p.seeks, t)
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.plays++
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.pauses++
}

func (p *fakePlayer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	sent    []protocol.Control
	forward func(protocol.Control)
}

func (b *recordingBroadcaster) Broadcast(msg protocol.Message) error {
	ctrl := *msg.(*protocol.Control)
	b.mu.Lock()
	b.sent = append(b.sent, ctrl)
	forward := b.forward
	b.mu.Unlock()
	if forward != nil {
		forward(ctrl)
	}
	return nil
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func setupController(t *testing.T, id string, player Player, clk clock.Clock) (*Controller, *recordingBroadcaster, *[]string) {
	t.Helper()
	b := &recordingBroadcaster{}
	var status []string
	c := NewController(ControllerOptions{
		LocalID:     id,
		Player:      player,
		Broadcaster: b,
		Config:      DefaultConfig(),
		Clock:       clk,
		Logger:      logger.Discard(),
		OnStatus:    func(s string) { status = append(status, s) },
	})
	t.Cleanup(c.Close)
	return c, b, &status
}

func TestControllerLocalBroadcast(t *testing.T) {
	mock := clock.NewMock()
	player := &fakePlayer{time: 42, paused: true}
	ctrl, b, _ := setupController(t, "alice", player, mock)

	if !ctrl.OnLocal(protocol.ActionPlay) {
		t.Fatal("expected first local action broadcast")
	}
	if b.count() != 1 || b.sent[0].Time != 42 || b.sent[0].Originator != "alice" {
		t.Errorf("unexpected broadcast %+v", b.sent)
	}

	if ctrl.OnLocal(protocol.ActionPause) {
		t.Error("expected second action inside guard window suppressed")
	}

	mock.Add(500 * time.Millisecond)
	if !ctrl.OnLocal(protocol.ActionPause) {
		t.Error("expected broadcast after guard window")
	}
	if b.count() != 2 {
		t.Errorf("expected 2 broadcasts, got %d", b.count())
	}
}

func TestControllerRemoteInsideGuardIgnored(t *testing.T) {
	mock := clock.NewMock()
	player := &fakePlayer{time: 10.0, paused: true}
	ctrl, b, _ := setupController(t, "alice", player, mock)

	player.Play()
	ctrl.OnLocal(protocol.ActionPlay)
	if b.count() != 1 {
		t.Fatalf("expected local play broadcast")
	}

	mock.Add(100 * time.Millisecond)
	player.time = 10.1

	if ctrl.OnRemote(protocol.Control{Action: protocol.ActionPlay, Time: 10.2, Originator: "bob"}) {
		t.Error("expected remote event inside guard window ignored")
	}
	if len(player.seeks) != 0 {
		t.Errorf("expected no seek, got %v", player.seeks)
	}
	if player.plays != 1 {
		t.Errorf("expected no extra play, got %d", player.plays)
	}
}

func TestControllerRemoteWithinTolerance(t *testing.T) {
	mock := clock.NewMock()
	player := &fakePlayer{time: 10.0}
	ctrl, b, status := setupController(t, "alice", player, mock)

	if !ctrl.OnRemote(protocol.Control{Action: protocol.ActionPlay, Time: 10.2, Originator: "bob"}) {
		t.Fatal("expected remote event applied")
	}
	if len(player.seeks) != 0 {
		t.Errorf("expected no seek within tolerance, got %v", player.seeks)
	}
	if player.plays != 0 {
		t.Error("expected play skipped when already playing")
	}
	if b.count() != 0 {
		t.Error("applying a remote event must not broadcast")
	}
	if len(*status) != 1 || (*status)[0] != "bob played the video at 00:10" {
		t.Errorf("unexpected status %v", *status)
	}
	if !ctrl.GuardActive() {
		t.Error("expected guard armed after applying")
	}
}

func TestControllerRemoteDriftSeeks(t *testing.T) {
	mock := clock.NewMock()
	player := &fakePlayer{time: 3}
	ctrl, _, _ := setupController(t, "alice", player, mock)

	ctrl.OnRemote(protocol.Control{Action: protocol.ActionPause, Time: 65, Originator: "bob"})

	if len(player.seeks) != 1 || player.seeks[0] != 65 {
		t.Errorf("expected seek to 65, got %v", player.seeks)
	}
	if !player.Paused() || player.pauses != 1 {
		t.Error("expected player paused once")
	}
}

func TestControllerIgnoresOwnEvents(t *testing.T) {
	player := &fakePlayer{}
	ctrl, _, _ := setupController(t, "alice", player, clock.NewMock())

	if ctrl.OnRemote(protocol.Control{Action: protocol.ActionSeek, Time: 90, Originator: "alice"}) {
		t.Error("expected own event ignored")
	}
}

// Two peers wired back to back: every applied remote action makes the
// receiving player raise a local event, which must not be re-broadcast.
func TestControllerNoEchoBetweenPeers(t *testing.T) {
	mock := clock.NewMock()

	playerA := NewVirtualPlayer(mock)
	playerB := NewVirtualPlayer(mock)
	ctrlA, bA, _ := setupController(t, "a", playerA, mock)
	ctrlB, bB, _ := setupController(t, "b", playerB, mock)

	bA.forward = func(c protocol.Control) { ctrlB.OnRemote(c) }
	bB.forward = func(c protocol.Control) { ctrlA.OnRemote(c) }
	playerA.OnEvent(func(a protocol.Action) { ctrlA.OnLocal(a) })
	playerB.OnEvent(func(a protocol.Action) { ctrlB.OnLocal(a) })

	for round := 0; round < 4; round++ {
		if round%2 == 0 {
			playerA.Play()
		} else {
			playerB.Pause()
		}
		mock.Add(600 * time.Millisecond)
	}

	if bA.count() != 2 || bB.count() != 2 {
		t.Errorf("expected 2 broadcasts per peer, got a=%d b=%d", bA.count(), bB.count())
	}
	if playerA.Paused() != playerB.Paused() {
		t.Error("expected players in the same state")
	}
}
