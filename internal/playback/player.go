package playback

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
)

// VirtualPlayer is a wall-clock player with no decoder behind it. Every
// state change is reported to the OnEvent callback, outside the lock.
type VirtualPlayer struct {
	clock clock.Clock

	mu       sync.Mutex
	position float64
	anchor   time.Time
	playing  bool
	duration float64
	onEvent  func(protocol.Action)
}

func NewVirtualPlayer(clk clock.Clock) *VirtualPlayer {
	if clk == nil {
		clk = clock.New()
	}
	return &VirtualPlayer{clock: clk}
}

// OnEvent sets the state-change callback.
func (p *VirtualPlayer) OnEvent(fn func(protocol.Action)) {
	p.mu.Lock()
	p.onEvent = fn
	p.mu.Unlock()
}

// SetDuration caps the playhead. Zero leaves it unbounded.
func (p *VirtualPlayer) SetDuration(seconds float64) {
	p.mu.Lock()
	p.duration = seconds
	p.mu.Unlock()
}

func (p *VirtualPlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *VirtualPlayer) currentLocked() float64 {
	t := p.position
	if p.playing {
		t += p.clock.Since(p.anchor).Seconds()
	}
	if p.duration > 0 && t > p.duration {
		t = p.duration
	}
	return t
}

func (p *VirtualPlayer) Play() {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return
	}
	p.anchor = p.clock.Now()
	p.playing = true
	fn := p.onEvent
	p.mu.Unlock()

	if fn != nil {
		fn(protocol.ActionPlay)
	}
}

func (p *VirtualPlayer) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.position = p.currentLocked()
	p.playing = false
	fn := p.onEvent
	p.mu.Unlock()

	if fn != nil {
		fn(protocol.ActionPause)
	}
}

func (p *VirtualPlayer) SeekTo(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	p.mu.Lock()
	p.position = seconds
	p.anchor = p.clock.Now()
	fn := p.onEvent
	p.mu.Unlock()

	if fn != nil {
		fn(protocol.ActionSeek)
	}
}

func (p *VirtualPlayer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.playing
}
