package playback

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// EchoGuard is a flag that clears itself a fixed window after being armed.
type EchoGuard struct {
	clock  clock.Clock
	window time.Duration

	mu     sync.Mutex
	active bool
	gen    uint64
	timer  *clock.Timer
}

func NewEchoGuard(clk clock.Clock, window time.Duration) *EchoGuard {
	if clk == nil {
		clk = clock.New()
	}
	return &EchoGuard{clock: clk, window: window}
}

// TryArm arms the guard if it is clear and reports whether it did.
func (g *EchoGuard) TryArm() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active {
		return false
	}
	g.armLocked()
	return true
}

// Arm sets the guard and restarts its window.
func (g *EchoGuard) Arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armLocked()
}

func (g *EchoGuard) armLocked() {
	if g.timer != nil {
		g.timer.Stop()
	}
	g.active = true
	g.gen++
	gen := g.gen
	g.timer = g.clock.AfterFunc(g.window, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.gen == gen {
			g.active = false
			g.timer = nil
		}
	})
}

func (g *EchoGuard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *EchoGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.active = false
	g.gen++
}
