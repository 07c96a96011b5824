package playback

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Player is the local playback clock the controller drives.
type Player interface {
	CurrentTime() float64
	SeekTo(seconds float64)
	Play()
	Pause()
	Paused() bool
}

type Broadcaster interface {
	Broadcast(msg protocol.Message) error
}

type Config struct {
	GuardWindow time.Duration
	// DriftTolerance is the largest time difference, in seconds, applied
	// without a corrective seek.
	DriftTolerance float64
}

func DefaultConfig() Config {
	return Config{
		GuardWindow:    500 * time.Millisecond,
		DriftTolerance: 0.5,
	}
}

type ControllerOptions struct {
	LocalID     string
	Player      Player
	Broadcaster Broadcaster
	Config      Config
	Clock       clock.Clock
	Logger      logrus.FieldLogger
	// OnStatus receives a human readable line per applied remote event.
	OnStatus func(string)
}

// Controller keeps the local player in step with remote peers. Local
// actions are broadcast and remote actions applied only while the echo
// guard is clear; both arm it.
type Controller struct {
	localID     string
	player      Player
	broadcaster Broadcaster
	cfg         Config
	guard       *EchoGuard
	log         logrus.FieldLogger
	onStatus    func(string)
}

func NewController(opts ControllerOptions) *Controller {
	if opts.Config.GuardWindow <= 0 {
		opts.Config = DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.OnStatus == nil {
		opts.OnStatus = func(string) {}
	}
	return &Controller{
		localID:     opts.LocalID,
		player:      opts.Player,
		broadcaster: opts.Broadcaster,
		cfg:         opts.Config,
		guard:       NewEchoGuard(opts.Clock, opts.Config.GuardWindow),
		log:         opts.Logger,
		onStatus:    opts.OnStatus,
	}
}

// OnLocal handles a play, pause or seek raised by the local player and
// reports whether it was broadcast.
func (c *Controller) OnLocal(action protocol.Action) bool {
	if !action.Valid() {
		return false
	}
	if !c.guard.TryArm() {
		c.log.Debugf("Suppressed local %s inside guard window", action)
		return false
	}

	msg := &protocol.Control{
		Action:     action,
		Time:       c.player.CurrentTime(),
		Originator: c.localID,
	}
	if err := c.broadcaster.Broadcast(msg); err != nil {
		c.log.Warnf("Failed to broadcast %s: %v", action, err)
	}
	return true
}

// OnRemote applies a control event from a peer and reports whether it
// was applied.
func (c *Controller) OnRemote(ev protocol.Control) bool {
	if ev.Originator == c.localID || !ev.Action.Valid() {
		return false
	}
	if !c.guard.TryArm() {
		c.log.Debugf("Ignored %s from %s inside guard window", ev.Action, ev.Originator)
		return false
	}

	local := c.player.CurrentTime()
	if math.Abs(local-ev.Time) > c.cfg.DriftTolerance {
		c.log.Debugf("Drift %.2fs, seeking to %.2fs", local-ev.Time, ev.Time)
		c.player.SeekTo(ev.Time)
	}

	switch ev.Action {
	case protocol.ActionPlay:
		if c.player.Paused() {
			c.player.Play()
		}
	case protocol.ActionPause:
		if !c.player.Paused() {
			c.player.Pause()
		}
	}

	c.onStatus(StatusLine(ev.Originator, ev.Action, ev.Time))
	return true
}

func (c *Controller) GuardActive() bool {
	return c.guard.Active()
}

func (c *Controller) Close() {
	c.guard.Stop()
}
