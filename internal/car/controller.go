// Package car drives the vehicle directly: single-direction moves, stop,
// emergency stop and a timed forward/backward oscillation.
package car

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/rover.control/internal/dispatch"
	"github.com/banshee-data/rover.control/internal/monitoring"
	"github.com/banshee-data/rover.control/internal/motion"
	"github.com/banshee-data/rover.control/internal/timeutil"
)

const (
	// DefaultSpeed is the drive speed until SetSpeed is called.
	DefaultSpeed = motion.MaxSpeed
	// DefaultInterval is the oscillation half-period.
	DefaultInterval = time.Second
)

// ErrUnknownAction is returned by Do for an action it does not recognise.
var ErrUnknownAction = errors.New("unknown car action")

// State is the controller's motion mode.
type State int

const (
	Idle State = iota
	Moving
	Oscillating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Moving:
		return "moving"
	case Oscillating:
		return "oscillating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Moving, Oscillating} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown car state %q", text)
}

// Sender hands commands to the transport. *dispatch.Dispatcher satisfies it.
type Sender interface {
	Dispatch(cmd motion.MotionCommand) dispatch.Record
}

// Config tunes a Controller. Zero values use defaults; a negative Speed
// clamps to 0.
type Config struct {
	Speed    *int
	Interval time.Duration
}

// Status is a snapshot of the controller.
type Status struct {
	State     State            `json:"state"`
	Direction motion.Direction `json:"direction"`
	Speed     int              `json:"speed"`
	Armed     bool             `json:"oscillation_armed"`
}

// Controller serializes car commands. Oscillation and single-direction
// moves are mutually exclusive: any move cancels a running oscillation.
type Controller struct {
	sender   Sender
	periodic *timeutil.Periodic
	obs      *dispatch.Observers
	interval time.Duration

	mu    sync.Mutex
	state State
	dir   motion.Direction
	speed int
	// gen invalidates ticks scheduled by an earlier oscillation.
	gen uint64
}

// New returns an idle controller. A nil periodic uses the real clock; obs
// may be nil.
func New(sender Sender, periodic *timeutil.Periodic, obs *dispatch.Observers, cfg Config) *Controller {
	if periodic == nil {
		periodic = timeutil.NewPeriodic(nil)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	speed := DefaultSpeed
	if cfg.Speed != nil {
		speed = motion.ClampSpeed(*cfg.Speed)
	}
	return &Controller{
		sender:   sender,
		periodic: periodic,
		obs:      obs,
		interval: cfg.Interval,
		speed:    speed,
	}
}

// MoveForward drives forward at the current speed.
func (c *Controller) MoveForward() { c.move(motion.Forward) }

// MoveBackward drives backward at the current speed.
func (c *Controller) MoveBackward() { c.move(motion.Backward) }

// TurnLeft turns left at the current speed.
func (c *Controller) TurnLeft() { c.move(motion.Left) }

// TurnRight turns right at the current speed.
func (c *Controller) TurnRight() { c.move(motion.Right) }

// Stop cancels any oscillation and stops the motors.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelOscillationLocked()
	c.state = Idle
	c.dir = motion.Stop
	c.sender.Dispatch(motion.MotorCommand(motion.Stop, 0))
}

// Drive routes dir to the matching move, or Stop.
func (c *Controller) Drive(dir motion.Direction) {
	switch dir {
	case motion.Forward, motion.Backward, motion.Left, motion.Right:
		c.move(dir)
	default:
		c.Stop()
	}
}

// Do runs a named action: forward, backward, left, right, stop, oscillate
// or emergency-stop.
func (c *Controller) Do(action string) error {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "forward":
		c.MoveForward()
	case "backward":
		c.MoveBackward()
	case "left":
		c.TurnLeft()
	case "right":
		c.TurnRight()
	case "stop":
		c.Stop()
	case "oscillate":
		c.StartOscillation()
	case "emergency-stop", "emergency_stop":
		c.EmergencyStop()
	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, action)
	}
	return nil
}

func (c *Controller) move(dir motion.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelOscillationLocked()
	c.state = Moving
	c.dir = dir
	c.sender.Dispatch(motion.MotorCommand(dir, c.speed))
}

// StartOscillation drives forward now and reverses direction on every
// interval until another command cancels it.
func (c *Controller) StartOscillation() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelOscillationLocked()
	c.gen++
	gen := c.gen
	c.state = Oscillating
	c.dir = motion.Forward
	c.sender.Dispatch(motion.MotorCommand(motion.Forward, c.speed))

	c.periodic.Arm(c.interval, func() { c.tick(gen) })
	monitoring.Diagf("oscillation started (every %s at speed %d)", c.interval, c.speed)
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != Oscillating {
		monitoring.Tracef("dropping stale oscillation tick")
		return
	}
	c.dir = c.dir.Opposite()
	c.sender.Dispatch(motion.MotorCommand(c.dir, c.speed))
}

// EmergencyStop disarms the oscillation timer and sends a stop regardless of
// the current state.
func (c *Controller) EmergencyStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.periodic.Disarm()
	c.gen++
	c.state = Idle
	c.dir = motion.Stop
	monitoring.Opsf("emergency stop")
	c.sender.Dispatch(motion.MotorCommand(motion.Stop, 0))
}

func (c *Controller) cancelOscillationLocked() {
	if c.state != Oscillating {
		return
	}
	c.periodic.Disarm()
	c.gen++
}

// SetSpeed sets the speed used by later moves, clamped to [0, 255]. It does
// not resend the current command.
func (c *Controller) SetSpeed(speed int) {
	speed = motion.ClampSpeed(speed)

	c.mu.Lock()
	changed := speed != c.speed
	c.speed = speed
	c.mu.Unlock()

	if changed {
		c.obs.SpeedChanged(speed)
	}
}

// Speed returns the current drive speed.
func (c *Controller) Speed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:     c.state,
		Direction: c.dir,
		Speed:     c.speed,
		Armed:     c.periodic.Armed(),
	}
}
