// Package thumbstick turns the dual-stick telemetry stream into drive, arm
// and gripper commands.
package thumbstick

import (
	"context"
	"errors"
	"sync"

	"github.com/banshee-data/rover.control/internal/dispatch"
	"github.com/banshee-data/rover.control/internal/monitoring"
	"github.com/banshee-data/rover.control/internal/motion"
	"github.com/banshee-data/rover.control/internal/telemetry"
)

// Sender hands commands to the transport. *dispatch.Dispatcher satisfies it.
type Sender interface {
	Dispatch(cmd motion.MotionCommand) dispatch.Record
}

// MotorSink receives the direction of every accepted motor command.
type MotorSink interface {
	Drive(dir motion.Direction)
}

// LineSubscriber is the subscription half of a serial mux.
type LineSubscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(id string)
}

// Config tunes a Controller.
type Config struct {
	// Axis is used verbatim; nil selects motion.DefaultAxisParams.
	Axis     *motion.AxisParams
	Debounce motion.DebounceConfig
	Enabled  bool
}

// Status is a snapshot of the pipeline.
type Status struct {
	Enabled        bool                 `json:"enabled"`
	Sample         *telemetry.RawSample `json:"sample,omitempty"`
	MotorDirection motion.Direction     `json:"motor_direction"`
	MotorSpeed     int                  `json:"motor_speed"`
	ArmDirection   motion.Direction     `json:"arm_direction"`
	Button         motion.ButtonState   `json:"button"`
	Lines          uint64               `json:"lines"`
	ParseErrors    uint64               `json:"parse_errors"`
}

// Controller classifies samples and forwards material changes. Lines, API
// calls and enable toggles are processed one at a time.
type Controller struct {
	sender Sender
	obs    *dispatch.Observers
	axis   motion.AxisParams

	mu       sync.Mutex
	sink     MotorSink
	enabled  bool
	debounce *motion.Debouncer

	sample      *telemetry.RawSample
	motorDir    motion.Direction
	motorSpeed  int
	armDir      motion.Direction
	lines       uint64
	parseErrors uint64
}

// New returns a Controller dispatching through sender. obs may be nil.
func New(sender Sender, obs *dispatch.Observers, cfg Config) *Controller {
	axis := motion.DefaultAxisParams()
	if cfg.Axis != nil {
		axis = *cfg.Axis
	}
	return &Controller{
		sender:   sender,
		obs:      obs,
		axis:     axis,
		enabled:  cfg.Enabled,
		debounce: motion.NewDebouncer(cfg.Debounce),
	}
}

// SetMotorSink bridges accepted motor directions to sink. nil disables the
// bridge.
func (c *Controller) SetMotorSink(sink MotorSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// HandleLine processes one telemetry line. Every line is reported to
// observers; while disabled nothing else happens. Lines that are not
// samples are dropped and returned as *telemetry.ParseError.
func (c *Controller) HandleLine(line string) error {
	c.obs.RawDataReceived(line)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines++
	if !c.enabled {
		return nil
	}

	s, err := telemetry.ParseLine(line)
	if err != nil {
		c.parseErrors++
		if errors.Is(err, telemetry.ErrNoMatch) {
			monitoring.Tracef("ignoring line: %q", line)
		} else {
			monitoring.Diagf("dropping malformed sample: %v", err)
		}
		return err
	}

	c.handleSampleLocked(s)
	return nil
}

// handleSampleLocked classifies s and dispatches whatever the debouncer
// accepts, in motor, arm, gripper order.
func (c *Controller) handleSampleLocked(s telemetry.RawSample) {
	c.sample = &s

	motorDir, motorSpeed := motion.Classify(s.MotorX, s.MotorY, c.axis)
	armDir := motion.ClassifyDirection(s.ArmX, s.ArmY, c.axis)
	c.motorDir, c.motorSpeed, c.armDir = motorDir, motorSpeed, armDir
	monitoring.Tracef("sample %s -> motor %s/%d arm %s", s, motorDir, motorSpeed, armDir)

	if cmd, ok := c.debounce.Motor(motorDir, motorSpeed); ok {
		c.sender.Dispatch(cmd)
		if c.sink != nil {
			c.sink.Drive(cmd.Direction)
		}
	}
	if cmd, ok := c.debounce.Arm(armDir); ok {
		c.sender.Dispatch(cmd)
	}
	if cmd, ok := c.debounce.Gripper(s.Button); ok {
		c.sender.Dispatch(cmd)
	}
}

// SetEnabled turns sample processing on or off. Disabling sends exactly one
// stop for every channel that is still active.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	monitoring.Opsf("thumbstick input enabled: %v", enabled)
	if enabled {
		return
	}

	for _, cmd := range c.debounce.Settle() {
		c.sender.Dispatch(cmd)
		if cmd.Channel == motion.Motor && c.sink != nil {
			c.sink.Drive(motion.Stop)
		}
	}
	c.motorDir, c.motorSpeed, c.armDir = motion.Stop, 0, motion.Stop
}

// Enabled reports whether samples are being processed.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SendGripperCommand opens or closes the gripper directly. The button
// debounce state is left alone so the next button change is still sent.
func (c *Controller) SendGripperCommand(g motion.Grip) motion.MotionCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := motion.GripperCommand(g)
	c.sender.Dispatch(cmd)
	return cmd
}

// Run feeds lines from src into HandleLine until ctx is cancelled or the
// subscription is closed.
func (c *Controller) Run(ctx context.Context, src LineSubscriber) error {
	id, lines := src.Subscribe()
	defer src.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			_ = c.HandleLine(line)
		}
	}
}

// Status returns a snapshot of the latest sample and classification.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Enabled:        c.enabled,
		MotorDirection: c.motorDir,
		MotorSpeed:     c.motorSpeed,
		ArmDirection:   c.armDir,
		Button:         c.debounce.State(motion.Gripper).Button,
		Lines:          c.lines,
		ParseErrors:    c.parseErrors,
	}
	if c.sample != nil {
		s := *c.sample
		st.Sample = &s
	}
	return st
}
