package car

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rover.control/internal/dispatch"
	"github.com/banshee-data/rover.control/internal/motion"
	"github.com/banshee-data/rover.control/internal/timeutil"
)

type fakeSender struct {
	mu   sync.Mutex
	cmds []motion.MotionCommand
}

func (f *fakeSender) Dispatch(cmd motion.MotionCommand) dispatch.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return dispatch.Record{Command: cmd}
}

func (f *fakeSender) sent() []motion.MotionCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]motion.MotionCommand(nil), f.cmds...)
}

func (f *fakeSender) waitLen(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.sent()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("got %d commands, want %d", len(f.sent()), n)
}

func newTestController(t *testing.T, speed int) (*Controller, *fakeSender, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sender := &fakeSender{}
	c := New(sender, timeutil.NewPeriodic(clock), nil, Config{Speed: &speed})
	t.Cleanup(c.EmergencyStop)
	return c, sender, clock
}

func motor(dir motion.Direction, speed int) motion.MotionCommand {
	return motion.MotorCommand(dir, speed)
}

func TestController_Moves(t *testing.T) {
	c, s, _ := newTestController(t, 180)

	c.MoveForward()
	c.TurnLeft()
	c.TurnRight()
	c.MoveBackward()
	c.Stop()

	want := []motion.MotionCommand{
		motor(motion.Forward, 180),
		motor(motion.Left, 180),
		motor(motion.Right, 180),
		motor(motion.Backward, 180),
		motor(motion.Stop, 0),
	}
	if diff := cmp.Diff(want, s.sent()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Idle, c.Status().State)
}

func TestController_Defaults(t *testing.T) {
	c := New(&fakeSender{}, nil, nil, Config{})
	assert.Equal(t, DefaultSpeed, c.Speed())
	assert.Equal(t, DefaultInterval, c.interval)

	neg := -5
	c = New(&fakeSender{}, nil, nil, Config{Speed: &neg})
	assert.Equal(t, 0, c.Speed())
}

func TestController_Oscillation(t *testing.T) {
	c, s, clock := newTestController(t, 200)

	c.StartOscillation()
	st := c.Status()
	assert.Equal(t, Oscillating, st.State)
	assert.True(t, st.Armed)

	for i := 2; i <= 4; i++ {
		clock.Advance(time.Second)
		s.waitLen(t, i)
	}

	want := []motion.MotionCommand{
		motor(motion.Forward, 200),
		motor(motion.Backward, 200),
		motor(motion.Forward, 200),
		motor(motion.Backward, 200),
	}
	if diff := cmp.Diff(want, s.sent()); diff != "" {
		t.Errorf("oscillation mismatch (-want +got):\n%s", diff)
	}
}

func TestController_MoveCancelsOscillation(t *testing.T) {
	c, s, clock := newTestController(t, 100)

	c.StartOscillation()
	c.TurnLeft()
	assert.False(t, c.Status().Armed)
	assert.Equal(t, Moving, c.Status().State)

	clock.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	want := []motion.MotionCommand{motor(motion.Forward, 100), motor(motion.Left, 100)}
	assert.Equal(t, want, s.sent())
}

func TestController_StaleTickDropped(t *testing.T) {
	c, s, _ := newTestController(t, 100)

	c.StartOscillation()
	c.mu.Lock()
	stale := c.gen
	c.mu.Unlock()

	c.StartOscillation()
	c.tick(stale)

	// Two starts, no reversal from the stale generation.
	assert.Equal(t, []motion.MotionCommand{motor(motion.Forward, 100), motor(motion.Forward, 100)}, s.sent())

	c.Stop()
	c.tick(stale + 1)
	assert.Len(t, s.sent(), 3)
}

func TestController_EmergencyStop(t *testing.T) {
	c, s, clock := newTestController(t, 255)

	c.EmergencyStop()
	c.StartOscillation()
	c.EmergencyStop()

	clock.Advance(3 * time.Second)
	time.Sleep(20 * time.Millisecond)

	want := []motion.MotionCommand{motor(motion.Stop, 0), motor(motion.Forward, 255), motor(motion.Stop, 0)}
	assert.Equal(t, want, s.sent())
	st := c.Status()
	assert.Equal(t, Idle, st.State)
	assert.False(t, st.Armed)
}

func TestController_SetSpeed(t *testing.T) {
	obs := dispatch.NewObservers()
	var speeds []int
	obs.Register(dispatch.ObserverFuncs{OnSpeed: func(s int) { speeds = append(speeds, s) }})

	sender := &fakeSender{}
	c := New(sender, nil, obs, Config{})

	c.SetSpeed(120)
	c.SetSpeed(120)
	c.SetSpeed(900)
	c.SetSpeed(-1)

	assert.Equal(t, []int{120, 255, 0}, speeds)
	assert.Empty(t, sender.sent(), "SetSpeed must not dispatch")

	c.SetSpeed(60)
	c.MoveForward()
	assert.Equal(t, []motion.MotionCommand{motor(motion.Forward, 60)}, sender.sent())
}

func TestController_DriveAndDo(t *testing.T) {
	c, s, _ := newTestController(t, 50)

	c.Drive(motion.Right)
	c.Drive(motion.Stop)
	require.NoError(t, c.Do("Forward"))
	require.NoError(t, c.Do("emergency-stop"))
	assert.Error(t, c.Do("sideways"))

	want := []motion.MotionCommand{
		motor(motion.Right, 50),
		motor(motion.Stop, 0),
		motor(motion.Forward, 50),
		motor(motion.Stop, 0),
	}
	assert.Equal(t, want, s.sent())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "oscillating", Oscillating.String())
	b, err := Moving.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "moving", string(b))
	assert.Equal(t, "state(9)", State(9).String())

	var st State
	require.NoError(t, st.UnmarshalText([]byte("oscillating")))
	assert.Equal(t, Oscillating, st)
	assert.Error(t, st.UnmarshalText([]byte("flying")))
}
