package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rover.control/internal/motion"
	"github.com/banshee-data/rover.control/internal/timeutil"
	"github.com/banshee-data/rover.control/internal/transport"
)

type events struct {
	connectivity []bool
	commands     []motion.MotionCommand
	dispatched   []Record
	failed       []error
	speeds       []int
	raw          []string
}

type recorder struct {
	mu sync.Mutex
	events
}

func (r *recorder) observer() ObserverFuncs {
	return ObserverFuncs{
		OnConnectivity: func(c bool) { r.mu.Lock(); r.connectivity = append(r.connectivity, c); r.mu.Unlock() },
		OnCommand:      func(c motion.MotionCommand) { r.mu.Lock(); r.commands = append(r.commands, c); r.mu.Unlock() },
		OnSpeed:        func(s int) { r.mu.Lock(); r.speeds = append(r.speeds, s); r.mu.Unlock() },
		OnRawData:      func(l string) { r.mu.Lock(); r.raw = append(r.raw, l); r.mu.Unlock() },
		OnDispatched:   func(rec Record) { r.mu.Lock(); r.dispatched = append(r.dispatched, rec); r.mu.Unlock() },
		OnFailed:       func(_ Record, err error) { r.mu.Lock(); r.failed = append(r.failed, err); r.mu.Unlock() },
	}
}

func (r *recorder) snapshot() events {
	r.mu.Lock()
	defer r.mu.Unlock()
	return events{
		connectivity: append([]bool(nil), r.connectivity...),
		commands:     append([]motion.MotionCommand(nil), r.commands...),
		dispatched:   append([]Record(nil), r.dispatched...),
		failed:       append([]error(nil), r.failed...),
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *transport.MockTransport, *recorder) {
	t.Helper()
	mt := transport.NewMockTransport()
	rec := &recorder{}
	obs := NewObservers()
	obs.Register(rec.observer())
	clock := timeutil.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	d := New(mt, obs, Config{Source: "test", Clock: clock})
	t.Cleanup(d.Close)
	return d, mt, rec
}

func TestDispatch_Success(t *testing.T) {
	d, mt, rec := newTestDispatcher(t)

	cmd := motion.MotorCommand(motion.Forward, 120)
	r := d.Dispatch(cmd)
	d.Wait()

	assert.Equal(t, "test", r.Source)
	assert.NotEqual(t, [16]byte{}, [16]byte(r.ID))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), r.At)

	if diff := cmp.Diff([]motion.MotionCommand{cmd}, mt.Sent()); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}

	got := rec.snapshot()
	assert.Equal(t, []bool{true}, got.connectivity)
	assert.Equal(t, []motion.MotionCommand{cmd}, got.commands)
	require.Len(t, got.dispatched, 1)
	assert.Equal(t, r.ID, got.dispatched[0].ID)
	assert.Empty(t, got.failed)

	assert.True(t, d.Connected())
	last, ok := d.Last(motion.Motor)
	assert.True(t, ok)
	assert.Equal(t, cmd, last)
	_, ok = d.Last(motion.Arm)
	assert.False(t, ok)

	assert.Equal(t, Stats{Dispatched: 1, Succeeded: 1}, d.Stats())
}

func TestDispatch_FailureFlipsConnectivityOnce(t *testing.T) {
	d, mt, rec := newTestDispatcher(t)

	d.Dispatch(motion.MotorCommand(motion.Forward, 50))
	d.Wait()

	mt.Err = errors.New("unreachable")
	d.Dispatch(motion.MotorCommand(motion.Left, 50))
	d.Wait()
	d.Dispatch(motion.MotorCommand(motion.Right, 50))
	d.Wait()

	got := rec.snapshot()
	assert.Equal(t, []bool{true, false}, got.connectivity)
	require.Len(t, got.failed, 2)
	assert.ErrorIs(t, got.failed[0], mt.Err)
	assert.False(t, d.Connected())

	// The failed command still counts as the channel's last command.
	last, _ := d.Last(motion.Motor)
	assert.Equal(t, motion.Right, last.Direction)
	assert.Equal(t, uint64(2), d.Stats().Failed)
}

func TestDispatch_DoesNotBlockOnTransport(t *testing.T) {
	d, mt, _ := newTestDispatcher(t)
	mt.Block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		d.Dispatch(motion.ArmCommand(motion.Left, 200))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on transport")
	}
	assert.Equal(t, 1, d.Stats().InFlight)

	close(mt.Block)
	d.Wait()
	assert.Equal(t, 0, d.Stats().InFlight)
}

func TestDispatch_CloseAbortsInFlight(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.Block = make(chan struct{})
	d := New(mt, nil, Config{})

	d.Dispatch(motion.MotorCommand(motion.Forward, 1))
	d.Close()

	assert.Equal(t, uint64(1), d.Stats().Failed)
	assert.Equal(t, DefaultSource, d.Source())
}

func TestObservers_RegisterUnregister(t *testing.T) {
	obs := NewObservers()
	var order []int
	id1 := obs.Register(ObserverFuncs{OnSpeed: func(int) { order = append(order, 1) }})
	obs.Register(ObserverFuncs{OnSpeed: func(int) { order = append(order, 2) }})
	obs.Register(ObserverFuncs{})

	obs.SpeedChanged(10)
	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, 3, obs.Len())

	obs.Unregister(id1)
	order = nil
	obs.SpeedChanged(20)
	assert.Equal(t, []int{2}, order)

	var nilObs *Observers
	nilObs.RawDataReceived("ignored")
	assert.Equal(t, 0, nilObs.Len())

	var zero Observers
	zero.Register(ObserverFuncs{})
	assert.Equal(t, 1, zero.Len())
}
