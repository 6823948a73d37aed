package motion

// DefaultSignificantSpeedChange is the smallest motor speed delta that is
// forwarded while the direction stays the same.
const DefaultSignificantSpeedChange = 20

// DebounceConfig tunes the Debouncer.
type DebounceConfig struct {
	SignificantSpeedChange int
	ArmSpeed               int
}

// DefaultDebounceConfig returns the stock thresholds.
func DefaultDebounceConfig() DebounceConfig {
	return DebounceConfig{
		SignificantSpeedChange: DefaultSignificantSpeedChange,
		ArmSpeed:               DefaultArmSpeed,
	}
}

// DebounceState is the last dispatched value on one channel.
type DebounceState struct {
	Direction Direction
	Speed     int
	Button    ButtonState
}

// Debouncer gates classified commands per channel so that only material
// changes reach the transport. It is not safe for concurrent use; callers
// serialize access.
type Debouncer struct {
	cfg   DebounceConfig
	state [3]DebounceState
}

// NewDebouncer returns a Debouncer with every channel at rest.
func NewDebouncer(cfg DebounceConfig) *Debouncer {
	if cfg.SignificantSpeedChange <= 0 {
		cfg.SignificantSpeedChange = DefaultSignificantSpeedChange
	}
	if cfg.ArmSpeed <= 0 {
		cfg.ArmSpeed = DefaultArmSpeed
	}
	d := &Debouncer{cfg: cfg}
	d.Reset()
	return d
}

// Config returns the thresholds in use.
func (d *Debouncer) Config() DebounceConfig {
	return d.cfg
}

// Reset returns every channel to Stop / OPEN without emitting anything.
func (d *Debouncer) Reset() {
	for i := range d.state {
		d.state[i] = DebounceState{Direction: Stop, Button: ButtonOpen}
	}
}

// State returns the last dispatched value for ch.
func (d *Debouncer) State(ch Channel) DebounceState {
	return d.state[ch]
}

// Motor gates a classified motor reading. The command is accepted when the
// direction differs from the last dispatched one, when the speed moved by at
// least SignificantSpeedChange, or when it is a transition into Stop.
func (d *Debouncer) Motor(dir Direction, speed int) (MotionCommand, bool) {
	cmd := MotorCommand(dir, speed)
	last := &d.state[Motor]

	changed := cmd.Direction != last.Direction ||
		abs(cmd.Speed-last.Speed) >= d.cfg.SignificantSpeedChange ||
		(cmd.Direction == Stop && last.Direction != Stop)
	if !changed {
		return MotionCommand{}, false
	}

	last.Direction = cmd.Direction
	last.Speed = cmd.Speed
	return cmd, true
}

// Arm gates a classified arm reading. Only direction changes are accepted.
func (d *Debouncer) Arm(dir Direction) (MotionCommand, bool) {
	last := &d.state[Arm]
	if dir == last.Direction {
		return MotionCommand{}, false
	}

	cmd := ArmCommand(dir, d.cfg.ArmSpeed)
	last.Direction = cmd.Direction
	last.Speed = cmd.Speed
	return cmd, true
}

// Gripper gates a button reading. Any change of the raw token is accepted.
func (d *Debouncer) Gripper(btn ButtonState) (MotionCommand, bool) {
	last := &d.state[Gripper]
	if btn == last.Button {
		return MotionCommand{}, false
	}

	last.Button = btn
	return GripperCommand(btn.Grip()), true
}

// Settle forces every active channel back to rest and returns the commands
// that must be sent to get there, in channel order. Channels already at rest
// produce nothing, so a second call returns an empty slice.
func (d *Debouncer) Settle() []MotionCommand {
	var out []MotionCommand

	if d.state[Motor].Direction != Stop {
		d.state[Motor] = DebounceState{Direction: Stop}
		out = append(out, MotorCommand(Stop, 0))
	}
	if d.state[Arm].Direction != Stop {
		d.state[Arm] = DebounceState{Direction: Stop}
		out = append(out, ArmCommand(Stop, d.cfg.ArmSpeed))
	}
	if d.state[Gripper].Button.Grip() != GripOpen {
		d.state[Gripper] = DebounceState{Direction: Stop, Button: ButtonOpen}
		out = append(out, GripperCommand(GripOpen))
	}

	return out
}
