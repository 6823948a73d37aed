package motion

import (
	"encoding/json"
	"fmt"
)

// MaxSpeed is the top of the 0–255 speed scale.
const MaxSpeed = 255

// DefaultArmSpeed is the fixed speed sent with any non-stop arm command.
const DefaultArmSpeed = 200

// MotionCommand is a single command for one channel. Speed is proportional
// only on the motor channel; arm commands carry a fixed speed and gripper
// commands carry Grip with speed 0.
type MotionCommand struct {
	Channel   Channel
	Direction Direction
	Speed     int
	Grip      Grip
}

// MotorCommand builds a motor command with speed clamped to [0, MaxSpeed].
func MotorCommand(dir Direction, speed int) MotionCommand {
	if dir == Stop {
		speed = 0
	}
	return MotionCommand{Channel: Motor, Direction: dir, Speed: ClampSpeed(speed)}
}

// ArmCommand builds an arm command using armSpeed for any non-stop direction.
func ArmCommand(dir Direction, armSpeed int) MotionCommand {
	speed := 0
	if dir != Stop {
		speed = ClampSpeed(armSpeed)
	}
	return MotionCommand{Channel: Arm, Direction: dir, Speed: speed}
}

// GripperCommand builds a gripper command.
func GripperCommand(g Grip) MotionCommand {
	return MotionCommand{Channel: Gripper, Grip: g}
}

// Action returns the word sent on the wire in the "direction" field.
func (c MotionCommand) Action() string {
	if c.Channel == Gripper {
		return c.Grip.String()
	}
	return c.Direction.String()
}

// Active reports whether the command leaves the channel moving (or, for the
// gripper, closed).
func (c MotionCommand) Active() bool {
	if c.Channel == Gripper {
		return c.Grip == GripClose
	}
	return c.Direction != Stop
}

// MarshalJSON encodes the command as {"channel", "action", "speed"}.
func (c MotionCommand) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Channel string `json:"channel"`
		Action  string `json:"action"`
		Speed   int    `json:"speed"`
	}{c.Channel.String(), c.Action(), c.Speed})
}

func (c MotionCommand) String() string {
	return fmt.Sprintf("%s %s speed=%d", c.Channel, c.Action(), c.Speed)
}

// ClampSpeed bounds v to [0, MaxSpeed].
func ClampSpeed(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxSpeed {
		return MaxSpeed
	}
	return v
}
