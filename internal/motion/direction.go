// Package motion turns thumbstick axis readings into discrete drive, arm and
// gripper commands and decides which of them are worth sending.
package motion

import (
	"fmt"
	"strings"
)

// Direction is a cardinal motion direction.
type Direction int

const (
	Stop Direction = iota
	Forward
	Backward
	Left
	Right
)

var directionNames = [...]string{
	Stop:     "stop",
	Forward:  "forward",
	Backward: "backward",
	Left:     "left",
	Right:    "right",
}

// String returns the wire name of the direction.
func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// Opposite returns the reverse of Forward/Backward and Left/Right.
// Stop is its own opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case Forward:
		return Backward
	case Backward:
		return Forward
	case Left:
		return Right
	case Right:
		return Left
	default:
		return Stop
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	v, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDirection parses a wire name, ignoring case and surrounding space.
func ParseDirection(s string) (Direction, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range directionNames {
		if n == name {
			return Direction(i), nil
		}
	}
	return Stop, fmt.Errorf("unknown direction %q", s)
}

// Channel is an independent control surface with its own endpoint and
// debounce state.
type Channel int

const (
	Motor Channel = iota
	Arm
	Gripper
)

// Channels lists every channel in dispatch order.
var Channels = []Channel{Motor, Arm, Gripper}

func (c Channel) String() string {
	switch c {
	case Motor:
		return "motor"
	case Arm:
		return "arm"
	case Gripper:
		return "gripper"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Endpoint returns the vehicle endpoint path that serves the channel.
func (c Channel) Endpoint() string {
	if c == Motor {
		return "/control"
	}
	return "/arm"
}

// ButtonState is the raw gripper button token reported by the thumbstick.
type ButtonState string

const (
	ButtonOpen  ButtonState = "OPEN"
	ButtonClose ButtonState = "CLOSE"
)

// Grip maps the button token onto a gripper action: CLOSE closes, anything
// else opens.
func (b ButtonState) Grip() Grip {
	if b == ButtonClose {
		return GripClose
	}
	return GripOpen
}

// Grip is a gripper action.
type Grip int

const (
	GripOpen Grip = iota
	GripClose
)

func (g Grip) String() string {
	if g == GripClose {
		return "close"
	}
	return "open"
}

// ParseGrip parses "open" or "close", ignoring case.
func ParseGrip(s string) (Grip, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return GripOpen, nil
	case "close":
		return GripClose, nil
	default:
		return GripOpen, fmt.Errorf("unknown gripper action %q", s)
	}
}
