// Package telemetry decodes the line protocol spoken by the thumbstick
// microcontroller.
package telemetry

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/banshee-data/rover.control/internal/motion"
)

var (
	// ErrNoMatch is wrapped by ParseError when a line is not a sample at all.
	// Callers usually drop such lines silently.
	ErrNoMatch = errors.New("line does not match sample format")
	// ErrAxisRange is wrapped by ParseError when an axis reading exceeds
	// motion.AxisMax.
	ErrAxisRange = errors.New("axis reading out of range")
)

// samplePattern matches "X1=123, Y1=456, X2=512, Y2=512, BTN=OPEN".
var samplePattern = regexp.MustCompile(`X1=(\d+),\s*Y1=(\d+),\s*X2=(\d+),\s*Y2=(\d+),\s*BTN=(\w+)`)

var axisNames = [4]string{"X1", "Y1", "X2", "Y2"}

// RawSample is one reading of both sticks and the gripper button.
// X1/Y1 drive the motors, X2/Y2 drive the arm.
type RawSample struct {
	MotorX int                `json:"motor_x"`
	MotorY int                `json:"motor_y"`
	ArmX   int                `json:"arm_x"`
	ArmY   int                `json:"arm_y"`
	Button motion.ButtonState `json:"button"`
}

// ParseError reports a line that could not be decoded.
type ParseError struct {
	Line  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("parse sample %q: %s: %v", e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("parse sample %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseLine decodes a telemetry line. Lines that do not contain a sample
// return a *ParseError wrapping ErrNoMatch.
func ParseLine(line string) (RawSample, error) {
	m := samplePattern.FindStringSubmatch(line)
	if m == nil {
		return RawSample{}, &ParseError{Line: line, Err: ErrNoMatch}
	}

	var axes [4]int
	for i := range axes {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return RawSample{}, &ParseError{Line: line, Field: axisNames[i], Err: err}
		}
		if v > motion.AxisMax {
			return RawSample{}, &ParseError{
				Line:  line,
				Field: axisNames[i],
				Err:   fmt.Errorf("%w: %d > %d", ErrAxisRange, v, motion.AxisMax),
			}
		}
		axes[i] = v
	}

	return RawSample{
		MotorX: axes[0],
		MotorY: axes[1],
		ArmX:   axes[2],
		ArmY:   axes[3],
		Button: motion.ButtonState(m[5]),
	}, nil
}

// String formats the sample in the wire format.
func (s RawSample) String() string {
	return fmt.Sprintf("X1=%d, Y1=%d, X2=%d, Y2=%d, BTN=%s", s.MotorX, s.MotorY, s.ArmX, s.ArmY, s.Button)
}
