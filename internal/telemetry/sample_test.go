package telemetry

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rover.control/internal/motion"
)

func TestParseLine_Valid(t *testing.T) {
	tests := []struct {
		name string
		line string
		want RawSample
	}{
		{
			name: "canonical",
			line: "X1=512, Y1=200, X2=512, Y2=512, BTN=OPEN",
			want: RawSample{MotorX: 512, MotorY: 200, ArmX: 512, ArmY: 512, Button: motion.ButtonOpen},
		},
		{
			name: "no spaces",
			line: "X1=0,Y1=1023,X2=1,Y2=2,BTN=CLOSE",
			want: RawSample{MotorX: 0, MotorY: 1023, ArmX: 1, ArmY: 2, Button: motion.ButtonClose},
		},
		{
			name: "leading noise",
			line: "boot ok X1=10, Y1=20, X2=30, Y2=40, BTN=HOLD",
			want: RawSample{MotorX: 10, MotorY: 20, ArmX: 30, ArmY: 40, Button: "HOLD"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLine_NoMatch(t *testing.T) {
	for _, line := range []string{
		"",
		"hello",
		"X1=512, Y1=200, X2=512, BTN=OPEN",
		"X1=-5, Y1=200, X2=512, Y2=512, BTN=OPEN",
		"X1=abc, Y1=200, X2=512, Y2=512, BTN=OPEN",
		"X1=512, Y1=200, X2=512, Y2=512, BTN=",
	} {
		_, err := ParseLine(line)
		require.Error(t, err, "line %q", line)
		assert.True(t, errors.Is(err, ErrNoMatch), "line %q: %v", line, err)

		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, line, pe.Line)
	}
}

func TestParseLine_AxisRange(t *testing.T) {
	_, err := ParseLine("X1=512, Y1=1024, X2=512, Y2=512, BTN=OPEN")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAxisRange))
	assert.False(t, errors.Is(err, ErrNoMatch))

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Y1", pe.Field)
	assert.Contains(t, pe.Error(), "Y1")
}

func TestParseLine_Overflow(t *testing.T) {
	_, err := ParseLine("X1=" + strings.Repeat("9", 40) + ", Y1=1, X2=1, Y2=1, BTN=OPEN")
	require.Error(t, err)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "X1", pe.Field)
}

func TestRawSample_StringRoundTrip(t *testing.T) {
	s := RawSample{MotorX: 1, MotorY: 2, ArmX: 3, ArmY: 4, Button: motion.ButtonClose}
	got, err := ParseLine(s.String())
	require.NoError(t, err)
	assert.Equal(t, s, got)
}
