package motion

import "math"

// AxisMax is the largest raw reading an analog axis can report.
const AxisMax = 1023

// axisHysteresis is the margin by which the Y deviation must exceed the X
// deviation for Y to be the dominant axis.
const axisHysteresis = 10

// AxisParams describes the resting position of a stick and the noise radius
// around it.
type AxisParams struct {
	CenterX  int `json:"center_x"`
	CenterY  int `json:"center_y"`
	Deadzone int `json:"deadzone"`
}

// DefaultAxisParams returns the calibration used by the stock thumbstick.
func DefaultAxisParams() AxisParams {
	return AxisParams{CenterX: 512, CenterY: 512, Deadzone: 100}
}

// MaxRange returns the usable deviation beyond the deadzone. A value <= 0
// means the configuration leaves no room for proportional speed.
func (p AxisParams) MaxRange() int {
	return (AxisMax - max(p.CenterX, p.CenterY)) - p.Deadzone
}

// Classify maps a raw (x, y) reading to a direction and a 0–255 speed.
func Classify(x, y int, p AxisParams) (Direction, int) {
	return ClassifyDirection(x, y, p), ClassifySpeed(x, y, p)
}

// ClassifyDirection picks the cardinal direction of a reading. Readings
// inside the deadzone box are Stop.
func ClassifyDirection(x, y int, p AxisParams) Direction {
	dx := x - p.CenterX
	dy := y - p.CenterY

	if abs(dx) <= p.Deadzone && abs(dy) <= p.Deadzone {
		return Stop
	}

	if abs(dy) > abs(dx)+axisHysteresis {
		switch {
		case dy > p.Deadzone:
			return Forward
		case dy < -p.Deadzone:
			return Backward
		}
		return Stop
	}

	switch {
	case dx > p.Deadzone:
		return Left
	case dx < -p.Deadzone:
		return Right
	}
	return Stop
}

// ClassifySpeed scales the larger axis deviation beyond the deadzone onto
// 0–255. Degenerate configurations (MaxRange <= 0) yield 0.
func ClassifySpeed(x, y int, p AxisParams) int {
	maxDev := max(abs(x-p.CenterX), abs(y-p.CenterY))
	if maxDev <= p.Deadzone {
		return 0
	}

	maxRange := p.MaxRange()
	if maxRange <= 0 {
		return 0
	}

	effectiveDev := maxDev - p.Deadzone
	speed := math.Round(float64(effectiveDev) / float64(maxRange) * MaxSpeed)
	return ClampSpeed(int(speed))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
