package camera

import "math"

// Input is one frame's worth of camera intent. Axes are in [-1, 1]; angular
// rates are radians per second around the camera's local axes.
type Input struct {
	Forward float64
	Right   float64
	Up      float64

	Pitch float64
	Yaw   float64
	Roll  float64

	Boost bool
}

// Reset clears the input after it has been consumed by a frame.
func (in *Input) Reset() {
	*in = Input{}
}

// IsZero reports whether the input requests no movement at all.
func (in Input) IsZero() bool {
	return in == Input{}
}

// Clamped returns a copy with the translation axes limited to [-1, 1] and
// non-finite values replaced by zero.
func (in Input) Clamped() Input {
	in.Forward = clampAxis(in.Forward)
	in.Right = clampAxis(in.Right)
	in.Up = clampAxis(in.Up)
	in.Pitch = finite(in.Pitch)
	in.Yaw = finite(in.Yaw)
	in.Roll = finite(in.Roll)
	return in
}

func clampAxis(v float64) float64 {
	return math.Max(-1, math.Min(1, finite(v)))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
