package camera

import (
	"errors"
	"fmt"
)

var ErrInvalidSettings = errors.New("invalid camera settings")

// Settings tune the camera controller. Smoothness values are the fraction of
// the remaining velocity gap left after one 1/60 s step: 0 snaps instantly,
// values close to 1 glide.
type Settings struct {
	MinSpeed float64
	MaxSpeed float64

	TranslationSmoothness float64
	RotationSmoothness    float64

	// Speed multiplies the base speed; when Slowing is off it is also the base.
	Speed float64

	// Slowing derives the base speed from the distance to the nearest object,
	// so the camera crawls near surfaces and flies across empty space.
	Slowing bool
}

func DefaultSettings() Settings {
	return Settings{
		MinSpeed:              1e-17,
		MaxSpeed:              1e36,
		TranslationSmoothness: 0.9,
		RotationSmoothness:    0.8,
		Speed:                 1,
		Slowing:               true,
	}
}

func (s Settings) WithSpeedBounds(minSpeed, maxSpeed float64) Settings {
	s.MinSpeed, s.MaxSpeed = minSpeed, maxSpeed
	return s
}

func (s Settings) WithSmoothness(translation, rotation float64) Settings {
	s.TranslationSmoothness, s.RotationSmoothness = translation, rotation
	return s
}

func (s Settings) WithSpeed(speed float64) Settings {
	s.Speed = speed
	return s
}

func (s Settings) WithSlowing(enabled bool) Settings {
	s.Slowing = enabled
	return s
}

func (s Settings) Validate() error {
	switch {
	case !(s.MinSpeed >= 0) || !(s.MaxSpeed >= s.MinSpeed):
		return fmt.Errorf("%w: speed bounds [%g, %g]", ErrInvalidSettings, s.MinSpeed, s.MaxSpeed)
	case !(s.TranslationSmoothness >= 0 && s.TranslationSmoothness < 1):
		return fmt.Errorf("%w: translation smoothness %g outside [0, 1)", ErrInvalidSettings, s.TranslationSmoothness)
	case !(s.RotationSmoothness >= 0 && s.RotationSmoothness < 1):
		return fmt.Errorf("%w: rotation smoothness %g outside [0, 1)", ErrInvalidSettings, s.RotationSmoothness)
	case !(s.Speed > 0):
		return fmt.Errorf("%w: speed %g must be positive", ErrInvalidSettings, s.Speed)
	}
	return nil
}
