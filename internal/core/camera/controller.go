// Package camera moves a partition's floating origin from per-frame input,
// with exponentially smoothed velocity and a speed that adapts to the
// distance of the nearest object.
package camera

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/bigspace/internal/core/partition"
	"github.com/zeusync/bigspace/internal/core/propagation"
)

// referenceRate is the frame rate at which a smoothness value is defined.
const referenceRate = 60.0

var ErrInvalidTimeStep = errors.New("invalid time step")

// Controller drives the origin entity of one partition. It is safe for
// concurrent use; the host writes input while the frame scheduler updates.
type Controller struct {
	engine *propagation.Engine

	mu       sync.RWMutex
	settings Settings
	input    Input
	velocity mgl64.Vec3
	spin     mgl64.Quat
	speed    float64
	nearest  *Nearest
}

func NewController(settings Settings, engine *propagation.Engine) (*Controller, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		engine = propagation.NewEngine()
	}
	return &Controller{
		engine:   engine,
		settings: settings,
		spin:     mgl64.QuatIdent(),
	}, nil
}

func (c *Controller) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

func (c *Controller) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	return nil
}

// SetInput replaces the pending input. It is consumed by the next Update.
func (c *Controller) SetInput(in Input) {
	c.mu.Lock()
	c.input = in.Clamped()
	c.mu.Unlock()
}

// Update integrates one frame of motion into the origin of space. The
// speed is derived from the nearest object found by the previous
// RefreshNearest, matching the order in which a frame observes the world.
func (c *Controller) Update(space partition.Space, dt float64) error {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return fmt.Errorf("%w: %g", ErrInvalidTimeStep, dt)
	}
	originID, err := space.Origin()
	if err != nil {
		return err
	}
	origin, ok := space.Get(originID)
	if !ok {
		return fmt.Errorf("%w: %s", partition.ErrEntityNotFound, originID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	in := c.input
	c.input.Reset()
	s := c.settings

	base := s.Speed
	if s.Slowing && c.nearest != nil {
		base = math.Abs(c.nearest.Distance)
	}
	boost := 0.0
	if in.Boost {
		boost = 1
	}
	c.speed = clamp(base*(s.Speed+boost), s.MinSpeed, s.MaxSpeed)

	dir := mgl64.Vec3{in.Right, in.Up, -in.Forward}
	if dir.Len() > 1 {
		dir = dir.Normalize()
	}
	target := origin.Local.Rotation.Rotate(dir.Mul(c.speed))
	c.velocity = c.velocity.Add(target.Sub(c.velocity).Mul(smoothing(s.TranslationSmoothness, dt)))

	targetSpin := mgl64.AnglesToQuat(in.Pitch*dt, in.Yaw*dt, in.Roll*dt, mgl64.XYZ)
	c.spin = mgl64.QuatSlerp(c.spin, targetSpin, smoothing(s.RotationSmoothness, dt)).Normalize()

	g := space.Grid()
	dCell, dT, moveErr := g.TranslationToGrid(c.velocity.Mul(dt))
	spin := c.spin
	var addErr, canonErr, rootErr error
	err = space.Update(originID, func(s *partition.Spatial) {
		if !s.IsRoot() {
			rootErr = fmt.Errorf("%w: %s", partition.ErrOriginNotGridded, originID)
			return
		}
		cell, err := s.Cell.Add(dCell)
		addErr = err
		s.Cell, s.Local.Translation, _, canonErr = g.Canonicalize(cell, s.Local.Translation.Add(dT))
		s.Local.Rotation = s.Local.Rotation.Mul(spin).Normalize()
	})
	if err != nil {
		return err
	}
	if rootErr != nil {
		return rootErr
	}
	return errors.Join(moveErr, addErr, canonErr)
}

// RefreshNearest recomputes the nearest object for the next Update and for
// telemetry.
func (c *Controller) RefreshNearest(space partition.Space) *Nearest {
	n := FindNearest(space, c.engine)
	c.mu.Lock()
	c.nearest = n
	c.mu.Unlock()
	return copyNearest(n)
}

// Velocity returns the smoothed translational velocity in units per second
// and the rotation applied per frame.
func (c *Controller) Velocity() (mgl64.Vec3, mgl64.Quat) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.velocity, c.spin
}

// Speed is the clamped speed applied by the last Update.
func (c *Controller) Speed() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speed
}

func (c *Controller) NearestObject() *Nearest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyNearest(c.nearest)
}

// Stop zeroes velocity and pending input, e.g. after the origin teleports.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.velocity = mgl64.Vec3{}
	c.spin = mgl64.QuatIdent()
	c.input.Reset()
	c.mu.Unlock()
}

func smoothing(s, dt float64) float64 {
	if s <= 0 {
		return 1
	}
	return clamp(1-math.Pow(s, dt*referenceRate), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func copyNearest(n *Nearest) *Nearest {
	if n == nil {
		return nil
	}
	cp := *n
	return &cp
}
