package main

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/partition"
	"github.com/zeusync/bigspace/internal/core/system"
	"github.com/zeusync/bigspace/internal/core/transform"
)

const (
	minExponent = -16
	maxExponent = 27

	// sphereRadius is the unscaled radius of every sphere; scale gives the
	// diameter.
	sphereRadius = 0.5

	// Each partition owns a block of entity ids.
	idsPerPartition = 1000
)

func cameraID(p models.PartitionID) models.EntityID {
	return models.EntityID(uint64(p)*idsPerPartition + 1)
}

func sphereID(p models.PartitionID, i int) models.EntityID {
	return models.EntityID(uint64(p)*idsPerPartition + 2 + uint64(i-minExponent))
}

// spherePositions returns the centre and diameter of every sphere of the
// scene: one per power of ten, each placed just past the previous one on +X.
func spherePositions() (centres []float64, diameters []float64) {
	x := 0.0
	for i := minExponent; i <= maxExponent; i++ {
		j := math.Pow(10, float64(i))
		k := math.Pow(10, float64(i-1))
		x += j/2 + k
		centres = append(centres, x)
		diameters = append(diameters, j)
	}
	return centres, diameters
}

// setupScene gives every partition its own camera and spheres. Each camera
// is spawned into every partition but excluded from all except its own, so a
// partition only ever resolves against its own origin.
func setupScene(w *system.World) error {
	count := w.PartitionCount()
	centres, diameters := spherePositions()

	for i := 0; i < count; i++ {
		p := models.PartitionID(i)
		camTransform := transform.FromXYZ(0, 0, 8).LookingAt(mgl64.Vec3{}, mgl64.Vec3{0, 1, 0})
		for j := 0; j < count; j++ {
			s := partition.NewSpatial(grid.Cell{}, camTransform)
			s.Visible = false
			if err := w.Spawn(models.PartitionID(j), cameraID(p), s); err != nil {
				return fmt.Errorf("spawn camera %d: %w", i, err)
			}
		}
		if err := w.ExcludeAllExcept(cameraID(p), p); err != nil {
			return err
		}
		if err := w.DesignateOrigin(p, cameraID(p)); err != nil {
			return err
		}

		for n := range centres {
			cell, t, err := w.Grid().TranslationToGrid(mgl64.Vec3{centres[n], 0, 0})
			if err != nil {
				return err
			}
			local := transform.FromScale(mgl64.Vec3{diameters[n], diameters[n], diameters[n]}).WithTranslation(t)
			s := partition.NewSpatial(cell, local)
			s.Radius = sphereRadius
			if err = w.Spawn(p, sphereID(p, minExponent+n), s); err != nil {
				return fmt.Errorf("spawn sphere 1e%d: %w", minExponent+n, err)
			}
		}
	}
	return nil
}

type fact struct {
	size float64
	what string
}

var facts = []fact{
	{8.8e26, "diameter of the observable universe"},
	{9e25, "length of the Hercules-Corona Borealis Great Wall"},
	{1e24, "diameter of the Local Supercluster"},
	{9e22, "diameter of the Local Group"},
	{1e21, "diameter of the Milky Way galaxy"},
	{5e16, "length of the Pillars of Creation"},
	{1.8e14, "diameter of Messier 87"},
	{7e12, "diameter of Pluto's orbit"},
	{24e9, "diameter of Sagittarius A"},
	{1.4e9, "diameter of the Sun"},
	{1.4e8, "diameter of Jupiter"},
	{12e6, "diameter of Earth"},
	{3e6, "diameter of the Moon"},
	{9e3, "height of Mt. Everest"},
	{3.8e2, "height of the Empire State Building"},
	{2.5e1, "length of a train car"},
	{1.8, "height of a human"},
	{1e-1, "size of a cat"},
	{1e-2, "size of a mouse"},
	{1e-3, "size of an insect"},
	{1e-4, "diameter of a eukaryotic cell"},
	{1e-5, "width of a human hair"},
	{1e-6, "diameter of a bacteria"},
	{5e-8, "size of a phage"},
	{5e-9, "size of a transistor"},
	{1e-10, "diameter of a carbon atom"},
	{4e-11, "diameter of a hydrogen atom"},
	{4e-12, "diameter of an electron"},
	{1.9e-15, "diameter of a proton"},
}

// closestFact returns the reference object whose size is nearest to
// diameter.
func closestFact(diameter float64) fact {
	best := facts[0]
	for _, f := range facts[1:] {
		if math.Abs(f.size-diameter) < math.Abs(best.size-diameter) {
			best = f
		}
	}
	return best
}
