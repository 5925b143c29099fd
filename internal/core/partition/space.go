package partition

import (
	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/transform"
)

// Spatial is the per-(entity, partition) state: a grid cell and a local
// transform that is only meaningful together with that cell.
type Spatial struct {
	Cell  grid.Cell
	Local transform.Transform

	// Parent is NoEntity for grid-positioned roots. Children ignore Cell and
	// are positioned by Local relative to their parent's resolved transform.
	Parent models.EntityID

	// Radius is a bounding radius in local units. The nearest-object query
	// measures to the scaled sphere surface instead of the centre.
	Radius float64

	// Visible marks render-visible entities, the only nearest-object candidates.
	Visible bool
}

// NewSpatial returns a visible root entity at cell with the given transform.
func NewSpatial(cell grid.Cell, local transform.Transform) Spatial {
	return Spatial{Cell: cell, Local: local, Visible: true}
}

// NewChild returns a visible child positioned relative to parent.
func NewChild(parent models.EntityID, local transform.Transform) Spatial {
	return Spatial{Local: local, Parent: parent, Visible: true}
}

func (s Spatial) IsRoot() bool {
	return s.Parent == models.NoEntity
}

// Space is the capability the propagation engine and the camera controller
// need from whatever stores entities. Partition implements it; tests and
// host engines can supply their own.
type Space interface {
	ID() models.PartitionID
	Grid() grid.Grid

	// Entities lists members in a stable order.
	Entities() []models.EntityID
	Get(models.EntityID) (Spatial, bool)

	// Update mutates the stored state of a member in place. Writers touch
	// only the fields they own.
	Update(models.EntityID, func(*Spatial)) error

	// Origin returns the designated floating origin or ErrNoOrigin.
	Origin() (models.EntityID, error)
	Excluded(models.EntityID) bool

	// Publish replaces the resolved relative transforms of the partition.
	Publish(map[models.EntityID]transform.Transform)
}
