package camera

import (
	"math"

	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/partition"
	"github.com/zeusync/bigspace/internal/core/propagation"
)

// Nearest is the closest visible object to a partition's origin. Distance is
// measured to the object's scaled bounding sphere and goes negative when the
// origin is inside it.
type Nearest struct {
	Entity   models.EntityID
	Distance float64
}

// FindNearest scans the visible, non-excluded members of space other than the
// origin. Equal distances resolve to the lowest entity id. It returns nil when
// the partition has no origin or no candidate.
func FindNearest(space partition.Space, engine *propagation.Engine) *Nearest {
	originID, err := space.Origin()
	if err != nil {
		return nil
	}

	var best *Nearest
	for _, id := range space.Entities() {
		if id == originID || space.Excluded(id) {
			continue
		}
		s, ok := space.Get(id)
		if !ok || !s.Visible {
			continue
		}
		rel, err := engine.Relative(space, id)
		if err != nil {
			continue
		}
		d := rel.Translation.Len() - s.Radius*rel.MaxScale()
		if math.IsNaN(d) {
			continue
		}
		if best == nil || d < best.Distance || (d == best.Distance && id < best.Entity) {
			best = &Nearest{Entity: id, Distance: d}
		}
	}
	return best
}
