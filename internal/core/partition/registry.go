package partition

import (
	"fmt"
	"sync"

	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/models"
)

// Registry owns the fixed set of partitions configured at setup and the
// per-entity exclusion sets that span them.
type Registry struct {
	partitions []*Partition

	mu         sync.RWMutex
	exclusions map[models.EntityID]models.PartitionSet
}

// NewRegistry builds count partitions sharing the same cell geometry.
func NewRegistry(count int, g grid.Grid) (*Registry, error) {
	if count < 1 || count > models.MaxPartitions {
		return nil, fmt.Errorf("%w: count %d outside [1, %d]", ErrUnknownPartition, count, models.MaxPartitions)
	}
	r := &Registry{
		partitions: make([]*Partition, count),
		exclusions: make(map[models.EntityID]models.PartitionSet),
	}
	for i := range r.partitions {
		r.partitions[i] = newPartition(models.PartitionID(i), g, r)
	}
	return r, nil
}

func (r *Registry) Count() int { return len(r.partitions) }

func (r *Registry) Partition(id models.PartitionID) (*Partition, error) {
	if int(id) >= len(r.partitions) {
		return nil, fmt.Errorf("%w: %d of %d", ErrUnknownPartition, id, len(r.partitions))
	}
	return r.partitions[id], nil
}

// Partitions returns every partition ordered by id.
func (r *Registry) Partitions() []*Partition {
	out := make([]*Partition, len(r.partitions))
	copy(out, r.partitions)
	return out
}

// Memberships lists the partitions e is spawned in.
func (r *Registry) Memberships(e models.EntityID) models.PartitionSet {
	var s models.PartitionSet
	for _, p := range r.partitions {
		if p.Has(e) {
			s = s.With(p.id)
		}
	}
	return s
}

// Despawn removes e from every partition it belongs to and drops its
// exclusion entry. The returned map holds the ids removed per partition.
func (r *Registry) Despawn(e models.EntityID) map[models.PartitionID][]models.EntityID {
	out := make(map[models.PartitionID][]models.EntityID)
	for _, p := range r.partitions {
		if !p.Has(e) {
			continue
		}
		removed, err := p.Despawn(e)
		if err == nil {
			out[p.id] = removed
		}
	}
	r.mu.Lock()
	for _, removed := range out {
		for _, id := range removed {
			if r.Memberships(id).IsEmpty() {
				delete(r.exclusions, id)
			}
		}
	}
	delete(r.exclusions, e)
	r.mu.Unlock()
	return out
}

func (r *Registry) checkID(id models.PartitionID) error {
	if int(id) >= len(r.partitions) {
		return fmt.Errorf("%w: %d of %d", ErrUnknownPartition, id, len(r.partitions))
	}
	return nil
}

// Exclude hides e from partition p's resolution and nearest-object scan.
func (r *Registry) Exclude(e models.EntityID, p models.PartitionID) error {
	if err := r.checkID(p); err != nil {
		return err
	}
	r.mu.Lock()
	r.exclusions[e] = r.exclusions[e].With(p)
	r.mu.Unlock()
	return nil
}

// Include reverses Exclude.
func (r *Registry) Include(e models.EntityID, p models.PartitionID) error {
	if err := r.checkID(p); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.exclusions[e].Without(p)
	if s.IsEmpty() {
		delete(r.exclusions, e)
		return nil
	}
	r.exclusions[e] = s
	return nil
}

// ExcludeAllExcept keeps e visible to partition keep only. Typical for a
// camera or a per-view object in a split-screen setup.
func (r *Registry) ExcludeAllExcept(e models.EntityID, keep models.PartitionID) error {
	if err := r.checkID(keep); err != nil {
		return err
	}
	r.mu.Lock()
	r.exclusions[e] = models.AllPartitions(len(r.partitions)).Without(keep)
	r.mu.Unlock()
	return nil
}

// ExcludeAll hides e from every partition, e.g. overlay or UI entities.
func (r *Registry) ExcludeAll(e models.EntityID) {
	r.mu.Lock()
	r.exclusions[e] = models.AllPartitions(len(r.partitions))
	r.mu.Unlock()
}

func (r *Registry) Excluded(e models.EntityID, p models.PartitionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exclusions[e].Has(p)
}

// Exclusions returns the exclusion set of e.
func (r *Registry) Exclusions(e models.EntityID) models.PartitionSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exclusions[e]
}
