package partition

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/transform"
)

var _ Space = (*Partition)(nil)

// Partition is one independent coordinate space: its own members, its own
// floating origin and its own resolved output.
type Partition struct {
	id       models.PartitionID
	grid     grid.Grid
	registry *Registry

	mu       sync.RWMutex
	order    []models.EntityID
	entities map[models.EntityID]*Spatial
	origin   models.EntityID
	resolved map[models.EntityID]transform.Transform

	// frameExcluded is the exclusion snapshot taken by BeginFrame. nil
	// outside a frame, in which case Excluded reads the registry directly.
	frameExcluded map[models.EntityID]struct{}
}

func newPartition(id models.PartitionID, g grid.Grid, registry *Registry) *Partition {
	return &Partition{
		id:       id,
		grid:     g,
		registry: registry,
		entities: make(map[models.EntityID]*Spatial),
		resolved: make(map[models.EntityID]transform.Transform),
	}
}

func (p *Partition) ID() models.PartitionID { return p.id }

func (p *Partition) Grid() grid.Grid { return p.grid }

func (p *Partition) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Spawn adds e with the given state. Children must name a parent that is
// already spawned in this partition.
func (p *Partition) Spawn(e models.EntityID, s Spatial) error {
	if e == models.NoEntity {
		return ErrInvalidEntity
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entities[e]; exists {
		return fmt.Errorf("%w: %s in %s", ErrEntityExists, e, p.id)
	}
	if !s.IsRoot() {
		if _, ok := p.entities[s.Parent]; !ok {
			return fmt.Errorf("%w: parent %s of %s in %s", ErrEntityNotFound, s.Parent, e, p.id)
		}
	}
	s.Local = withUnitDefaults(s.Local)
	state := s
	p.entities[e] = &state
	p.order = append(p.order, e)
	return nil
}

// withUnitDefaults replaces an unset scale and an unset rotation with their
// identities, each on its own.
func withUnitDefaults(t transform.Transform) transform.Transform {
	id := transform.Identity()
	if t.Scale == (mgl64.Vec3{}) {
		t.Scale = id.Scale
	}
	if t.Rotation == (mgl64.Quat{}) {
		t.Rotation = id.Rotation
	}
	return t
}

// Despawn removes e and, recursively, every child parented to it. The
// removed ids are returned parents first. Removing the origin clears the
// designator.
func (p *Partition) Despawn(e models.EntityID) ([]models.EntityID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entities[e]; !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrEntityNotFound, e, p.id)
	}

	removed := []models.EntityID{e}
	drop := map[models.EntityID]struct{}{e: {}}
	for i := 0; i < len(removed); i++ {
		for _, id := range p.order {
			if _, gone := drop[id]; gone {
				continue
			}
			if p.entities[id].Parent == removed[i] {
				drop[id] = struct{}{}
				removed = append(removed, id)
			}
		}
	}

	kept := p.order[:0]
	for _, id := range p.order {
		if _, gone := drop[id]; gone {
			delete(p.entities, id)
			delete(p.resolved, id)
			if p.origin == id {
				p.origin = models.NoEntity
			}
			continue
		}
		kept = append(kept, id)
	}
	p.order = kept
	return removed, nil
}

func (p *Partition) Has(e models.EntityID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entities[e]
	return ok
}

func (p *Partition) Get(e models.EntityID) (Spatial, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.entities[e]
	if !ok {
		return Spatial{}, false
	}
	return *s, true
}

// Set overwrites the state of an existing member.
func (p *Partition) Set(e models.EntityID, s Spatial) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.entities[e]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrEntityNotFound, e, p.id)
	}
	if e == p.origin && !s.IsRoot() {
		return fmt.Errorf("%w: %s", ErrOriginNotGridded, e)
	}
	*cur = s
	return nil
}

// Update applies fn to the stored state of e under the partition lock.
func (p *Partition) Update(e models.EntityID, fn func(*Spatial)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.entities[e]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrEntityNotFound, e, p.id)
	}
	fn(cur)
	return nil
}

func (p *Partition) SetVisible(e models.EntityID, visible bool) error {
	return p.Update(e, func(s *Spatial) { s.Visible = visible })
}

func (p *Partition) Entities() []models.EntityID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.EntityID, len(p.order))
	copy(out, p.order)
	return out
}

// Children lists the direct children of e in spawn order.
func (p *Partition) Children(e models.EntityID) []models.EntityID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []models.EntityID
	for _, id := range p.order {
		if p.entities[id].Parent == e {
			out = append(out, id)
		}
	}
	return out
}

// DesignateOrigin marks e as the floating origin. A partition holds exactly
// one designator; naming a second, different entity fails with
// ErrMultipleOrigins. Re-designating the current origin is a no-op.
func (p *Partition) DesignateOrigin(e models.EntityID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.origin != models.NoEntity && p.origin != e {
		return fmt.Errorf("%w: %s holds %s, refused %s", ErrMultipleOrigins, p.id, p.origin, e)
	}
	return p.designateLocked(e)
}

// Redesignate moves the origin designator to e in one step.
func (p *Partition) Redesignate(e models.EntityID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.designateLocked(e)
}

func (p *Partition) designateLocked(e models.EntityID) error {
	s, ok := p.entities[e]
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrEntityNotFound, e, p.id)
	}
	if !s.IsRoot() {
		return fmt.Errorf("%w: %s", ErrOriginNotGridded, e)
	}
	p.origin = e
	return nil
}

func (p *Partition) ReleaseOrigin() {
	p.mu.Lock()
	p.origin = models.NoEntity
	p.mu.Unlock()
}

func (p *Partition) Origin() (models.EntityID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.origin == models.NoEntity {
		return models.NoEntity, fmt.Errorf("%w: %s", ErrNoOrigin, p.id)
	}
	return p.origin, nil
}

// Active reports whether the partition has a floating origin.
func (p *Partition) Active() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.origin != models.NoEntity
}

func (p *Partition) Excluded(e models.EntityID) bool {
	p.mu.RLock()
	snapshot := p.frameExcluded
	p.mu.RUnlock()
	if snapshot != nil {
		_, ok := snapshot[e]
		return ok
	}
	return p.registry != nil && p.registry.Excluded(e, p.id)
}

// BeginFrame freezes the exclusion set for the duration of a frame so that
// toggles made meanwhile apply from the next frame on.
func (p *Partition) BeginFrame() {
	snapshot := make(map[models.EntityID]struct{})
	for _, e := range p.Entities() {
		if p.registry != nil && p.registry.Excluded(e, p.id) {
			snapshot[e] = struct{}{}
		}
	}
	p.mu.Lock()
	p.frameExcluded = snapshot
	p.mu.Unlock()
}

func (p *Partition) EndFrame() {
	p.mu.Lock()
	p.frameExcluded = nil
	p.mu.Unlock()
}

func (p *Partition) Publish(resolved map[models.EntityID]transform.Transform) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = make(map[models.EntityID]transform.Transform, len(resolved))
	for id, t := range resolved {
		if _, ok := p.entities[id]; ok {
			p.resolved[id] = t
		}
	}
}

// Resolved returns the last published relative transform of e.
func (p *Partition) Resolved(e models.EntityID) (transform.Transform, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.resolved[e]
	return t, ok
}

func (p *Partition) ResolvedAll() map[models.EntityID]transform.Transform {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[models.EntityID]transform.Transform, len(p.resolved))
	for id, t := range p.resolved {
		out[id] = t
	}
	return out
}

func (p *Partition) ResolvedLen() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.resolved)
}
