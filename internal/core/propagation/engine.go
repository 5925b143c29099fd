// Package propagation keeps every grid-positioned entity canonical and
// resolves each partition's members into transforms relative to that
// partition's floating origin.
//
// A frame runs Canonicalize to completion before Resolve, so resolution only
// ever sees canonical state. Within each phase entities are independent and
// are processed on sharded workers; results are merged in entity order, which
// keeps the outcome independent of scheduling.
package propagation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/observability/log"
	"github.com/zeusync/bigspace/internal/core/partition"
	"github.com/zeusync/bigspace/internal/core/transform"
	"github.com/zeusync/bigspace/pkg/concurrent"
)

var (
	ErrHierarchyCycle = errors.New("transform hierarchy contains a cycle")
	ErrMissingParent  = errors.New("parent entity missing from partition")
)

// Diagnostic is a per-entity (or per-partition when Entity is NoEntity)
// failure isolated from the rest of the frame.
type Diagnostic struct {
	Partition models.PartitionID
	Entity    models.EntityID
	Err       error
}

func (d Diagnostic) Error() string {
	if d.Entity == models.NoEntity {
		return fmt.Sprintf("%s: %v", d.Partition, d.Err)
	}
	return fmt.Sprintf("%s %s: %v", d.Partition, d.Entity, d.Err)
}

func (d Diagnostic) Unwrap() error { return d.Err }

type Engine struct {
	workers int
	logger  log.Log
}

type Option func(*Engine)

// WithWorkers sets the number of shards each phase is split into.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithLogger(l log.Log) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{workers: 1, logger: log.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Workers() int { return e.workers }

type canonUpdate struct {
	id    models.EntityID
	state partition.Spatial
	err   error
}

// Canonicalize folds any out-of-bounds root translation into its grid cell.
// Children carry no cell and are left alone. Overflowing entities are
// clamped and reported; the rest of the partition is unaffected.
func (e *Engine) Canonicalize(ctx context.Context, space partition.Space) ([]Diagnostic, error) {
	ids := space.Entities()
	if len(ids) == 0 {
		return nil, nil
	}
	g := space.Grid()

	shards := concurrent.Shard(ids, e.workers, entityKey)
	results := make([][]canonUpdate, len(shards))
	err := concurrent.ForEach(ctx, shards, e.workers, func(_ context.Context, i int, shard []models.EntityID) error {
		for _, id := range shard {
			s, ok := space.Get(id)
			if !ok || !s.IsRoot() {
				continue
			}
			cell, t, changed, cerr := g.Canonicalize(s.Cell, s.Local.Translation)
			if !changed {
				continue
			}
			s.Cell = cell
			s.Local.Translation = t
			results[i] = append(results[i], canonUpdate{id: id, state: s, err: cerr})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updates := mergeInOrder(ids, results, func(u canonUpdate) models.EntityID { return u.id })
	var diags []Diagnostic
	for _, u := range updates {
		// Only the cell and translation are rewritten, against the state
		// stored at write time, so host edits made meanwhile survive.
		err = space.Update(u.id, func(s *partition.Spatial) {
			if !s.IsRoot() {
				u.err = nil
				return
			}
			s.Cell, s.Local.Translation, _, u.err = g.Canonicalize(s.Cell, s.Local.Translation)
			u.state = *s
		})
		if err != nil {
			diags = append(diags, Diagnostic{Partition: space.ID(), Entity: u.id, Err: err})
			continue
		}
		if u.err != nil {
			e.logger.Debug("canonicalization clamped",
				log.Partition(uint8(space.ID())), log.Entity(uint64(u.id)), log.Cell(u.state.Cell), log.Error(u.err))
			diags = append(diags, Diagnostic{Partition: space.ID(), Entity: u.id, Err: u.err})
		}
	}
	return diags, nil
}

type resolvedEntry struct {
	id  models.EntityID
	t   transform.Transform
	err error
}

// Resolve computes every member's transform relative to the partition's
// origin and publishes the non-excluded ones. A partition without members is
// skipped silently; one without an origin is skipped with a diagnostic.
func (e *Engine) Resolve(ctx context.Context, space partition.Space) ([]Diagnostic, error) {
	ids := space.Entities()
	if len(ids) == 0 {
		return nil, nil
	}
	origin, err := originState(space)
	if err != nil {
		return []Diagnostic{{Partition: space.ID(), Err: err}}, nil
	}

	states := make(map[models.EntityID]partition.Spatial, len(ids))
	for _, id := range ids {
		if s, ok := space.Get(id); ok {
			states[id] = s
		}
	}

	g := space.Grid()
	shards := concurrent.Shard(ids, e.workers, entityKey)
	results := make([][]resolvedEntry, len(shards))
	err = concurrent.ForEach(ctx, shards, e.workers, func(_ context.Context, i int, shard []models.EntityID) error {
		for _, id := range shard {
			s, ok := states[id]
			if !ok || !s.IsRoot() {
				continue
			}
			t, rerr := resolveRoot(g, s, origin)
			results[i] = append(results[i], resolvedEntry{id: id, t: t, err: rerr})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var diags []Diagnostic
	resolved := make(map[models.EntityID]transform.Transform, len(ids))
	for _, r := range mergeInOrder(ids, results, func(r resolvedEntry) models.EntityID { return r.id }) {
		if r.err != nil {
			diags = append(diags, Diagnostic{Partition: space.ID(), Entity: r.id, Err: r.err})
		}
		resolved[r.id] = r.t
	}

	h := hierarchy{states: states, resolved: resolved, failed: make(map[models.EntityID]error)}
	for _, id := range ids {
		if s, ok := states[id]; ok && !s.IsRoot() {
			if _, rerr := h.resolve(id, 0); rerr != nil {
				diags = append(diags, Diagnostic{Partition: space.ID(), Entity: id, Err: rerr})
			}
		}
	}

	out := make(map[models.EntityID]transform.Transform, len(resolved))
	for id, t := range resolved {
		if !space.Excluded(id) {
			out[id] = t
		}
	}
	space.Publish(out)
	return diags, nil
}

// Relative resolves a single member against the partition origin using the
// current stored state, walking up the parent chain for children.
func (e *Engine) Relative(space partition.Space, id models.EntityID) (transform.Transform, error) {
	origin, err := originState(space)
	if err != nil {
		return transform.Transform{}, err
	}
	h := hierarchy{
		states:   make(map[models.EntityID]partition.Spatial),
		resolved: make(map[models.EntityID]transform.Transform),
		failed:   make(map[models.EntityID]error),
	}
	cur := id
	for {
		s, ok := space.Get(cur)
		if !ok {
			if cur == id {
				return transform.Transform{}, fmt.Errorf("%w: %s", partition.ErrEntityNotFound, id)
			}
			return transform.Transform{}, fmt.Errorf("%w: %s", ErrMissingParent, cur)
		}
		if _, seen := h.states[cur]; seen {
			return transform.Transform{}, fmt.Errorf("%w at %s", ErrHierarchyCycle, cur)
		}
		h.states[cur] = s
		if s.IsRoot() {
			t, rerr := resolveRoot(space.Grid(), s, origin)
			if rerr != nil {
				return t, rerr
			}
			h.resolved[cur] = t
			break
		}
		cur = s.Parent
	}
	return h.resolve(id, 0)
}

func originState(space partition.Space) (partition.Spatial, error) {
	originID, err := space.Origin()
	if err != nil {
		return partition.Spatial{}, err
	}
	origin, ok := space.Get(originID)
	if !ok {
		return partition.Spatial{}, fmt.Errorf("%w: designated %s is not a member", partition.ErrNoOrigin, originID)
	}
	if !origin.IsRoot() {
		return partition.Spatial{}, fmt.Errorf("%w: %s", partition.ErrOriginNotGridded, originID)
	}
	return origin, nil
}

func resolveRoot(g grid.Grid, s, origin partition.Spatial) (transform.Transform, error) {
	rel, err := g.RelativeTranslation(s.Cell, s.Local.Translation, origin.Cell, origin.Local.Translation)
	return s.Local.WithTranslation(rel), err
}

// hierarchy resolves children parent-first with memoisation. Depth beyond
// the number of known states can only mean a cycle.
type hierarchy struct {
	states   map[models.EntityID]partition.Spatial
	resolved map[models.EntityID]transform.Transform
	failed   map[models.EntityID]error
}

func (h hierarchy) resolve(id models.EntityID, depth int) (transform.Transform, error) {
	if t, ok := h.resolved[id]; ok {
		return t, nil
	}
	if err, ok := h.failed[id]; ok {
		return transform.Transform{}, err
	}
	s, ok := h.states[id]
	if !ok {
		return transform.Transform{}, fmt.Errorf("%w: %s", ErrMissingParent, id)
	}
	if depth > len(h.states) {
		err := fmt.Errorf("%w at %s", ErrHierarchyCycle, id)
		h.failed[id] = err
		return transform.Transform{}, err
	}
	parent, err := h.resolve(s.Parent, depth+1)
	if err != nil {
		h.failed[id] = err
		return transform.Transform{}, err
	}
	t := parent.Mul(s.Local)
	h.resolved[id] = t
	return t, nil
}

func entityKey(id models.EntityID) uint64 {
	return concurrent.HashUint64(uint64(id))
}

// mergeInOrder flattens per-shard results and orders them by the position of
// their entity in ids.
func mergeInOrder[T any](ids []models.EntityID, shards [][]T, idOf func(T) models.EntityID) []T {
	pos := make(map[models.EntityID]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	var out []T
	for _, shard := range shards {
		out = append(out, shard...)
	}
	sort.Slice(out, func(a, b int) bool {
		return pos[idOf(out[a])] < pos[idOf(out[b])]
	})
	return out
}
