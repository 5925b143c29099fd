// Package system wires partitions, the propagation engine and one camera
// controller per partition into a World that the host advances frame by
// frame.
package system

import (
	"context"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/bigspace/internal/core/camera"
	"github.com/zeusync/bigspace/internal/core/config"
	"github.com/zeusync/bigspace/internal/core/events/bus"
	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/observability/log"
	"github.com/zeusync/bigspace/internal/core/partition"
	"github.com/zeusync/bigspace/internal/core/propagation"
	"github.com/zeusync/bigspace/internal/core/transform"
)

const defaultSource = "world"

// CameraTelemetry is a read-only view of one partition's camera and origin.
type CameraTelemetry struct {
	Partition         models.PartitionID
	Active            bool
	Origin            models.EntityID
	Velocity          mgl64.Vec3
	Spin              mgl64.Quat
	Speed             float64
	Nearest           *camera.Nearest
	OriginCell        grid.Cell
	OriginTranslation mgl64.Vec3
}

type Option func(*options)

type options struct {
	source  string
	cameras map[models.PartitionID]camera.Settings
}

// WithSource sets the Source of every event the world publishes.
func WithSource(name string) Option {
	return func(o *options) {
		if name != "" {
			o.source = name
		}
	}
}

// WithCameraSettings overrides the configured camera settings of one
// partition.
func WithCameraSettings(p models.PartitionID, s camera.Settings) Option {
	return func(o *options) {
		o.cameras[p] = s
	}
}

// World is the host-facing facade. All methods are safe for concurrent use;
// mutations made while a frame runs are serialised by partition locks, and
// exclusion changes take effect from the next frame.
type World struct {
	cfg    config.Config
	grid   grid.Grid
	logger log.Log
	bus    bus.EventBus
	source string

	registry *partition.Registry
	engine   *propagation.Engine
	cameras  []*camera.Controller
	manager  *Manager
}

// NewWorld validates cfg and builds every partition. Invalid configuration
// is rejected here, before any frame can run.
func NewWorld(cfg config.Config, logger log.Log, eventBus bus.EventBus, opts ...Option) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{source: defaultSource, cameras: make(map[models.PartitionID]camera.Settings)}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if eventBus == nil {
		eventBus = bus.New()
	}

	g, err := cfg.Grid()
	if err != nil {
		return nil, err
	}
	registry, err := partition.NewRegistry(cfg.PartitionCount, g)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	engine := propagation.NewEngine(
		propagation.WithWorkers(cfg.Workers),
		propagation.WithLogger(logger),
	)

	cameras := make([]*camera.Controller, cfg.PartitionCount)
	for i := range cameras {
		settings := cfg.CameraSettings()
		if s, ok := o.cameras[models.PartitionID(i)]; ok {
			settings = s
		}
		if cameras[i], err = camera.NewController(settings, engine); err != nil {
			return nil, fmt.Errorf("%w: partition %d: %w", config.ErrInvalidConfig, i, err)
		}
		if err = eventBus.CreateTopic(bus.PartitionTopic(models.PartitionID(i))); err != nil {
			return nil, err
		}
	}

	w := &World{
		cfg:      cfg,
		grid:     g,
		logger:   logger,
		bus:      eventBus,
		source:   o.source,
		registry: registry,
		engine:   engine,
		cameras:  cameras,
	}
	w.manager = NewManager(registry, engine, cameras, logger, eventBus, o.source)

	logger.Info("world created",
		log.Float64("cell_size", g.CellEdge()),
		log.Float64("switching_threshold", g.SwitchingThreshold()),
		log.Int("partitions", cfg.PartitionCount),
		log.Int("workers", cfg.Workers),
	)
	return w, nil
}

// Accessors

func (w *World) Config() config.Config         { return w.cfg }
func (w *World) Grid() grid.Grid               { return w.grid }
func (w *World) Bus() bus.EventBus             { return w.bus }
func (w *World) Registry() *partition.Registry { return w.registry }
func (w *World) Manager() *Manager             { return w.manager }
func (w *World) Frame() uint64                 { return w.manager.Frame() }
func (w *World) PartitionCount() int           { return w.registry.Count() }

func (w *World) partition(p models.PartitionID) (*partition.Partition, error) {
	return w.registry.Partition(p)
}

func (w *World) Camera(p models.PartitionID) (*camera.Controller, error) {
	if int(p) >= len(w.cameras) {
		return nil, fmt.Errorf("%w: %d", partition.ErrUnknownPartition, p)
	}
	return w.cameras[p], nil
}

// Entity management

// Spawn adds e to partition p with state s.
func (w *World) Spawn(p models.PartitionID, e models.EntityID, s partition.Spatial) error {
	part, err := w.partition(p)
	if err != nil {
		return err
	}
	if err = part.Spawn(e, s); err != nil {
		return err
	}
	stored, _ := part.Get(e)
	w.publish(p, bus.NewPartitionEvent(bus.TypeSpatialSpawned, w.source, p, e, stored))
	return nil
}

// SpawnAt spawns a root entity at an absolute position, splitting it into a
// cell and a canonical offset.
func (w *World) SpawnAt(p models.PartitionID, e models.EntityID, position mgl64.Vec3, local transform.Transform) error {
	cell, t, err := w.grid.TranslationToGrid(position)
	if err != nil {
		return err
	}
	s := partition.NewSpatial(cell, local.WithTranslation(t))
	return w.Spawn(p, e, s)
}

// Despawn removes e, and its children, from every partition.
func (w *World) Despawn(e models.EntityID) error {
	removed := w.registry.Despawn(e)
	if len(removed) == 0 {
		return fmt.Errorf("%w: %s", partition.ErrEntityNotFound, e)
	}
	for p := 0; p < w.registry.Count(); p++ {
		if ids, ok := removed[models.PartitionID(p)]; ok {
			w.publish(models.PartitionID(p), bus.NewPartitionEvent(bus.TypeSpatialDespawned, w.source, models.PartitionID(p), e, ids))
		}
	}
	return nil
}

// DespawnFrom removes e, and its children, from partition p only.
func (w *World) DespawnFrom(p models.PartitionID, e models.EntityID) error {
	part, err := w.partition(p)
	if err != nil {
		return err
	}
	ids, err := part.Despawn(e)
	if err != nil {
		return err
	}
	w.publish(p, bus.NewPartitionEvent(bus.TypeSpatialDespawned, w.source, p, e, ids))
	return nil
}

func (w *World) Get(p models.PartitionID, e models.EntityID) (partition.Spatial, error) {
	part, err := w.partition(p)
	if err != nil {
		return partition.Spatial{}, err
	}
	s, ok := part.Get(e)
	if !ok {
		return partition.Spatial{}, fmt.Errorf("%w: %s in %s", partition.ErrEntityNotFound, e, p)
	}
	return s, nil
}

func (w *World) Set(p models.PartitionID, e models.EntityID, s partition.Spatial) error {
	part, err := w.partition(p)
	if err != nil {
		return err
	}
	return part.Set(e, s)
}

func (w *World) SetVisible(p models.PartitionID, e models.EntityID, visible bool) error {
	part, err := w.partition(p)
	if err != nil {
		return err
	}
	return part.SetVisible(e, visible)
}

// Origins

// DesignateOrigin marks e as the floating origin of p. A second, different
// designator is refused with partition.ErrMultipleOrigins.
func (w *World) DesignateOrigin(p models.PartitionID, e models.EntityID) error {
	return w.designate(p, e, false)
}

// Redesignate moves p's origin to e in one step and stops the camera, whose
// velocity was expressed for the previous origin.
func (w *World) Redesignate(p models.PartitionID, e models.EntityID) error {
	return w.designate(p, e, true)
}

func (w *World) designate(p models.PartitionID, e models.EntityID, replace bool) error {
	part, err := w.partition(p)
	if err != nil {
		return err
	}
	previous, _ := part.Origin()
	if replace {
		err = part.Redesignate(e)
	} else {
		err = part.DesignateOrigin(e)
	}
	if err != nil {
		return err
	}
	if replace && previous != e {
		w.cameras[p].Stop()
	}
	w.publish(p, bus.NewPartitionEvent(bus.TypeOriginDesignated, w.source, p, e, previous))
	return nil
}

func (w *World) ReleaseOrigin(p models.PartitionID) error {
	part, err := w.partition(p)
	if err != nil {
		return err
	}
	part.ReleaseOrigin()
	return nil
}

// Exclusion

func (w *World) Exclude(e models.EntityID, p models.PartitionID) error {
	return w.registry.Exclude(e, p)
}

func (w *World) Include(e models.EntityID, p models.PartitionID) error {
	return w.registry.Include(e, p)
}

func (w *World) ExcludeAllExcept(e models.EntityID, keep models.PartitionID) error {
	return w.registry.ExcludeAllExcept(e, keep)
}

func (w *World) ExcludeAll(e models.EntityID) {
	w.registry.ExcludeAll(e)
}

// Input

// SetInput queues camera input for partition p's next frame.
func (w *World) SetInput(p models.PartitionID, in camera.Input) error {
	c, err := w.Camera(p)
	if err != nil {
		return err
	}
	c.SetInput(in)
	return nil
}

// ApplyCameraSettings replaces the settings of every camera. Nothing is
// changed when s is invalid.
func (w *World) ApplyCameraSettings(s camera.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, c := range w.cameras {
		if err := c.SetSettings(s); err != nil {
			return err
		}
	}
	w.logger.Info("camera settings applied", log.Float64("speed", s.Speed))
	return nil
}

// Frame execution

// Tick advances every partition by dt seconds.
func (w *World) Tick(ctx context.Context, dt float64) (FrameReport, error) {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return FrameReport{}, fmt.Errorf("%w: %g", camera.ErrInvalidTimeStep, dt)
	}
	return w.manager.Update(ctx, dt)
}

// Queries

// Resolved returns the transform of e relative to p's origin as published
// by the last frame. Excluded entities have none.
func (w *World) Resolved(p models.PartitionID, e models.EntityID) (transform.Transform, bool) {
	part, err := w.partition(p)
	if err != nil {
		return transform.Transform{}, false
	}
	return part.Resolved(e)
}

func (w *World) ResolvedAll(p models.PartitionID) (map[models.EntityID]transform.Transform, error) {
	part, err := w.partition(p)
	if err != nil {
		return nil, err
	}
	return part.ResolvedAll(), nil
}

// GridTransform returns the current cell and canonical local transform of e.
func (w *World) GridTransform(p models.PartitionID, e models.EntityID) (grid.Cell, transform.Transform, error) {
	s, err := w.Get(p, e)
	if err != nil {
		return grid.Cell{}, transform.Transform{}, err
	}
	return s.Cell, s.Local, nil
}

// Relative resolves e against p's origin from the current state, without
// waiting for the next frame.
func (w *World) Relative(p models.PartitionID, e models.EntityID) (transform.Transform, error) {
	part, err := w.partition(p)
	if err != nil {
		return transform.Transform{}, err
	}
	return w.engine.Relative(part, e)
}

func (w *World) Telemetry(p models.PartitionID) (CameraTelemetry, error) {
	part, err := w.partition(p)
	if err != nil {
		return CameraTelemetry{}, err
	}
	cam := w.cameras[p]
	out := CameraTelemetry{Partition: p, Speed: cam.Speed(), Nearest: cam.NearestObject()}
	out.Velocity, out.Spin = cam.Velocity()

	origin, err := part.Origin()
	if err != nil {
		return out, nil
	}
	if s, ok := part.Get(origin); ok {
		out.Active = true
		out.Origin = origin
		out.OriginCell = s.Cell
		out.OriginTranslation = s.Local.Translation
	}
	return out, nil
}

func (w *World) publish(p models.PartitionID, ev bus.Event) {
	ev = ev.WithFrame(w.manager.Frame())
	if err := w.bus.PublishToTopic(bus.PartitionTopic(p), ev); err != nil {
		w.logger.Warn("event handlers failed",
			log.Partition(uint8(p)), log.String("type", ev.Type), log.Error(err))
	}
}
