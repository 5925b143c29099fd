package system

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/bigspace/internal/core/camera"
	"github.com/zeusync/bigspace/internal/core/events/bus"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/observability/log"
	"github.com/zeusync/bigspace/internal/core/partition"
	"github.com/zeusync/bigspace/internal/core/propagation"
	"github.com/zeusync/bigspace/pkg/concurrent"
)

// ExecutionPhase is a step of a partition's frame. Phases of one partition
// run strictly in this order; partitions run concurrently.
type ExecutionPhase uint8

const (
	PhaseCamera ExecutionPhase = iota
	PhaseCanonicalize
	PhaseResolve
	PhaseNearest
)

func (p ExecutionPhase) String() string {
	switch p {
	case PhaseCamera:
		return "camera"
	case PhaseCanonicalize:
		return "canonicalize"
	case PhaseResolve:
		return "resolve"
	case PhaseNearest:
		return "nearest"
	default:
		return "unknown"
	}
}

// PartitionReport summarises one partition's share of a frame.
type PartitionReport struct {
	Partition models.PartitionID
	Entities  int
	Resolved  int
	Origin    models.EntityID
	// Skipped is set for partitions without members or without an origin.
	Skipped bool
	Nearest *camera.Nearest
}

type FrameReport struct {
	Frame       uint64
	DeltaTime   float64
	Duration    time.Duration
	Partitions  []PartitionReport
	Diagnostics []Diagnostic
}

// ManagerMetrics provides frame scheduler statistics.
type ManagerMetrics struct {
	Frames            uint64
	TotalUpdateTime   time.Duration
	AverageUpdateTime time.Duration
	LastUpdateTime    time.Time
	DiagnosticCount   map[Kind]uint64
}

// Manager runs frames over every partition of a registry.
type Manager struct {
	registry *partition.Registry
	engine   *propagation.Engine
	cameras  []*camera.Controller
	logger   log.Log
	bus      bus.EventBus
	source   string

	frame atomic.Uint64

	mu      sync.Mutex
	metrics ManagerMetrics
	// active holds the diagnostics of the previous frame; only new ones are
	// logged and published.
	active map[diagKey]struct{}
}

func NewManager(registry *partition.Registry, engine *propagation.Engine, cameras []*camera.Controller, logger log.Log, eventBus bus.EventBus, source string) *Manager {
	return &Manager{
		registry: registry,
		engine:   engine,
		cameras:  cameras,
		logger:   logger,
		bus:      eventBus,
		source:   source,
		metrics:  ManagerMetrics{DiagnosticCount: make(map[Kind]uint64)},
		active:   make(map[diagKey]struct{}),
	}
}

// Update runs one frame. Only context cancellation aborts it; everything
// else is isolated to the entity or partition and reported.
func (m *Manager) Update(ctx context.Context, dt float64) (FrameReport, error) {
	report, fresh, err := m.update(ctx, dt)
	if err != nil {
		return FrameReport{}, err
	}
	// Handlers may query the world, so events go out after the frame lock
	// is released.
	if m.bus != nil {
		for _, d := range fresh {
			ev := bus.NewPartitionEvent(bus.TypeDiagnostic, m.source, d.Partition, d.Entity, d).WithFrame(d.Frame)
			if perr := m.bus.PublishToTopic(bus.PartitionTopic(d.Partition), ev); perr != nil {
				m.logger.Warn("diagnostic handlers failed", log.Frame(d.Frame), log.Error(perr))
			}
		}
		ev := bus.NewEvent(bus.TypeFrameCompleted, m.source, report).WithFrame(report.Frame)
		if perr := m.bus.Publish(ev); perr != nil {
			m.logger.Warn("frame.completed handlers failed", log.Frame(report.Frame), log.Error(perr))
		}
	}
	return report, nil
}

func (m *Manager) update(ctx context.Context, dt float64) (FrameReport, []Diagnostic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	frame := m.frame.Load() + 1

	partitions := m.registry.Partitions()
	reports := make([]PartitionReport, len(partitions))
	diags := make([][]Diagnostic, len(partitions))

	err := concurrent.ForEach(ctx, partitions, len(partitions), func(ctx context.Context, i int, p *partition.Partition) error {
		var err error
		reports[i], diags[i], err = m.runPartition(ctx, frame, p, m.cameras[i], dt)
		return err
	})
	if err != nil {
		return FrameReport{}, nil, err
	}
	m.frame.Store(frame)

	report := FrameReport{
		Frame:      frame,
		DeltaTime:  dt,
		Partitions: reports,
	}
	for _, d := range diags {
		report.Diagnostics = append(report.Diagnostics, d...)
	}
	fresh := m.trackDiagnostics(report.Diagnostics)
	report.Duration = time.Since(start)

	m.metrics.Frames++
	m.metrics.TotalUpdateTime += report.Duration
	m.metrics.AverageUpdateTime = m.metrics.TotalUpdateTime / time.Duration(m.metrics.Frames)
	m.metrics.LastUpdateTime = start
	return report, fresh, nil
}

func (m *Manager) runPartition(ctx context.Context, frame uint64, p *partition.Partition, cam *camera.Controller, dt float64) (PartitionReport, []Diagnostic, error) {
	p.BeginFrame()
	defer p.EndFrame()

	rep := PartitionReport{Partition: p.ID(), Entities: p.Len()}
	if rep.Entities == 0 {
		rep.Skipped = true
		return rep, nil, nil
	}

	var diags []Diagnostic
	origin, err := p.Origin()
	if err != nil {
		rep.Skipped = true
		return rep, []Diagnostic{newDiagnostic(frame, p.ID(), models.NoEntity, err)}, nil
	}
	rep.Origin = origin

	for phase := PhaseCamera; phase <= PhaseNearest; phase++ {
		if err = ctx.Err(); err != nil {
			return rep, diags, err
		}
		switch phase {
		case PhaseCamera:
			if d, ok := cameraDiagnostic(frame, p.ID(), origin, cam.Update(p, dt)); ok {
				diags = append(diags, d)
			}
		case PhaseCanonicalize:
			pd, perr := m.engine.Canonicalize(ctx, p)
			if perr != nil {
				return rep, diags, perr
			}
			diags = append(diags, fromPropagation(frame, pd)...)
		case PhaseResolve:
			pd, perr := m.engine.Resolve(ctx, p)
			if perr != nil {
				return rep, diags, perr
			}
			diags = append(diags, fromPropagation(frame, pd)...)
		case PhaseNearest:
			rep.Nearest = cam.RefreshNearest(p)
		}
	}
	rep.Resolved = p.ResolvedLen()
	return rep, diags, nil
}

// trackDiagnostics logs the diagnostics that were not present in the
// previous frame and returns them for publishing.
func (m *Manager) trackDiagnostics(diags []Diagnostic) []Diagnostic {
	var fresh []Diagnostic
	current := make(map[diagKey]struct{}, len(diags))
	for _, d := range diags {
		m.metrics.DiagnosticCount[d.Kind]++
		k := d.key()
		current[k] = struct{}{}
		if _, seen := m.active[k]; seen {
			continue
		}
		fields := []log.Field{
			log.Frame(d.Frame),
			log.Partition(uint8(d.Partition)),
			log.Stringer("kind", d.Kind),
			log.Error(d.Err),
		}
		if d.Entity != models.NoEntity {
			fields = append(fields, log.Entity(uint64(d.Entity)))
		}
		m.logger.Warn("frame diagnostic", fields...)
		fresh = append(fresh, d)
	}
	for k := range m.active {
		if _, still := current[k]; !still && k.kind == KindConfiguration {
			m.logger.Info("partition configuration recovered", log.Partition(uint8(k.partition)))
		}
	}
	m.active = current
	return fresh
}

// Frame is the number of the last completed frame.
func (m *Manager) Frame() uint64 {
	return m.frame.Load()
}

func (m *Manager) GetMetrics() ManagerMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.metrics
	out.DiagnosticCount = make(map[Kind]uint64, len(m.metrics.DiagnosticCount))
	for k, v := range m.metrics.DiagnosticCount {
		out.DiagnosticCount[k] = v
	}
	return out
}
