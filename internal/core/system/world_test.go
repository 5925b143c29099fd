package system

import (
	"context"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/bigspace/internal/core/camera"
	"github.com/zeusync/bigspace/internal/core/config"
	"github.com/zeusync/bigspace/internal/core/events/bus"
	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/partition"
	"github.com/zeusync/bigspace/internal/core/transform"
)

const (
	cam    models.EntityID = 1
	entity models.EntityID = 2
)

func testConfig(partitions int, cellSize float64) config.Config {
	c := config.Default()
	c.PartitionCount = partitions
	c.CellSize = cellSize
	c.Workers = 2
	return c
}

func newWorld(t *testing.T, cfg config.Config) (*World, bus.EventBus) {
	t.Helper()
	b := bus.New()
	w, err := NewWorld(cfg, nil, b)
	require.NoError(t, err)
	return w, b
}

// eventLog collects events from a topic. Handlers may run on frame
// goroutines, hence the lock.
type eventLog struct {
	mu     sync.Mutex
	events []bus.Event
}

func (l *eventLog) handle(e bus.Event) error {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) ofType(typ string) []bus.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []bus.Event
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestNewWorld_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CellSize = 0
	_, err := NewWorld(cfg, nil, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = config.Default()
	_, err = NewWorld(cfg, nil, nil, WithCameraSettings(0, camera.DefaultSettings().WithSmoothness(2, 0)))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestWorld_OriginShiftScenario(t *testing.T) {
	ctx := context.Background()
	w, _ := newWorld(t, testConfig(1, 1000))

	require.NoError(t, w.Spawn(0, cam, partition.NewSpatial(grid.Cell{}, transform.Identity())))
	require.NoError(t, w.Spawn(0, entity, partition.NewSpatial(grid.NewCell(1, 0, 0), transform.FromXYZ(-500, 0, 0))))
	require.NoError(t, w.DesignateOrigin(0, cam))

	report, err := w.Tick(ctx, 1.0/60)
	require.NoError(t, err)
	assert.Empty(t, report.Diagnostics)
	assert.Equal(t, uint64(1), report.Frame)

	got, ok := w.Resolved(0, entity)
	require.True(t, ok)
	assertVecNear(t, mgl64.Vec3{500, 0, 0}, got.Translation, 1e-9)

	s, err := w.Get(0, cam)
	require.NoError(t, err)
	s.Local.Translation = s.Local.Translation.Add(mgl64.Vec3{600, 0, 0})
	require.NoError(t, w.Set(0, cam, s))

	_, err = w.Tick(ctx, 1.0/60)
	require.NoError(t, err)

	cell, local, err := w.GridTransform(0, cam)
	require.NoError(t, err)
	assert.True(t, cell.Equal(grid.NewCell(1, 0, 0)), "got %s", cell)
	assert.InDelta(t, -400, local.Translation.X(), 1e-9)

	got, _ = w.Resolved(0, entity)
	assertVecNear(t, mgl64.Vec3{-100, 0, 0}, got.Translation, 1e-9)
}

func TestWorld_PrecisionFarFromZero(t *testing.T) {
	ctx := context.Background()
	w, _ := newWorld(t, testConfig(1, 10_000))

	far := grid.Cell{X: grid.NewInt128(1_000_000_000_000_000), Y: grid.NewInt128(-7)}
	require.NoError(t, w.Spawn(0, cam, partition.NewSpatial(far, transform.FromXYZ(2.5, 0, 0))))
	require.NoError(t, w.Spawn(0, entity, partition.NewSpatial(far, transform.FromXYZ(3, 0.125, 0))))
	require.NoError(t, w.DesignateOrigin(0, cam))

	_, err := w.Tick(ctx, 0)
	require.NoError(t, err)
	got, ok := w.Resolved(0, entity)
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{0.5, 0.125, 0}, got.Translation)
}

func TestWorld_PartitionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	w, _ := newWorld(t, testConfig(2, 100))

	for p := models.PartitionID(0); p < 2; p++ {
		require.NoError(t, w.Spawn(p, cam, partition.NewSpatial(grid.Cell{}, transform.Identity())))
		require.NoError(t, w.DesignateOrigin(p, cam))
	}
	require.NoError(t, w.Spawn(0, entity, partition.NewSpatial(grid.NewCell(1, 0, 0), transform.Identity())))
	require.NoError(t, w.Spawn(1, entity, partition.NewSpatial(grid.NewCell(0, 0, -3), transform.Identity())))
	require.NoError(t, w.Exclude(cam, 1))

	_, err := w.Tick(ctx, 1.0/60)
	require.NoError(t, err)

	a, _ := w.Resolved(0, entity)
	b, _ := w.Resolved(1, entity)
	assert.Equal(t, mgl64.Vec3{100, 0, 0}, a.Translation)
	assert.Equal(t, mgl64.Vec3{0, 0, -300}, b.Translation)

	_, ok := w.Resolved(1, cam)
	assert.False(t, ok, "excluded origin is not published")
	_, ok = w.Resolved(0, cam)
	assert.True(t, ok)

	all, err := w.ResolvedAll(1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWorld_ExclusionAppliesOnNextFrame(t *testing.T) {
	ctx := context.Background()
	w, b := newWorld(t, testConfig(1, 100))
	require.NoError(t, w.Spawn(0, cam, partition.NewSpatial(grid.Cell{}, transform.Identity())))
	require.NoError(t, w.Spawn(0, entity, partition.NewSpatial(grid.Cell{}, transform.FromXYZ(1, 0, 0))))
	require.NoError(t, w.DesignateOrigin(0, cam))

	// Toggled from a frame.completed handler, i.e. between frames.
	toggled := false
	_, err := b.Subscribe(bus.TypeFrameCompleted, func(bus.Event) error {
		if !toggled {
			toggled = true
			return w.Exclude(entity, 0)
		}
		return nil
	})
	require.NoError(t, err)

	_, err = w.Tick(ctx, 0)
	require.NoError(t, err)
	_, ok := w.Resolved(0, entity)
	assert.True(t, ok, "exclusion made after the frame does not rewrite it")

	_, err = w.Tick(ctx, 0)
	require.NoError(t, err)
	_, ok = w.Resolved(0, entity)
	assert.False(t, ok)

	require.NoError(t, w.Include(entity, 0))
	_, err = w.Tick(ctx, 0)
	require.NoError(t, err)
	_, ok = w.Resolved(0, entity)
	assert.True(t, ok)
}

func TestWorld_ConfigurationDiagnostics(t *testing.T) {
	ctx := context.Background()
	w, b := newWorld(t, testConfig(2, 100))
	events := &eventLog{}
	_, err := b.SubscribeTopic(bus.PartitionTopic(1), bus.AnyType, events.handle)
	require.NoError(t, err)

	require.NoError(t, w.Spawn(1, entity, partition.NewSpatial(grid.Cell{}, transform.Identity())))

	for i := 0; i < 3; i++ {
		report, err := w.Tick(ctx, 1.0/60)
		require.NoError(t, err)
		require.Len(t, report.Diagnostics, 1)
		d := report.Diagnostics[0]
		assert.Equal(t, KindConfiguration, d.Kind)
		assert.Equal(t, models.PartitionID(1), d.Partition)
		assert.ErrorIs(t, d, partition.ErrNoOrigin)

		assert.True(t, report.Partitions[0].Skipped, "empty partition is skipped")
		assert.True(t, report.Partitions[1].Skipped)
	}
	assert.Len(t, events.ofType(bus.TypeDiagnostic), 1, "persisting condition is reported once")
	assert.Equal(t, uint64(3), w.Manager().GetMetrics().DiagnosticCount[KindConfiguration])

	require.NoError(t, w.Spawn(1, cam, partition.NewSpatial(grid.Cell{}, transform.Identity())))
	require.NoError(t, w.DesignateOrigin(1, cam))
	assert.ErrorIs(t, w.DesignateOrigin(1, entity), partition.ErrMultipleOrigins)

	report, err := w.Tick(ctx, 1.0/60)
	require.NoError(t, err)
	assert.Empty(t, report.Diagnostics)
	assert.False(t, report.Partitions[1].Skipped)
	assert.Equal(t, 2, report.Partitions[1].Resolved)

	require.Len(t, events.ofType(bus.TypeSpatialSpawned), 2)
	designated := events.ofType(bus.TypeOriginDesignated)
	require.Len(t, designated, 1)
	assert.Equal(t, cam, designated[0].Entity)
}

func TestWorld_OverflowIsIsolated(t *testing.T) {
	ctx := context.Background()
	w, _ := newWorld(t, testConfig(1, 1))
	require.NoError(t, w.Spawn(0, cam, partition.NewSpatial(grid.Cell{}, transform.Identity())))
	require.NoError(t, w.Spawn(0, entity, partition.NewSpatial(grid.Cell{X: grid.MaxInt128}, transform.FromXYZ(4, 0, 0))))
	require.NoError(t, w.Spawn(0, 3, partition.NewSpatial(grid.Cell{}, transform.FromXYZ(0.25, 0, 0))))
	require.NoError(t, w.DesignateOrigin(0, cam))

	report, err := w.Tick(ctx, 0)
	require.NoError(t, err)
	var kinds []Kind
	for _, d := range report.Diagnostics {
		if d.Entity == entity {
			kinds = append(kinds, d.Kind)
		}
	}
	assert.Contains(t, kinds, KindArithmeticOverflow)

	cell, _, err := w.GridTransform(0, entity)
	require.NoError(t, err)
	assert.Equal(t, grid.MaxInt128, cell.X)

	other, ok := w.Resolved(0, 3)
	require.True(t, ok)
	assert.Equal(t, 0.25, other.Translation.X())
}

func TestWorld_CameraTelemetryAndEvents(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(1, 100)
	cfg.Smoothness = [2]float64{0, 0}
	cfg.Slowing = false
	cfg.Speed = 10
	w, b := newWorld(t, cfg)

	frames := &eventLog{}
	_, err := b.Subscribe(bus.TypeFrameCompleted, frames.handle)
	require.NoError(t, err)

	require.NoError(t, w.Spawn(0, cam, partition.NewSpatial(grid.Cell{}, transform.Identity())))
	require.NoError(t, w.SpawnAt(0, entity, mgl64.Vec3{0, 0, -1050}, transform.Identity()))
	require.NoError(t, w.DesignateOrigin(0, cam))

	cell, local, err := w.GridTransform(0, entity)
	require.NoError(t, err)
	assert.True(t, cell.Equal(grid.NewCell(0, 0, -10)) || cell.Equal(grid.NewCell(0, 0, -11)), "got %s", cell)
	assert.True(t, w.Grid().IsCanonical(local.Translation))

	require.NoError(t, w.SetInput(0, camera.Input{Forward: 1}))
	report, err := w.Tick(ctx, 1)
	require.NoError(t, err)

	tel, err := w.Telemetry(0)
	require.NoError(t, err)
	assert.True(t, tel.Active)
	assert.Equal(t, cam, tel.Origin)
	assert.Equal(t, 100.0, tel.Speed)
	assertVecNear(t, mgl64.Vec3{0, 0, -100}, tel.Velocity, 1e-9)
	assert.True(t, tel.OriginCell.Equal(grid.NewCell(0, 0, -1)), "got %s", tel.OriginCell)
	require.NotNil(t, tel.Nearest)
	assert.Equal(t, entity, tel.Nearest.Entity)
	assert.InDelta(t, 950, tel.Nearest.Distance, 1e-9)
	assert.Equal(t, tel.Nearest, report.Partitions[0].Nearest)

	got := frames.ofType(bus.TypeFrameCompleted)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Frame)
	fr, ok := got[0].Data.(FrameReport)
	require.True(t, ok)
	assert.Equal(t, report.Frame, fr.Frame)

	require.NoError(t, w.Despawn(entity))
	_, err = w.Tick(ctx, 0)
	require.NoError(t, err)
	tel, _ = w.Telemetry(0)
	assert.Nil(t, tel.Nearest)
	assert.ErrorIs(t, w.Despawn(entity), partition.ErrEntityNotFound)
}

func TestWorld_TickErrors(t *testing.T) {
	w, _ := newWorld(t, testConfig(1, 100))
	_, err := w.Tick(context.Background(), -1)
	assert.ErrorIs(t, err, camera.ErrInvalidTimeStep)

	require.NoError(t, w.Spawn(0, cam, partition.NewSpatial(grid.Cell{}, transform.Identity())))
	require.NoError(t, w.DesignateOrigin(0, cam))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Tick(ctx, 0.1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), w.Frame())

	_, err = w.Telemetry(5)
	assert.ErrorIs(t, err, partition.ErrUnknownPartition)
	assert.ErrorIs(t, w.SetInput(5, camera.Input{}), partition.ErrUnknownPartition)
}

func TestWorld_RedesignateStopsCamera(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(1, 100)
	cfg.Smoothness = [2]float64{0, 0}
	w, _ := newWorld(t, cfg)
	require.NoError(t, w.Spawn(0, cam, partition.NewSpatial(grid.Cell{}, transform.Identity())))
	require.NoError(t, w.Spawn(0, entity, partition.NewSpatial(grid.NewCell(0, 0, -2), transform.Identity())))
	require.NoError(t, w.DesignateOrigin(0, cam))
	require.NoError(t, w.SetInput(0, camera.Input{Forward: 1}))
	_, err := w.Tick(ctx, 0.01)
	require.NoError(t, err)

	require.NoError(t, w.Redesignate(0, entity))
	tel, err := w.Telemetry(0)
	require.NoError(t, err)
	assert.Equal(t, entity, tel.Origin)
	assert.Equal(t, mgl64.Vec3{}, tel.Velocity)

	_, err = w.Tick(ctx, 0.01)
	require.NoError(t, err)
	self, ok := w.Resolved(0, entity)
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{}, self.Translation)

	rel, err := w.Relative(0, cam)
	require.NoError(t, err)
	assert.InDelta(t, 200, rel.Translation.Z(), 1)
}

func TestWorld_ApplyCameraSettings(t *testing.T) {
	w, _ := newWorld(t, testConfig(2, 100))

	s := camera.DefaultSettings()
	s.Speed = 7
	require.NoError(t, w.ApplyCameraSettings(s))
	for p := models.PartitionID(0); p < 2; p++ {
		c, err := w.Camera(p)
		require.NoError(t, err)
		assert.Equal(t, 7.0, c.Settings().Speed)
	}

	bad := s
	bad.Speed = 0
	assert.ErrorIs(t, w.ApplyCameraSettings(bad), camera.ErrInvalidSettings)
	c, err := w.Camera(1)
	require.NoError(t, err)
	assert.Equal(t, 7.0, c.Settings().Speed)
}

// assertVecNear compares per axis with an absolute tolerance, so expected
// zeros accept rounding noise.
func assertVecNear(t *testing.T, want, got mgl64.Vec3, delta float64) {
	t.Helper()
	assert.InDeltaSlice(t, want[:], got[:], delta, "got %v", got)
}
