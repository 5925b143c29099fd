package server

import (
	"encoding/json"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/bigspace/internal/core/events/bus"
	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/system"
	"github.com/zeusync/bigspace/pkg/encoding"
)

// Source is the read side of a world the telemetry server samples.
type Source interface {
	PartitionCount() int
	Telemetry(p models.PartitionID) (system.CameraTelemetry, error)
	Bus() bus.EventBus
}

var _ Source = (*system.World)(nil)

// Vector is a JSON friendly vec3. Non-finite components are encoded as 0.
type Vector [3]float64

func vector(v mgl64.Vec3) Vector {
	return Vector{finite(v[0]), finite(v[1]), finite(v[2])}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

type NearestSnapshot struct {
	Entity   uint64  `json:"entity"`
	Distance float64 `json:"distance"`
}

// CameraSnapshot describes one partition's camera. Cell coordinates are
// decimal strings since they exceed the range of JSON numbers.
type CameraSnapshot struct {
	Partition   uint8            `json:"partition"`
	Active      bool             `json:"active"`
	Origin      uint64           `json:"origin,omitempty"`
	Cell        [3]string        `json:"cell"`
	Translation Vector           `json:"translation"`
	Velocity    Vector           `json:"velocity"`
	Speed       float64          `json:"speed"`
	Skipped     bool             `json:"skipped,omitempty"`
	Resolved    int              `json:"resolved"`
	Nearest     *NearestSnapshot `json:"nearest,omitempty"`
}

type DiagnosticSnapshot struct {
	Partition uint8  `json:"partition"`
	Entity    uint64 `json:"entity,omitempty"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// Snapshot is the telemetry document pushed to clients once per sampled
// frame.
type Snapshot struct {
	Frame       uint64               `json:"frame"`
	DeltaTime   float64              `json:"dt"`
	DurationUS  int64                `json:"duration_us"`
	Cameras     []CameraSnapshot     `json:"cameras"`
	Diagnostics []DiagnosticSnapshot `json:"diagnostics,omitempty"`
}

var _ encoding.Serializable[Snapshot] = (*Snapshot)(nil)

func (s *Snapshot) Serialize() ([]byte, error) {
	return json.Marshal(s)
}

func (s *Snapshot) Deserialize(data []byte) error {
	return json.Unmarshal(data, s)
}

// Only returns a copy of s restricted to partition p.
func (s Snapshot) Only(p models.PartitionID) Snapshot {
	out := Snapshot{Frame: s.Frame, DeltaTime: s.DeltaTime, DurationUS: s.DurationUS}
	for _, c := range s.Cameras {
		if c.Partition == uint8(p) {
			out.Cameras = append(out.Cameras, c)
		}
	}
	for _, d := range s.Diagnostics {
		if d.Partition == uint8(p) {
			out.Diagnostics = append(out.Diagnostics, d)
		}
	}
	return out
}

// BuildSnapshot combines a frame report with the current camera state of
// every partition in src.
func BuildSnapshot(report system.FrameReport, src Source) Snapshot {
	snap := Snapshot{
		Frame:      report.Frame,
		DeltaTime:  report.DeltaTime,
		DurationUS: report.Duration.Microseconds(),
	}
	byPartition := make(map[models.PartitionID]system.PartitionReport, len(report.Partitions))
	for _, r := range report.Partitions {
		byPartition[r.Partition] = r
	}

	for i := 0; i < src.PartitionCount(); i++ {
		p := models.PartitionID(i)
		tel, err := src.Telemetry(p)
		if err != nil {
			continue
		}
		cam := CameraSnapshot{
			Partition:   uint8(p),
			Active:      tel.Active,
			Origin:      uint64(tel.Origin),
			Cell:        cellStrings(tel.OriginCell),
			Translation: vector(tel.OriginTranslation),
			Velocity:    vector(tel.Velocity),
			Speed:       finite(tel.Speed),
		}
		if r, ok := byPartition[p]; ok {
			cam.Skipped = r.Skipped
			cam.Resolved = r.Resolved
		}
		if tel.Nearest != nil {
			cam.Nearest = &NearestSnapshot{Entity: uint64(tel.Nearest.Entity), Distance: finite(tel.Nearest.Distance)}
		}
		snap.Cameras = append(snap.Cameras, cam)
	}

	for _, d := range report.Diagnostics {
		snap.Diagnostics = append(snap.Diagnostics, DiagnosticSnapshot{
			Partition: uint8(d.Partition),
			Entity:    uint64(d.Entity),
			Kind:      d.Kind.String(),
			Message:   d.Err.Error(),
		})
	}
	return snap
}

func cellStrings(c grid.Cell) [3]string {
	return [3]string{c.X.String(), c.Y.String(), c.Z.String()}
}
