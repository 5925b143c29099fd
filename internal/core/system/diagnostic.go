package system

import (
	"errors"
	"fmt"

	"github.com/zeusync/bigspace/internal/core/camera"
	"github.com/zeusync/bigspace/internal/core/grid"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/partition"
	"github.com/zeusync/bigspace/internal/core/propagation"
)

// Kind classifies a frame diagnostic.
type Kind uint8

const (
	KindInternal Kind = iota
	// KindConfiguration covers a partition with members but no usable origin.
	// The partition is skipped for the frame.
	KindConfiguration
	// KindArithmeticOverflow means a cell saturated; the entity was clamped.
	KindArithmeticOverflow
	KindNonFinite
	KindHierarchy
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration_error"
	case KindArithmeticOverflow:
		return "arithmetic_overflow"
	case KindNonFinite:
		return "non_finite"
	case KindHierarchy:
		return "hierarchy_error"
	default:
		return "internal"
	}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, partition.ErrNoOrigin),
		errors.Is(err, partition.ErrMultipleOrigins),
		errors.Is(err, partition.ErrOriginNotGridded):
		return KindConfiguration
	case errors.Is(err, grid.ErrArithmeticOverflow):
		return KindArithmeticOverflow
	case errors.Is(err, grid.ErrNonFinite):
		return KindNonFinite
	case errors.Is(err, propagation.ErrHierarchyCycle),
		errors.Is(err, propagation.ErrMissingParent):
		return KindHierarchy
	default:
		return KindInternal
	}
}

// Diagnostic is a failure isolated to one entity, or to a whole partition
// when Entity is NoEntity. It never aborts the rest of the frame.
type Diagnostic struct {
	Frame     uint64
	Partition models.PartitionID
	Entity    models.EntityID
	Kind      Kind
	Err       error
}

func newDiagnostic(frame uint64, p models.PartitionID, e models.EntityID, err error) Diagnostic {
	return Diagnostic{Frame: frame, Partition: p, Entity: e, Kind: classify(err), Err: err}
}

func fromPropagation(frame uint64, diags []propagation.Diagnostic) []Diagnostic {
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, newDiagnostic(frame, d.Partition, d.Entity, d.Err))
	}
	return out
}

func (d Diagnostic) Error() string {
	if d.Entity == models.NoEntity {
		return fmt.Sprintf("frame %d %s %s: %v", d.Frame, d.Partition, d.Kind, d.Err)
	}
	return fmt.Sprintf("frame %d %s %s %s: %v", d.Frame, d.Partition, d.Entity, d.Kind, d.Err)
}

func (d Diagnostic) Unwrap() error { return d.Err }

// diagKey identifies a diagnostic across frames so that a persisting
// condition is logged once, when it appears.
type diagKey struct {
	partition models.PartitionID
	entity    models.EntityID
	kind      Kind
}

func (d Diagnostic) key() diagKey {
	return diagKey{partition: d.Partition, entity: d.Entity, kind: d.Kind}
}

// cameraDiagnostic drops the errors a partition-level diagnostic already
// reports.
func cameraDiagnostic(frame uint64, p models.PartitionID, origin models.EntityID, err error) (Diagnostic, bool) {
	if err == nil || errors.Is(err, partition.ErrNoOrigin) {
		return Diagnostic{}, false
	}
	if errors.Is(err, camera.ErrInvalidTimeStep) {
		return newDiagnostic(frame, p, models.NoEntity, err), true
	}
	return newDiagnostic(frame, p, origin, err), true
}
