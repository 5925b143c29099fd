package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ErrNonFinite reports a NaN or infinite translation. The offending axis is
// reset to the cell centre.
var ErrNonFinite = errors.New("non-finite translation")

// maxSplitPasses bounds the refinement loop in splitAxis. Each pass shrinks
// the residual to roughly one ulp of the previous one, so two passes are
// enough in practice for any finite float64.
const maxSplitPasses = 8

// Grid holds the cell geometry of one partition. The zero value is not
// usable; build one with New.
type Grid struct {
	edge      float64
	threshold float64
}

// New builds a grid with the given cell edge length. The switching threshold
// adds hysteresis: an axis is only recentred once it leaves the cell by more
// than threshold. Zero gives the strict [-edge/2, +edge/2] bound.
func New(edge, threshold float64) (Grid, error) {
	if !(edge > 0) || math.IsInf(edge, 0) {
		return Grid{}, fmt.Errorf("%w: %v", ErrInvalidCellSize, edge)
	}
	if !(threshold >= 0) || threshold >= edge/2 {
		return Grid{}, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return Grid{edge: edge, threshold: threshold}, nil
}

func MustNew(edge, threshold float64) Grid {
	g, err := New(edge, threshold)
	if err != nil {
		panic(err)
	}
	return g
}

func (g Grid) CellEdge() float64 { return g.edge }

func (g Grid) SwitchingThreshold() float64 { return g.threshold }

// MaxOffset is the largest per-axis translation left untouched by Canonicalize.
func (g Grid) MaxOffset() float64 { return g.edge/2 + g.threshold }

// IsCanonical reports whether every axis of t is within MaxOffset.
func (g Grid) IsCanonical(t mgl64.Vec3) bool {
	m := g.MaxOffset()
	return math.Abs(t[0]) <= m && math.Abs(t[1]) <= m && math.Abs(t[2]) <= m
}

// ToWorldOffset scales a cell delta to world units. Only use it on deltas
// between nearby cells; the absolute cell index is never converted.
func (g Grid) ToWorldOffset(delta Cell) mgl64.Vec3 {
	return mgl64.Vec3{
		delta.X.Float64() * g.edge,
		delta.Y.Float64() * g.edge,
		delta.Z.Float64() * g.edge,
	}
}

// TranslationToGrid splits an arbitrary translation into whole cells and an
// in-bounds remainder. Translations already within bounds come back as the
// zero cell and the input unchanged.
func (g Grid) TranslationToGrid(v mgl64.Vec3) (Cell, mgl64.Vec3, error) {
	c, t, _, err := g.Canonicalize(Cell{}, v)
	return c, t, err
}

// Canonicalize folds an out-of-bounds translation into the cell. changed is
// false, and cell and t are returned untouched, when t is already canonical.
// On overflow the cell saturates, the remainder is clamped to the cell
// bounds and the error wraps ErrArithmeticOverflow.
func (g Grid) Canonicalize(cell Cell, t mgl64.Vec3) (Cell, mgl64.Vec3, bool, error) {
	if g.IsCanonical(t) {
		return cell, t, false, nil
	}

	var errs []error
	axes := [3]*Int128{&cell.X, &cell.Y, &cell.Z}
	for i, axis := range axes {
		n, rem, err := g.splitAxis(t[i])
		sum, over := axis.Add(n)
		if over && err == nil {
			err = ErrArithmeticOverflow
			rem = math.Copysign(g.edge/2, float64(n.Sign()))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("axis %d: %w", i, err))
		}
		*axis = sum
		t[i] = rem
	}
	return cell, t, true, errors.Join(errs...)
}

// splitAxis returns the whole number of cells contained in x and the
// remainder, which lies in [-edge/2, +edge/2] unless x was already within
// MaxOffset.
func (g Grid) splitAxis(x float64) (Int128, float64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return Int128{}, 0, ErrNonFinite
	}
	if math.Abs(x) <= g.MaxOffset() {
		return Int128{}, x, nil
	}

	half := g.edge / 2
	var cells Int128
	for pass := 0; pass < maxSplitPasses && math.Abs(x) > half; pass++ {
		r := math.Round(x / g.edge)
		if r == 0 {
			break
		}
		n, fits := Int128FromFloat64(r)
		sum, over := cells.Add(n)
		if !fits || over {
			// Saturate and park the remainder on the cell face in the
			// direction of travel.
			return sum, math.Copysign(half, r), ErrArithmeticOverflow
		}
		cells = sum
		x -= r * g.edge
	}
	if x > half {
		x = half
	} else if x < -half {
		x = -half
	}
	return cells, x, nil
}

// RelativeTranslation returns the position of (cell, t) as seen from
// (originCell, originT). Only the cell difference is converted to float, so
// the result keeps full precision near the origin regardless of where in
// the universe the pair sits.
func (g Grid) RelativeTranslation(cell Cell, t mgl64.Vec3, originCell Cell, originT mgl64.Vec3) (mgl64.Vec3, error) {
	delta, err := cell.Sub(originCell)
	return g.ToWorldOffset(delta).Add(t.Sub(originT)), err
}

// Distance is the length of RelativeTranslation.
func (g Grid) Distance(a Cell, at mgl64.Vec3, b Cell, bt mgl64.Vec3) (float64, error) {
	rel, err := g.RelativeTranslation(a, at, b, bt)
	return rel.Len(), err
}
