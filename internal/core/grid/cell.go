package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrArithmeticOverflow reports a cell component that would leave the
	// Int128 range. The returned cell is saturated, never wrapped.
	ErrArithmeticOverflow = errors.New("grid cell arithmetic overflow")
	ErrInvalidCellSize    = errors.New("cell size must be positive and finite")
	ErrInvalidThreshold   = errors.New("switching threshold must be non-negative and below half the cell size")
)

// Cell identifies one cubic partition of space. Cells compare with ==.
type Cell struct {
	X, Y, Z Int128
}

func NewCell(x, y, z int64) Cell {
	return Cell{X: NewInt128(x), Y: NewInt128(y), Z: NewInt128(z)}
}

func (c Cell) Equal(o Cell) bool {
	return c == o
}

func (c Cell) IsZero() bool {
	return c == Cell{}
}

// Add returns c+d component-wise. On overflow the affected components are
// saturated and ErrArithmeticOverflow is returned alongside the result.
func (c Cell) Add(d Cell) (Cell, error) {
	x, ox := c.X.Add(d.X)
	y, oy := c.Y.Add(d.Y)
	z, oz := c.Z.Add(d.Z)
	r := Cell{X: x, Y: y, Z: z}
	if ox || oy || oz {
		return r, fmt.Errorf("%w: %s + %s", ErrArithmeticOverflow, c, d)
	}
	return r, nil
}

// Sub returns the signed delta c-o, saturating like Add.
func (c Cell) Sub(o Cell) (Cell, error) {
	x, ox := c.X.Sub(o.X)
	y, oy := c.Y.Sub(o.Y)
	z, oz := c.Z.Sub(o.Z)
	r := Cell{X: x, Y: y, Z: z}
	if ox || oy || oz {
		return r, fmt.Errorf("%w: %s - %s", ErrArithmeticOverflow, c, o)
	}
	return r, nil
}

func (c Cell) String() string {
	return fmt.Sprintf("(%s, %s, %s)", c.X, c.Y, c.Z)
}
