package grid

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt128Arithmetic(t *testing.T) {
	t.Run("small values", func(t *testing.T) {
		a := NewInt128(-5)
		sum, over := a.Add(NewInt128(3))
		require.False(t, over)
		assert.Equal(t, "-2", sum.String())
		assert.Equal(t, -1, sum.Sign())
		assert.Equal(t, -2.0, sum.Float64())
		assert.Equal(t, 0, NewInt128(0).Sign())
	})

	t.Run("carry into the high word", func(t *testing.T) {
		a := Int128{Lo: math.MaxUint64}
		sum, over := a.Add(NewInt128(1))
		require.False(t, over)
		assert.Equal(t, Int128{Hi: 1, Lo: 0}, sum)
		assert.Equal(t, new(big.Int).Lsh(big.NewInt(1), 64), sum.Big())

		back, over := sum.Sub(NewInt128(1))
		require.False(t, over)
		assert.Equal(t, a, back)
	})

	t.Run("matches big.Int", func(t *testing.T) {
		values := []Int128{
			NewInt128(math.MaxInt64), NewInt128(math.MinInt64),
			{Hi: 12345, Lo: 678}, {Hi: -99, Lo: 1 << 63}, NewInt128(-1), NewInt128(0),
		}
		for _, a := range values {
			for _, b := range values {
				sum, over := a.Add(b)
				require.False(t, over)
				want := new(big.Int).Add(a.Big(), b.Big())
				assert.Equal(t, want.String(), sum.String(), "%s + %s", a, b)

				diff, over := a.Sub(b)
				require.False(t, over)
				want = new(big.Int).Sub(a.Big(), b.Big())
				assert.Equal(t, want.String(), diff.String(), "%s - %s", a, b)
				assert.Equal(t, a.Big().Cmp(b.Big()), a.Cmp(b))
			}
		}
	})

	t.Run("saturates on overflow", func(t *testing.T) {
		sum, over := MaxInt128.Add(NewInt128(1))
		assert.True(t, over)
		assert.Equal(t, MaxInt128, sum)

		diff, over := MinInt128.Sub(NewInt128(1))
		assert.True(t, over)
		assert.Equal(t, MinInt128, diff)

		_, over = MinInt128.Neg()
		assert.True(t, over)
		neg, over := MaxInt128.Neg()
		assert.False(t, over)
		assert.Equal(t, "-170141183460469231731687303715884105727", neg.String())
	})

	t.Run("extremes print exactly", func(t *testing.T) {
		assert.Equal(t, "170141183460469231731687303715884105727", MaxInt128.String())
		assert.Equal(t, "-170141183460469231731687303715884105728", MinInt128.String())
	})
}

func TestInt128FromFloat64(t *testing.T) {
	for _, f := range []float64{0, 1, -1.5, 2.75, 1e19, -1e19, 1e30, -3.4e37} {
		got, ok := Int128FromFloat64(f)
		require.True(t, ok, "%g", f)
		want, _ := big.NewFloat(math.Trunc(f)).Int(nil)
		assert.Equal(t, want.String(), got.String(), "%g", f)
		assert.Equal(t, math.Trunc(f), got.Float64())
	}

	got, ok := Int128FromFloat64(math.NaN())
	assert.False(t, ok)
	assert.True(t, got.IsZero())

	got, ok = Int128FromFloat64(1e39)
	assert.False(t, ok)
	assert.Equal(t, MaxInt128, got)

	got, ok = Int128FromFloat64(math.Inf(-1))
	assert.False(t, ok)
	assert.Equal(t, MinInt128, got)
}
