package grid

import (
	"math"
	"math/big"
	"math/bits"
)

// Int128 is a two's complement signed 128-bit integer. One axis of a Cell.
// The zero value is 0.
type Int128 struct {
	Hi int64
	Lo uint64
}

var (
	MaxInt128 = Int128{Hi: math.MaxInt64, Lo: math.MaxUint64}
	MinInt128 = Int128{Hi: math.MinInt64, Lo: 0}
)

// two127 is 2^127 as a float64; every Int128 lies in [-two127, two127).
const two127 = 1.7014118346046923e38

const two64 = 18446744073709551616.0

func NewInt128(v int64) Int128 {
	if v < 0 {
		return Int128{Hi: -1, Lo: uint64(v)}
	}
	return Int128{Lo: uint64(v)}
}

func (a Int128) IsZero() bool {
	return a.Hi == 0 && a.Lo == 0
}

func (a Int128) Sign() int {
	switch {
	case a.Hi < 0:
		return -1
	case a.Hi == 0 && a.Lo == 0:
		return 0
	default:
		return 1
	}
}

func (a Int128) Cmp(b Int128) int {
	switch {
	case a.Hi < b.Hi:
		return -1
	case a.Hi > b.Hi:
		return 1
	case a.Lo < b.Lo:
		return -1
	case a.Lo > b.Lo:
		return 1
	default:
		return 0
	}
}

// Add returns a+b and whether the signed result overflowed. On overflow the
// returned value is saturated to MaxInt128 or MinInt128.
func (a Int128) Add(b Int128) (Int128, bool) {
	lo, carry := bits.Add64(a.Lo, b.Lo, 0)
	hi, _ := bits.Add64(uint64(a.Hi), uint64(b.Hi), carry)
	r := Int128{Hi: int64(hi), Lo: lo}
	if (a.Hi < 0) == (b.Hi < 0) && (r.Hi < 0) != (a.Hi < 0) {
		if a.Hi < 0 {
			return MinInt128, true
		}
		return MaxInt128, true
	}
	return r, false
}

// Sub returns a-b and whether the signed result overflowed, saturating like Add.
func (a Int128) Sub(b Int128) (Int128, bool) {
	lo, borrow := bits.Sub64(a.Lo, b.Lo, 0)
	hi, _ := bits.Sub64(uint64(a.Hi), uint64(b.Hi), borrow)
	r := Int128{Hi: int64(hi), Lo: lo}
	if (a.Hi < 0) != (b.Hi < 0) && (r.Hi < 0) != (a.Hi < 0) {
		if a.Hi < 0 {
			return MinInt128, true
		}
		return MaxInt128, true
	}
	return r, false
}

// Neg returns -a. Only MinInt128 overflows.
func (a Int128) Neg() (Int128, bool) {
	return Int128{}.Sub(a)
}

// magnitude returns |a| as an unsigned (hi, lo) pair. Exact for MinInt128.
func (a Int128) magnitude() (hi, lo uint64) {
	hi, lo = uint64(a.Hi), a.Lo
	if a.Hi < 0 {
		var c uint64
		lo, c = bits.Add64(^lo, 1, 0)
		hi, _ = bits.Add64(^hi, 0, c)
	}
	return hi, lo
}

// Float64 converts to the nearest float64. The magnitude is converted before
// the sign is applied so small negative values keep full precision.
func (a Int128) Float64() float64 {
	hi, lo := a.magnitude()
	f := float64(hi)*two64 + float64(lo)
	if a.Hi < 0 {
		return -f
	}
	return f
}

// Int128FromFloat64 truncates f toward zero. The boolean is false when f is
// NaN or outside the Int128 range, in which case the result is saturated
// (NaN maps to zero).
func Int128FromFloat64(f float64) (Int128, bool) {
	switch {
	case math.IsNaN(f):
		return Int128{}, false
	case f >= two127:
		return MaxInt128, false
	case f < -two127:
		return MinInt128, false
	case f == -two127:
		return MinInt128, true
	}

	m := math.Trunc(math.Abs(f))
	hiF := math.Floor(m / two64)
	hi := uint64(hiF)
	lo := uint64(m - hiF*two64)
	r := Int128{Hi: int64(hi), Lo: lo}
	if f < 0 {
		r, _ = r.Neg()
	}
	return r, true
}

func (a Int128) Big() *big.Int {
	hi, lo := a.magnitude()
	v := new(big.Int).SetUint64(hi)
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(lo))
	if a.Hi < 0 {
		v.Neg(v)
	}
	return v
}

func (a Int128) String() string {
	if a.Hi == 0 {
		return big.NewInt(0).SetUint64(a.Lo).String()
	}
	if a.Hi == -1 && a.Lo >= 1<<63 {
		return big.NewInt(int64(a.Lo)).String()
	}
	return a.Big().String()
}
