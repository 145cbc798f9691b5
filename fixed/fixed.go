// Package fixed implements the Q17.14 signed fixed-point encoding used
// by the MLFQS load-average and recent-cpu statistics (spec.md §4.1).
package fixed

// F is 2^14, the scaling factor of the Q17.14 encoding: 17 bits of
// integer part, 14 bits of fraction, one sign bit.
const F = 1 << 14

// T is a Q17.14 fixed-point value.
type T int64

// FromInt converts an integer to fixed point.
func FromInt(n int) T {
	return T(n) * F
}

// ToIntTrunc truncates a fixed-point value toward zero.
func (x T) ToIntTrunc() int {
	return int(x / F)
}

// ToIntRound converts a fixed-point value to the nearest integer,
// rounding ties away from zero.
func (x T) ToIntRound() int {
	if x >= 0 {
		return int((x + F/2) / F)
	}
	return int((x - F/2) / F)
}

// Add returns x+y.
func (x T) Add(y T) T {
	return x + y
}

// Sub returns x-y.
func (x T) Sub(y T) T {
	return x - y
}

// AddInt returns x+n with n scaled to fixed point first.
func (x T) AddInt(n int) T {
	return x + FromInt(n)
}

// SubInt returns x-n with n scaled to fixed point first.
func (x T) SubInt(n int) T {
	return x - FromInt(n)
}

// Mul returns x*y, widening to 64 bits before dividing back down by F.
func (x T) Mul(y T) T {
	return T((int64(x) * int64(y)) / F)
}

// MulInt returns x*n, an ordinary scalar multiply.
func (x T) MulInt(n int) T {
	return x * T(n)
}

// Div returns x/y, widening the numerator by F before dividing.
func (x T) Div(y T) T {
	return T((int64(x) * F) / int64(y))
}

// DivInt returns x/n, an ordinary scalar divide.
func (x T) DivInt(n int) T {
	return x / T(n)
}

// Scaled100Round returns round(x*100), the representation spec.md §4.3
// requires when reporting load_avg and recent_cpu to userspace.
func (x T) Scaled100Round() int {
	return FromInt(100).Mul(x).ToIntRound()
}
