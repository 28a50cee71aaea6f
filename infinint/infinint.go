// Package infinint implements an arbitrary-precision unsigned integer
// with a self-delimiting binary codec, per spec section 3.1. Every
// producer and consumer in this module agrees on the same wire form:
// a one-byte length prefix for values that fit in 254 bytes, else a
// 0xFF escape followed by an 8-byte big-endian length and the value
// bytes (big-endian, minimal length). This keeps small values (the
// overwhelming majority: name lengths, permission bits, small
// archive-numbers) to a one-byte overhead while still allowing a
// multi-terabyte file size or timestamp to round-trip.
package infinint

import (
	"fmt"
	"math/big"
)

// Int is an arbitrary-precision unsigned integer.
type Int struct {
	v big.Int
}

// Zero is the additive identity.
var Zero = Int{}

// FromUint64 builds an Int from a machine integer.
func FromUint64(n uint64) Int {
	var i Int
	i.v.SetUint64(n)
	return i
}

// FromBytes builds an Int from big-endian magnitude bytes (no sign).
func FromBytes(b []byte) Int {
	var i Int
	i.v.SetBytes(b)
	return i
}

// IsZero reports whether the value is zero.
func (i Int) IsZero() bool { return i.v.Sign() == 0 }

// Cmp returns -1, 0, or 1 as i is less than, equal to, or greater
// than j, giving the total ordering spec section 3.1 requires.
func (i Int) Cmp(j Int) int { return i.v.Cmp(&j.v) }

// Add returns i+j.
func (i Int) Add(j Int) Int {
	var r Int
	r.v.Add(&i.v, &j.v)
	return r
}

// Sub returns i-j. Panics if j > i, since the type is unsigned and a
// negative result has no representation — callers must Cmp first,
// exactly as a caller of the destroyed-entry ordering logic in
// catalogue must never subtract out of order.
func (i Int) Sub(j Int) Int {
	if i.Cmp(j) < 0 {
		panic("infinint: subtraction underflow")
	}
	var r Int
	r.v.Sub(&i.v, &j.v)
	return r
}

// Mul returns i*j.
func (i Int) Mul(j Int) Int {
	var r Int
	r.v.Mul(&i.v, &j.v)
	return r
}

// DivMod returns the quotient and remainder of euclidean division of
// i by j.
func (i Int) DivMod(j Int) (q, r Int) {
	q.v.DivMod(&i.v, &j.v, &r.v)
	return q, r
}

// Lsh returns i shifted left by n bits.
func (i Int) Lsh(n uint) Int {
	var r Int
	r.v.Lsh(&i.v, n)
	return r
}

// Rsh returns i shifted right by n bits.
func (i Int) Rsh(n uint) Int {
	var r Int
	r.v.Rsh(&i.v, n)
	return r
}

// Unstack withdraws the low width bits of the value into a uint64,
// leaving the remainder (i >> width) in the receiver's copy and
// returning both, per spec section 3.1's unstack(u) contract: it lets
// callers peel off a machine-word-sized chunk from an arbitrarily
// large value, e.g. to index a fixed-size table with the low bits of
// an offset.
func (i Int) Unstack(width uint) (low uint64, rest Int) {
	mask := new(big.Int).Lsh(big.NewInt(1), width)
	mask.Sub(mask, big.NewInt(1))
	var lowBig big.Int
	lowBig.And(&i.v, mask)
	var restInt Int
	restInt.v.Rsh(&i.v, width)
	return lowBig.Uint64(), restInt
}

// Uint64 returns the value truncated to 64 bits. It panics if the
// value does not fit, since every call site in this module first
// establishes (via a format limit) that the value fits before calling
// this; use Fits64 to check without panicking.
func (i Int) Uint64() uint64 {
	if !i.Fits64() {
		panic(fmt.Sprintf("infinint: value does not fit in 64 bits: %s", i.v.String()))
	}
	return i.v.Uint64()
}

// Fits64 reports whether Uint64 would not panic.
func (i Int) Fits64() bool { return i.v.IsUint64() }

// String implements fmt.Stringer for debugging and log messages.
func (i Int) String() string { return i.v.String() }

// Bytes returns the big-endian minimal-length magnitude, with no
// leading zero byte (an empty slice for zero).
func (i Int) Bytes() []byte { return i.v.Bytes() }
