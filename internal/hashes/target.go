package hashes

import (
	"fmt"
	"math/big"
)

// Target is a 256-bit difficulty bound: a block's hash, read as a big-endian
// unsigned integer, must be strictly less than its header's target.
type Target [32]byte

// MaxTarget is the easiest allowed target (spec §6 maxMiningTarget), the
// ceiling difficulty adjustment never exceeds.
var MaxTarget = Target{
	0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// Int returns the target as a big-endian unsigned integer.
func (t Target) Int() *big.Int {
	return new(big.Int).SetBytes(t[:])
}

// FromInt converts a non-negative big.Int back into a Target, erroring on
// overflow of the 256-bit range.
func FromInt(v *big.Int) (Target, error) {
	var out Target
	if v.Sign() < 0 {
		return out, fmt.Errorf("hashes: target: negative value")
	}
	b := v.Bytes()
	if len(b) > 32 {
		return out, fmt.Errorf("hashes: target: overflow")
	}
	copy(out[32-len(b):], b)
	return out, nil
}

// PowCheck reports whether h, interpreted as a big-endian integer, is
// strictly below t -- the proof-of-work predicate.
func (t Target) PowCheck(h Hash) bool {
	var hb, tb big.Int
	hb.SetBytes(h[:])
	tb.SetBytes(t[:])
	return hb.Cmp(&tb) < 0
}

// Weight is the cumulative sum of per-block target-derived work along a
// chain path (spec §3, "Weight -- unbounded non-negative integer"). It is
// backed by big.Int because, unlike Target, it has no fixed-width ceiling.
type Weight struct {
	v *big.Int
}

// ZeroWeight is the weight of the empty (pre-genesis) chain.
func ZeroWeight() Weight {
	return Weight{v: big.NewInt(0)}
}

// WeightFromTarget converts a block's target into its contribution to
// cumulative chain weight: inversely proportional to the target, scaled by
// 2^256 so that easier (larger) targets contribute proportionally less work.
func WeightFromTarget(t Target) Weight {
	num := new(big.Int).Lsh(big.NewInt(1), 256)
	den := t.Int()
	if den.Sign() == 0 {
		den = big.NewInt(1)
	}
	return Weight{v: new(big.Int).Div(num, den)}
}

// Add returns a new Weight equal to w plus other.
func (w Weight) Add(other Weight) Weight {
	return Weight{v: new(big.Int).Add(w.v, other.v)}
}

// Cmp compares two weights the way big.Int.Cmp does: -1, 0, or 1.
func (w Weight) Cmp(other Weight) int {
	return w.v.Cmp(other.v)
}

// String renders the weight in decimal.
func (w Weight) String() string {
	if w.v == nil {
		return "0"
	}
	return w.v.String()
}

// Bytes returns the big-endian unsigned encoding of the weight, used by the
// serde codec.
func (w Weight) Bytes() []byte {
	if w.v == nil {
		return nil
	}
	return w.v.Bytes()
}

// WeightFromBytes reconstructs a Weight from its big-endian encoding.
func WeightFromBytes(b []byte) Weight {
	return Weight{v: new(big.Int).SetBytes(b)}
}
