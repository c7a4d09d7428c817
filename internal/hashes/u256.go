package hashes

import (
	"fmt"
	"math/big"
)

var (
	u256Mod = new(big.Int).Lsh(big.NewInt(1), 256) // 2^256, modulus for wrapping U256 ops
	u256Max = new(big.Int).Sub(u256Mod, big.NewInt(1))
	i256Min = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	i256Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
)

// U256 is a fixed-width 256-bit unsigned integer, the VM's native numeric
// type for asset amounts and unsigned arithmetic (spec §4.5 `Val`).
type U256 struct {
	v *big.Int
}

// NewU256 builds a U256 from a uint64.
func NewU256(x uint64) U256 {
	return U256{v: new(big.Int).SetUint64(x)}
}

// U256FromBigInt validates and wraps an arbitrary-precision integer.
func U256FromBigInt(x *big.Int) (U256, error) {
	if x.Sign() < 0 || x.Cmp(u256Max) > 0 {
		return U256{}, fmt.Errorf("hashes: u256 out of range")
	}
	return U256{v: new(big.Int).Set(x)}, nil
}

func (a U256) big() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

// AddChecked returns a+b, or ok=false on overflow past 2^256-1.
func (a U256) AddChecked(b U256) (U256, bool) {
	r := new(big.Int).Add(a.big(), b.big())
	if r.Cmp(u256Max) > 0 {
		return U256{}, false
	}
	return U256{v: r}, true
}

// SubChecked returns a-b, or ok=false on underflow past zero.
func (a U256) SubChecked(b U256) (U256, bool) {
	if a.big().Cmp(b.big()) < 0 {
		return U256{}, false
	}
	return U256{v: new(big.Int).Sub(a.big(), b.big())}, true
}

// MulChecked returns a*b, or ok=false on overflow past 2^256-1.
func (a U256) MulChecked(b U256) (U256, bool) {
	r := new(big.Int).Mul(a.big(), b.big())
	if r.Cmp(u256Max) > 0 {
		return U256{}, false
	}
	return U256{v: r}, true
}

// DivChecked returns a/b. Per spec §3, division by zero yields "no value"
// rather than a panic or a VM fault that isn't attributable to the script.
func (a U256) DivChecked(b U256) (U256, bool) {
	if b.big().Sign() == 0 {
		return U256{}, false
	}
	return U256{v: new(big.Int).Div(a.big(), b.big())}, true
}

// ModChecked returns a%b, or ok=false when b is zero.
func (a U256) ModChecked(b U256) (U256, bool) {
	if b.big().Sign() == 0 {
		return U256{}, false
	}
	return U256{v: new(big.Int).Mod(a.big(), b.big())}, true
}

// AddModular wraps around 2^256 on overflow instead of signalling it, for
// the VM's explicit "modular" instruction family.
func (a U256) AddModular(b U256) U256 {
	r := new(big.Int).Add(a.big(), b.big())
	r.Mod(r, u256Mod)
	return U256{v: r}
}

// SubModular wraps around 2^256 on underflow.
func (a U256) SubModular(b U256) U256 {
	r := new(big.Int).Sub(a.big(), b.big())
	r.Mod(r, u256Mod)
	return U256{v: r}
}

// MulModular wraps around 2^256 on overflow.
func (a U256) MulModular(b U256) U256 {
	r := new(big.Int).Mul(a.big(), b.big())
	r.Mod(r, u256Mod)
	return U256{v: r}
}

// Cmp compares two U256 values: -1, 0, or 1.
func (a U256) Cmp(b U256) int {
	return a.big().Cmp(b.big())
}

// IsZero reports whether a is zero.
func (a U256) IsZero() bool {
	return a.big().Sign() == 0
}

// Uint64 returns a truncated to the low 64 bits; callers that need exact
// values must check Cmp against NewU256(math.MaxUint64) first.
func (a U256) Uint64() uint64 {
	return a.big().Uint64()
}

// Bytes32 returns the big-endian, zero-padded 32-byte encoding.
func (a U256) Bytes32() [32]byte {
	var out [32]byte
	b := a.big().Bytes()
	copy(out[32-len(b):], b)
	return out
}

// U256FromBytes32 parses a big-endian 32-byte encoding.
func U256FromBytes32(b [32]byte) U256 {
	return U256{v: new(big.Int).SetBytes(b[:])}
}

func (a U256) String() string {
	return a.big().String()
}

// I256 is a fixed-width 256-bit signed integer (two's complement range
// [-2^255, 2^255-1]).
type I256 struct {
	v *big.Int
}

// NewI256 builds an I256 from an int64.
func NewI256(x int64) I256 {
	return I256{v: big.NewInt(x)}
}

// I256FromBigInt validates and wraps an arbitrary-precision signed integer.
func I256FromBigInt(x *big.Int) (I256, error) {
	if x.Cmp(i256Min) < 0 || x.Cmp(i256Max) > 0 {
		return I256{}, fmt.Errorf("hashes: i256 out of range")
	}
	return I256{v: new(big.Int).Set(x)}, nil
}

func (a I256) big() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

// AddChecked returns a+b, or ok=false outside the signed 256-bit range.
func (a I256) AddChecked(b I256) (I256, bool) {
	r := new(big.Int).Add(a.big(), b.big())
	if r.Cmp(i256Min) < 0 || r.Cmp(i256Max) > 0 {
		return I256{}, false
	}
	return I256{v: r}, true
}

// SubChecked returns a-b, or ok=false outside the signed 256-bit range.
func (a I256) SubChecked(b I256) (I256, bool) {
	r := new(big.Int).Sub(a.big(), b.big())
	if r.Cmp(i256Min) < 0 || r.Cmp(i256Max) > 0 {
		return I256{}, false
	}
	return I256{v: r}, true
}

// MulChecked returns a*b, or ok=false outside the signed 256-bit range.
func (a I256) MulChecked(b I256) (I256, bool) {
	r := new(big.Int).Mul(a.big(), b.big())
	if r.Cmp(i256Min) < 0 || r.Cmp(i256Max) > 0 {
		return I256{}, false
	}
	return I256{v: r}, true
}

// DivChecked returns a/b truncated toward zero, or ok=false when b is zero.
func (a I256) DivChecked(b I256) (I256, bool) {
	if b.big().Sign() == 0 {
		return I256{}, false
	}
	return I256{v: new(big.Int).Quo(a.big(), b.big())}, true
}

// Cmp compares two I256 values: -1, 0, or 1.
func (a I256) Cmp(b I256) int {
	return a.big().Cmp(b.big())
}

func (a I256) String() string {
	return a.big().String()
}

// Duration is a span of time in milliseconds (spec §3).
type Duration int64

// Timestamp is a point in time expressed as 64-bit Unix millis (spec §3).
type Timestamp int64

// Sub returns the duration elapsed from other to t; negative if t < other.
func (t Timestamp) Sub(other Timestamp) Duration {
	return Duration(t - other)
}

// Add returns t shifted forward by d.
func (t Timestamp) Add(d Duration) Timestamp {
	return t + Timestamp(d)
}
