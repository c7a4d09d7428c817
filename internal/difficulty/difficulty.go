// Package difficulty implements the DigiShield-variant retarget rule (spec
// §4.3), generalized from the teacher's fixed 4x clamp
// (consensus/pow.go's RetargetV1) into configurable window bounds.
package difficulty

import (
	"math/big"

	"github.com/zheli/alephium/internal/hashes"
)

// Config holds every retarget parameter enumerated in spec §6.
type Config struct {
	GenesisHeight          uint64
	PowAveragingWindow     uint64
	ExpectedWindowTimeSpan hashes.Duration
	WindowTimeSpanMin      hashes.Duration
	WindowTimeSpanMax      hashes.Duration
	MaxMiningTarget        hashes.Target
}

// DefaultConfig mirrors the teacher's compiled-in constants: a ten-block
// averaging window, one-minute block target, and the teacher's 4x clamp
// expressed as explicit min/max bounds instead of a hardcoded shift.
func DefaultConfig() Config {
	const blockTargetTime = hashes.Duration(60_000) // 1 minute, millis
	const window = uint64(10)
	expected := blockTargetTime * hashes.Duration(window)
	return Config{
		GenesisHeight:          0,
		PowAveragingWindow:     window,
		ExpectedWindowTimeSpan: expected,
		WindowTimeSpanMin:      expected / 4,
		WindowTimeSpanMax:      expected * 4,
		MaxMiningTarget:        hashes.MaxTarget,
	}
}

// Retarget computes the target for the block at height h, given the current
// target, h's own timestamp, and the timestamp of its ancestor W+1 blocks
// back (spec §4.3). Below the averaging window the target is kept unchanged.
func Retarget(cfg Config, height uint64, currentTarget hashes.Target, timestampH, timestampAncestor hashes.Timestamp) hashes.Target {
	if height < cfg.GenesisHeight+cfg.PowAveragingWindow+1 {
		return currentTarget
	}

	timeSpan := hashes.Duration(timestampH - timestampAncestor)
	clipped := cfg.ExpectedWindowTimeSpan + (timeSpan-cfg.ExpectedWindowTimeSpan)/4
	if clipped < cfg.WindowTimeSpanMin {
		clipped = cfg.WindowTimeSpanMin
	}
	if clipped > cfg.WindowTimeSpanMax {
		clipped = cfg.WindowTimeSpanMax
	}
	if clipped <= 0 {
		clipped = 1
	}

	tOld := currentTarget.Int()
	num := new(big.Int).Mul(tOld, big.NewInt(int64(clipped)))
	den := big.NewInt(int64(cfg.ExpectedWindowTimeSpan))
	if den.Sign() == 0 {
		den = big.NewInt(1)
	}
	tNew := new(big.Int).Div(num, den)

	maxT := cfg.MaxMiningTarget.Int()
	if tNew.Cmp(maxT) > 0 {
		tNew = maxT
	}
	if tNew.Sign() <= 0 {
		tNew = big.NewInt(1)
	}

	out, err := hashes.FromInt(tNew)
	if err != nil {
		// tNew is clamped to at most MaxMiningTarget above, so this is
		// unreachable unless MaxMiningTarget itself overflows 32 bytes.
		return cfg.MaxMiningTarget
	}
	return out
}
