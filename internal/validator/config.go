package validator

import "github.com/zheli/alephium/internal/hashes"

// Config collects the protocol constants enumerated in spec §6 that the
// validation pipeline itself consults (broker range, tx/gas caps, coinbase
// shape). It is a plain struct with a defaulting constructor;
// cmd/blockflow-node overrides the group and broker fields from
// command-line flags, and no config file is loaded.
type Config struct {
	Groups   int
	NetworkID byte

	// BrokerFromStart/End name the contiguous "from" group range this node
	// serves (spec §2: "a broker, responsible for a contiguous range of
	// 'from' groups").
	BrokerFromStart int
	BrokerFromEnd    int // exclusive

	MaxTxsPerBlock int
	MaxGasPerBlock uint64

	MinimalGas           uint64
	MinimalGasPrice      hashes.U256
	CoinbaseLockupPeriod hashes.Duration
	DustUtxoAmount       hashes.U256

	// MiningReward is the fixed block subsidy; MaxRewardCeiling hard-caps
	// totalReward(gasFee, miningReward) against a runaway fee (spec §4.4
	// "Coinbase contract").
	MiningReward     hashes.U256
	MaxRewardCeiling hashes.U256

	// PoLW, when true, requires a second coinbase output that burns a
	// fraction of the reward (spec §3: "PoLW: miner + burn sink").
	PoLW           bool
	BurnLockup     []byte
	PoLWBurnPercent int // 0-100, fraction of reward routed to BurnLockup
}

// DefaultConfig returns protocol defaults matching the reference network's
// genesis parameters; callers override per spec §6 before use.
func DefaultConfig() Config {
	return Config{
		Groups:               4,
		NetworkID:            0,
		BrokerFromStart:      0,
		BrokerFromEnd:        4,
		MaxTxsPerBlock:       1000,
		MaxGasPerBlock:       8_000_000,
		MinimalGas:           20_000,
		MinimalGasPrice:      hashes.NewU256(100),
		CoinbaseLockupPeriod: hashes.Duration(4 * 60 * 60 * 1000), // 4 hours, millis
		DustUtxoAmount:       hashes.NewU256(1_000_000_000_000),
		MiningReward:         hashes.NewU256(1_000_000_000_000_000_000),
		MaxRewardCeiling:     hashes.NewU256(5_000_000_000_000_000_000),
		PoLW:                 false,
		PoLWBurnPercent:      0,
	}
}

// InBroker reports whether chain (from, _) is served by this node.
func (c Config) InBroker(from int) bool {
	return from >= c.BrokerFromStart && from < c.BrokerFromEnd
}
