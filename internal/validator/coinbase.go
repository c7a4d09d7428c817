package validator

import (
	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/serde"
)

// CoinbaseData is the decoded payload of the first coinbase output's
// AdditionalData field (spec §4.4: "Additional data of the first output
// decodes to {fromGroup, toGroup, blockTs} matching the header").
type CoinbaseData struct {
	FromGroup int
	ToGroup   int
	BlockTs   hashes.Timestamp
}

// EncodeCoinbaseData serializes d with the same length-prefixed codec used
// for every other on-wire entity (spec §2 item 2).
func EncodeCoinbaseData(d CoinbaseData) []byte {
	w := serde.NewWriter(16)
	w.PutU32(uint32(d.FromGroup))
	w.PutU32(uint32(d.ToGroup))
	w.PutI64(int64(d.BlockTs))
	return w.Bytes()
}

// DecodeCoinbaseData parses a CoinbaseData payload previously produced by
// EncodeCoinbaseData.
func DecodeCoinbaseData(b []byte) (CoinbaseData, error) {
	r := serde.NewReader(b)
	from, err := r.ReadU32()
	if err != nil {
		return CoinbaseData{}, err
	}
	to, err := r.ReadU32()
	if err != nil {
		return CoinbaseData{}, err
	}
	ts, err := r.ReadI64()
	if err != nil {
		return CoinbaseData{}, err
	}
	return CoinbaseData{FromGroup: int(from), ToGroup: int(to), BlockTs: hashes.Timestamp(ts)}, nil
}

// TotalReward computes the miner's coinbase payout, capped at the
// configured hard ceiling (spec §4.4: "Output amount equals
// totalReward(gasFee, miningReward) capped at a hard ceiling").
func TotalReward(cfg Config, gasFee hashes.U256) hashes.U256 {
	sum, ok := gasFee.AddChecked(cfg.MiningReward)
	if !ok || sum.Cmp(cfg.MaxRewardCeiling) > 0 {
		return cfg.MaxRewardCeiling
	}
	return sum
}

// BuildCoinbase assembles the deterministic coinbase transaction for a new
// block template (spec §4.2 item 3 "appends a deterministic coinbase",
// §4.4 "Coinbase contract"). It is the inverse of CheckCoinbase.
func BuildCoinbase(cfg Config, ci hashes.ChainIndex, minerLockup []byte, gasFee hashes.U256, blockTs hashes.Timestamp) chain.Transaction {
	reward := TotalReward(cfg, gasFee)
	data := EncodeCoinbaseData(CoinbaseData{FromGroup: ci.From, ToGroup: ci.To, BlockTs: blockTs})

	minerAmount := reward
	var outputs []chain.AssetOutput
	if cfg.PoLW {
		burn := hashes.NewU256(0)
		if cfg.PoLWBurnPercent > 0 {
			scaled, _ := reward.MulChecked(hashes.NewU256(uint64(cfg.PoLWBurnPercent)))
			burn, _ = scaled.DivChecked(hashes.NewU256(100))
		}
		minerAmount, _ = reward.SubChecked(burn)
		outputs = []chain.AssetOutput{
			{
				Amount:         minerAmount,
				LockupScript:   minerLockup,
				LockTime:       blockTs.Add(cfg.CoinbaseLockupPeriod),
				AdditionalData: data,
			},
			{
				Amount:       burn,
				LockupScript: cfg.BurnLockup,
			},
		}
	} else {
		outputs = []chain.AssetOutput{
			{
				Amount:         minerAmount,
				LockupScript:   minerLockup,
				LockTime:       blockTs.Add(cfg.CoinbaseLockupPeriod),
				AdditionalData: data,
			},
		}
	}

	return chain.Transaction{
		Unsigned: chain.UnsignedTx{
			GasAmount:    cfg.MinimalGas,
			GasPrice:     cfg.MinimalGasPrice,
			FixedOutputs: outputs,
		},
	}
}

// CheckCoinbase validates a block's trailing coinbase transaction against
// every format rule in spec §4.4. gasFee is the sum of all non-coinbase
// transactions' fees, already computed by the caller.
func (v *Validator) CheckCoinbase(block *chain.Block, ci hashes.ChainIndex, gasFee hashes.U256) error {
	txs := block.Transactions
	if len(txs) == 0 {
		return newErr(ErrInvalidCoinbaseFormat, "block has no coinbase")
	}
	cb := txs[len(txs)-1]
	idx := len(txs) - 1

	u := cb.Unsigned
	if len(u.Script) != 0 {
		return newTxErr(ErrInvalidCoinbaseFormat, idx, "coinbase must not carry a script")
	}
	if u.GasAmount != v.cfg.MinimalGas {
		return newTxErr(ErrInvalidCoinbaseFormat, idx, "gasAmount must equal minimalGas")
	}
	if u.GasPrice.Cmp(v.cfg.MinimalGasPrice) != 0 {
		return newTxErr(ErrInvalidCoinbaseFormat, idx, "gasPrice must equal minimalGasPrice")
	}
	wantOutputs := 1
	if v.cfg.PoLW {
		wantOutputs = 2
	}
	if len(u.FixedOutputs) != wantOutputs {
		return newTxErr(ErrInvalidCoinbaseFormat, idx, "expected %d fixed outputs, got %d", wantOutputs, len(u.FixedOutputs))
	}
	if len(u.Inputs) != 0 {
		return newTxErr(ErrInvalidCoinbaseFormat, idx, "coinbase must not spend inputs")
	}
	if len(cb.ContractInputs) != 0 || len(cb.GeneratedOutputs) != 0 {
		return newTxErr(ErrInvalidCoinbaseFormat, idx, "coinbase must not touch contracts")
	}
	if len(cb.InputSignatures) != 0 || len(cb.ContractSignatures) != 0 {
		return newTxErr(ErrInvalidCoinbaseFormat, idx, "coinbase must carry no signatures")
	}
	for i, o := range u.FixedOutputs {
		if len(o.Tokens) != 0 {
			return newTxErr(ErrInvalidCoinbaseFormat, idx, "coinbase output %d must not carry tokens", i)
		}
	}

	minerOut := u.FixedOutputs[0]
	data, err := DecodeCoinbaseData(minerOut.AdditionalData)
	if err != nil {
		return newTxErr(ErrInvalidCoinbaseData, idx, "decode additional data: %v", err)
	}
	if data.FromGroup != ci.From || data.ToGroup != ci.To || data.BlockTs != block.Header.Timestamp {
		return newTxErr(ErrInvalidCoinbaseData, idx, "additional data (%d,%d,%d) disagrees with header (%d,%d,%d)",
			data.FromGroup, data.ToGroup, data.BlockTs, ci.From, ci.To, block.Header.Timestamp)
	}

	wantLockTime := block.Header.Timestamp.Add(v.cfg.CoinbaseLockupPeriod)
	if minerOut.LockTime != wantLockTime {
		return newTxErr(ErrInvalidCoinbaseLockupPeriod, idx, "miner output lock time mismatch")
	}

	wantReward := TotalReward(v.cfg, gasFee)
	total := minerOut.Amount
	if v.cfg.PoLW {
		sum, ok := total.AddChecked(u.FixedOutputs[1].Amount)
		if !ok {
			return newTxErr(ErrInvalidCoinbaseReward, idx, "coinbase output sum overflows")
		}
		total = sum
	}
	if total.Cmp(wantReward) != 0 {
		return newTxErr(ErrInvalidCoinbaseReward, idx, "coinbase pays %s, want %s", total, wantReward)
	}
	if total.Cmp(v.cfg.MaxRewardCeiling) > 0 {
		return newTxErr(ErrInvalidCoinbaseReward, idx, "coinbase exceeds reward ceiling")
	}

	return nil
}
