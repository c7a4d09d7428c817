// Package mining implements the mining template builder (spec §2 item 12,
// §4.2 item 3 "prepareBlockFlowUnsafe"): assembling a candidate block's
// dependency set, transaction list and deterministic coinbase for an
// external miner to find a nonce for. Grounded on the teacher's
// node/miner.go bring-up miner, generalized from a single chain to the
// G*G block-flow DAG.
package mining

import (
	"fmt"

	"github.com/zheli/alephium/internal/blockflow"
	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/difficulty"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/mempool"
	"github.com/zheli/alephium/internal/validator"
)

// Builder assembles block templates for one node's served chains.
type Builder struct {
	bf     *blockflow.BlockFlow
	mem    *mempool.Mempool
	vcfg   validator.Config
	dcfg   difficulty.Config
	groups int
	now    func() hashes.Timestamp
}

// New returns a Builder drawing transactions from mem and coinbase/gas
// parameters from vcfg.
func New(bf *blockflow.BlockFlow, mem *mempool.Mempool, vcfg validator.Config, dcfg difficulty.Config, groups int, now func() hashes.Timestamp) *Builder {
	return &Builder{bf: bf, mem: mem, vcfg: vcfg, dcfg: dcfg, groups: groups, now: now}
}

// PrepareBlockFlowUnsafe assembles a candidate block for chain ci, paying
// minerLockup, picking transactions from the mempool by descending gas
// price until maxTxsPerBlock or maxGasPerBlock is reached (spec §4.2 item
// 3). It does not search for a valid nonce -- that is the external miner's
// job (spec §1: "Explicitly out of scope").
func (b *Builder) PrepareBlockFlowUnsafe(ci hashes.ChainIndex, minerLockup []byte) (chain.Block, error) {
	tree := b.bf.Tree(ci)
	if tree == nil {
		return chain.Block{}, fmt.Errorf("mining: chain %s out of range", ci)
	}
	parent := tree.GetBestTipUnsafe()
	parentHeader, err := tree.Get(parent)
	if err != nil {
		return chain.Block{}, fmt.Errorf("mining: get parent header: %w", err)
	}
	parentHeight, err := tree.GetHeight(parent)
	if err != nil {
		return chain.Block{}, fmt.Errorf("mining: get parent height: %w", err)
	}
	newHeight := parentHeight + 1

	target := parentHeader.Target
	if newHeight >= b.dcfg.GenesisHeight+b.dcfg.PowAveragingWindow+1 {
		ancestorHeight := newHeight - b.dcfg.PowAveragingWindow - 1
		var heightUntil uint64
		if ancestorHeight > 0 {
			heightUntil = ancestorHeight - 1
		}
		back, err := tree.ChainBack(parent, heightUntil)
		if err == nil && len(back) > 0 {
			ancestor := back[0]
			if ancestorHeight == 0 {
				ancestor = tree.Genesis() // ChainBack never returns height 0
			}
			ancestorTs, terr := tree.GetTimestamp(ancestor)
			if terr == nil {
				now := b.nowOrDefault()
				target = difficulty.Retarget(b.dcfg, newHeight, parentHeader.Target, now, ancestorTs)
			}
		}
	}

	deps := b.bf.BestDeps(ci.From)

	pool := b.mem.Shared(ci)
	candidates := pool.Iterate()

	var txs []chain.Transaction
	var totalGas uint64
	for _, tx := range candidates {
		if len(txs) >= b.vcfg.MaxTxsPerBlock-1 { // leave room for the coinbase
			break
		}
		if totalGas+tx.Unsigned.GasAmount > b.vcfg.MaxGasPerBlock {
			continue
		}
		txs = append(txs, tx)
		totalGas += tx.Unsigned.GasAmount
	}

	now := b.nowOrDefault()
	gasFee := hashes.NewU256(0)
	for _, tx := range txs {
		fee, ok := hashes.NewU256(tx.Unsigned.GasAmount).MulChecked(tx.Unsigned.GasPrice)
		if !ok {
			continue
		}
		gasFee, _ = gasFee.AddChecked(fee)
	}
	coinbase := validator.BuildCoinbase(b.vcfg, ci, minerLockup, gasFee, now)
	txs = append(txs, coinbase)

	txsHash, err := chain.MerkleRoot(txs)
	if err != nil {
		return chain.Block{}, fmt.Errorf("mining: merkle root: %w", err)
	}

	header := chain.BlockHeader{
		ParentHash: parent,
		Deps:       deps,
		TxsHash:    txsHash,
		Timestamp:  now,
		Target:     target,
	}

	return chain.Block{Header: header, Transactions: txs}, nil
}

func (b *Builder) nowOrDefault() hashes.Timestamp {
	if b.now != nil {
		return b.now()
	}
	return hashes.Timestamp(0)
}
