// Package blockflow composes the G*G per-chain block trees (package
// blocktree) into one globally consistent view (spec §2 item 6, §4.2): it
// derives and checks each new block's cross-chain dependency vector,
// builds the effective world-state a block's transactions execute against,
// and assembles mining templates.
package blockflow

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zheli/alephium/internal/blocktree"
	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/difficulty"
	"github.com/zheli/alephium/internal/flowcache"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/mempool"
	"github.com/zheli/alephium/internal/ports"
	"github.com/zheli/alephium/internal/storage"
	"github.com/zheli/alephium/internal/validator"
	"github.com/zheli/alephium/internal/worldstate"
)

// ErrorCode tags the dependency-tier failures spec §7 describes
// ("InvalidFlowTxs" as a validation failure, "HeaderIncomplete" as a
// parked missing-dependency).
type ErrorCode string

const (
	ErrInvalidFlowTxs   ErrorCode = "INVALID_FLOW_TXS"
	ErrHeaderIncomplete ErrorCode = "HEADER_INCOMPLETE"
)

// Error is the typed error BlockFlow operations return.
type Error struct {
	Code ErrorCode
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("blockflow: %s: %s", e.Code, e.Msg) }

func newErr(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// BlockFlow is the G*G cross-chain DAG: one blocktree.Tree per chain, a
// body store for each tree's transactions, a single persistent world-state
// shared across chains, and the difficulty/validator/mempool collaborators
// needed to accept new blocks end to end.
//
// Cyclic references between BlockFlow and the per-chain Trees are avoided
// the way spec §9 prescribes: BlockFlow holds a flat index (chain index ->
// *blocktree.Tree) and looks trees up by value; Trees never hold a
// back-reference to BlockFlow.
type BlockFlow struct {
	groups int
	db     *storage.DB
	ws     *worldstate.WorldState
	diff   difficulty.Config
	val    *validator.Validator
	mem    *mempool.Mempool
	cache  *flowcache.FlowCache
	bus    ports.EventBus
	log    zerolog.Logger

	mu     sync.RWMutex
	trees  map[hashes.ChainIndex]*blocktree.Tree
	bodies map[hashes.Hash][]chain.Transaction
}

// Deps is New's configuration bundle: every collaborator BlockFlow needs to
// validate and commit blocks.
type Deps struct {
	Groups     int
	DB         *storage.DB
	WorldState *worldstate.WorldState
	Difficulty difficulty.Config
	Validator  *validator.Validator
	Mempool    *mempool.Mempool
	Cache      *flowcache.FlowCache
	Bus        ports.EventBus
	Log        zerolog.Logger
}

// New builds an empty BlockFlow with one tree per chain; call AddGenesis
// for each chain before accepting ordinary blocks.
func New(d Deps) *BlockFlow {
	bf := &BlockFlow{
		groups: d.Groups,
		db:     d.DB,
		ws:     d.WorldState,
		diff:   d.Difficulty,
		val:    d.Validator,
		mem:    d.Mempool,
		cache:  d.Cache,
		bus:    d.Bus,
		log:    d.Log.With().Str("component", "blockflow").Logger(),
		trees:  make(map[hashes.ChainIndex]*blocktree.Tree),
		bodies: make(map[hashes.Hash][]chain.Transaction),
	}
	for from := 0; from < d.Groups; from++ {
		for to := 0; to < d.Groups; to++ {
			ci := hashes.ChainIndex{From: from, To: to}
			bf.trees[ci] = blocktree.New(d.DB, ci)
		}
	}
	return bf
}

// Tree returns the per-chain block tree for ci, or nil if ci is out of
// range. Exposed read-only for RPC/sync collaborators (spec §6 GetTxStatus,
// sync locator handling).
func (bf *BlockFlow) Tree(ci hashes.ChainIndex) *blocktree.Tree {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.trees[ci]
}

// AddGenesisBlock installs block as the genesis of its own chain's tree and
// records its transactions' outputs directly into the shared world-state
// (genesis transactions are not subject to the ordinary validation
// pipeline: they exist by fiat, matching every PoW chain's bootstrap).
func (bf *BlockFlow) AddGenesisBlock(block chain.Block) error {
	hash := chain.HeaderHash(block.Header)
	ci := hashes.FromHash(hash, bf.groups)
	tree := bf.Tree(ci)
	if tree == nil {
		return newErr(ErrInvalidFlowTxs, "chain index %s out of range", ci)
	}
	if err := tree.AddGenesis(hash, block.Header); err != nil {
		return err
	}

	overlay := worldstate.NewCached(bf.ws)
	for _, tx := range block.Transactions {
		txID := chain.TxID(tx)
		for i, o := range tx.Unsigned.FixedOutputs {
			overlay.PutAssetOutput(validator.OutputRefFor(txID, i), o)
		}
	}
	if err := bf.db.Batch(worldstate.Writes(overlay.Diff())); err != nil {
		return newErr(ErrInvalidFlowTxs, "commit genesis state: %v", err)
	}

	bf.mu.Lock()
	bf.bodies[hash] = block.Transactions
	bf.mu.Unlock()
	bf.cache.Blocks.Put(hash, ci, block)
	bf.cache.Headers.Put(hash, block.Header)
	return nil
}

// BestDeps derives a best-deps vector for a candidate block whose own chain
// is (fromGroup, *): the current best-known tip of every other chain this
// header must declare (spec §4.2 item 1, spec §3 "BlockDeps").
func (bf *BlockFlow) BestDeps(fromGroup int) []hashes.Hash {
	deps := make([]hashes.Hash, hashes.NumDeps(bf.groups))
	for to := 0; to < bf.groups; to++ {
		if to == fromGroup {
			continue
		}
		idx := chain.DepIndexIntraGroup(fromGroup, to, bf.groups)
		deps[idx] = bf.Tree(hashes.ChainIndex{From: fromGroup, To: to}).GetBestTipUnsafe()
	}
	for g := 0; g < bf.groups; g++ {
		idx := chain.DepIndexInterGroup(g, bf.groups)
		deps[idx] = bf.Tree(hashes.ChainIndex{From: g, To: g}).GetBestTipUnsafe()
	}
	return deps
}

// chainIndexForDep maps a Deps slot position back to the chain index it
// names, inverting chain.DepIndexIntraGroup/DepIndexInterGroup for a header
// whose own From group is fromGroup.
func chainIndexForDep(pos, fromGroup, groups int) hashes.ChainIndex {
	if pos < groups-1 {
		to := pos
		if to >= fromGroup {
			to++
		}
		return hashes.ChainIndex{From: fromGroup, To: to}
	}
	g := pos - (groups - 1)
	return hashes.ChainIndex{From: g, To: g}
}

// CheckFlowTxs validates a block's declared Deps vector against spec
// §4.2 item 1: every dep must be known, and the deps must not contradict
// each other. A dep not yet known to its tree yields an ErrHeaderIncomplete
// error. For each intra-group dep that carries a full Deps vector, its own
// recorded tip of every diagonal chain (g,g) must equal, or be an ancestor
// of, the tip this block declares for that chain; otherwise the result is
// false -- see DESIGN.md for why this diagonal check is the chosen
// approximation of the source "flow rule" rather than a full joint-view
// reconstruction.
func (bf *BlockFlow) CheckFlowTxs(block *chain.Block) (bool, error) {
	hash := chain.HeaderHash(block.Header)
	ci := hashes.FromHash(hash, bf.groups)
	h := block.Header

	if len(h.Deps) != hashes.NumDeps(bf.groups) {
		return false, nil
	}

	depHeaders := make([]chain.BlockHeader, len(h.Deps))
	for pos, d := range h.Deps {
		depCI := chainIndexForDep(pos, ci.From, bf.groups)
		tree := bf.Tree(depCI)
		if tree == nil || !tree.Contains(d) {
			return false, newErr(ErrHeaderIncomplete, "dep %s of chain %s not yet known", d, depCI)
		}
		dh, err := tree.Get(d)
		if err != nil {
			return false, err
		}
		depHeaders[pos] = dh
	}

	for pos := 0; pos < bf.groups-1; pos++ {
		depH := depHeaders[pos]
		if len(depH.Deps) != hashes.NumDeps(bf.groups) {
			continue // genesis or malformed dep header: nothing to cross-check
		}
		for g := 0; g < bf.groups; g++ {
			diagIdx := chain.DepIndexInterGroup(g, bf.groups)
			ours := h.Deps[diagIdx]
			theirs := depH.Deps[diagIdx]
			if ours == theirs {
				continue
			}
			diagTree := bf.Tree(hashes.ChainIndex{From: g, To: g})
			before, err := diagTree.IsBefore(theirs, ours)
			if err != nil || !before {
				return false, nil
			}
		}
	}

	return bf.checkDoubleSpendAcrossDeps(block, depHeaders)
}

// checkDoubleSpendAcrossDeps implements the block-flow double-spend check
// (spec §4.2 item 3) over the blocks named directly in depHeaders: the
// result is false when an input of one of block's non-coinbase
// transactions is also an input of a transaction in one of those blocks.
// Only the direct deps are examined, and a dep whose body this BlockFlow
// does not hold is skipped; blocks reachable further back through their
// parents or their own deps are not examined.
func (bf *BlockFlow) checkDoubleSpendAcrossDeps(block *chain.Block, depHeaders []chain.BlockHeader) (bool, error) {
	spent := make(map[chain.TxOutputRef]struct{})
	for pos, dh := range depHeaders {
		_ = pos
		depHash := chain.HeaderHash(dh)
		bf.mu.RLock()
		txs, ok := bf.bodies[depHash]
		bf.mu.RUnlock()
		if !ok {
			continue
		}
		for _, tx := range txs {
			for _, in := range tx.Unsigned.Inputs {
				spent[in.OutputRef] = struct{}{}
			}
		}
	}
	for _, tx := range block.NonCoinbaseTxs() {
		for _, in := range tx.Unsigned.Inputs {
			if _, ok := spent[in.OutputRef]; ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// GetMutableGroupView returns a copy-on-write overlay for executing
// fromGroup's pending block's transactions (spec §4.2 item 1). Because
// every dependency must already be committed to the shared world-state
// before CheckFlowTxs accepts it (see AddAndUpdateView), the overlay can
// wrap the persistent WorldState directly instead of replaying
// not-yet-folded ancestors -- the "replay" spec §4.2 item 2 describes has
// already happened by the time a block is validated (DESIGN.md).
func (bf *BlockFlow) GetMutableGroupView(fromGroup int, deps []hashes.Hash) *worldstate.Cached {
	_ = deps
	_ = fromGroup
	return worldstate.NewCached(bf.ws)
}

// AddAndUpdateView validates and commits block, idempotently: a hash
// already present in its chain's tree is a silent no-op (spec §4.2:
// "addAndUpdateView(block) -- idempotent; safe to replay").
func (bf *BlockFlow) AddAndUpdateView(block chain.Block) error {
	hash := chain.HeaderHash(block.Header)
	ci := hashes.FromHash(hash, bf.groups)
	tree := bf.Tree(ci)
	if tree == nil {
		return newErr(ErrInvalidFlowTxs, "chain index %s out of range", ci)
	}
	if tree.Contains(hash) {
		return nil
	}
	if !tree.Contains(block.Header.ParentHash) && !block.Header.IsGenesis() {
		bf.log.Debug().Stringer("chain", ci).Stringer("hash", hash).Msg("parked: parent unknown")
		return newErr(ErrHeaderIncomplete, "parent %s not yet known", block.Header.ParentHash)
	}

	flowOK, err := bf.CheckFlowTxs(&block)
	if err != nil {
		return err
	}

	overlay := bf.GetMutableGroupView(ci.From, block.Header.Deps)
	if err := bf.val.ValidateBlock(&block, ci, flowOK, overlay); err != nil {
		bf.log.Warn().Stringer("chain", ci).Stringer("hash", hash).Err(err).Msg("block rejected")
		return err
	}

	prevBest := tree.GetBestTipUnsafe()
	prevWeight := tree.MaxChainWeight()

	if err := tree.Add(hash, block.Header); err != nil {
		return err
	}
	if err := bf.db.Batch(worldstate.Writes(overlay.Diff())); err != nil {
		return err
	}

	bf.mu.Lock()
	bf.bodies[hash] = block.Transactions
	bf.mu.Unlock()
	bf.cache.Blocks.Put(hash, ci, block)
	bf.cache.Headers.Put(hash, block.Header)

	newBest := tree.GetBestTipUnsafe()
	newWeight := tree.MaxChainWeight()
	bf.log.Debug().
		Stringer("chain", ci).
		Stringer("hash", hash).
		Int("txs", len(block.Transactions)).
		Msg("block accepted")
	if bf.bus != nil {
		if newWeight.Cmp(prevWeight) > 0 && newBest != prevBest {
			removed, added, derr := tree.CalHashDiff(prevBest, newBest)
			if derr == nil && (len(removed) > 0 || len(added) > 0) {
				bf.log.Info().
					Stringer("chain", ci).
					Int("removed", len(removed)).
					Int("added", len(added)).
					Stringer("newBest", newBest).
					Msg("reorg")
				bf.bus.Publish(ports.Event{Kind: ports.EventReorg, Chain: ci, Removed: removed, Added: added})
			}
		}
		bf.bus.Publish(ports.Event{Kind: ports.EventNewTip, Chain: ci, Hash: newBest, Weight: newWeight})
	}

	var ids []hashes.Hash
	for _, tx := range block.NonCoinbaseTxs() {
		ids = append(ids, chain.TxID(tx))
	}
	bf.mem.RemoveMined(ci, ids)

	return nil
}
