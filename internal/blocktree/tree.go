// Package blocktree implements the per-chain append-only block DAG: height
// index, canonical-tip bookkeeping, and weight-based reorg (spec §2 item 5,
// §4.1). It knows nothing about cross-chain dependencies -- that is the
// block-flow DAG's job (package blockflow).
package blocktree

import (
	"fmt"
	"sync"

	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/storage"
)

type hashState struct {
	height      uint64
	weight      hashes.Weight // this block's own target-derived contribution
	chainWeight hashes.Weight // cumulative from genesis
	timestamp   hashes.Timestamp
	isCanonical bool
	parent      hashes.Hash
}

// Tree is the block DAG for a single chain (fromGroup, toGroup). All
// mutation is serialized by the caller (spec §5: "Per-chain mutation ...
// is serialized per chain"); Tree itself only guards its in-memory indices
// with an RWMutex so concurrent readers never race with the serialized
// writer.
type Tree struct {
	db         *storage.DB
	chainIndex hashes.ChainIndex

	mu             sync.RWMutex
	headers        map[hashes.Hash]chain.BlockHeader
	state          map[hashes.Hash]*hashState
	hashesAtHeight map[uint64][]hashes.Hash // index 0 is always canonical
	tips           map[hashes.Hash]struct{}
	genesis        hashes.Hash
	bestTip        hashes.Hash
	maxChainWeight hashes.Weight
	hasGenesis     bool
}

func columnKeyPrefix(ci hashes.ChainIndex) []byte {
	return []byte(fmt.Sprintf("%d:%d:", ci.From, ci.To))
}

func headerKey(ci hashes.ChainIndex, h hashes.Hash) []byte {
	return append(columnKeyPrefix(ci), h[:]...)
}

// New creates an empty Tree backed by db for the given chain index. Call
// AddGenesis before any other mutation.
func New(db *storage.DB, ci hashes.ChainIndex) *Tree {
	return &Tree{
		db:             db,
		chainIndex:     ci,
		headers:        make(map[hashes.Hash]chain.BlockHeader),
		state:          make(map[hashes.Hash]*hashState),
		hashesAtHeight: make(map[uint64][]hashes.Hash),
		tips:           make(map[hashes.Hash]struct{}),
		maxChainWeight: hashes.ZeroWeight(),
	}
}

// AddGenesis installs h as height-0 canonical root. It must be called
// exactly once, before any Add.
func (t *Tree) AddGenesis(hash hashes.Hash, h chain.BlockHeader) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasGenesis {
		return newErr(ErrInvariant, "genesis already set")
	}
	if !h.IsGenesis() {
		return newErr(ErrInvariant, "header is not genesis (non-zero parent)")
	}
	w := hashes.WeightFromTarget(h.Target)
	t.headers[hash] = h
	t.state[hash] = &hashState{
		height:      0,
		weight:      w,
		chainWeight: w,
		timestamp:   h.Timestamp,
		isCanonical: true,
	}
	t.hashesAtHeight[0] = []hashes.Hash{hash}
	t.tips[hash] = struct{}{}
	t.genesis = hash
	t.bestTip = hash
	t.maxChainWeight = w
	t.hasGenesis = true

	return t.persistHeader(hash, h)
}

func (t *Tree) persistHeader(hash hashes.Hash, h chain.BlockHeader) error {
	if t.db == nil {
		return nil
	}
	return t.db.Put(storage.ColumnHeaders, headerKey(t.chainIndex, hash), chain.EncodeHeader(h))
}

// Add appends a new block to the tree. Preconditions (spec §4.1): the block
// must not already be present, and its parent must already be present.
// Add updates per-hash state then runs the reorg algorithm.
func (t *Tree) Add(hash hashes.Hash, h chain.BlockHeader) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.state[hash]; exists {
		return newErr(ErrInvariant, "block %s already present", hash)
	}
	parentState, ok := t.state[h.ParentHash]
	if !ok {
		return newErr(ErrNotFound, "parent %s not present", h.ParentHash)
	}

	w := hashes.WeightFromTarget(h.Target)
	cw := parentState.chainWeight.Add(w)
	height := parentState.height + 1

	t.headers[hash] = h
	t.state[hash] = &hashState{
		height:      height,
		weight:      w,
		chainWeight: cw,
		timestamp:   h.Timestamp,
		isCanonical: false,
		parent:      h.ParentHash,
	}
	t.hashesAtHeight[height] = append(t.hashesAtHeight[height], hash)
	t.tips[hash] = struct{}{}
	delete(t.tips, h.ParentHash)

	if err := t.persistHeader(hash, h); err != nil {
		return newErr(ErrIOFailure, "persist header: %v", err)
	}

	t.reorg(hash, cw)
	return nil
}

// reorg implements spec §4.1's "Reorg algorithm": on a strictly greater
// chainWeight, walk from the new block's parent upward, moving each
// ancestor to the head of hashesAtHeight[k], until an already-canonical
// ancestor is reached; ties keep the current canonical chain.
func (t *Tree) reorg(newHash hashes.Hash, newWeight hashes.Weight) {
	if newWeight.Cmp(t.maxChainWeight) <= 0 {
		return
	}

	var path []hashes.Hash
	cur := newHash
	for {
		st := t.state[cur]
		if st.isCanonical {
			break
		}
		path = append(path, cur)
		if cur == t.genesis {
			break
		}
		cur = st.parent
	}

	for _, h := range path {
		st := t.state[h]
		height := st.height
		list := t.hashesAtHeight[height]
		if len(list) > 0 && list[0] != h {
			t.state[list[0]].isCanonical = false
		}
		idx := -1
		for i, cand := range list {
			if cand == h {
				idx = i
				break
			}
		}
		if idx > 0 {
			list[0], list[idx] = list[idx], list[0]
		}
		t.hashesAtHeight[height] = list
		st.isCanonical = true
	}

	// Old canonical blocks above the new tip's height are no longer on the
	// path from genesis to the best tip.
	for k := t.state[newHash].height + 1; len(t.hashesAtHeight[k]) > 0; k++ {
		t.state[t.hashesAtHeight[k][0]].isCanonical = false
	}

	t.bestTip = newHash
	t.maxChainWeight = newWeight
}

// Contains reports whether hash is a known block in this tree.
func (t *Tree) Contains(hash hashes.Hash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.state[hash]
	return ok
}

// Get returns the header for hash.
func (t *Tree) Get(hash hashes.Hash) (chain.BlockHeader, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.headers[hash]
	if !ok {
		return chain.BlockHeader{}, newErr(ErrNotFound, "header %s", hash)
	}
	return h, nil
}

// GetHeight returns the height of hash.
func (t *Tree) GetHeight(hash hashes.Hash) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.state[hash]
	if !ok {
		return 0, newErr(ErrNotFound, "height of %s", hash)
	}
	return st.height, nil
}

// GetWeight returns hash's own target-derived weight contribution.
func (t *Tree) GetWeight(hash hashes.Hash) (hashes.Weight, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.state[hash]
	if !ok {
		return hashes.Weight{}, newErr(ErrNotFound, "weight of %s", hash)
	}
	return st.weight, nil
}

// GetChainWeight returns the cumulative weight from genesis to hash.
func (t *Tree) GetChainWeight(hash hashes.Hash) (hashes.Weight, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.state[hash]
	if !ok {
		return hashes.Weight{}, newErr(ErrNotFound, "chain weight of %s", hash)
	}
	return st.chainWeight, nil
}

// GetTimestamp returns hash's header timestamp.
func (t *Tree) GetTimestamp(hash hashes.Hash) (hashes.Timestamp, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.state[hash]
	if !ok {
		return 0, newErr(ErrNotFound, "timestamp of %s", hash)
	}
	return st.timestamp, nil
}

// IsTip reports whether hash currently has no children.
func (t *Tree) IsTip(hash hashes.Hash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.tips[hash]
	return ok
}

// GetAllTips returns every current tip hash, in no particular order.
func (t *Tree) GetAllTips() []hashes.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]hashes.Hash, 0, len(t.tips))
	for h := range t.tips {
		out = append(out, h)
	}
	return out
}

// GetBestTipUnsafe returns the tip with maximum chainWeight. It is "unsafe"
// in the sense the teacher's naming convention uses: it assumes the caller
// already holds whatever external serialization guarantees a consistent
// read (spec §4.2: "prepareBlockFlowUnsafe").
func (t *Tree) GetBestTipUnsafe() hashes.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bestTip
}

// IsCanonical reports whether hash lies on the path from genesis to the
// current best tip (O(1) via the stored flag, spec §4.1).
func (t *Tree) IsCanonical(hash hashes.Hash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.state[hash]
	return ok && st.isCanonical
}

// IsBefore reports whether a is a proper ancestor of b.
func (t *Tree) IsBefore(a, b hashes.Hash) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stA, ok := t.state[a]
	if !ok {
		return false, newErr(ErrNotFound, "isBefore: %s", a)
	}
	cur, ok := t.state[b]
	if !ok {
		return false, newErr(ErrNotFound, "isBefore: %s", b)
	}
	if cur.height <= stA.height {
		return false, nil
	}
	h := b
	for h != t.genesis {
		st := t.state[h]
		if st.parent == a {
			return true, nil
		}
		if st.height <= stA.height {
			break
		}
		h = st.parent
	}
	return false, nil
}

// ChainBack returns the ancestors of hash down to, and including,
// height heightUntil+1 (an exclusive lower bound on height, spec §4.1).
func (t *Tree) ChainBack(hash hashes.Hash, heightUntil uint64) ([]hashes.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.state[hash]
	if !ok {
		return nil, newErr(ErrNotFound, "chainBack: %s", hash)
	}
	if st.height <= heightUntil {
		return nil, nil
	}
	var out []hashes.Hash
	cur := hash
	for {
		curSt := t.state[cur]
		if curSt.height <= heightUntil {
			break
		}
		out = append(out, cur)
		if cur == t.genesis {
			break
		}
		cur = curSt.parent
	}
	// reverse so the result reads oldest-first, matching GetBlockHashSlice.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetBlockHashSlice returns the inclusive genesis-to-hash path.
func (t *Tree) GetBlockHashSlice(hash hashes.Hash) ([]hashes.Hash, error) {
	t.mu.RLock()
	_, ok := t.state[hash]
	t.mu.RUnlock()
	if !ok {
		return nil, newErr(ErrNotFound, "getBlockHashSlice: %s", hash)
	}
	if hash == t.genesis {
		return []hashes.Hash{hash}, nil
	}
	// ChainBack(hash, 0) already includes hash itself and excludes genesis
	// (height 0); prepend genesis to complete the inclusive path.
	back, err := t.ChainBack(hash, 0)
	if err != nil {
		return nil, err
	}
	return append([]hashes.Hash{t.genesis}, back...), nil
}

// GetHashesAfter returns every descendant of hash, in height-ascending DAG
// order (within a height, in the order of the height index, whose head is
// the canonical block at that height).
func (t *Tree) GetHashesAfter(hash hashes.Hash) ([]hashes.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.state[hash]
	if !ok {
		return nil, newErr(ErrNotFound, "getHashesAfter: %s", hash)
	}
	var out []hashes.Hash
	maxHeight := st.height
	for h, s := range t.state {
		if s.height > maxHeight {
			maxHeight = s.height
		}
		_ = h
	}
	for height := st.height + 1; height <= maxHeight; height++ {
		for _, h := range t.hashesAtHeight[height] {
			if t.isDescendant(h, hash) {
				out = append(out, h)
			}
		}
	}
	return out, nil
}

func (t *Tree) isDescendant(h, ancestor hashes.Hash) bool {
	cur := h
	for cur != t.genesis {
		st := t.state[cur]
		if st.parent == ancestor {
			return true
		}
		if st.height <= t.state[ancestor].height {
			return false
		}
		cur = st.parent
	}
	return false
}

// GetBlockHashesBetween returns the path from older (exclusive) to newer
// (inclusive). It fails if older is not an ancestor of newer.
func (t *Tree) GetBlockHashesBetween(newer, older hashes.Hash) ([]hashes.Hash, error) {
	t.mu.RLock()
	_, okNewer := t.state[newer]
	_, okOlder := t.state[older]
	t.mu.RUnlock()
	if !okNewer {
		return nil, newErr(ErrNotFound, "getBlockHashesBetween: %s", newer)
	}
	if !okOlder {
		return nil, newErr(ErrNotFound, "getBlockHashesBetween: %s", older)
	}
	if newer == older {
		return nil, nil
	}
	olderHeight, _ := t.GetHeight(older)
	out, err := t.ChainBack(newer, olderHeight)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, newErr(ErrInvariant, "getBlockHashesBetween: %s is not an ancestor of %s", older, newer)
	}
	// ChainBack(newer, olderHeight) returns the path strictly above
	// olderHeight; older is a genuine ancestor only if its direct child is
	// the path's oldest entry.
	st := t.state[out[0]]
	if st.parent != older {
		return nil, newErr(ErrInvariant, "getBlockHashesBetween: %s is not an ancestor of %s", older, newer)
	}
	return out, nil
}

// CalHashDiff computes the set of hashes to remove (on the newer side) and
// add (on the older side) to pivot from newer's path to older's path at
// their lowest common ancestor.
func (t *Tree) CalHashDiff(newer, older hashes.Hash) (toRemove, toAdd []hashes.Hash, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.state[newer]; !ok {
		return nil, nil, newErr(ErrNotFound, "calHashDiff: %s", newer)
	}
	if _, ok := t.state[older]; !ok {
		return nil, nil, newErr(ErrNotFound, "calHashDiff: %s", older)
	}

	newerPath := map[hashes.Hash]struct{}{}
	cur := newer
	for {
		newerPath[cur] = struct{}{}
		if cur == t.genesis {
			break
		}
		cur = t.state[cur].parent
	}

	var lca hashes.Hash
	var olderChain []hashes.Hash
	cur = older
	for {
		if _, ok := newerPath[cur]; ok {
			lca = cur
			break
		}
		olderChain = append(olderChain, cur)
		if cur == t.genesis {
			lca = cur
			break
		}
		cur = t.state[cur].parent
	}
	for i, j := 0, len(olderChain)-1; i < j; i, j = i+1, j-1 {
		olderChain[i], olderChain[j] = olderChain[j], olderChain[i]
	}

	cur = newer
	for cur != lca {
		toRemove = append([]hashes.Hash{cur}, toRemove...)
		cur = t.state[cur].parent
	}

	return toRemove, olderChain, nil
}

// GetSyncData returns up to 1000 canonical successor hashes after the most
// recent locator entry found canonical, scanning the descending locator
// list as specified in spec §4.1.
func (t *Tree) GetSyncData(locators []hashes.Hash) ([]hashes.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var anchor hashes.Hash
	found := false
	for _, loc := range locators {
		if st, ok := t.state[loc]; ok && st.isCanonical {
			anchor = loc
			found = true
			break
		}
	}
	if !found {
		anchor = t.genesis
	}
	anchorHeight := t.state[anchor].height
	var out []hashes.Hash
	for h := anchorHeight + 1; len(out) < 1000; h++ {
		list, ok := t.hashesAtHeight[h]
		if !ok || len(list) == 0 {
			break
		}
		out = append(out, list[0])
	}
	return out, nil
}

// MaxHeight returns the height of the highest known block in the tree.
func (t *Tree) MaxHeight() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var max uint64
	for _, s := range t.state {
		if s.height > max {
			max = s.height
		}
	}
	return max
}

// MaxChainWeight returns the current best tip's cumulative weight.
func (t *Tree) MaxChainWeight() hashes.Weight {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxChainWeight
}

// Genesis returns this tree's genesis hash.
func (t *Tree) Genesis() hashes.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.genesis
}

// HasGenesis reports whether AddGenesis has already been called.
func (t *Tree) HasGenesis() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hasGenesis
}
