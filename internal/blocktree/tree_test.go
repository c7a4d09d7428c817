package blocktree

import (
	"math/big"
	"testing"

	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
)

func mkHash(s string) hashes.Hash { return hashes.Hash256([]byte(s)) }

func mkTarget(denom int64) hashes.Target {
	// Any distinct denominator yields a distinct, well-ordered weight:
	// WeightFromTarget is monotonically decreasing in the target's integer
	// value, so a smaller denom means an easier (larger) target and a
	// smaller weight.
	num := new(big.Int).Div(hashes.MaxTarget.Int(), big.NewInt(denom))
	tgt, err := hashes.FromInt(num)
	if err != nil {
		panic(err)
	}
	return tgt
}

func newHeader(parent hashes.Hash, denom int64, ts int64) chain.BlockHeader {
	return chain.BlockHeader{
		ParentHash: parent,
		Target:     mkTarget(denom),
		Timestamp:  hashes.Timestamp(ts),
	}
}

func mustAdd(t *testing.T, tr *Tree, hash hashes.Hash, h chain.BlockHeader) {
	t.Helper()
	if err := tr.Add(hash, h); err != nil {
		t.Fatalf("Add(%s): %v", hash, err)
	}
}

// TestSingleChainGrowth covers spec's "single chain growth" scenario: four
// sequential blocks on top of genesis, strictly increasing weight.
func TestSingleChainGrowth(t *testing.T) {
	tr := New(nil, hashes.ChainIndex{From: 0, To: 0})
	genesis := mkHash("genesis")
	if err := tr.AddGenesis(genesis, chain.BlockHeader{Target: hashes.MaxTarget}); err != nil {
		t.Fatalf("AddGenesis: %v", err)
	}

	hashesList := []hashes.Hash{genesis}
	parent := genesis
	expectedWeight := hashes.WeightFromTarget(hashes.MaxTarget)
	for i := int64(1); i <= 4; i++ {
		h := newHeader(parent, i+1, int64(i))
		id := mkHash("block")
		id[0] ^= byte(i) // force distinct hashes per iteration
		mustAdd(t, tr, id, h)
		expectedWeight = expectedWeight.Add(hashes.WeightFromTarget(h.Target))
		hashesList = append(hashesList, id)
		parent = id
	}

	if got := tr.MaxHeight(); got != 4 {
		t.Fatalf("MaxHeight = %d, want 4", got)
	}
	if got := tr.MaxChainWeight(); got.Cmp(expectedWeight) != 0 {
		t.Fatalf("MaxChainWeight = %s, want %s", got, expectedWeight)
	}
	if got := tr.GetBestTipUnsafe(); got != parent {
		t.Fatalf("bestTip = %s, want %s", got, parent)
	}

	between, err := tr.GetBlockHashesBetween(parent, genesis)
	if err != nil {
		t.Fatalf("GetBlockHashesBetween: %v", err)
	}
	if len(between) != 4 {
		t.Fatalf("GetBlockHashesBetween returned %d hashes, want 4", len(between))
	}
	for i, h := range between {
		if h != hashesList[i+1] {
			t.Fatalf("GetBlockHashesBetween[%d] = %s, want %s", i, h, hashesList[i+1])
		}
	}

	slice, err := tr.GetBlockHashSlice(parent)
	if err != nil {
		t.Fatalf("GetBlockHashSlice: %v", err)
	}
	if len(slice) != 5 {
		t.Fatalf("GetBlockHashSlice len = %d, want 5", len(slice))
	}
	for i, h := range slice {
		if h != hashesList[i] {
			t.Fatalf("GetBlockHashSlice[%d] = %s, want %s", i, h, hashesList[i])
		}
	}
	for _, h := range hashesList {
		if !tr.IsCanonical(h) {
			t.Fatalf("expected %s to be canonical", h)
		}
	}
}

// TestReorg covers the reorg scenario: a short fork of length 2 loses to a
// longer/heavier fork of length 3 sharing the same genesis parent.
func TestReorg(t *testing.T) {
	tr := New(nil, hashes.ChainIndex{From: 0, To: 0})
	genesis := mkHash("genesis-reorg")
	if err := tr.AddGenesis(genesis, chain.BlockHeader{Target: hashes.MaxTarget}); err != nil {
		t.Fatalf("AddGenesis: %v", err)
	}

	// Short fork: two blocks.
	short1 := mkHash("short1")
	mustAdd(t, tr, short1, newHeader(genesis, 2, 1))
	short2 := mkHash("short2")
	mustAdd(t, tr, short2, newHeader(short1, 2, 2))

	if got := tr.GetBestTipUnsafe(); got != short2 {
		t.Fatalf("bestTip after short fork = %s, want %s", got, short2)
	}
	weightAfterShort := tr.MaxChainWeight()

	// Long fork: three blocks, also rooted at genesis.
	long1 := mkHash("long1")
	mustAdd(t, tr, long1, newHeader(genesis, 3, 3))
	long2 := mkHash("long2")
	mustAdd(t, tr, long2, newHeader(long1, 3, 4))
	long3 := mkHash("long3")
	mustAdd(t, tr, long3, newHeader(long2, 3, 5))

	if got := tr.GetBestTipUnsafe(); got != long3 {
		t.Fatalf("bestTip after long fork = %s, want %s", got, long3)
	}
	if tr.MaxChainWeight().Cmp(weightAfterShort) < 0 {
		t.Fatalf("reorg must not decrease maxChainWeight")
	}

	for h, want := range map[hashes.Hash]bool{
		genesis: true, long1: true, long2: true, long3: true,
		short1: false, short2: false,
	} {
		if got := tr.IsCanonical(h); got != want {
			t.Fatalf("IsCanonical(%s) = %v, want %v", h, got, want)
		}
	}

	slice, err := tr.GetBlockHashSlice(long3)
	if err != nil {
		t.Fatalf("GetBlockHashSlice: %v", err)
	}
	want := []hashes.Hash{genesis, long1, long2, long3}
	if len(slice) != len(want) {
		t.Fatalf("slice len = %d, want %d", len(slice), len(want))
	}
	for i := range want {
		if slice[i] != want[i] {
			t.Fatalf("slice[%d] = %s, want %s", i, slice[i], want[i])
		}
	}

	// Short-fork blocks are still known, just not canonical.
	if !tr.Contains(short1) || !tr.Contains(short2) {
		t.Fatalf("short fork blocks should remain present after losing reorg")
	}
}

func TestIsBefore(t *testing.T) {
	tr := New(nil, hashes.ChainIndex{From: 0, To: 0})
	genesis := mkHash("genesis-before")
	if err := tr.AddGenesis(genesis, chain.BlockHeader{Target: hashes.MaxTarget}); err != nil {
		t.Fatalf("AddGenesis: %v", err)
	}
	b1 := mkHash("before-1")
	mustAdd(t, tr, b1, newHeader(genesis, 2, 1))
	b2 := mkHash("before-2")
	mustAdd(t, tr, b2, newHeader(b1, 2, 2))

	ok, err := tr.IsBefore(genesis, b2)
	if err != nil || !ok {
		t.Fatalf("expected genesis before b2, ok=%v err=%v", ok, err)
	}
	ok, err = tr.IsBefore(b2, genesis)
	if err != nil || ok {
		t.Fatalf("expected b2 not before genesis, ok=%v err=%v", ok, err)
	}
	ok, err = tr.IsBefore(b1, b1)
	if err != nil || ok {
		t.Fatalf("a block is not before itself, ok=%v err=%v", ok, err)
	}
}

func TestCalHashDiff(t *testing.T) {
	tr := New(nil, hashes.ChainIndex{From: 0, To: 0})
	genesis := mkHash("genesis-diff")
	if err := tr.AddGenesis(genesis, chain.BlockHeader{Target: hashes.MaxTarget}); err != nil {
		t.Fatalf("AddGenesis: %v", err)
	}
	a1 := mkHash("diff-a1")
	mustAdd(t, tr, a1, newHeader(genesis, 2, 1))
	a2 := mkHash("diff-a2")
	mustAdd(t, tr, a2, newHeader(a1, 2, 2))

	b1 := mkHash("diff-b1")
	mustAdd(t, tr, b1, newHeader(genesis, 2, 3))

	toRemove, toAdd, err := tr.CalHashDiff(a2, b1)
	if err != nil {
		t.Fatalf("CalHashDiff: %v", err)
	}
	if len(toRemove) != 2 || toRemove[0] != a1 || toRemove[1] != a2 {
		t.Fatalf("toRemove = %v, want [a1 a2]", toRemove)
	}
	if len(toAdd) != 1 || toAdd[0] != b1 {
		t.Fatalf("toAdd = %v, want [b1]", toAdd)
	}

	removeSet := map[hashes.Hash]struct{}{}
	for _, h := range toRemove {
		removeSet[h] = struct{}{}
	}
	for _, h := range toAdd {
		if _, ok := removeSet[h]; ok {
			t.Fatalf("toRemove and toAdd must be disjoint, shared %s", h)
		}
	}
}

func TestGetSyncData(t *testing.T) {
	tr := New(nil, hashes.ChainIndex{From: 0, To: 0})
	genesis := mkHash("genesis-sync")
	if err := tr.AddGenesis(genesis, chain.BlockHeader{Target: hashes.MaxTarget}); err != nil {
		t.Fatalf("AddGenesis: %v", err)
	}
	b1 := mkHash("sync-1")
	mustAdd(t, tr, b1, newHeader(genesis, 2, 1))
	b2 := mkHash("sync-2")
	mustAdd(t, tr, b2, newHeader(b1, 2, 2))

	out, err := tr.GetSyncData([]hashes.Hash{genesis})
	if err != nil {
		t.Fatalf("GetSyncData: %v", err)
	}
	if len(out) != 2 || out[0] != b1 || out[1] != b2 {
		t.Fatalf("GetSyncData = %v, want [b1 b2]", out)
	}

	out, err = tr.GetSyncData([]hashes.Hash{mkHash("unknown-locator")})
	if err != nil {
		t.Fatalf("GetSyncData with unknown locator: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("GetSyncData with no matching locator should fall back to genesis, got %v", out)
	}
}

func TestAddRejectsUnknownParent(t *testing.T) {
	tr := New(nil, hashes.ChainIndex{From: 0, To: 0})
	genesis := mkHash("genesis-unknown-parent")
	if err := tr.AddGenesis(genesis, chain.BlockHeader{Target: hashes.MaxTarget}); err != nil {
		t.Fatalf("AddGenesis: %v", err)
	}
	orphan := newHeader(mkHash("missing-parent"), 2, 1)
	err := tr.Add(mkHash("orphan"), orphan)
	if err == nil {
		t.Fatalf("expected error adding block with unknown parent")
	}
	berr, ok := err.(*Error)
	if !ok || berr.Code != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddRejectsDuplicate(t *testing.T) {
	tr := New(nil, hashes.ChainIndex{From: 0, To: 0})
	genesis := mkHash("genesis-dup")
	if err := tr.AddGenesis(genesis, chain.BlockHeader{Target: hashes.MaxTarget}); err != nil {
		t.Fatalf("AddGenesis: %v", err)
	}
	b1 := mkHash("dup-1")
	mustAdd(t, tr, b1, newHeader(genesis, 2, 1))
	if err := tr.Add(b1, newHeader(genesis, 2, 1)); err == nil {
		t.Fatalf("expected error re-adding an existing hash")
	}
}

func TestTipsTracking(t *testing.T) {
	tr := New(nil, hashes.ChainIndex{From: 0, To: 0})
	genesis := mkHash("genesis-tips")
	if err := tr.AddGenesis(genesis, chain.BlockHeader{Target: hashes.MaxTarget}); err != nil {
		t.Fatalf("AddGenesis: %v", err)
	}
	if !tr.IsTip(genesis) {
		t.Fatalf("genesis should be a tip before any children")
	}
	b1 := mkHash("tips-1")
	mustAdd(t, tr, b1, newHeader(genesis, 2, 1))
	if tr.IsTip(genesis) {
		t.Fatalf("genesis should no longer be a tip once it has a child")
	}
	if !tr.IsTip(b1) {
		t.Fatalf("b1 should be a tip")
	}
	tips := tr.GetAllTips()
	if len(tips) != 1 || tips[0] != b1 {
		t.Fatalf("GetAllTips = %v, want [b1]", tips)
	}
}
