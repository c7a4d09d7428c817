package worldstate

import (
	"path/filepath"
	"testing"

	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/storage"
)

func openTestState(t *testing.T) *WorldState {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "ws.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return Open(db)
}

func TestWorldStateCommitAndRead(t *testing.T) {
	ws := openTestState(t)
	ref := hashes.Hash256([]byte("utxo-a"))
	out := chain.AssetOutput{Amount: hashes.NewU256(500), LockupScript: []byte{0x01}}

	c := NewCached(ws)
	c.PutAssetOutput(ref, out)
	writes := Writes(c.Diff())
	db := ws.db
	if err := db.Batch(writes); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	got, ok, err := ws.GetAssetOutput(ref)
	if err != nil || !ok {
		t.Fatalf("GetAssetOutput: ok=%v err=%v", ok, err)
	}
	if got.Amount.Cmp(out.Amount) != 0 {
		t.Fatalf("amount mismatch: got=%s want=%s", got.Amount, out.Amount)
	}
}

func TestCachedOverlayShadowsParentUntilCommitted(t *testing.T) {
	ws := openTestState(t)
	ref := hashes.Hash256([]byte("utxo-b"))

	c := NewCached(ws)
	c.PutAssetOutput(ref, chain.AssetOutput{Amount: hashes.NewU256(10)})

	// Overlay sees its own pending write...
	got, ok, err := c.GetAssetOutput(ref)
	if err != nil || !ok || got.Amount.Cmp(hashes.NewU256(10)) != 0 {
		t.Fatalf("expected overlay to see pending write, got=%+v ok=%v err=%v", got, ok, err)
	}
	// ...but the underlying store does not, until the diff is committed.
	_, ok, err = ws.GetAssetOutput(ref)
	if err != nil {
		t.Fatalf("GetAssetOutput: %v", err)
	}
	if ok {
		t.Fatalf("expected parent store to be unaffected by uncommitted overlay")
	}
}

func TestSpendThenCommitRemovesOutput(t *testing.T) {
	ws := openTestState(t)
	ref := hashes.Hash256([]byte("utxo-c"))

	c := NewCached(ws)
	c.PutAssetOutput(ref, chain.AssetOutput{Amount: hashes.NewU256(1)})
	if err := ws.db.Batch(Writes(c.Diff())); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	c2 := NewCached(ws)
	c2.SpendAssetOutput(ref)
	if err := ws.db.Batch(Writes(c2.Diff())); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	_, ok, err := ws.GetAssetOutput(ref)
	if err != nil {
		t.Fatalf("GetAssetOutput: %v", err)
	}
	if ok {
		t.Fatalf("expected output to be spent/removed")
	}
}

func TestContractLifecycle(t *testing.T) {
	ws := openTestState(t)
	id := hashes.Hash256([]byte("contract-x"))
	outRef := hashes.Hash256([]byte("contract-x-out"))

	c := NewCached(ws)
	c.PutContractState(chain.ContractState{ContractID: id, CodeHash: hashes.Hash256([]byte("code"))})
	c.PutContractOutput(outRef, chain.ContractOutput{Amount: hashes.NewU256(100)})
	if err := ws.db.Batch(Writes(c.Diff())); err != nil {
		t.Fatalf("Batch: %v", err)
	}

	if _, ok, _ := ws.GetContractState(id); !ok {
		t.Fatalf("expected contract state present")
	}

	c2 := NewCached(ws)
	c2.DestroyContract(id, outRef)
	if err := ws.db.Batch(Writes(c2.Diff())); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if _, ok, _ := ws.GetContractState(id); ok {
		t.Fatalf("expected contract state destroyed")
	}
	if _, ok, _ := ws.GetContractOutput(outRef); ok {
		t.Fatalf("expected contract output destroyed")
	}
}

func TestMergePrecedence(t *testing.T) {
	ws := openTestState(t)
	ref := hashes.Hash256([]byte("utxo-m"))

	base := NewCached(ws)
	base.PutAssetOutput(ref, chain.AssetOutput{Amount: hashes.NewU256(1)})

	overlay := NewCached(ws)
	overlay.PutAssetOutput(ref, chain.AssetOutput{Amount: hashes.NewU256(2)})

	base.Merge(overlay.Diff())
	got, ok, err := base.GetAssetOutput(ref)
	if err != nil || !ok {
		t.Fatalf("GetAssetOutput: ok=%v err=%v", ok, err)
	}
	if got.Amount.Cmp(hashes.NewU256(2)) != 0 {
		t.Fatalf("expected merged overlay to take precedence, got=%s", got.Amount)
	}
}
