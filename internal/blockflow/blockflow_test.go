package blockflow

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/difficulty"
	"github.com/zheli/alephium/internal/flowcache"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/mempool"
	"github.com/zheli/alephium/internal/mining"
	"github.com/zheli/alephium/internal/ports"
	"github.com/zheli/alephium/internal/storage"
	"github.com/zheli/alephium/internal/validator"
	"github.com/zheli/alephium/internal/vm"
	"github.com/zheli/alephium/internal/worldstate"
)

func newTestBlockFlow(t *testing.T, groups int) (*BlockFlow, *mempool.Mempool, difficulty.Config) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ws := worldstate.Open(db)
	vcfg := validator.DefaultConfig()
	vcfg.Groups = groups
	vcfg.BrokerFromStart, vcfg.BrokerFromEnd = 0, groups
	dcfg := difficulty.DefaultConfig()
	dcfg.MaxMiningTarget = hashes.MaxTarget

	val := validator.New(vcfg, vm.NewMachine())
	mem := mempool.New(1000, 1000)
	cache := flowcache.New(16, 16, 16)
	bus := ports.NewBus()

	bf := New(Deps{
		Groups:     groups,
		DB:         db,
		WorldState: ws,
		Difficulty: dcfg,
		Validator:  val,
		Mempool:    mem,
		Cache:      cache,
		Bus:        bus,
		Log:        zerolog.Nop(),
	})
	return bf, mem, dcfg
}

// addTestGenesis installs a genesis block. With groups==1 every header hash
// lands on chain (0,0) (hashes.FromHash modulo G*G == 1), so one call
// genesis-izes the only chain in the grid.
func addTestGenesis(t *testing.T, bf *BlockFlow, groups int, target hashes.Target) {
	t.Helper()
	g := chain.Block{Header: chain.BlockHeader{Target: target}}
	if err := bf.AddGenesisBlock(g); err != nil {
		t.Fatalf("AddGenesisBlock: %v", err)
	}
}

func TestAddGenesisBlockInstallsTip(t *testing.T) {
	bf, _, _ := newTestBlockFlow(t, 1)
	addTestGenesis(t, bf, 1, hashes.MaxTarget)

	ci := hashes.ChainIndex{From: 0, To: 0}
	tree := bf.Tree(ci)
	if tree == nil {
		t.Fatalf("expected tree for chain %s", ci)
	}
	if !tree.HasGenesis() {
		t.Fatalf("expected genesis installed")
	}
}

func TestAddAndUpdateViewAcceptsMinedTemplate(t *testing.T) {
	bf, mem, dcfg := newTestBlockFlow(t, 1)
	addTestGenesis(t, bf, 1, hashes.MaxTarget)

	builder := mining.New(bf, mem, validator.DefaultConfig(), dcfg, 1, func() hashes.Timestamp { return 1000 })
	ci := hashes.ChainIndex{From: 0, To: 0}
	minerLockup := validator.LockupForPubkey(validator.SchemeEd25519, make([]byte, 32))

	block, err := builder.PrepareBlockFlowUnsafe(ci, minerLockup)
	if err != nil {
		t.Fatalf("PrepareBlockFlowUnsafe: %v", err)
	}

	if err := bf.AddAndUpdateView(block); err != nil {
		t.Fatalf("AddAndUpdateView rejected a freshly mined template: %v", err)
	}

	tree := bf.Tree(ci)
	height, err := tree.GetHeight(chain.HeaderHash(block.Header))
	if err != nil {
		t.Fatalf("GetHeight: %v", err)
	}
	if height != 1 {
		t.Fatalf("expected new block at height 1, got %d", height)
	}
}

func TestAddAndUpdateViewIsIdempotent(t *testing.T) {
	bf, mem, dcfg := newTestBlockFlow(t, 1)
	addTestGenesis(t, bf, 1, hashes.MaxTarget)

	builder := mining.New(bf, mem, validator.DefaultConfig(), dcfg, 1, func() hashes.Timestamp { return 1000 })
	ci := hashes.ChainIndex{From: 0, To: 0}
	minerLockup := validator.LockupForPubkey(validator.SchemeEd25519, make([]byte, 32))

	block, err := builder.PrepareBlockFlowUnsafe(ci, minerLockup)
	if err != nil {
		t.Fatalf("PrepareBlockFlowUnsafe: %v", err)
	}
	if err := bf.AddAndUpdateView(block); err != nil {
		t.Fatalf("first AddAndUpdateView: %v", err)
	}
	if err := bf.AddAndUpdateView(block); err != nil {
		t.Fatalf("replaying an already-accepted block should be a no-op, got %v", err)
	}
}
