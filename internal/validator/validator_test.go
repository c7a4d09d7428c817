package validator

import (
	"testing"

	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/vm"
)

func nonCoinbaseTx(gasPrice uint64, refKey byte) chain.Transaction {
	return chain.Transaction{
		Unsigned: chain.UnsignedTx{
			GasAmount: 20_000,
			GasPrice:  hashes.NewU256(gasPrice),
			Inputs: []chain.TxInput{{
				OutputRef: chain.TxOutputRef{Key: hashes.Hash{refKey}},
			}},
		},
	}
}

func TestCheckGroupRejectsChainOutsideBroker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BrokerFromStart, cfg.BrokerFromEnd = 0, 2
	v := New(cfg, vm.NewMachine())

	if err := v.CheckGroup(hashes.ChainIndex{From: 3, To: 0}); err == nil {
		t.Fatalf("expected chain outside broker range to be rejected")
	}
	if err := v.CheckGroup(hashes.ChainIndex{From: 1, To: 0}); err != nil {
		t.Fatalf("expected chain inside broker range to be accepted, got %v", err)
	}
}

func TestCheckGasPriceDecreasingRejectsIncrease(t *testing.T) {
	v := New(DefaultConfig(), vm.NewMachine())
	block := &chain.Block{Transactions: []chain.Transaction{
		nonCoinbaseTx(50, 1),
		nonCoinbaseTx(60, 2), // increase over previous: invalid
		{},                   // coinbase placeholder
	}}
	if err := v.CheckGasPriceDecreasing(block); err == nil {
		t.Fatalf("expected increasing gas price to be rejected")
	}
}

func TestCheckGasPriceDecreasingAcceptsNonIncreasing(t *testing.T) {
	v := New(DefaultConfig(), vm.NewMachine())
	block := &chain.Block{Transactions: []chain.Transaction{
		nonCoinbaseTx(60, 1),
		nonCoinbaseTx(50, 2),
		nonCoinbaseTx(50, 3),
		{},
	}}
	if err := v.CheckGasPriceDecreasing(block); err != nil {
		t.Fatalf("expected non-increasing gas prices to be accepted, got %v", err)
	}
}

func TestCheckBlockDoubleSpendingRejectsRepeatedInput(t *testing.T) {
	v := New(DefaultConfig(), vm.NewMachine())
	ref := chain.TxOutputRef{Key: hashes.Hash{7}}
	block := &chain.Block{Transactions: []chain.Transaction{
		{Unsigned: chain.UnsignedTx{Inputs: []chain.TxInput{{OutputRef: ref}}}},
		{Unsigned: chain.UnsignedTx{Inputs: []chain.TxInput{{OutputRef: ref}}}},
		{}, // coinbase
	}}
	if err := v.CheckBlockDoubleSpending(block); err == nil {
		t.Fatalf("expected double-spend within block to be rejected")
	}
}

func TestCheckMerkleRootRejectsTamperedHash(t *testing.T) {
	v := New(DefaultConfig(), vm.NewMachine())
	block := &chain.Block{
		Header:       chain.BlockHeader{TxsHash: hashes.Hash{0xff}},
		Transactions: []chain.Transaction{nonCoinbaseTx(10, 1), {}},
	}
	if err := v.CheckMerkleRoot(block); err == nil {
		t.Fatalf("expected mismatched txsHash to be rejected")
	}
}

func TestCheckTxNumberRejectsOverCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTxsPerBlock = 1
	v := New(cfg, vm.NewMachine())
	block := &chain.Block{Transactions: []chain.Transaction{{}, {}}}
	if err := v.CheckTxNumber(block); err == nil {
		t.Fatalf("expected transaction count over cap to be rejected")
	}
}
