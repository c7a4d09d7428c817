package chain

import (
	"testing"

	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/serde"
)

func sampleOutput() AssetOutput {
	return AssetOutput{
		Amount:       hashes.NewU256(1000),
		LockupScript: []byte{0x01, 0x02},
		LockTime:     0,
		Tokens: []Token{
			{ID: hashes.Hash256([]byte("token-a")), Amount: hashes.NewU256(5)},
		},
		AdditionalData: []byte("memo"),
	}
}

func sampleTx() Transaction {
	return Transaction{
		Unsigned: UnsignedTx{
			Script:    nil,
			GasAmount: 20000,
			GasPrice:  hashes.NewU256(100),
			Inputs: []TxInput{
				{OutputRef: TxOutputRef{Kind: OutputRefAsset, Key: hashes.Hash256([]byte("utxo-1"))}, UnlockScript: []byte{0xde, 0xad}},
			},
			FixedOutputs: []AssetOutput{sampleOutput()},
		},
		InputSignatures: [][]byte{[]byte("sig-1")},
	}
}

func TestAssetOutputRoundTrip(t *testing.T) {
	o := sampleOutput()
	w := serde.NewWriter(64)
	PutAssetOutput(w, o)
	r := serde.NewReader(w.Bytes())
	got, err := ReadAssetOutput(r)
	if err != nil {
		t.Fatalf("ReadAssetOutput: %v", err)
	}
	if got.Amount.Cmp(o.Amount) != 0 || string(got.LockupScript) != string(o.LockupScript) {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", got, o)
	}
	if len(got.Tokens) != 1 || got.Tokens[0].Amount.Cmp(o.Tokens[0].Amount) != 0 {
		t.Fatalf("token round trip mismatch: %+v", got.Tokens)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	tx := sampleTx()
	enc := EncodeTransaction(tx)
	got, err := DecodeTransaction(enc)
	if err != nil {
		t.Fatalf("DecodeTransaction: %v", err)
	}
	if TxID(got) != TxID(tx) {
		t.Fatalf("tx id mismatch after round trip")
	}
	if len(got.Unsigned.Inputs) != 1 || len(got.Unsigned.FixedOutputs) != 1 {
		t.Fatalf("unexpected shape after round trip: %+v", got)
	}
}

func TestHeaderRoundTripAndHash(t *testing.T) {
	h := BlockHeader{
		ParentHash:   hashes.Zero,
		Deps:         []hashes.Hash{hashes.Hash256([]byte("d1")), hashes.Hash256([]byte("d2"))},
		DepStateHash: hashes.Hash256([]byte("state")),
		TxsHash:      hashes.Hash256([]byte("txs")),
		Timestamp:    1234567,
		Target:       hashes.MaxTarget,
		Nonce:        42,
	}
	enc := EncodeHeader(h)
	got, err := DecodeHeader(enc)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if HeaderHash(got) != HeaderHash(h) {
		t.Fatalf("header hash mismatch after round trip")
	}
	if !got.IsGenesis() {
		t.Fatalf("expected genesis header (zero parent)")
	}
}

func TestMerkleRootDeterministic(t *testing.T) {
	txs := []Transaction{sampleTx(), sampleTx()}
	r1, err := MerkleRoot(txs)
	if err != nil {
		t.Fatalf("MerkleRoot: %v", err)
	}
	r2, err := MerkleRoot(txs)
	if err != nil {
		t.Fatalf("MerkleRoot: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("merkle root not deterministic")
	}
}

func TestMerkleRootEmptyErrors(t *testing.T) {
	if _, err := MerkleRoot(nil); err == nil {
		t.Fatalf("expected error for empty tx list")
	}
}

func TestDepIndexHelpers(t *testing.T) {
	groups := 4
	if idx := DepIndexIntraGroup(1, 0, groups); idx != 0 {
		t.Fatalf("expected index 0, got %d", idx)
	}
	if idx := DepIndexIntraGroup(1, 2, groups); idx != 1 {
		t.Fatalf("expected index 1, got %d", idx)
	}
	if idx := DepIndexInterGroup(2, groups); idx != groups-1+2 {
		t.Fatalf("unexpected inter-group index: %d", idx)
	}
}
