package worldstate

import (
	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/serde"
)

func newCodecReader(b []byte) *serde.Reader { return serde.NewReader(b) }
func newCodecWriter() *serde.Writer         { return serde.NewWriter(128) }

func encodeContractOutput(co chain.ContractOutput) []byte {
	w := newCodecWriter()
	amt := co.Amount.Bytes32()
	w.PutBytes(amt[:])
	w.PutBytesLP(co.LockupScript)
	w.PutCompactSize(uint64(len(co.Tokens)))
	for _, t := range co.Tokens {
		w.PutBytes(t.ID[:])
		tamt := t.Amount.Bytes32()
		w.PutBytes(tamt[:])
	}
	return w.Bytes()
}

func decodeContractOutput(b []byte) (chain.ContractOutput, error) {
	r := newCodecReader(b)
	var co chain.ContractOutput
	amtb, err := r.ReadBytes(32)
	if err != nil {
		return co, err
	}
	var amt32 [32]byte
	copy(amt32[:], amtb)
	co.Amount = hashes.U256FromBytes32(amt32)
	co.LockupScript, err = r.ReadBytesLP(4096)
	if err != nil {
		return co, err
	}
	n, err := r.ReadCompactSize()
	if err != nil {
		return co, err
	}
	co.Tokens = make([]chain.Token, 0, n)
	for i := uint64(0); i < n; i++ {
		idb, err := r.ReadBytes(32)
		if err != nil {
			return co, err
		}
		var id hashes.Hash
		copy(id[:], idb)
		tamtb, err := r.ReadBytes(32)
		if err != nil {
			return co, err
		}
		var tamt32 [32]byte
		copy(tamt32[:], tamtb)
		co.Tokens = append(co.Tokens, chain.Token{ID: id, Amount: hashes.U256FromBytes32(tamt32)})
	}
	return co, nil
}
