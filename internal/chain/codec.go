package chain

import (
	"fmt"
	"math/big"

	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/serde"
)

const (
	maxScriptLen   = 64 * 1024
	maxTokens      = 256
	maxAdditional  = 16 * 1024
	maxOutputs     = 4096
	maxInputs      = 4096
	maxSignatures  = 4096
	maxLockupBytes = 4 * 1024
)

func putToken(w *serde.Writer, t Token) {
	w.PutBytes(t.ID[:])
	amt := t.Amount.Bytes32()
	w.PutBytes(amt[:])
}

func readToken(r *serde.Reader) (Token, error) {
	idb, err := r.ReadBytes(32)
	if err != nil {
		return Token{}, fmt.Errorf("chain: token id: %w", err)
	}
	var id hashes.Hash
	copy(id[:], idb)
	amtb, err := r.ReadBytes(32)
	if err != nil {
		return Token{}, fmt.Errorf("chain: token amount: %w", err)
	}
	var amt32 [32]byte
	copy(amt32[:], amtb)
	return Token{ID: id, Amount: hashes.U256FromBytes32(amt32)}, nil
}

func putTokens(w *serde.Writer, tokens []Token) {
	w.PutCompactSize(uint64(len(tokens)))
	for _, t := range tokens {
		putToken(w, t)
	}
}

func readTokens(r *serde.Reader) ([]Token, error) {
	n, err := r.ReadCompactSize()
	if err != nil {
		return nil, err
	}
	if n > maxTokens {
		return nil, fmt.Errorf("chain: token count %d exceeds cap", n)
	}
	out := make([]Token, 0, n)
	for i := uint64(0); i < n; i++ {
		t, err := readToken(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// PutAssetOutput appends the canonical encoding of o to w.
func PutAssetOutput(w *serde.Writer, o AssetOutput) {
	amt := o.Amount.Bytes32()
	w.PutBytes(amt[:])
	w.PutBytesLP(o.LockupScript)
	w.PutI64(int64(o.LockTime))
	putTokens(w, o.Tokens)
	w.PutBytesLP(o.AdditionalData)
}

// ReadAssetOutput decodes one AssetOutput from r.
func ReadAssetOutput(r *serde.Reader) (AssetOutput, error) {
	var o AssetOutput
	amtb, err := r.ReadBytes(32)
	if err != nil {
		return o, fmt.Errorf("chain: output amount: %w", err)
	}
	var amt32 [32]byte
	copy(amt32[:], amtb)
	o.Amount = hashes.U256FromBytes32(amt32)

	o.LockupScript, err = r.ReadBytesLP(maxLockupBytes)
	if err != nil {
		return o, fmt.Errorf("chain: output lockup script: %w", err)
	}
	lt, err := r.ReadI64()
	if err != nil {
		return o, fmt.Errorf("chain: output locktime: %w", err)
	}
	o.LockTime = hashes.Timestamp(lt)
	o.Tokens, err = readTokens(r)
	if err != nil {
		return o, fmt.Errorf("chain: output tokens: %w", err)
	}
	o.AdditionalData, err = r.ReadBytesLP(maxAdditional)
	if err != nil {
		return o, fmt.Errorf("chain: output additional data: %w", err)
	}
	return o, nil
}

func putOutputRef(w *serde.Writer, ref TxOutputRef) {
	w.PutByte(byte(ref.Kind))
	w.PutBytes(ref.Key[:])
}

func readOutputRef(r *serde.Reader) (TxOutputRef, error) {
	var ref TxOutputRef
	kind, err := r.ReadByte()
	if err != nil {
		return ref, err
	}
	ref.Kind = OutputRefKind(kind)
	keyb, err := r.ReadBytes(32)
	if err != nil {
		return ref, fmt.Errorf("chain: output ref key: %w", err)
	}
	copy(ref.Key[:], keyb)
	return ref, nil
}

func putInput(w *serde.Writer, in TxInput) {
	putOutputRef(w, in.OutputRef)
	w.PutBytesLP(in.UnlockScript)
}

func readInput(r *serde.Reader) (TxInput, error) {
	var in TxInput
	ref, err := readOutputRef(r)
	if err != nil {
		return in, err
	}
	in.OutputRef = ref
	in.UnlockScript, err = r.ReadBytesLP(maxLockupBytes)
	if err != nil {
		return in, fmt.Errorf("chain: input unlock script: %w", err)
	}
	return in, nil
}

// EncodeUnsignedTx returns the canonical encoding of an UnsignedTx.
func EncodeUnsignedTx(tx UnsignedTx) []byte {
	w := serde.NewWriter(256)
	w.PutBytesLP(tx.Script)
	w.PutU64(tx.GasAmount)
	price := tx.GasPrice.Bytes32()
	w.PutBytes(price[:])
	w.PutCompactSize(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		putInput(w, in)
	}
	w.PutCompactSize(uint64(len(tx.FixedOutputs)))
	for _, o := range tx.FixedOutputs {
		PutAssetOutput(w, o)
	}
	return w.Bytes()
}

// DecodeUnsignedTx parses the canonical encoding produced by EncodeUnsignedTx.
func DecodeUnsignedTx(b []byte) (UnsignedTx, error) {
	r := serde.NewReader(b)
	var tx UnsignedTx
	var err error
	tx.Script, err = r.ReadBytesLP(maxScriptLen)
	if err != nil {
		return tx, fmt.Errorf("chain: unsigned tx script: %w", err)
	}
	tx.GasAmount, err = r.ReadU64()
	if err != nil {
		return tx, fmt.Errorf("chain: unsigned tx gas amount: %w", err)
	}
	priceb, err := r.ReadBytes(32)
	if err != nil {
		return tx, fmt.Errorf("chain: unsigned tx gas price: %w", err)
	}
	var price32 [32]byte
	copy(price32[:], priceb)
	tx.GasPrice = hashes.U256FromBytes32(price32)

	nIn, err := r.ReadCompactSize()
	if err != nil {
		return tx, err
	}
	if nIn > maxInputs {
		return tx, fmt.Errorf("chain: input count %d exceeds cap", nIn)
	}
	tx.Inputs = make([]TxInput, 0, nIn)
	for i := uint64(0); i < nIn; i++ {
		in, err := readInput(r)
		if err != nil {
			return tx, err
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	nOut, err := r.ReadCompactSize()
	if err != nil {
		return tx, err
	}
	if nOut > maxOutputs {
		return tx, fmt.Errorf("chain: output count %d exceeds cap", nOut)
	}
	tx.FixedOutputs = make([]AssetOutput, 0, nOut)
	for i := uint64(0); i < nOut; i++ {
		o, err := ReadAssetOutput(r)
		if err != nil {
			return tx, err
		}
		tx.FixedOutputs = append(tx.FixedOutputs, o)
	}
	if !r.Done() {
		return tx, fmt.Errorf("chain: trailing bytes after unsigned tx")
	}
	return tx, nil
}

// EncodeTransaction returns the canonical encoding of a full Transaction.
func EncodeTransaction(tx Transaction) []byte {
	w := serde.NewWriter(512)
	unsigned := EncodeUnsignedTx(tx.Unsigned)
	w.PutBytesLP(unsigned)

	w.PutCompactSize(uint64(len(tx.ContractInputs)))
	for _, ref := range tx.ContractInputs {
		putOutputRef(w, ref)
	}

	w.PutCompactSize(uint64(len(tx.GeneratedOutputs)))
	for _, g := range tx.GeneratedOutputs {
		if g.IsContract {
			w.PutByte(1)
			amt := g.Contract.Amount.Bytes32()
			w.PutBytes(amt[:])
			w.PutBytesLP(g.Contract.LockupScript)
			putTokens(w, g.Contract.Tokens)
		} else {
			w.PutByte(0)
			PutAssetOutput(w, g.Asset)
		}
	}

	w.PutCompactSize(uint64(len(tx.InputSignatures)))
	for _, sig := range tx.InputSignatures {
		w.PutBytesLP(sig)
	}
	w.PutCompactSize(uint64(len(tx.ContractSignatures)))
	for _, sig := range tx.ContractSignatures {
		w.PutBytesLP(sig)
	}
	return w.Bytes()
}

// DecodeTransaction parses the canonical encoding produced by
// EncodeTransaction.
func DecodeTransaction(b []byte) (Transaction, error) {
	r := serde.NewReader(b)
	var tx Transaction

	unsignedB, err := r.ReadBytesLP(1 << 20)
	if err != nil {
		return tx, fmt.Errorf("chain: tx unsigned: %w", err)
	}
	tx.Unsigned, err = DecodeUnsignedTx(unsignedB)
	if err != nil {
		return tx, err
	}

	nCI, err := r.ReadCompactSize()
	if err != nil {
		return tx, err
	}
	if nCI > maxInputs {
		return tx, fmt.Errorf("chain: contract input count %d exceeds cap", nCI)
	}
	tx.ContractInputs = make([]TxOutputRef, 0, nCI)
	for i := uint64(0); i < nCI; i++ {
		ref, err := readOutputRef(r)
		if err != nil {
			return tx, err
		}
		tx.ContractInputs = append(tx.ContractInputs, ref)
	}

	nGO, err := r.ReadCompactSize()
	if err != nil {
		return tx, err
	}
	if nGO > maxOutputs {
		return tx, fmt.Errorf("chain: generated output count %d exceeds cap", nGO)
	}
	tx.GeneratedOutputs = make([]GeneratedOutput, 0, nGO)
	for i := uint64(0); i < nGO; i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return tx, err
		}
		if tag == 1 {
			var co ContractOutput
			amtb, err := r.ReadBytes(32)
			if err != nil {
				return tx, err
			}
			var amt32 [32]byte
			copy(amt32[:], amtb)
			co.Amount = hashes.U256FromBytes32(amt32)
			co.LockupScript, err = r.ReadBytesLP(maxLockupBytes)
			if err != nil {
				return tx, err
			}
			co.Tokens, err = readTokens(r)
			if err != nil {
				return tx, err
			}
			tx.GeneratedOutputs = append(tx.GeneratedOutputs, GeneratedOutput{IsContract: true, Contract: co})
		} else {
			ao, err := ReadAssetOutput(r)
			if err != nil {
				return tx, err
			}
			tx.GeneratedOutputs = append(tx.GeneratedOutputs, GeneratedOutput{Asset: ao})
		}
	}

	nSig, err := r.ReadCompactSize()
	if err != nil {
		return tx, err
	}
	if nSig > maxSignatures {
		return tx, fmt.Errorf("chain: input signature count %d exceeds cap", nSig)
	}
	for i := uint64(0); i < nSig; i++ {
		sig, err := r.ReadBytesLP(4096)
		if err != nil {
			return tx, err
		}
		tx.InputSignatures = append(tx.InputSignatures, sig)
	}

	nCSig, err := r.ReadCompactSize()
	if err != nil {
		return tx, err
	}
	if nCSig > maxSignatures {
		return tx, fmt.Errorf("chain: contract signature count %d exceeds cap", nCSig)
	}
	for i := uint64(0); i < nCSig; i++ {
		sig, err := r.ReadBytesLP(4096)
		if err != nil {
			return tx, err
		}
		tx.ContractSignatures = append(tx.ContractSignatures, sig)
	}

	if !r.Done() {
		return tx, fmt.Errorf("chain: trailing bytes after transaction")
	}
	return tx, nil
}

// PutVal appends the canonical encoding of a VM value.
func PutVal(w *serde.Writer, v Val) {
	w.PutByte(byte(v.Kind))
	switch v.Kind {
	case ValBool:
		if v.Bool {
			w.PutByte(1)
		} else {
			w.PutByte(0)
		}
	case ValI256:
		b := v.I256.String()
		w.PutBytesLP([]byte(b))
	case ValU256:
		b := v.U256.Bytes32()
		w.PutBytes(b[:])
	case ValByteVec:
		w.PutBytesLP(v.Bytes)
	case ValAddress:
		w.PutByte(byte(v.Address.Kind))
		w.PutBytes(v.Address.Hash[:])
	}
}

// ReadVal decodes one VM value produced by PutVal.
func ReadVal(r *serde.Reader) (Val, error) {
	kindB, err := r.ReadByte()
	if err != nil {
		return Val{}, err
	}
	kind := ValKind(kindB)
	switch kind {
	case ValBool:
		b, err := r.ReadByte()
		if err != nil {
			return Val{}, err
		}
		return BoolVal(b != 0), nil
	case ValI256:
		raw, err := r.ReadBytesLP(128)
		if err != nil {
			return Val{}, err
		}
		bi, ok := new(big.Int).SetString(string(raw), 10)
		if !ok {
			return Val{}, fmt.Errorf("chain: invalid i256 literal %q", raw)
		}
		iv, err := hashes.I256FromBigInt(bi)
		if err != nil {
			return Val{}, err
		}
		return I256Val(iv), nil
	case ValU256:
		b, err := r.ReadBytes(32)
		if err != nil {
			return Val{}, err
		}
		var b32 [32]byte
		copy(b32[:], b)
		return U256Val(hashes.U256FromBytes32(b32)), nil
	case ValByteVec:
		b, err := r.ReadBytesLP(maxAdditional)
		if err != nil {
			return Val{}, err
		}
		return ByteVecVal(b), nil
	case ValAddress:
		kb, err := r.ReadByte()
		if err != nil {
			return Val{}, err
		}
		hb, err := r.ReadBytes(32)
		if err != nil {
			return Val{}, err
		}
		var h hashes.Hash
		copy(h[:], hb)
		return AddressVal(Address{Kind: AddressKind(kb), Hash: h}), nil
	default:
		return Val{}, fmt.Errorf("chain: unknown val kind %d", kind)
	}
}

// EncodeContractState returns the canonical encoding of a ContractState.
func EncodeContractState(cs ContractState) []byte {
	w := serde.NewWriter(64 + 32*len(cs.Fields))
	w.PutBytes(cs.ContractID[:])
	w.PutCompactSize(uint64(len(cs.Fields)))
	for _, f := range cs.Fields {
		PutVal(w, f)
	}
	w.PutBytes(cs.CodeHash[:])
	w.PutByte(byte(cs.AssetOutputRef.Kind))
	w.PutBytes(cs.AssetOutputRef.Key[:])
	return w.Bytes()
}

// DecodeContractState parses the canonical encoding produced by
// EncodeContractState.
func DecodeContractState(b []byte) (ContractState, error) {
	r := serde.NewReader(b)
	var cs ContractState
	idb, err := r.ReadBytes(32)
	if err != nil {
		return cs, err
	}
	copy(cs.ContractID[:], idb)

	n, err := r.ReadCompactSize()
	if err != nil {
		return cs, err
	}
	if n > 256 {
		return cs, fmt.Errorf("chain: contract field count %d exceeds cap", n)
	}
	cs.Fields = make([]Val, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := ReadVal(r)
		if err != nil {
			return cs, err
		}
		cs.Fields = append(cs.Fields, v)
	}

	codeHashB, err := r.ReadBytes(32)
	if err != nil {
		return cs, err
	}
	copy(cs.CodeHash[:], codeHashB)

	refKind, err := r.ReadByte()
	if err != nil {
		return cs, err
	}
	refKeyB, err := r.ReadBytes(32)
	if err != nil {
		return cs, err
	}
	cs.AssetOutputRef = TxOutputRef{Kind: OutputRefKind(refKind)}
	copy(cs.AssetOutputRef.Key[:], refKeyB)

	if !r.Done() {
		return cs, fmt.Errorf("chain: trailing bytes after contract state")
	}
	return cs, nil
}

// EncodeHeader returns the canonical encoding of a BlockHeader. Every field
// participates in the header hash (spec §3: "The header hash commits to all
// fields").
func EncodeHeader(h BlockHeader) []byte {
	w := serde.NewWriter(128 + 32*len(h.Deps))
	w.PutBytes(h.ParentHash[:])
	w.PutCompactSize(uint64(len(h.Deps)))
	for _, d := range h.Deps {
		w.PutBytes(d[:])
	}
	w.PutBytes(h.DepStateHash[:])
	w.PutBytes(h.TxsHash[:])
	w.PutI64(int64(h.Timestamp))
	w.PutBytes(h.Target[:])
	w.PutU64(h.Nonce)
	return w.Bytes()
}

// DecodeHeader parses the canonical encoding produced by EncodeHeader.
func DecodeHeader(b []byte) (BlockHeader, error) {
	r := serde.NewReader(b)
	var h BlockHeader
	parentB, err := r.ReadBytes(32)
	if err != nil {
		return h, err
	}
	copy(h.ParentHash[:], parentB)

	nDeps, err := r.ReadCompactSize()
	if err != nil {
		return h, err
	}
	if nDeps > 1024 {
		return h, fmt.Errorf("chain: deps count %d exceeds cap", nDeps)
	}
	h.Deps = make([]hashes.Hash, 0, nDeps)
	for i := uint64(0); i < nDeps; i++ {
		db, err := r.ReadBytes(32)
		if err != nil {
			return h, err
		}
		var d hashes.Hash
		copy(d[:], db)
		h.Deps = append(h.Deps, d)
	}

	depState, err := r.ReadBytes(32)
	if err != nil {
		return h, err
	}
	copy(h.DepStateHash[:], depState)
	txsHash, err := r.ReadBytes(32)
	if err != nil {
		return h, err
	}
	copy(h.TxsHash[:], txsHash)
	ts, err := r.ReadI64()
	if err != nil {
		return h, err
	}
	h.Timestamp = hashes.Timestamp(ts)
	targetB, err := r.ReadBytes(32)
	if err != nil {
		return h, err
	}
	copy(h.Target[:], targetB)
	h.Nonce, err = r.ReadU64()
	if err != nil {
		return h, err
	}
	if !r.Done() {
		return h, fmt.Errorf("chain: trailing bytes after header")
	}
	return h, nil
}

// HeaderHash computes the header's commitment hash.
func HeaderHash(h BlockHeader) hashes.Hash {
	return hashes.Hash256(EncodeHeader(h))
}

// TxID computes a transaction's canonical identifier: the double hash of
// its unsigned portion, so malleating witness data (signatures) never
// changes the id (mirrors the teacher's wtxid/txid split in
// consensus/merkle.go, generalized because this VM's scripts can also
// generate additional outputs that must not affect the id).
func TxID(tx Transaction) hashes.Hash {
	return hashes.DoubleHash256(EncodeUnsignedTx(tx.Unsigned))
}

// MerkleRoot computes the Merkle root over a block's transaction ids, using
// the tagged-leaf/tagged-node construction from the teacher's
// consensus/merkle.go (domain-separated tags prevent leaf/node-hash
// confusion attacks).
func MerkleRoot(txs []Transaction) (hashes.Hash, error) {
	if len(txs) == 0 {
		return hashes.Zero, fmt.Errorf("chain: merkle root of empty tx list")
	}
	ids := make([]hashes.Hash, len(txs))
	for i, tx := range txs {
		ids[i] = TxID(tx)
	}
	return merkleRootTagged(ids, 0x00, 0x01)
}

func merkleRootTagged(ids []hashes.Hash, leafTag, nodeTag byte) (hashes.Hash, error) {
	if len(ids) == 0 {
		return hashes.Zero, fmt.Errorf("chain: empty id list")
	}
	level := make([]hashes.Hash, 0, len(ids))
	for _, id := range ids {
		buf := make([]byte, 0, 33)
		buf = append(buf, leafTag)
		buf = append(buf, id[:]...)
		level = append(level, hashes.Hash256(buf))
	}
	for len(level) > 1 {
		next := make([]hashes.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); {
			if i == len(level)-1 {
				next = append(next, level[i])
				i++
				continue
			}
			buf := make([]byte, 0, 65)
			buf = append(buf, nodeTag)
			buf = append(buf, level[i][:]...)
			buf = append(buf, level[i+1][:]...)
			next = append(next, hashes.Hash256(buf))
			i += 2
		}
		level = next
	}
	return level[0], nil
}
