// Package chain holds the data model shared by every other core package:
// headers, transactions, outputs, and the VM's value representation (spec
// §3). It has no storage or validation logic of its own.
package chain

import "github.com/zheli/alephium/internal/hashes"

// Token is an amount of a non-native asset keyed by its defining contract.
type Token struct {
	ID     hashes.Hash
	Amount hashes.U256
}

// AssetOutput is a spendable UTXO: value, a lockup predicate, an optional
// time lock, a token map, and opaque additional data (spec §3).
type AssetOutput struct {
	Amount         hashes.U256
	LockupScript   []byte
	LockTime       hashes.Timestamp // zero means "no time lock"
	Tokens         []Token
	AdditionalData []byte
}

// ContractOutput is the asset-bearing output attached to a live contract.
type ContractOutput struct {
	Amount       hashes.U256
	LockupScript []byte
	Tokens       []Token
}

// OutputRefKind tags whether a TxOutputRef names an asset UTXO or a
// contract's asset output (spec §3, "AssetOutputRef / ContractOutputRef are
// distinguished variants").
type OutputRefKind byte

const (
	OutputRefAsset OutputRefKind = iota
	OutputRefContract
)

// TxOutputRef is a tagged 32-byte key identifying a spendable output.
type TxOutputRef struct {
	Kind OutputRefKind
	Key  hashes.Hash
}

// TxInput spends one output, authorizing the spend with UnlockScript.
type TxInput struct {
	OutputRef    TxOutputRef
	UnlockScript []byte
}

// UnsignedTx is the signable portion of a transaction.
type UnsignedTx struct {
	Script       []byte // nil/empty: no script, a plain value transfer
	GasAmount    uint64
	GasPrice     hashes.U256
	Inputs       []TxInput
	FixedOutputs []AssetOutput
}

// GeneratedOutput is an output minted during script execution; it may be an
// asset output or a fresh contract output depending on IsContract.
type GeneratedOutput struct {
	IsContract bool
	Asset      AssetOutput
	Contract   ContractOutput
}

// Transaction is a fully formed transaction as it appears in a block.
type Transaction struct {
	Unsigned           UnsignedTx
	ContractInputs     []TxOutputRef
	GeneratedOutputs   []GeneratedOutput
	InputSignatures    [][]byte
	ContractSignatures [][]byte
}

// HasScript reports whether the transaction carries a txScript to execute.
func (tx *Transaction) HasScript() bool {
	return len(tx.Unsigned.Script) > 0
}

// BlockHeader commits to a block's dependency set, post-execution state
// root, transaction Merkle root, timestamp, difficulty target and nonce
// (spec §3).
type BlockHeader struct {
	// ParentHash is this chain's own previous block; it is tracked
	// separately from Deps because the per-chain block tree (§4.1) needs an
	// unambiguous single parent, while Deps (below) encodes the
	// cross-chain best-tip vector consumed by the block-flow DAG (§4.2).
	// A genesis header has ParentHash == hashes.Zero.
	ParentHash hashes.Hash

	// Deps has length 2*groups-1: the first groups-1 entries are the tips
	// of the other chains sharing this header's From group ("intra-group
	// deps"); the remaining groups entries are the tips of each group's own
	// diagonal chain (g,g) ("inter-group deps"). DESIGN.md records why the
	// block's own parent is kept in ParentHash rather than in Deps.
	Deps []hashes.Hash

	DepStateHash hashes.Hash
	TxsHash      hashes.Hash
	Timestamp    hashes.Timestamp
	Target       hashes.Target
	Nonce        uint64
}

// IsGenesis reports whether h has no parent, i.e. starts a chain.
func (h *BlockHeader) IsGenesis() bool {
	return h.ParentHash.IsZero()
}

// Block pairs a header with its ordered transaction list. The last
// transaction is always the coinbase (spec §3).
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
}

// Coinbase returns the block's coinbase transaction, which by construction
// is always the last element of Transactions.
func (b *Block) Coinbase() *Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return &b.Transactions[len(b.Transactions)-1]
}

// NonCoinbaseTxs returns every transaction except the trailing coinbase.
func (b *Block) NonCoinbaseTxs() []Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[:len(b.Transactions)-1]
}

// DepIndexIntraGroup returns the Deps slot for the tip of chain
// (fromGroup, otherTo), otherTo != fromGroup, within a header whose own
// From group is fromGroup.
func DepIndexIntraGroup(fromGroup, otherTo, groups int) int {
	if otherTo == fromGroup {
		panic("chain: intra-group dep index requested for own chain")
	}
	if otherTo < fromGroup {
		return otherTo
	}
	return otherTo - 1
}

// DepIndexInterGroup returns the Deps slot for the tip of the diagonal
// chain (group, group), within a header for groups total groups.
func DepIndexInterGroup(group, groups int) int {
	return (groups - 1) + group
}
