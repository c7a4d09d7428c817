// Package worldstate implements the persistent UTXO + contract-state map
// (spec §3 "WorldState", §2 item 4) and the copy-on-write overlay used while
// executing a block's transactions before they are committed.
package worldstate

import (
	"fmt"

	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/storage"
)

const (
	prefixAssetOutput    = "ao:"
	prefixContractState  = "cs:"
	prefixContractOutput = "co:"
)

func assetKey(ref hashes.Hash) []byte {
	return append([]byte(prefixAssetOutput), ref[:]...)
}

func contractStateKey(id hashes.Hash) []byte {
	return append([]byte(prefixContractState), id[:]...)
}

func contractOutputKey(ref hashes.Hash) []byte {
	return append([]byte(prefixContractOutput), ref[:]...)
}

// View is the read surface every execution layer (validator, VM, RPC
// balance queries) programs against, whether it is backed directly by
// storage or by a in-flight overlay.
type View interface {
	GetAssetOutput(ref hashes.Hash) (chain.AssetOutput, bool, error)
	GetContractState(id hashes.Hash) (chain.ContractState, bool, error)
	GetContractOutput(ref hashes.Hash) (chain.ContractOutput, bool, error)
}

// mutation holds pending changes to the world-state per key: a non-nil
// pointer means "write this value", a nil pointer means "remove this key".
type mutation struct {
	assetOutputs    map[hashes.Hash]*chain.AssetOutput
	contractStates  map[hashes.Hash]*chain.ContractState
	contractOutputs map[hashes.Hash]*chain.ContractOutput
}

func newMutation() *mutation {
	return &mutation{
		assetOutputs:    make(map[hashes.Hash]*chain.AssetOutput),
		contractStates:  make(map[hashes.Hash]*chain.ContractState),
		contractOutputs: make(map[hashes.Hash]*chain.ContractOutput),
	}
}

// WorldState is the durable, storage-backed map, addressed by the column
// family ColumnWorldState. Unlike the teacher's flat UTXO map
// (node/chainstate.go) this map also tracks contract fields and contract
// asset outputs (spec §3). It is a plain key-value map, not a trie: no root
// hash is computed over it, and a block header's DepStateHash is neither
// derived from it nor checked against it.
type WorldState struct {
	db *storage.DB
}

// Open wraps an existing storage.DB for world-state reads and writes.
func Open(db *storage.DB) *WorldState {
	return &WorldState{db: db}
}

// GetAssetOutput looks up an unspent asset output by its reference key.
func (w *WorldState) GetAssetOutput(ref hashes.Hash) (chain.AssetOutput, bool, error) {
	v, ok, err := w.db.Get(storage.ColumnWorldState, assetKey(ref))
	if err != nil || !ok {
		return chain.AssetOutput{}, ok, err
	}
	o, err := chain.ReadAssetOutput(newCodecReader(v))
	if err != nil {
		return chain.AssetOutput{}, false, fmt.Errorf("worldstate: decode asset output: %w", err)
	}
	return o, true, nil
}

// GetContractState looks up a live contract's fields and metadata.
func (w *WorldState) GetContractState(id hashes.Hash) (chain.ContractState, bool, error) {
	v, ok, err := w.db.Get(storage.ColumnWorldState, contractStateKey(id))
	if err != nil || !ok {
		return chain.ContractState{}, ok, err
	}
	cs, err := chain.DecodeContractState(v)
	if err != nil {
		return chain.ContractState{}, false, fmt.Errorf("worldstate: decode contract state: %w", err)
	}
	return cs, true, nil
}

// GetContractOutput looks up the asset output currently attached to a
// contract.
func (w *WorldState) GetContractOutput(ref hashes.Hash) (chain.ContractOutput, bool, error) {
	v, ok, err := w.db.Get(storage.ColumnWorldState, contractOutputKey(ref))
	if err != nil || !ok {
		return chain.ContractOutput{}, ok, err
	}
	co, err := decodeContractOutput(v)
	if err != nil {
		return chain.ContractOutput{}, false, fmt.Errorf("worldstate: decode contract output: %w", err)
	}
	return co, true, nil
}

// Writes converts a Diff computed by a Cached overlay into the storage.Write
// list for one storage.DB.Batch. BlockFlow commits that batch after the
// block tree has stored the block's header in its own transaction.
func Writes(d Diff) []storage.Write {
	var out []storage.Write
	for k, v := range d.AssetOutputs {
		if v == nil {
			out = append(out, storage.Write{Column: storage.ColumnWorldState, Key: assetKey(k), Value: nil})
			continue
		}
		w := newCodecWriter()
		chain.PutAssetOutput(w, *v)
		out = append(out, storage.Write{Column: storage.ColumnWorldState, Key: assetKey(k), Value: w.Bytes()})
	}
	for k, v := range d.ContractStates {
		if v == nil {
			out = append(out, storage.Write{Column: storage.ColumnWorldState, Key: contractStateKey(k), Value: nil})
			continue
		}
		out = append(out, storage.Write{Column: storage.ColumnWorldState, Key: contractStateKey(k), Value: chain.EncodeContractState(*v)})
	}
	for k, v := range d.ContractOutputs {
		if v == nil {
			out = append(out, storage.Write{Column: storage.ColumnWorldState, Key: contractOutputKey(k), Value: nil})
			continue
		}
		out = append(out, storage.Write{Column: storage.ColumnWorldState, Key: contractOutputKey(k), Value: encodeContractOutput(*v)})
	}
	return out
}
