package worldstate

import (
	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
)

// Diff is the set of pending mutations accumulated by a Cached overlay. A
// nil pointer value means "delete this key"; a non-nil pointer means "set
// this key to this value". Diff is what gets turned into storage.Write
// batches at commit time; BlockFlow does not replay diffs across blocks.
type Diff struct {
	AssetOutputs    map[hashes.Hash]*chain.AssetOutput
	ContractStates  map[hashes.Hash]*chain.ContractState
	ContractOutputs map[hashes.Hash]*chain.ContractOutput
}

func newDiff() Diff {
	return Diff{
		AssetOutputs:    make(map[hashes.Hash]*chain.AssetOutput),
		ContractStates:  make(map[hashes.Hash]*chain.ContractState),
		ContractOutputs: make(map[hashes.Hash]*chain.ContractOutput),
	}
}

// Cached is a copy-on-write overlay over a parent View: reads check the
// local diff first and fall through to the parent only on a miss, and
// writes never touch the parent (spec §3: "cached overlay for in-flight
// execution"; spec §5: "World-state overlays are thread-local to the
// executing task and merged into storage atomically at block commit").
type Cached struct {
	parent View
	diff   Diff
}

// NewCached wraps parent with an empty overlay.
func NewCached(parent View) *Cached {
	return &Cached{parent: parent, diff: newDiff()}
}

// GetAssetOutput resolves ref against the overlay, falling through to the
// parent view when the overlay holds no entry for it.
func (c *Cached) GetAssetOutput(ref hashes.Hash) (chain.AssetOutput, bool, error) {
	if v, ok := c.diff.AssetOutputs[ref]; ok {
		if v == nil {
			return chain.AssetOutput{}, false, nil
		}
		return *v, true, nil
	}
	return c.parent.GetAssetOutput(ref)
}

// GetContractState resolves id against the overlay, falling through to the
// parent view on a miss.
func (c *Cached) GetContractState(id hashes.Hash) (chain.ContractState, bool, error) {
	if v, ok := c.diff.ContractStates[id]; ok {
		if v == nil {
			return chain.ContractState{}, false, nil
		}
		return *v, true, nil
	}
	return c.parent.GetContractState(id)
}

// GetContractOutput resolves ref against the overlay, falling through to
// the parent view on a miss.
func (c *Cached) GetContractOutput(ref hashes.Hash) (chain.ContractOutput, bool, error) {
	if v, ok := c.diff.ContractOutputs[ref]; ok {
		if v == nil {
			return chain.ContractOutput{}, false, nil
		}
		return *v, true, nil
	}
	return c.parent.GetContractOutput(ref)
}

// PutAssetOutput stages an asset output create/overwrite in the overlay
// without touching the parent.
func (c *Cached) PutAssetOutput(ref hashes.Hash, out chain.AssetOutput) {
	v := out
	c.diff.AssetOutputs[ref] = &v
}

// SpendAssetOutput stages the removal of an asset output -- the UTXO model's
// "spent" transition (spec §3 Lifecycle: "logically destroyed when spent").
func (c *Cached) SpendAssetOutput(ref hashes.Hash) {
	c.diff.AssetOutputs[ref] = nil
}

// PutContractState stages a contract state create/update.
func (c *Cached) PutContractState(cs chain.ContractState) {
	v := cs
	c.diff.ContractStates[cs.ContractID] = &v
}

// DestroyContract stages the removal of a contract's state and its asset
// output together, matching destroySelf's atomic effect (spec §4.5).
func (c *Cached) DestroyContract(id hashes.Hash, outputRef hashes.Hash) {
	c.diff.ContractStates[id] = nil
	c.diff.ContractOutputs[outputRef] = nil
}

// PutContractOutput stages a contract output create/update.
func (c *Cached) PutContractOutput(ref hashes.Hash, out chain.ContractOutput) {
	v := out
	c.diff.ContractOutputs[ref] = &v
}

// Diff returns the overlay's accumulated pending mutations.
func (c *Cached) Diff() Diff {
	return c.diff
}

// Merge folds another overlay's diff into this one. Later diffs (passed in
// `other`) take precedence over earlier ones.
func (c *Cached) Merge(other Diff) {
	for k, v := range other.AssetOutputs {
		c.diff.AssetOutputs[k] = v
	}
	for k, v := range other.ContractStates {
		c.diff.ContractStates[k] = v
	}
	for k, v := range other.ContractOutputs {
		c.diff.ContractOutputs[k] = v
	}
}
