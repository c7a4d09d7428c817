// Package flowcache implements the hot cache of recent blocks/headers/
// world-state snapshots keyed by block hash (spec §2 item 11, §4.7). It
// holds no storage handle: entries are put in by callers, and a miss is not
// filled from storage. All mutation is guarded by an RWMutex: reads share,
// writes exclude.
package flowcache

import (
	"sync"

	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
)

// blockEntry pairs a cached block with the chain it belongs to, so the
// per-chain capacity bound can pick the oldest entry within that chain
// specifically (spec §4.7: "Per-chain capacity for block cache (eviction
// picks the oldest-in-chain when the chain hits capacity)").
type blockEntry struct {
	block    chain.Block
	chain    hashes.ChainIndex
	sequence uint64
}

// BlockCache caches full blocks with a capacity enforced independently per
// chain.
type BlockCache struct {
	mu       sync.RWMutex
	capacity int
	seq      uint64
	byHash   map[hashes.Hash]*blockEntry
	byChain  map[hashes.ChainIndex][]hashes.Hash // insertion order, oldest first
}

// NewBlockCache returns a BlockCache admitting up to capacity blocks per
// chain.
func NewBlockCache(capacity int) *BlockCache {
	return &BlockCache{
		capacity: capacity,
		byHash:   make(map[hashes.Hash]*blockEntry),
		byChain:  make(map[hashes.ChainIndex][]hashes.Hash),
	}
}

// Put inserts a block, evicting the chain's oldest entry if ci is already
// at capacity; a hash that is already cached is left unchanged.
func (c *BlockCache) Put(hash hashes.Hash, ci hashes.ChainIndex, block chain.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byHash[hash]; exists {
		return
	}
	list := c.byChain[ci]
	if len(list) >= c.capacity {
		oldest := list[0]
		list = list[1:]
		delete(c.byHash, oldest)
	}
	c.seq++
	c.byHash[hash] = &blockEntry{block: block, chain: ci, sequence: c.seq}
	c.byChain[ci] = append(list, hash)
}

// Get returns the cached block for hash, if present.
func (c *BlockCache) Get(hash hashes.Hash) (chain.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byHash[hash]
	if !ok {
		return chain.Block{}, false
	}
	return e.block, true
}

// timedEntry is a cache value tagged with the timestamp used for global
// min-timestamp eviction (spec §4.7: "global capacity with min-timestamp
// eviction for header and state caches").
type timedEntry[T any] struct {
	value T
	ts    hashes.Timestamp
}

// timedCache is the shared implementation behind HeaderCache and
// StateCache: a flat, globally bounded map evicted by oldest timestamp.
type timedCache[T any] struct {
	mu       sync.RWMutex
	capacity int
	entries  map[hashes.Hash]timedEntry[T]
}

func newTimedCache[T any](capacity int) *timedCache[T] {
	return &timedCache[T]{capacity: capacity, entries: make(map[hashes.Hash]timedEntry[T])}
}

func (c *timedCache[T]) put(hash hashes.Hash, value T, ts hashes.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[hash]; exists {
		return
	}
	if len(c.entries) >= c.capacity {
		var victim hashes.Hash
		var victimTs hashes.Timestamp
		first := true
		for h, e := range c.entries {
			if first || e.ts < victimTs {
				victim, victimTs = h, e.ts
				first = false
			}
		}
		delete(c.entries, victim)
	}
	c.entries[hash] = timedEntry[T]{value: value, ts: ts}
}

func (c *timedCache[T]) get(hash hashes.Hash) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[hash]
	return e.value, ok
}

func (c *timedCache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HeaderCache caches decoded headers, globally bounded.
type HeaderCache struct{ inner *timedCache[chain.BlockHeader] }

// NewHeaderCache returns an empty HeaderCache bounded at capacity.
func NewHeaderCache(capacity int) *HeaderCache {
	return &HeaderCache{inner: newTimedCache[chain.BlockHeader](capacity)}
}

// Put caches h under hash, timestamped for eviction ordering.
func (c *HeaderCache) Put(hash hashes.Hash, h chain.BlockHeader) { c.inner.put(hash, h, h.Timestamp) }

// Get returns the cached header for hash, if present.
func (c *HeaderCache) Get(hash hashes.Hash) (chain.BlockHeader, bool) { return c.inner.get(hash) }

// Len reports the number of cached headers.
func (c *HeaderCache) Len() int { return c.inner.len() }

// StateSnapshot is a world-state diff captured at a block hash, cached so
// repeated group-view construction does not need to recompute it (spec
// §4.2 item 2, §4.7).
type StateSnapshot struct {
	Hash      hashes.Hash
	Timestamp hashes.Timestamp
	Diff      map[hashes.Hash][]byte // opaque encoded diff entries, keyed by output ref
}

// StateCache caches world-state snapshots, globally bounded.
type StateCache struct{ inner *timedCache[StateSnapshot] }

// NewStateCache returns an empty StateCache bounded at capacity.
func NewStateCache(capacity int) *StateCache {
	return &StateCache{inner: newTimedCache[StateSnapshot](capacity)}
}

// Put caches snap under its own hash.
func (c *StateCache) Put(snap StateSnapshot) { c.inner.put(snap.Hash, snap, snap.Timestamp) }

// Get returns the cached snapshot for hash, if present.
func (c *StateCache) Get(hash hashes.Hash) (StateSnapshot, bool) { return c.inner.get(hash) }

// Len reports the number of cached snapshots.
func (c *StateCache) Len() int { return c.inner.len() }

// FlowCache composes the three caches. BlockFlow puts every block and
// header it accepts into Blocks and Headers; it does not read them back.
type FlowCache struct {
	Blocks  *BlockCache
	Headers *HeaderCache
	States  *StateCache
}

// New builds a FlowCache with the given per-chain block capacity and
// global header/state capacities.
func New(perChainBlockCap, headerCap, stateCap int) *FlowCache {
	return &FlowCache{
		Blocks:  NewBlockCache(perChainBlockCap),
		Headers: NewHeaderCache(headerCap),
		States:  NewStateCache(stateCap),
	}
}
