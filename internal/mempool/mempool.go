// Package mempool implements the per-broker pending transaction pools
// (spec §2 item 10, §4.6): a shared pool of ready-to-broadcast transactions
// and a pending pool for transactions still missing a dependency, both
// iterable in non-increasing gas-price order and bounded in size.
package mempool

import (
	"sort"
	"sync"
	"time"

	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
)

type entry struct {
	tx       chain.Transaction
	id       hashes.Hash
	gasPrice hashes.U256
	arrival  uint64 // monotonic arrival counter, not wall-clock: breaks gas-price ties in FIFO order
	addedAt  time.Time
}

// Pool is one chain's shared-or-pending transaction set. The two pools
// (shared, pending) are separate Pool instances composed by Mempool below.
type Pool struct {
	mu       sync.Mutex
	cap      int
	byID     map[hashes.Hash]*entry
	arrival  uint64
}

// NewPool returns an empty pool bounded at capacity.
func NewPool(capacity int) *Pool {
	return &Pool{cap: capacity, byID: make(map[hashes.Hash]*entry)}
}

// Add inserts tx if it is not already present and the pool has room,
// evicting the oldest-arrival entry in the lowest gas-price tier when full
// (spec §4.6: "Bounded capacities; eviction by arrival order within the
// lowest gas-price tier"). Returns false if tx was not admitted.
func (p *Pool) Add(tx chain.Transaction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := chain.TxID(tx)
	if _, exists := p.byID[id]; exists {
		return true
	}
	if len(p.byID) >= p.cap {
		victim, ok := p.lowestTierOldestLocked()
		if !ok {
			return false
		}
		delete(p.byID, victim)
	}
	p.arrival++
	p.byID[id] = &entry{
		tx:       tx,
		id:       id,
		gasPrice: tx.Unsigned.GasPrice,
		arrival:  p.arrival,
		addedAt:  time.Now(),
	}
	return true
}

func (p *Pool) lowestTierOldestLocked() (hashes.Hash, bool) {
	var worst *entry
	for _, e := range p.byID {
		if worst == nil {
			worst = e
			continue
		}
		cmp := e.gasPrice.Cmp(worst.gasPrice)
		if cmp < 0 || (cmp == 0 && e.arrival < worst.arrival) {
			worst = e
		}
	}
	if worst == nil {
		return hashes.Hash{}, false
	}
	return worst.id, true
}

// Remove drops every transaction named in ids, e.g. once they are mined
// into an accepted block.
func (p *Pool) Remove(ids []hashes.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.byID, id)
	}
}

// Contains reports whether id is currently pooled.
func (p *Pool) Contains(id hashes.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byID[id]
	return ok
}

// Len reports the pool's current transaction count.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

// Iterate returns every pooled transaction ordered by non-increasing gas
// price, ties broken by arrival order (spec §8: "iteration order is
// non-increasing by gas price").
func (p *Pool) Iterate() []chain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := make([]*entry, 0, len(p.byID))
	for _, e := range p.byID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		cmp := entries[i].gasPrice.Cmp(entries[j].gasPrice)
		if cmp != 0 {
			return cmp > 0
		}
		return entries[i].arrival < entries[j].arrival
	})
	out := make([]chain.Transaction, len(entries))
	for i, e := range entries {
		out[i] = e.tx
	}
	return out
}

// Clean evicts every transaction older than maxAge (spec §4.6: "periodic
// cleaning by age").
func (p *Pool) Clean(maxAge time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for id, e := range p.byID {
		if e.addedAt.Before(cutoff) {
			delete(p.byID, id)
		}
	}
}

// Mempool composes the shared and pending pools for every chain this
// broker serves (spec §4.6: "Per-broker group: a shared pool ... and a
// pending pool").
type Mempool struct {
	mu      sync.RWMutex
	shared  map[hashes.ChainIndex]*Pool
	pending map[hashes.ChainIndex]*Pool
	sharedCap, pendingCap int
}

// New builds a Mempool with one shared/pending pool pair per chain,
// capacities as given.
func New(sharedCap, pendingCap int) *Mempool {
	return &Mempool{
		shared:     make(map[hashes.ChainIndex]*Pool),
		pending:    make(map[hashes.ChainIndex]*Pool),
		sharedCap:  sharedCap,
		pendingCap: pendingCap,
	}
}

func (m *Mempool) poolFor(set map[hashes.ChainIndex]*Pool, ci hashes.ChainIndex, cap int) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := set[ci]
	if !ok {
		p = NewPool(cap)
		set[ci] = p
	}
	return p
}

// Shared returns (creating if needed) the ready-to-broadcast pool for ci.
func (m *Mempool) Shared(ci hashes.ChainIndex) *Pool { return m.poolFor(m.shared, ci, m.sharedCap) }

// Pending returns (creating if needed) the missing-deps pool for ci.
func (m *Mempool) Pending(ci hashes.ChainIndex) *Pool { return m.poolFor(m.pending, ci, m.pendingCap) }

// AddToShared admits tx into ci's shared pool.
func (m *Mempool) AddToShared(ci hashes.ChainIndex, tx chain.Transaction) bool {
	return m.Shared(ci).Add(tx)
}

// PromotePending moves a transaction from the pending pool to the shared
// pool once its dependency arrives.
func (m *Mempool) PromotePending(ci hashes.ChainIndex, id hashes.Hash, tx chain.Transaction) {
	m.Pending(ci).Remove([]hashes.Hash{id})
	m.Shared(ci).Add(tx)
}

// RemoveMined drops every id now confirmed in an accepted block from both
// of ci's pools.
func (m *Mempool) RemoveMined(ci hashes.ChainIndex, ids []hashes.Hash) {
	m.Shared(ci).Remove(ids)
	m.Pending(ci).Remove(ids)
}
