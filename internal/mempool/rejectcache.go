package mempool

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/zheli/alephium/internal/hashes"
)

// RejectCache remembers recently-rejected transaction ids so a node does
// not pay the full validation cost again for the same spam retransmitted
// by a misbehaving peer. It trades a little memory for admission-policy
// smarts (TinyLFU) that a flat map doesn't give us; unlike the flow cache
// (package flowcache), nothing here needs deterministic eviction -- a
// cache miss just means "re-validate", never an incorrect answer -- so
// ristretto's probabilistic eviction is a good fit here and a bad fit
// there (see DESIGN.md).
type RejectCache struct {
	cache *ristretto.Cache[hashes.Hash, string]
}

// NewRejectCache returns a reject cache sized for roughly capacity
// recently-seen bad transaction ids.
func NewRejectCache(capacity int64) (*RejectCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[hashes.Hash, string]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RejectCache{cache: c}, nil
}

// Remember records that txID was rejected for the given reason.
func (r *RejectCache) Remember(txID hashes.Hash, reason string) {
	r.cache.Set(txID, reason, 1)
	r.cache.Wait()
}

// Reason returns the remembered rejection reason for txID, if still cached.
func (r *RejectCache) Reason(txID hashes.Hash) (string, bool) {
	return r.cache.Get(txID)
}

// Close releases the cache's background goroutines.
func (r *RejectCache) Close() {
	r.cache.Close()
}
