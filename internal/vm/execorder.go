package vm

import (
	"encoding/binary"

	"github.com/zheli/alephium/internal/hashes"
)

// NonCoinbaseExecutionOrder derives a deterministic pseudo-random permutation
// of a block's non-coinbase transaction indices, seeded by the block hash so
// every validator that sees the same block executes transactions in the
// same order without the order being fixed by tx position (avoids a
// proposer quietly front-running by placement).
func NonCoinbaseExecutionOrder(blockHash hashes.Hash, n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	seed := blockHash.Bytes()
	for i := n - 1; i > 0; i-- {
		h := hashes.Hash256(seed)
		seed = h.Bytes()
		j := int(binary.BigEndian.Uint64(seed[:8]) % uint64(i+1))
		order[i], order[j] = order[j], order[i]
	}
	return order
}
