// Package hashes implements the 256-bit hash, target, and weight primitives
// shared by every other core package: the DAG, the validator, and the VM all
// key their state off the Hash type defined here.
package hashes

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hash is a 32-byte digest. Block hashes, transaction ids and contract ids
// are all plain Hash values (BlockHash below is an alias): the spec treats
// them as the same underlying primitive (§3).
type Hash [32]byte

// BlockHash identifies a block by the hash of its header.
type BlockHash = Hash

// Zero is the distinguished empty hash used as the parent slot of a genesis
// header (spec §3, "A header is genesis iff its parent slot is the zero hash").
var Zero Hash

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// String renders h as lowercase hex, matching the wire/debug convention used
// throughout the teacher codebase's BlockHash formatting.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the underlying 32 bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, h[:])
	return out
}

// ParseHash parses 32 bytes of hex into a Hash.
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Zero, fmt.Errorf("hashes: parse hash: %w", err)
	}
	if len(b) != 32 {
		return Zero, fmt.Errorf("hashes: parse hash: want 32 bytes, got %d", len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// Hash256 computes the canonical header/body commitment hash. Blake2b-256 is
// used rather than sha3 (the teacher's single-chain digest) because the VM's
// native `blake2b` instruction family (spec §4.5) must agree bit-for-bit with
// the hash used to commit headers; sharing one primitive avoids carrying two
// hash implementations for what the spec treats as one concept.
func Hash256(b []byte) Hash {
	return Hash(blake2b.Sum256(b))
}

// DoubleHash256 applies Hash256 twice, the convention used for transaction
// IDs (block hashes are a single Hash256 of the header) so that length-extension on the outer hash cannot forge a
// valid commitment without also producing a valid inner pre-image.
func DoubleHash256(b []byte) Hash {
	first := Hash256(b)
	return Hash256(first[:])
}

// ChainIndex identifies one of the G*G chains in the block-flow DAG.
type ChainIndex struct {
	From int
	To   int
}

// String renders the chain index as "(from -> to)".
func (c ChainIndex) String() string {
	return fmt.Sprintf("(%d -> %d)", c.From, c.To)
}

// FromHash derives the chain index carried by a block hash: the low-order
// two bytes, taken modulo G*G, is split into a "from" and "to" component (spec
// §3: "Derived from a block hash by taking the low-order bytes modulo G²").
func FromHash(h Hash, groups int) ChainIndex {
	if groups <= 0 {
		panic("hashes: groups must be positive")
	}
	g2 := groups * groups
	// Low-order two bytes give enough entropy that small group counts do not
	// bias the distribution the way a single byte would for G > 16.
	v := (int(h[31]) | int(h[30])<<8) % g2
	return ChainIndex{From: v / groups, To: v % groups}
}

// NumChains returns the total chain count G*G for a groups value G.
func NumChains(groups int) int {
	return groups * groups
}

// NumDeps returns the length of a BlockDeps vector, 2*G-1 (spec §3).
func NumDeps(groups int) int {
	return 2*groups - 1
}
