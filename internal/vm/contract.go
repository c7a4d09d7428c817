package vm

import "github.com/zheli/alephium/internal/hashes"

// Method is one contract method or a plain tx script body (spec §4.5,
// "Method contract"): visibility and payability are enforced at call time,
// and ArgsCount/LocalsCount size the callee frame's local slots.
type Method struct {
	IsPublic      bool
	IsPayable     bool
	ArgsCount     int
	LocalsCount   int
	Instructions  []Instruction
}

// Code is a deployed contract's immutable method table plus its declared
// field count, used to validate createContract/copyCreateContract field
// vectors (spec §4.5, "initial fields vector must match declared field
// count").
type Code struct {
	CodeHash           hashes.Hash
	Methods            []Method
	DeclaredFieldCount int
}
