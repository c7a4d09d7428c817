package vm

import (
	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/worldstate"
)

// Env is the read-only execution environment a script observes: the
// enclosing block's committed header fields plus the transaction it
// belongs to (spec §4.5, "environment queries").
type Env struct {
	BlockTimestamp hashes.Timestamp
	Target         hashes.Target
	NetworkID      byte
	TxID           hashes.Hash
	InputTimestamp hashes.Timestamp // timestamp of the block that confirmed the spent input, for relative time-locks
	DustUtxoAmount hashes.U256
}

// AssetPool tracks the ALF and token balances a frame currently holds,
// either because it is a contract spending its own output or because a
// caller approved assets into it (spec §4.5: "Approved asset pool --
// asset approvals flow from callers to callees; must be consumed or
// returned").
type AssetPool struct {
	Alf    hashes.U256
	Tokens map[hashes.Hash]hashes.U256
}

func newAssetPool() *AssetPool {
	return &AssetPool{Tokens: make(map[hashes.Hash]hashes.U256)}
}

// IsEmpty reports whether every balance in the pool is zero.
func (p *AssetPool) IsEmpty() bool {
	if !p.Alf.IsZero() {
		return false
	}
	for _, v := range p.Tokens {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

func (p *AssetPool) withdrawAlf(amount hashes.U256) error {
	remaining, ok := p.Alf.SubChecked(amount)
	if !ok {
		return newErr(ErrUnapprovedAssets, "insufficient ALF balance in frame")
	}
	p.Alf = remaining
	return nil
}

func (p *AssetPool) withdrawToken(id hashes.Hash, amount hashes.U256) error {
	bal := p.Tokens[id]
	remaining, ok := bal.SubChecked(amount)
	if !ok {
		return newErr(ErrUnapprovedAssets, "insufficient token %s balance in frame", id)
	}
	p.Tokens[id] = remaining
	return nil
}

func (p *AssetPool) depositAlf(amount hashes.U256) error {
	v, ok := p.Alf.AddChecked(amount)
	if !ok {
		return newErr(ErrArithmeticOverflow, "alf deposit overflow")
	}
	p.Alf = v
	return nil
}

func (p *AssetPool) depositToken(id hashes.Hash, amount hashes.U256) error {
	v, ok := p.Tokens[id].AddChecked(amount)
	if !ok {
		return newErr(ErrArithmeticOverflow, "token %s deposit overflow", id)
	}
	p.Tokens[id] = v
	return nil
}

// Context is one script execution: a shared operand stack, a bounded frame
// stack of method activations, a gas meter, the world-state overlay being
// mutated, and the immutable environment (spec §4.5).
type Context struct {
	Env   Env
	State *worldstate.Cached

	Stack      []chain.Val
	MaxStack   int
	Frames     []*Frame
	MaxFrames  int
	Gas        uint64
	outputSeq  uint64
	IsTxScript bool // true for the top-level frame of a plain tx script, not a contract method

	// Codes resolves a deployed contract's code hash to its method table for
	// callExternal and copyCreateContract; Machine.RunScript populates it
	// from the running process's registry before execution starts.
	Codes map[hashes.Hash]*Code

	// pendingApproval accumulates ApproveAlf/ApproveToken withdrawals until
	// the next CallExternal consumes them as the callee frame's AssetPool.
	pendingApproval *AssetPool
}

// NewContext builds an execution context bounded by the given operand stack
// depth, frame stack depth, and gas budget.
func NewContext(env Env, state *worldstate.Cached, maxStack, maxFrames int, gas uint64) *Context {
	return &Context{
		Env:             env,
		State:           state,
		MaxStack:        maxStack,
		MaxFrames:       maxFrames,
		Gas:             gas,
		pendingApproval: newAssetPool(),
	}
}

func (c *Context) push(v chain.Val) error {
	if len(c.Stack) >= c.MaxStack {
		return newErr(ErrStackOverflow, "operand stack exceeds %d", c.MaxStack)
	}
	c.Stack = append(c.Stack, v)
	return nil
}

func (c *Context) pop() (chain.Val, error) {
	if len(c.Stack) == 0 {
		return chain.Val{}, newErr(ErrAssertionFailed, "pop from empty stack")
	}
	v := c.Stack[len(c.Stack)-1]
	c.Stack = c.Stack[:len(c.Stack)-1]
	return v, nil
}

func (c *Context) spendGas(amount uint64) error {
	if c.Gas < amount {
		c.Gas = 0
		return newErr(ErrOutOfGas, "gas exhausted")
	}
	c.Gas -= amount
	return nil
}

// nextOutputRef derives a deterministic fresh output reference for an
// asset or contract output minted during execution, keyed off the
// transaction id and a monotonically increasing per-execution counter so
// two honest executors derive identical refs for identical scripts.
func (c *Context) nextOutputRef() hashes.Hash {
	c.outputSeq++
	w := make([]byte, 0, 40)
	w = append(w, c.Env.TxID[:]...)
	for i := 0; i < 8; i++ {
		w = append(w, byte(c.outputSeq>>(8*uint(i))))
	}
	return hashes.Hash256(w)
}

func currentFrame(c *Context) *Frame {
	if len(c.Frames) == 0 {
		return nil
	}
	return c.Frames[len(c.Frames)-1]
}
