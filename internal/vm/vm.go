// Package vm implements the stateful stack machine that executes
// transaction scripts and contract methods against a world-state overlay
// (spec §2 item 9, §4.5). It has a fixed instruction set on purpose: this
// is not a generic smart-contract platform (spec §1 Non-goals).
package vm

import (
	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
)

// DefaultMaxStack and DefaultMaxFrames bound the operand stack and frame
// stack a validator hands to NewContext when it has no tighter per-tx
// override (spec §4.5: "Stack overflow", "frameStackMaxSize").
const (
	DefaultMaxStack  = 1024
	DefaultMaxFrames = 64
)

// Machine owns the registry of deployed contract code (keyed by code hash)
// that callExternal and copyCreateContract resolve against. A real node
// keeps one Machine per running process; the registry only grows as new
// contracts are deployed, since code is immutable once created. Plain tx
// scripts are registered the same way and referenced from a transaction's
// UnsignedTx.Script field by their CodeHash, rather than being re-decoded
// from bytes on every validation.
type Machine struct {
	codes map[hashes.Hash]*Code
}

// NewMachine returns an empty code registry.
func NewMachine() *Machine {
	return &Machine{codes: make(map[hashes.Hash]*Code)}
}

// Register installs code under its own CodeHash, making it callable by
// callExternal and usable as a copyCreateContract template.
func (m *Machine) Register(code *Code) {
	m.codes[code.CodeHash] = code
}

// Lookup resolves a code hash to its registered method table. Validators
// use this to turn a transaction's UnsignedTx.Script (a 32-byte code hash)
// into the *Code RunScript expects.
func (m *Machine) Lookup(codeHash hashes.Hash) (*Code, bool) {
	c, ok := m.codes[codeHash]
	return c, ok
}

// RunScript executes a plain tx script's entry method to completion. The
// approved pool holds whatever assets the validator drew from the
// transaction's inputs before invoking the script; RunScript fails with
// ErrUnapprovedAssets if the script does not fully route them to outputs.
func (m *Machine) RunScript(ctx *Context, script *Code, args []chain.Val, approved *AssetPool) error {
	ctx.Codes = m.codes
	ctx.IsTxScript = true
	_, err := ctx.callMethod(script, 0, args, approved, nil, hashes.Zero)
	return err
}

func (c *Context) callMethod(code *Code, methodIndex int, args []chain.Val, assets *AssetPool, caller *Frame, contractID hashes.Hash) ([]chain.Val, error) {
	if len(c.Frames) >= c.MaxFrames {
		return nil, newErr(ErrStackOverflow, "frame stack exceeds %d", c.MaxFrames)
	}
	if methodIndex < 0 || methodIndex >= len(code.Methods) {
		return nil, newErr(ErrInvalidTxInputIndex, "method index %d out of range", methodIndex)
	}
	m := &code.Methods[methodIndex]
	if caller != nil && !m.IsPublic {
		return nil, newErr(ErrExternalPrivateMethodCall, "cannot externally call a private method")
	}
	if caller == nil && !m.IsPublic {
		return nil, newErr(ErrExternalPrivateMethodCall, "entry method must be public")
	}
	if !m.IsPayable && assets != nil && !assets.IsEmpty() {
		return nil, newErr(ErrNonPayableMethod, "assets approved into a non-payable method")
	}
	if len(args) != m.ArgsCount {
		return nil, newErr(ErrInvalidFieldLength, "expected %d args, got %d", m.ArgsCount, len(args))
	}

	locals := make([]chain.Val, m.LocalsCount)
	copy(locals, args)
	if assets == nil {
		assets = newAssetPool()
	}

	frame := &Frame{
		ContractID:  contractID,
		MethodIndex: methodIndex,
		Locals:      locals,
		Assets:      assets,
		Caller:      caller,
	}
	if !contractID.IsZero() {
		frame.InCode = code
	}
	stackBase := len(c.Stack)
	c.Frames = append(c.Frames, frame)

	err := execAll(c, m.Instructions)

	c.Frames = c.Frames[:len(c.Frames)-1]

	if err != nil {
		return nil, err
	}

	if !assets.IsEmpty() {
		if caller != nil && caller.Assets != nil {
			mergeAssets(caller.Assets, assets)
		} else {
			return nil, newErr(ErrUnapprovedAssets, "assets left unconsumed at frame exit")
		}
	}

	// Return values are whatever instructions left on the stack above the
	// frame's own base, in push order.
	returns := append([]chain.Val(nil), c.Stack[stackBase:]...)
	c.Stack = c.Stack[:stackBase]
	return returns, nil
}

func mergeAssets(dst, src *AssetPool) {
	dst.Alf, _ = dst.Alf.AddChecked(src.Alf)
	for id, amt := range src.Tokens {
		dst.Tokens[id], _ = dst.Tokens[id].AddChecked(amt)
	}
}

func (c *Context) callExternal(targetID hashes.Hash, methodIndex int, args []chain.Val) error {
	cs, ok, err := c.State.GetContractState(targetID)
	if err != nil {
		return err
	}
	if !ok {
		return newErr(ErrContractNotFound, "callExternal: %s", targetID)
	}
	code, ok := c.Codes[cs.CodeHash]
	if !ok {
		return newErr(ErrContractNotFound, "callExternal: code for %s not registered", cs.CodeHash)
	}

	approved := c.pendingApproval
	c.pendingApproval = newAssetPool()

	returns, err := c.callMethod(code, methodIndex, args, approved, currentFrame(c), targetID)
	if err != nil {
		return err
	}
	for _, v := range returns {
		if err := c.push(v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) createContract(code *Code, fields []chain.Val, deposit hashes.U256) error {
	contractID := c.nextOutputRef()
	outputRef := c.nextOutputRef()

	cs := chain.ContractState{
		ContractID:     contractID,
		Fields:         fields,
		CodeHash:       code.CodeHash,
		AssetOutputRef: chain.TxOutputRef{Kind: chain.OutputRefContract, Key: outputRef},
	}
	c.State.PutContractState(cs)
	c.State.PutContractOutput(outputRef, chain.ContractOutput{Amount: deposit})
	if c.Codes == nil {
		c.Codes = make(map[hashes.Hash]*Code)
	}
	c.Codes[code.CodeHash] = code

	return c.push(chain.AddressVal(chain.Address{Kind: chain.AddressContract, Hash: contractID}))
}

func (c *Context) destroySelf(contractID hashes.Hash, target chain.Address) error {
	cs, ok, err := c.State.GetContractState(contractID)
	if err != nil {
		return err
	}
	if !ok {
		return newErr(ErrEmptyContractAsset, "contract output not found")
	}
	co, ok, err := c.State.GetContractOutput(cs.AssetOutputRef.Key)
	if err != nil {
		return err
	}
	if !ok {
		return newErr(ErrEmptyContractAsset, "contract output not found")
	}

	if !co.Amount.IsZero() {
		if err := c.payAlf(target, co.Amount); err != nil {
			return err
		}
	}
	for _, tok := range co.Tokens {
		if err := c.payToken(target, tok.ID, tok.Amount); err != nil {
			return err
		}
	}
	c.State.DestroyContract(contractID, cs.AssetOutputRef.Key)
	return nil
}

func (c *Context) payAlf(to chain.Address, amount hashes.U256) error {
	if amount.IsZero() {
		return nil
	}
	switch to.Kind {
	case chain.AddressContract:
		cs, ok, err := c.State.GetContractState(to.Hash)
		if err != nil {
			return err
		}
		if !ok {
			return newErr(ErrContractNotFound, "payAlf: contract %s", to.Hash)
		}
		co, _, err := c.State.GetContractOutput(cs.AssetOutputRef.Key)
		if err != nil {
			return err
		}
		newAmt, ok := co.Amount.AddChecked(amount)
		if !ok {
			return newErr(ErrArithmeticOverflow, "payAlf: contract output overflow")
		}
		co.Amount = newAmt
		c.State.PutContractOutput(cs.AssetOutputRef.Key, co)
		return nil
	case chain.AddressAsset:
		ref := c.nextOutputRef()
		c.State.PutAssetOutput(ref, chain.AssetOutput{Amount: amount, LockupScript: append([]byte(nil), to.Hash[:]...)})
		return nil
	}
	return newErr(ErrTypeMismatch, "payAlf: unknown address kind")
}

func (c *Context) payToken(to chain.Address, tokenID hashes.Hash, amount hashes.U256) error {
	if amount.IsZero() {
		return nil
	}
	switch to.Kind {
	case chain.AddressContract:
		cs, ok, err := c.State.GetContractState(to.Hash)
		if err != nil {
			return err
		}
		if !ok {
			return newErr(ErrContractNotFound, "payToken: contract %s", to.Hash)
		}
		co, _, err := c.State.GetContractOutput(cs.AssetOutputRef.Key)
		if err != nil {
			return err
		}
		found := false
		for i, t := range co.Tokens {
			if t.ID == tokenID {
				newAmt, ok := t.Amount.AddChecked(amount)
				if !ok {
					return newErr(ErrArithmeticOverflow, "payToken: overflow")
				}
				co.Tokens[i].Amount = newAmt
				found = true
				break
			}
		}
		if !found {
			co.Tokens = append(co.Tokens, chain.Token{ID: tokenID, Amount: amount})
		}
		c.State.PutContractOutput(cs.AssetOutputRef.Key, co)
		return nil
	case chain.AddressAsset:
		ref := c.nextOutputRef()
		c.State.PutAssetOutput(ref, chain.AssetOutput{
			LockupScript: append([]byte(nil), to.Hash[:]...),
			Tokens:       []chain.Token{{ID: tokenID, Amount: amount}},
		})
		return nil
	}
	return newErr(ErrTypeMismatch, "payToken: unknown address kind")
}

// NewAssetPoolFromBalances builds the initial approval handed to a tx
// script's top-level frame from the total value its inputs carried in
// (spec §4.4: "accumulate input value and tokens").
func NewAssetPoolFromBalances(alf hashes.U256, tokens map[hashes.Hash]hashes.U256) *AssetPool {
	p := newAssetPool()
	p.Alf = alf
	for id, amt := range tokens {
		p.Tokens[id] = amt
	}
	return p
}
