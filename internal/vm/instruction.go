package vm

import (
	"bytes"
	"crypto/sha256"
	"math/big"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/sha3"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
)

// Instruction is one step of a method's bytecode. Control-flow instructions
// (If, While, BoolAnd, BoolOr) hold nested instruction lists instead of
// jump offsets, matching the teacher's straight-line validation style
// (spec §9: "coroutine-style ... pipelines collapse to straight-line
// functions") applied to script execution instead of validation.
type Instruction interface {
	exec(c *Context) error
}

const baseGasCost = 1

func execAll(c *Context, ins []Instruction) error {
	for _, i := range ins {
		if err := i.exec(c); err != nil {
			return err
		}
	}
	return nil
}

// --- stack manipulation ---

type PushConst struct{ Val chain.Val }

func (i PushConst) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	return c.push(i.Val)
}

type Pop struct{}

func (Pop) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	_, err := c.pop()
	return err
}

type Dup struct{}

func (Dup) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	v, err := c.pop()
	if err != nil {
		return err
	}
	if err := c.push(v); err != nil {
		return err
	}
	return c.push(v)
}

type Swap struct{}

func (Swap) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	a, err := c.pop()
	if err != nil {
		return err
	}
	b, err := c.pop()
	if err != nil {
		return err
	}
	if err := c.push(a); err != nil {
		return err
	}
	return c.push(b)
}

// --- local / field storage ---

type LoadLocal struct{ Index int }

func (i LoadLocal) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	f := currentFrame(c)
	if f == nil || i.Index < 0 || i.Index >= len(f.Locals) {
		return newErr(ErrInvalidTxInputIndex, "loadLocal: index %d out of range", i.Index)
	}
	return c.push(f.Locals[i.Index])
}

type StoreLocal struct{ Index int }

func (i StoreLocal) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	f := currentFrame(c)
	v, err := c.pop()
	if err != nil {
		return err
	}
	if f == nil || i.Index < 0 || i.Index >= len(f.Locals) {
		return newErr(ErrInvalidTxInputIndex, "storeLocal: index %d out of range", i.Index)
	}
	f.Locals[i.Index] = v
	return nil
}

type LoadField struct{ Index int }

func (i LoadField) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	f := currentFrame(c)
	if f == nil || !f.isContract() {
		return newErr(ErrTypeMismatch, "loadField outside a contract method")
	}
	cs, ok, err := c.State.GetContractState(f.ContractID)
	if err != nil {
		return err
	}
	if !ok || i.Index < 0 || i.Index >= len(cs.Fields) {
		return newErr(ErrInvalidTxInputIndex, "loadField: index %d out of range", i.Index)
	}
	return c.push(cs.Fields[i.Index])
}

type StoreField struct{ Index int }

func (i StoreField) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	f := currentFrame(c)
	v, err := c.pop()
	if err != nil {
		return err
	}
	if f == nil || !f.isContract() {
		return newErr(ErrTypeMismatch, "storeField outside a contract method")
	}
	cs, ok, err := c.State.GetContractState(f.ContractID)
	if err != nil {
		return err
	}
	if !ok || i.Index < 0 || i.Index >= len(cs.Fields) {
		return newErr(ErrInvalidTxInputIndex, "storeField: index %d out of range", i.Index)
	}
	cs.Fields[i.Index] = v
	c.State.PutContractState(cs)
	return nil
}

// --- arithmetic ---

type ArithOp byte

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithDiv
	ArithMod
)

// Arith performs a checked or modular arithmetic op on two like-typed
// numeric Vals (spec §4.5: "Arithmetic (checked and modular)").
type Arith struct {
	Op      ArithOp
	Modular bool
}

func (a Arith) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	rhs, err := c.pop()
	if err != nil {
		return err
	}
	lhs, err := c.pop()
	if err != nil {
		return err
	}
	if lhs.Kind != rhs.Kind {
		return newErr(ErrTypeMismatch, "arith: operand kind mismatch")
	}
	switch lhs.Kind {
	case chain.ValU256:
		out, err := arithU256(a, lhs.U256, rhs.U256)
		if err != nil {
			return err
		}
		return c.push(chain.U256Val(out))
	case chain.ValI256:
		out, err := arithI256(a, lhs.I256, rhs.I256)
		if err != nil {
			return err
		}
		return c.push(chain.I256Val(out))
	default:
		return newErr(ErrTypeMismatch, "arith: non-numeric operand")
	}
}

func arithU256(a Arith, x, y hashes.U256) (hashes.U256, error) {
	if a.Modular {
		switch a.Op {
		case ArithAdd:
			return x.AddModular(y), nil
		case ArithSub:
			return x.SubModular(y), nil
		case ArithMul:
			return x.MulModular(y), nil
		default:
			return hashes.U256{}, newErr(ErrTypeMismatch, "no modular div/mod for u256")
		}
	}
	var out hashes.U256
	var ok bool
	switch a.Op {
	case ArithAdd:
		out, ok = x.AddChecked(y)
	case ArithSub:
		out, ok = x.SubChecked(y)
	case ArithMul:
		out, ok = x.MulChecked(y)
	case ArithDiv:
		out, ok = x.DivChecked(y)
	case ArithMod:
		out, ok = x.ModChecked(y)
	}
	if !ok {
		return hashes.U256{}, newErr(ErrArithmeticOverflow, "u256 arithmetic failed")
	}
	return out, nil
}

func arithI256(a Arith, x, y hashes.I256) (hashes.I256, error) {
	var out hashes.I256
	var ok bool
	switch a.Op {
	case ArithAdd:
		out, ok = x.AddChecked(y)
	case ArithSub:
		out, ok = x.SubChecked(y)
	case ArithMul:
		out, ok = x.MulChecked(y)
	case ArithDiv:
		out, ok = x.DivChecked(y)
	default:
		return hashes.I256{}, newErr(ErrTypeMismatch, "unsupported i256 op")
	}
	if !ok {
		return hashes.I256{}, newErr(ErrArithmeticOverflow, "i256 arithmetic failed")
	}
	return out, nil
}

// --- bitwise (u256 only, byte-wise over the big-endian encoding) ---

type BitOp byte

const (
	BitAnd BitOp = iota
	BitOr
	BitXor
	BitNot
	BitShl
	BitShr
)

type Bitwise struct{ Op BitOp }

func (b Bitwise) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	if b.Op == BitNot {
		v, err := c.pop()
		if err != nil {
			return err
		}
		u, err := v.AsU256()
		if err != nil {
			return err
		}
		bs := u.Bytes32()
		for i := range bs {
			bs[i] = ^bs[i]
		}
		return c.push(chain.U256Val(hashes.U256FromBytes32(bs)))
	}

	rhs, err := c.pop()
	if err != nil {
		return err
	}
	lhs, err := c.pop()
	if err != nil {
		return err
	}
	x, err := lhs.AsU256()
	if err != nil {
		return err
	}
	y, err := rhs.AsU256()
	if err != nil {
		return err
	}

	switch b.Op {
	case BitAnd, BitOr, BitXor:
		xb, yb := x.Bytes32(), y.Bytes32()
		var out [32]byte
		for i := range out {
			switch b.Op {
			case BitAnd:
				out[i] = xb[i] & yb[i]
			case BitOr:
				out[i] = xb[i] | yb[i]
			case BitXor:
				out[i] = xb[i] ^ yb[i]
			}
		}
		return c.push(chain.U256Val(hashes.U256FromBytes32(out)))
	case BitShl, BitShr:
		xb := x.Bytes32()
		bi := new(big.Int).SetBytes(xb[:])
		shift := uint(y.Uint64())
		if b.Op == BitShl {
			bi.Lsh(bi, shift)
		} else {
			bi.Rsh(bi, shift)
		}
		bi.And(bi, maxU256Mask())
		var out [32]byte
		bb := bi.Bytes()
		copy(out[32-len(bb):], bb)
		return c.push(chain.U256Val(hashes.U256FromBytes32(out)))
	}
	return newErr(ErrTypeMismatch, "unreachable bitwise op")
}

func maxU256Mask() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

// --- comparisons ---

type CmpOp byte

const (
	CmpLt CmpOp = iota
	CmpGt
	CmpLe
	CmpGe
	CmpEq
	CmpNe
)

type Cmp struct{ Op CmpOp }

func (cm Cmp) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	rhs, err := c.pop()
	if err != nil {
		return err
	}
	lhs, err := c.pop()
	if err != nil {
		return err
	}
	if lhs.Kind != rhs.Kind {
		return newErr(ErrTypeMismatch, "cmp: operand kind mismatch")
	}
	var result int
	var equalOnly bool
	switch lhs.Kind {
	case chain.ValU256:
		result = lhs.U256.Cmp(rhs.U256)
	case chain.ValI256:
		result = lhs.I256.Cmp(rhs.I256)
	case chain.ValBool:
		equalOnly = true
		if lhs.Bool == rhs.Bool {
			result = 0
		} else {
			result = 1
		}
	case chain.ValByteVec:
		equalOnly = true
		result = bytes.Compare(lhs.Bytes, rhs.Bytes)
	case chain.ValAddress:
		equalOnly = true
		if lhs.Address == rhs.Address {
			result = 0
		} else {
			result = 1
		}
	default:
		return newErr(ErrTypeMismatch, "cmp: unsupported kind")
	}
	if equalOnly && (cm.Op != CmpEq && cm.Op != CmpNe) {
		return newErr(ErrTypeMismatch, "cmp: only eq/ne supported for this kind")
	}
	var out bool
	switch cm.Op {
	case CmpLt:
		out = result < 0
	case CmpGt:
		out = result > 0
	case CmpLe:
		out = result <= 0
	case CmpGe:
		out = result >= 0
	case CmpEq:
		out = result == 0
	case CmpNe:
		out = result != 0
	}
	return c.push(chain.BoolVal(out))
}

// --- short-circuit boolean logic ---

// BoolAnd evaluates Right only if the already-stacked left operand is true
// (spec §4.5, "short-circuit logic").
type BoolAnd struct{ Right []Instruction }

func (b BoolAnd) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	left, err := c.pop()
	if err != nil {
		return err
	}
	lb, err := left.AsBool()
	if err != nil {
		return err
	}
	if !lb {
		return c.push(chain.BoolVal(false))
	}
	return execAll(c, b.Right)
}

// BoolOr evaluates Right only if the already-stacked left operand is false.
type BoolOr struct{ Right []Instruction }

func (b BoolOr) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	left, err := c.pop()
	if err != nil {
		return err
	}
	lb, err := left.AsBool()
	if err != nil {
		return err
	}
	if lb {
		return c.push(chain.BoolVal(true))
	}
	return execAll(c, b.Right)
}

type BoolNot struct{}

func (BoolNot) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	v, err := c.pop()
	if err != nil {
		return err
	}
	b, err := v.AsBool()
	if err != nil {
		return err
	}
	return c.push(chain.BoolVal(!b))
}

// --- control flow ---

type If struct {
	Cond []Instruction
	Then []Instruction
	Else []Instruction
}

func (f If) exec(c *Context) error {
	if err := execAll(c, f.Cond); err != nil {
		return err
	}
	v, err := c.pop()
	if err != nil {
		return err
	}
	b, err := v.AsBool()
	if err != nil {
		return err
	}
	if b {
		return execAll(c, f.Then)
	}
	return execAll(c, f.Else)
}

// While bounds its own iteration count by gas: every iteration pays the
// condition and body's instruction gas costs, so an infinite loop runs out
// of gas deterministically rather than hanging (spec §4.5, "gas counter
// decremented per instruction; underflow -> OutOfGas").
type While struct {
	Cond []Instruction
	Body []Instruction
}

func (w While) exec(c *Context) error {
	for {
		if err := execAll(c, w.Cond); err != nil {
			return err
		}
		v, err := c.pop()
		if err != nil {
			return err
		}
		b, err := v.AsBool()
		if err != nil {
			return err
		}
		if !b {
			return nil
		}
		if err := execAll(c, w.Body); err != nil {
			return err
		}
	}
}

type Assert struct{}

func (Assert) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	v, err := c.pop()
	if err != nil {
		return err
	}
	b, err := v.AsBool()
	if err != nil {
		return err
	}
	if !b {
		return newErr(ErrAssertionFailed, "assertion failed")
	}
	return nil
}

// --- environment queries ---

type EnvQueryKind byte

const (
	EnvBlockTimestamp EnvQueryKind = iota
	EnvTarget
	EnvNetworkID
	EnvTxID
	EnvCallerAddress
	EnvSelfContractID
	EnvIsCalledFromTxScript
)

type EnvQuery struct{ Kind EnvQueryKind }

func (q EnvQuery) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	f := currentFrame(c)
	switch q.Kind {
	case EnvBlockTimestamp:
		return c.push(chain.U256Val(hashes.NewU256(uint64(c.Env.BlockTimestamp))))
	case EnvTarget:
		return c.push(chain.ByteVecVal(append([]byte(nil), c.Env.Target[:]...)))
	case EnvNetworkID:
		return c.push(chain.U256Val(hashes.NewU256(uint64(c.Env.NetworkID))))
	case EnvTxID:
		return c.push(chain.ByteVecVal(append([]byte(nil), c.Env.TxID[:]...)))
	case EnvCallerAddress:
		if f == nil || f.Caller == nil {
			return newErr(ErrTypeMismatch, "no caller frame")
		}
		return c.push(chain.AddressVal(chain.Address{Kind: chain.AddressContract, Hash: f.callerContractID()}))
	case EnvSelfContractID:
		if f == nil || !f.isContract() {
			return newErr(ErrTypeMismatch, "not a contract frame")
		}
		return c.push(chain.AddressVal(chain.Address{Kind: chain.AddressContract, Hash: f.ContractID}))
	case EnvIsCalledFromTxScript:
		return c.push(chain.BoolVal(f != nil && f.callerContractID().IsZero()))
	}
	return newErr(ErrTypeMismatch, "unknown env query")
}

// --- hashing ---

type HashKind byte

const (
	HashBlake2b HashKind = iota
	HashSha256
	HashSha3
	HashKeccak256
)

type HashVal struct{ Kind HashKind }

func (h HashVal) exec(c *Context) error {
	if err := c.spendGas(baseGasCost * 4); err != nil {
		return err
	}
	v, err := c.pop()
	if err != nil {
		return err
	}
	b, err := v.AsByteVec()
	if err != nil {
		return err
	}
	var out [32]byte
	switch h.Kind {
	case HashBlake2b:
		out = blake2b.Sum256(b)
	case HashSha256:
		out = sha256.Sum256(b)
	case HashSha3:
		out = sha3.Sum256(b)
	case HashKeccak256:
		k := sha3.NewLegacyKeccak256()
		k.Write(b)
		copy(out[:], k.Sum(nil))
	}
	return c.push(chain.ByteVecVal(out[:]))
}

// --- signature verification ---

type SigKind byte

const (
	SigSecp256k1 SigKind = iota
	SigEd25519
)

// VerifySig pops (pubkey, signature) and checks it against the current
// transaction id (spec §4.5: "signature verify (secp256k1, ed25519)").
type VerifySig struct{ Kind SigKind }

func (vs VerifySig) exec(c *Context) error {
	if err := c.spendGas(baseGasCost * 8); err != nil {
		return err
	}
	sigV, err := c.pop()
	if err != nil {
		return err
	}
	pubV, err := c.pop()
	if err != nil {
		return err
	}
	sig, err := sigV.AsByteVec()
	if err != nil {
		return err
	}
	pub, err := pubV.AsByteVec()
	if err != nil {
		return err
	}
	msg := c.Env.TxID[:]

	var ok bool
	switch vs.Kind {
	case SigSecp256k1:
		ok = verifySecp256k1(pub, sig, msg)
	case SigEd25519:
		ok = len(pub) == ed25519.PublicKeySize && ed25519.Verify(pub, msg, sig)
	}
	if !ok {
		return newErr(ErrInvalidSignature, "signature verification failed")
	}
	return c.push(chain.BoolVal(true))
}

func verifySecp256k1(pub, sig, msg []byte) bool {
	pk, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(msg, pk)
}

// --- time-lock verification ---

type AbsoluteLockTimeVerify struct{ Time hashes.Timestamp }

func (a AbsoluteLockTimeVerify) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	if c.Env.BlockTimestamp < a.Time {
		return newErr(ErrAbsoluteLockTimeVerificationFailed, "locked until %d, now %d", a.Time, c.Env.BlockTimestamp)
	}
	return nil
}

type RelativeLockTimeVerify struct{ Duration hashes.Duration }

func (r RelativeLockTimeVerify) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	elapsed := c.Env.BlockTimestamp.Sub(c.Env.InputTimestamp)
	if elapsed < r.Duration {
		return newErr(ErrRelativeLockTimeVerificationFailed, "requires %d elapsed, have %d", r.Duration, elapsed)
	}
	return nil
}

// --- asset transfer ---

// ApproveAlf moves an amount from the current frame's pool into the pending
// approval staged for the next CallExternal (spec §4.5: "asset approvals
// flow from callers to callees").
type ApproveAlf struct{}

func (ApproveAlf) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	v, err := c.pop()
	if err != nil {
		return err
	}
	amount, err := v.AsU256()
	if err != nil {
		return err
	}
	f := currentFrame(c)
	if f == nil || f.Assets == nil {
		return newErr(ErrUnapprovedAssets, "no asset pool in current frame")
	}
	if err := f.Assets.withdrawAlf(amount); err != nil {
		return err
	}
	return c.pendingApproval.depositAlf(amount)
}

type ApproveToken struct{ TokenID hashes.Hash }

func (a ApproveToken) exec(c *Context) error {
	if err := c.spendGas(baseGasCost); err != nil {
		return err
	}
	v, err := c.pop()
	if err != nil {
		return err
	}
	amount, err := v.AsU256()
	if err != nil {
		return err
	}
	f := currentFrame(c)
	if f == nil || f.Assets == nil {
		return newErr(ErrUnapprovedAssets, "no asset pool in current frame")
	}
	if err := f.Assets.withdrawToken(a.TokenID, amount); err != nil {
		return err
	}
	return c.pendingApproval.depositToken(a.TokenID, amount)
}

// TransferAlf pops (toAddress, amount) and pays out of the current frame's
// own pool directly, without going through an approval.
type TransferAlf struct{}

func (TransferAlf) exec(c *Context) error {
	if err := c.spendGas(baseGasCost * 2); err != nil {
		return err
	}
	amountV, err := c.pop()
	if err != nil {
		return err
	}
	toV, err := c.pop()
	if err != nil {
		return err
	}
	amount, err := amountV.AsU256()
	if err != nil {
		return err
	}
	to, err := toV.AsAddress()
	if err != nil {
		return err
	}
	f := currentFrame(c)
	if f == nil || f.Assets == nil {
		return newErr(ErrUnapprovedAssets, "no asset pool in current frame")
	}
	if err := f.Assets.withdrawAlf(amount); err != nil {
		return err
	}
	return c.payAlf(to, amount)
}

type TransferToken struct{ TokenID hashes.Hash }

func (t TransferToken) exec(c *Context) error {
	if err := c.spendGas(baseGasCost * 2); err != nil {
		return err
	}
	amountV, err := c.pop()
	if err != nil {
		return err
	}
	toV, err := c.pop()
	if err != nil {
		return err
	}
	amount, err := amountV.AsU256()
	if err != nil {
		return err
	}
	to, err := toV.AsAddress()
	if err != nil {
		return err
	}
	f := currentFrame(c)
	if f == nil || f.Assets == nil {
		return newErr(ErrUnapprovedAssets, "no asset pool in current frame")
	}
	if err := f.Assets.withdrawToken(t.TokenID, amount); err != nil {
		return err
	}
	return c.payToken(to, t.TokenID, amount)
}

// --- contract lifecycle ---

// CreateContract pops an initial field vector (FieldCount values, pushed in
// order so the last-pushed is the last field) and a deposit amount, and
// mints a new contract (spec §4.5, "Contract creation").
type CreateContract struct {
	Code       *Code
	FieldCount int
}

func (cc CreateContract) exec(c *Context) error {
	if err := c.spendGas(baseGasCost * 16); err != nil {
		return err
	}
	depositV, err := c.pop()
	if err != nil {
		return err
	}
	deposit, err := depositV.AsU256()
	if err != nil {
		return err
	}
	if deposit.Cmp(c.Env.DustUtxoAmount) < 0 {
		return newErr(ErrEmptyContractAsset, "deposit below dustUtxoAmount")
	}
	if cc.FieldCount != cc.Code.DeclaredFieldCount {
		return newErr(ErrInvalidFieldLength, "expected %d fields, got %d", cc.Code.DeclaredFieldCount, cc.FieldCount)
	}
	fields := make([]chain.Val, cc.FieldCount)
	for i := cc.FieldCount - 1; i >= 0; i-- {
		v, err := c.pop()
		if err != nil {
			return err
		}
		fields[i] = v
	}
	return c.createContract(cc.Code, fields, deposit)
}

// CopyCreateContract instantiates a new contract sharing an existing
// contract's code hash and declared field count.
type CopyCreateContract struct {
	FieldCount int
}

func (cc CopyCreateContract) exec(c *Context) error {
	if err := c.spendGas(baseGasCost * 16); err != nil {
		return err
	}
	depositV, err := c.pop()
	if err != nil {
		return err
	}
	deposit, err := depositV.AsU256()
	if err != nil {
		return err
	}
	srcV, err := c.pop()
	if err != nil {
		return err
	}
	src, err := srcV.AsAddress()
	if err != nil {
		return err
	}
	srcState, ok, err := c.State.GetContractState(src.Hash)
	if err != nil {
		return err
	}
	if !ok {
		return newErr(ErrContractNotFound, "copyCreateContract: source %s not found", src.Hash)
	}
	if deposit.Cmp(c.Env.DustUtxoAmount) < 0 {
		return newErr(ErrEmptyContractAsset, "deposit below dustUtxoAmount")
	}
	if cc.FieldCount != len(srcState.Fields) {
		return newErr(ErrInvalidFieldLength, "expected %d fields, got %d", len(srcState.Fields), cc.FieldCount)
	}
	fields := make([]chain.Val, cc.FieldCount)
	for i := cc.FieldCount - 1; i >= 0; i-- {
		v, err := c.pop()
		if err != nil {
			return err
		}
		fields[i] = v
	}
	code := &Code{CodeHash: srcState.CodeHash, DeclaredFieldCount: len(fields)}
	return c.createContract(code, fields, deposit)
}

// DestroySelf pops a target address and transfers the current contract's
// remaining assets to it before removing its state (spec §4.5,
// "Destruction").
type DestroySelf struct{}

func (DestroySelf) exec(c *Context) error {
	if err := c.spendGas(baseGasCost * 8); err != nil {
		return err
	}
	targetV, err := c.pop()
	if err != nil {
		return err
	}
	target, err := targetV.AsAddress()
	if err != nil {
		return err
	}
	if target.Kind != chain.AddressAsset {
		return newErr(ErrInvalidAddressTypeInContractDestroy, "destroySelf target must be an asset address")
	}
	f := currentFrame(c)
	if f == nil || !f.isContract() {
		return newErr(ErrTypeMismatch, "destroySelf outside a contract method")
	}
	return c.destroySelf(f.ContractID, target)
}

// CallExternal invokes a method on another deployed contract, handing it
// the pending asset approval (spec §4.5: "callExternal").
type CallExternal struct {
	MethodIndex int
	ArgCount    int
}

func (ce CallExternal) exec(c *Context) error {
	if err := c.spendGas(baseGasCost * 4); err != nil {
		return err
	}
	targetV, err := c.pop()
	if err != nil {
		return err
	}
	target, err := targetV.AsAddress()
	if err != nil {
		return err
	}
	args := make([]chain.Val, ce.ArgCount)
	for i := ce.ArgCount - 1; i >= 0; i-- {
		v, err := c.pop()
		if err != nil {
			return err
		}
		args[i] = v
	}
	return c.callExternal(target.Hash, ce.MethodIndex, args)
}
