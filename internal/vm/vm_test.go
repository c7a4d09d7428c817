package vm

import (
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ed25519"

	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
	"github.com/zheli/alephium/internal/worldstate"
)

type emptyView struct{}

func (emptyView) GetAssetOutput(hashes.Hash) (chain.AssetOutput, bool, error)       { return chain.AssetOutput{}, false, nil }
func (emptyView) GetContractState(hashes.Hash) (chain.ContractState, bool, error)   { return chain.ContractState{}, false, nil }
func (emptyView) GetContractOutput(hashes.Hash) (chain.ContractOutput, bool, error) { return chain.ContractOutput{}, false, nil }

func newTestContext(maxFrames int) *Context {
	env := Env{
		BlockTimestamp: 1000,
		NetworkID:      1,
		TxID:           hashes.Hash256([]byte("tx")),
		DustUtxoAmount: hashes.NewU256(1),
	}
	state := worldstate.NewCached(emptyView{})
	return NewContext(env, state, 64, maxFrames, 1_000_000)
}

func TestFrameStackOverflowAtExactBound(t *testing.T) {
	// A method that unconditionally calls itself must overflow the frame
	// stack at exactly MaxFrames activations and succeed one shallower.
	const maxFrames = 8

	code := &Code{CodeHash: hashes.Hash256([]byte("looper"))}
	code.Methods = []Method{
		{
			IsPublic:    true,
			ArgsCount:   0,
			LocalsCount: 0,
			Instructions: []Instruction{
				EnvQuery{Kind: EnvSelfContractID},
				CallExternal{MethodIndex: 0, ArgCount: 0},
			},
		},
	}

	m := NewMachine()
	m.Register(code)

	ctx := newTestContext(maxFrames)
	ctx.Codes = m.codes
	cs := chain.ContractState{ContractID: hashes.Hash256([]byte("self")), CodeHash: code.CodeHash}
	ctx.State.PutContractState(cs)

	_, err := ctx.callMethod(code, 0, nil, nil, nil, cs.ContractID)
	if err == nil {
		t.Fatal("expected stack overflow, got nil")
	}
	verr, ok := err.(*Error)
	if !ok || verr.Code != ErrStackOverflow {
		t.Fatalf("expected ErrStackOverflow, got %v", err)
	}
}

func TestFrameStackSucceedsOneShallower(t *testing.T) {
	const maxFrames = 8

	code := &Code{CodeHash: hashes.Hash256([]byte("bounded"))}
	code.Methods = []Method{
		{
			IsPublic: true,
			Instructions: []Instruction{
				LoadLocal{},
			},
		},
	}
	code.Methods[0].ArgsCount = 0
	code.Methods[0].LocalsCount = 0
	code.Methods[0].Instructions = []Instruction{PushConst{Val: chain.BoolVal(true)}, Assert{}}

	m := NewMachine()
	m.Register(code)
	ctx := newTestContext(maxFrames)
	ctx.Codes = m.codes
	cs := chain.ContractState{ContractID: hashes.Hash256([]byte("self2")), CodeHash: code.CodeHash}
	ctx.State.PutContractState(cs)
	// Occupy all but one frame slot so the call below runs at the deepest
	// depth the bound allows.
	for i := 0; i < maxFrames-1; i++ {
		ctx.Frames = append(ctx.Frames, &Frame{Assets: newAssetPool()})
	}

	_, err := ctx.callMethod(code, 0, nil, nil, nil, cs.ContractID)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func deployTestContract(t *testing.T, ctx *Context, deposit hashes.U256) hashes.Hash {
	t.Helper()
	code := &Code{CodeHash: hashes.Hash256([]byte("asset-holder")), DeclaredFieldCount: 0}
	code.Methods = []Method{{IsPublic: true, IsPayable: true, Instructions: nil}}

	script := &Code{CodeHash: hashes.Hash256([]byte("deploy-script"))}
	script.Methods = []Method{
		{
			IsPublic:  true,
			IsPayable: true,
			Instructions: []Instruction{
				PushConst{Val: chain.U256Val(deposit)},
				CreateContract{Code: code, FieldCount: 0},
				Pop{},
			},
		},
	}

	m := NewMachine()
	m.Register(code)
	if err := m.RunScript(ctx, script, nil, newAssetPool()); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	ctx.Codes = m.codes

	var id hashes.Hash
	for k := range ctx.State.Diff().ContractStates {
		id = k
	}
	return id
}

func TestDestroySelfRemovesContractAndSecondDestroyFails(t *testing.T) {
	ctx := newTestContext(16)
	contractID := deployTestContract(t, ctx, hashes.NewU256(10))

	target := chain.Address{Kind: chain.AddressAsset, Hash: hashes.Hash256([]byte("payout"))}
	if err := ctx.destroySelf(contractID, target); err != nil {
		t.Fatalf("first destroySelf failed: %v", err)
	}

	_, ok, err := ctx.State.GetContractState(contractID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("contract state should be gone after destroySelf")
	}

	err = ctx.destroySelf(contractID, target)
	if err == nil {
		t.Fatal("expected second destroySelf to fail")
	}
	verr, ok2 := err.(*Error)
	if !ok2 || verr.Code != ErrEmptyContractAsset {
		t.Fatalf("expected ErrEmptyContractAsset, got %v", err)
	}
}

func TestArithCheckedOverflow(t *testing.T) {
	ctx := newTestContext(4)
	ctx.Frames = append(ctx.Frames, &Frame{Assets: newAssetPool()})
	max := hashes.U256FromBytes32([32]byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	})
	ins := []Instruction{
		PushConst{Val: chain.U256Val(max)},
		PushConst{Val: chain.U256Val(hashes.NewU256(1))},
		Arith{Op: ArithAdd},
	}
	err := execAll(ctx, ins)
	if err == nil {
		t.Fatal("expected overflow error")
	}
	verr, ok := err.(*Error)
	if !ok || verr.Code != ErrArithmeticOverflow {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestArithModularWraps(t *testing.T) {
	ctx := newTestContext(4)
	ctx.Frames = append(ctx.Frames, &Frame{Assets: newAssetPool()})
	max := hashes.U256FromBytes32([32]byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	})
	ins := []Instruction{
		PushConst{Val: chain.U256Val(max)},
		PushConst{Val: chain.U256Val(hashes.NewU256(1))},
		Arith{Op: ArithAdd, Modular: true},
	}
	if err := execAll(ctx, ins); err != nil {
		t.Fatalf("modular add should not fail: %v", err)
	}
	v, err := ctx.pop()
	if err != nil {
		t.Fatal(err)
	}
	if !v.U256.IsZero() {
		t.Fatalf("expected wraparound to zero, got %v", v.U256)
	}
}

func TestBitwiseAndOrXorNot(t *testing.T) {
	ctx := newTestContext(4)
	cases := []struct {
		op   BitOp
		a, b uint64
		want uint64
	}{
		{BitAnd, 0b1100, 0b1010, 0b1000},
		{BitOr, 0b1100, 0b1010, 0b1110},
		{BitXor, 0b1100, 0b1010, 0b0110},
	}
	for _, tc := range cases {
		ins := []Instruction{
			PushConst{Val: chain.U256Val(hashes.NewU256(tc.a))},
			PushConst{Val: chain.U256Val(hashes.NewU256(tc.b))},
			Bitwise{Op: tc.op},
		}
		if err := execAll(ctx, ins); err != nil {
			t.Fatalf("op %v: %v", tc.op, err)
		}
		v, err := ctx.pop()
		if err != nil {
			t.Fatal(err)
		}
		if v.U256.Uint64() != tc.want {
			t.Fatalf("op %v: want %d got %d", tc.op, tc.want, v.U256.Uint64())
		}
	}
}

func TestComparisons(t *testing.T) {
	ctx := newTestContext(4)
	ins := []Instruction{
		PushConst{Val: chain.U256Val(hashes.NewU256(3))},
		PushConst{Val: chain.U256Val(hashes.NewU256(5))},
		Cmp{Op: CmpLt},
	}
	if err := execAll(ctx, ins); err != nil {
		t.Fatal(err)
	}
	v, err := ctx.pop()
	if err != nil {
		t.Fatal(err)
	}
	if !v.Bool {
		t.Fatal("expected 3 < 5 to be true")
	}
}

func TestBoolAndShortCircuits(t *testing.T) {
	ctx := newTestContext(4)
	// push false, then BoolAnd whose Right would push true and pop an empty
	// stack if evaluated -- if short-circuit holds, Right never runs and the
	// final pop succeeds with exactly one value: false.
	ins := []Instruction{
		PushConst{Val: chain.BoolVal(false)},
		BoolAnd{Right: []Instruction{Pop{}}}, // would underflow if evaluated
	}
	if err := execAll(ctx, ins); err != nil {
		t.Fatalf("short-circuit should not evaluate Right: %v", err)
	}
	v, err := ctx.pop()
	if err != nil {
		t.Fatal(err)
	}
	if v.Bool {
		t.Fatal("expected false")
	}
}

func TestHashKinds(t *testing.T) {
	ctx := newTestContext(4)
	for _, kind := range []HashKind{HashBlake2b, HashSha256, HashSha3, HashKeccak256} {
		ins := []Instruction{
			PushConst{Val: chain.ByteVecVal([]byte("hello"))},
			HashVal{Kind: kind},
		}
		if err := execAll(ctx, ins); err != nil {
			t.Fatalf("kind %v: %v", kind, err)
		}
		v, err := ctx.pop()
		if err != nil {
			t.Fatal(err)
		}
		if len(v.Bytes) != 32 {
			t.Fatalf("kind %v: expected 32-byte digest, got %d", kind, len(v.Bytes))
		}
	}
}

func TestVerifySigSecp256k1(t *testing.T) {
	ctx := newTestContext(4)
	priv := secp256k1.PrivKeyFromBytes(hashes.Hash256([]byte("priv-seed"))[:])
	pub := priv.PubKey().SerializeCompressed()
	sig := ecdsa.Sign(priv, ctx.Env.TxID[:])
	der := sig.Serialize()

	ins := []Instruction{
		PushConst{Val: chain.ByteVecVal(pub)},
		PushConst{Val: chain.ByteVecVal(der)},
		VerifySig{Kind: SigSecp256k1},
	}
	if err := execAll(ctx, ins); err != nil {
		t.Fatalf("valid secp256k1 signature rejected: %v", err)
	}

	corrupted := append([]byte(nil), der...)
	corrupted[len(corrupted)-1] ^= 0xff
	badIns := []Instruction{
		PushConst{Val: chain.ByteVecVal(pub)},
		PushConst{Val: chain.ByteVecVal(corrupted)},
		VerifySig{Kind: SigSecp256k1},
	}
	if err := execAll(ctx, badIns); err == nil {
		t.Fatal("expected corrupted signature to fail verification")
	}
}

func TestVerifySigEd25519(t *testing.T) {
	ctx := newTestContext(4)
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	sig := ed25519.Sign(priv, ctx.Env.TxID[:])

	ins := []Instruction{
		PushConst{Val: chain.ByteVecVal(pub)},
		PushConst{Val: chain.ByteVecVal(sig)},
		VerifySig{Kind: SigEd25519},
	}
	if err := execAll(ctx, ins); err != nil {
		t.Fatalf("valid ed25519 signature rejected: %v", err)
	}
}

func TestAbsoluteLockTimeVerify(t *testing.T) {
	ctx := newTestContext(4)
	ctx.Env.BlockTimestamp = 100
	if err := (AbsoluteLockTimeVerify{Time: 50}).exec(ctx); err != nil {
		t.Fatalf("lock already elapsed should pass: %v", err)
	}
	err := (AbsoluteLockTimeVerify{Time: 200}).exec(ctx)
	if err == nil {
		t.Fatal("expected lock not yet elapsed to fail")
	}
	verr, ok := err.(*Error)
	if !ok || verr.Code != ErrAbsoluteLockTimeVerificationFailed {
		t.Fatalf("expected ErrAbsoluteLockTimeVerificationFailed, got %v", err)
	}
}

func TestRelativeLockTimeVerify(t *testing.T) {
	ctx := newTestContext(4)
	ctx.Env.BlockTimestamp = 1000
	ctx.Env.InputTimestamp = 900
	if err := (RelativeLockTimeVerify{Duration: 50}).exec(ctx); err != nil {
		t.Fatalf("elapsed 100 >= required 50 should pass: %v", err)
	}
	err := (RelativeLockTimeVerify{Duration: 500}).exec(ctx)
	if err == nil {
		t.Fatal("expected relative lock-time failure")
	}
	verr, ok := err.(*Error)
	if !ok || verr.Code != ErrRelativeLockTimeVerificationFailed {
		t.Fatalf("expected ErrRelativeLockTimeVerificationFailed, got %v", err)
	}
}
