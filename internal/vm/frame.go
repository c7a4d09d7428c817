package vm

import (
	"github.com/zheli/alephium/internal/chain"
	"github.com/zheli/alephium/internal/hashes"
)

// Frame is one method activation (spec §4.5: "Frame stack of method
// activations, bounded by frameStackMaxSize"). Locals are private to the
// frame; the operand stack is shared across the whole Context the way the
// teacher's single evaluation stack works in consensus/spend_verify.go.
type Frame struct {
	ContractID hashes.Hash // zero for a bare tx-script frame
	InCode      *Code
	MethodIndex int
	Locals      []chain.Val
	Assets      *AssetPool
	Caller      *Frame // immediate caller, nil for the top-level frame
}

func (f *Frame) isContract() bool {
	return f.InCode != nil
}

func (f *Frame) method() *Method {
	return &f.InCode.Methods[f.MethodIndex]
}

// callerContractID returns the zero hash when called from a tx script
// directly (spec §4.5: "isCalledFromTxScript").
func (f *Frame) callerContractID() hashes.Hash {
	if f.Caller == nil || !f.Caller.isContract() {
		return hashes.Zero
	}
	return f.Caller.ContractID
}
