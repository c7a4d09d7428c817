package chain

import (
	"fmt"

	"github.com/zheli/alephium/internal/hashes"
)

// ValKind tags which of the VM's value types a Val holds (spec §4.5:
// "Val = {Bool, I256, U256, ByteVec, Address}").
type ValKind byte

const (
	ValBool ValKind = iota
	ValI256
	ValU256
	ValByteVec
	ValAddress
)

// AddressKind distinguishes an asset-owning address from a contract address;
// several VM instructions behave differently depending on which kind they
// are handed (e.g. destroySelf, spec §4.5).
type AddressKind byte

const (
	AddressAsset AddressKind = iota
	AddressContract
)

// Address is either an asset-lockup hash or a contract id, tagged by Kind.
type Address struct {
	Kind AddressKind
	Hash hashes.Hash
}

// Val is a tagged union over the VM's value types. Only the field matching
// Kind is meaningful; this mirrors the teacher's discriminated encoding
// style (consensus/tx.go's tagged covenant types) rather than a Go
// interface, so values can be copied and compared cheaply on the operand
// stack.
type Val struct {
	Kind    ValKind
	Bool    bool
	I256    hashes.I256
	U256    hashes.U256
	Bytes   []byte
	Address Address
}

// BoolVal constructs a Val holding a boolean.
func BoolVal(b bool) Val { return Val{Kind: ValBool, Bool: b} }

// I256Val constructs a Val holding a signed integer.
func I256Val(v hashes.I256) Val { return Val{Kind: ValI256, I256: v} }

// U256Val constructs a Val holding an unsigned integer.
func U256Val(v hashes.U256) Val { return Val{Kind: ValU256, U256: v} }

// ByteVecVal constructs a Val holding a byte string.
func ByteVecVal(b []byte) Val { return Val{Kind: ValByteVec, Bytes: b} }

// AddressVal constructs a Val holding an address.
func AddressVal(a Address) Val { return Val{Kind: ValAddress, Address: a} }

// AsBool returns the boolean payload, erroring if Kind is not ValBool.
func (v Val) AsBool() (bool, error) {
	if v.Kind != ValBool {
		return false, fmt.Errorf("chain: val is not Bool")
	}
	return v.Bool, nil
}

// AsU256 returns the unsigned payload, erroring if Kind is not ValU256.
func (v Val) AsU256() (hashes.U256, error) {
	if v.Kind != ValU256 {
		return hashes.U256{}, fmt.Errorf("chain: val is not U256")
	}
	return v.U256, nil
}

// AsI256 returns the signed payload, erroring if Kind is not ValI256.
func (v Val) AsI256() (hashes.I256, error) {
	if v.Kind != ValI256 {
		return hashes.I256{}, fmt.Errorf("chain: val is not I256")
	}
	return v.I256, nil
}

// AsByteVec returns the byte payload, erroring if Kind is not ValByteVec.
func (v Val) AsByteVec() ([]byte, error) {
	if v.Kind != ValByteVec {
		return nil, fmt.Errorf("chain: val is not ByteVec")
	}
	return v.Bytes, nil
}

// AsAddress returns the address payload, erroring if Kind is not ValAddress.
func (v Val) AsAddress() (Address, error) {
	if v.Kind != ValAddress {
		return Address{}, fmt.Errorf("chain: val is not Address")
	}
	return v.Address, nil
}

// ContractState is a deployed contract's mutable fields plus its immutable
// code hash and a pointer to its current asset output (spec §3: "WorldState
// ... plus ContractId -> ContractState{fields, codeHash, assetOutputRef}").
type ContractState struct {
	ContractID     hashes.Hash
	Fields         []Val
	CodeHash       hashes.Hash
	AssetOutputRef TxOutputRef
}
