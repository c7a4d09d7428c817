package validator

import (
	"crypto/ed25519"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/zheli/alephium/internal/hashes"
)

// SigScheme tags which signature algorithm an asset's lockup/unlock pair
// uses. The VM's own VerifySig instruction (spec §4.5), with its ed25519
// and secp256k1 kinds, exercises the same two primitives for in-script
// signature checks;
// this file applies them to plain P2PKH-style unlock scripts outside any
// script.
type SigScheme byte

const (
	SchemeEd25519   SigScheme = 0
	SchemeSecp256k1 SigScheme = 1
)

// lockupHash derives the pubkey-hash a lockup script commits to: the first
// byte is the scheme tag, the remaining 32 bytes are Hash256(pubkey).
func lockupHash(scheme SigScheme, pubkey []byte) []byte {
	h := hashes.Hash256(pubkey)
	out := make([]byte, 1+32)
	out[0] = byte(scheme)
	copy(out[1:], h[:])
	return out
}

// verifyUnlock checks that unlockScript (scheme tag + pubkey) matches
// lockupScript's committed hash and that sig is a valid signature over
// sigHash under that pubkey (spec §4.4: "verify unlock script against the
// output's lockup").
func verifyUnlock(lockupScript, unlockScript, sig []byte, sigHash hashes.Hash) error {
	if len(unlockScript) < 1 {
		return newErr(ErrInvalidUnlockScript, "empty unlock script")
	}
	scheme := SigScheme(unlockScript[0])
	pubkey := unlockScript[1:]

	want := lockupHash(scheme, pubkey)
	if len(lockupScript) != len(want) {
		return newErr(ErrInvalidUnlockScript, "lockup script length mismatch")
	}
	for i := range want {
		if lockupScript[i] != want[i] {
			return newErr(ErrInvalidUnlockScript, "unlock script does not match lockup commitment")
		}
	}

	switch scheme {
	case SchemeEd25519:
		if len(pubkey) != ed25519.PublicKeySize {
			return newErr(ErrInvalidUnlockScript, "bad ed25519 pubkey length")
		}
		if !ed25519.Verify(ed25519.PublicKey(pubkey), sigHash[:], sig) {
			return newErr(ErrInvalidUnlockScript, "ed25519 signature verification failed")
		}
		return nil
	case SchemeSecp256k1:
		pk, err := secp256k1.ParsePubKey(pubkey)
		if err != nil {
			return newErr(ErrInvalidUnlockScript, "parse secp256k1 pubkey: %v", err)
		}
		s, err := ecdsa.ParseDERSignature(sig)
		if err != nil {
			return newErr(ErrInvalidUnlockScript, "parse secp256k1 signature: %v", err)
		}
		if !s.Verify(sigHash[:], pk) {
			return newErr(ErrInvalidUnlockScript, "secp256k1 signature verification failed")
		}
		return nil
	default:
		return newErr(ErrInvalidUnlockScript, "unknown signature scheme %d", scheme)
	}
}

// LockupForPubkey builds the lockup script a wallet would publish for a
// given scheme+pubkey, the counterpart callers use when constructing
// outputs (exported for the mining template builder and tests).
func LockupForPubkey(scheme SigScheme, pubkey []byte) []byte {
	return lockupHash(scheme, pubkey)
}

// UnlockForPubkey builds the unlock-script prefix (scheme tag + pubkey)
// a spending input pairs with its detached signature.
func UnlockForPubkey(scheme SigScheme, pubkey []byte) []byte {
	out := make([]byte, 1+len(pubkey))
	out[0] = byte(scheme)
	copy(out[1:], pubkey)
	return out
}
