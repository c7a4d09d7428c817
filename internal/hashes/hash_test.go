package hashes

import "testing"

func TestHash256RoundTrip(t *testing.T) {
	h1 := Hash256([]byte("block-header-bytes"))
	h2 := Hash256([]byte("block-header-bytes"))
	if h1 != h2 {
		t.Fatalf("Hash256 not deterministic: %x != %x", h1, h2)
	}
	if h1.IsZero() {
		t.Fatalf("hash of non-empty input should not be zero")
	}
}

func TestDoubleHash256DiffersFromSingle(t *testing.T) {
	in := []byte("tx-bytes")
	single := Hash256(in)
	double := DoubleHash256(in)
	if single == double {
		t.Fatalf("double hash collided with single hash")
	}
}

func TestParseHashRoundTrip(t *testing.T) {
	h := Hash256([]byte("seed"))
	parsed, err := ParseHash(h.String())
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != h {
		t.Fatalf("round trip mismatch: %x != %x", parsed, h)
	}
}

func TestParseHashWrongLength(t *testing.T) {
	if _, err := ParseHash("abcd"); err == nil {
		t.Fatalf("expected error for short hex")
	}
}

func TestFromHashWithinRange(t *testing.T) {
	groups := 4
	for i := 0; i < 64; i++ {
		h := Hash256([]byte{byte(i)})
		ci := FromHash(h, groups)
		if ci.From < 0 || ci.From >= groups || ci.To < 0 || ci.To >= groups {
			t.Fatalf("chain index out of range: %+v", ci)
		}
	}
}

func TestNumDepsAndChains(t *testing.T) {
	if got := NumChains(4); got != 16 {
		t.Fatalf("NumChains(4) = %d, want 16", got)
	}
	if got := NumDeps(4); got != 7 {
		t.Fatalf("NumDeps(4) = %d, want 7", got)
	}
}
