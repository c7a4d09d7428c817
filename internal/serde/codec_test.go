package serde

import "testing"

func TestCompactSizeRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000, ^uint64(0)}
	for _, v := range cases {
		w := NewWriter(16)
		w.PutCompactSize(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadCompactSize()
		if err != nil {
			t.Fatalf("ReadCompactSize(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: got=%d want=%d", got, v)
		}
		if !r.Done() {
			t.Fatalf("expected reader exhausted for %d", v)
		}
	}
}

func TestCompactSizeRejectsNonMinimal(t *testing.T) {
	// tag 0xfd with a value that fits in one byte is non-minimal.
	buf := []byte{0xfd, 0x05, 0x00}
	r := NewReader(buf)
	if _, err := r.ReadCompactSize(); err == nil {
		t.Fatalf("expected non-minimal compactsize to be rejected")
	}
}

func TestBytesLPRoundTrip(t *testing.T) {
	w := NewWriter(32)
	payload := []byte("hello world")
	w.PutBytesLP(payload)
	r := NewReader(w.Bytes())
	got, err := r.ReadBytesLP(1024)
	if err != nil {
		t.Fatalf("ReadBytesLP: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: got=%q want=%q", got, payload)
	}
}

func TestReadBytesLPRejectsOversizedLength(t *testing.T) {
	w := NewWriter(8)
	w.PutBytesLP(make([]byte, 100))
	r := NewReader(w.Bytes())
	if _, err := r.ReadBytesLP(10); err == nil {
		t.Fatalf("expected cap violation to error")
	}
}

func TestTruncatedInputErrors(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadU64(); err == nil {
		t.Fatalf("expected truncated read to error")
	}
}

func TestIntegerRoundTrips(t *testing.T) {
	w := NewWriter(32)
	w.PutU16(0xabcd)
	w.PutU32(0xdeadbeef)
	w.PutU64(0x0102030405060708)
	w.PutI64(-42)

	r := NewReader(w.Bytes())
	if v, err := r.ReadU16(); err != nil || v != 0xabcd {
		t.Fatalf("u16 mismatch: v=%x err=%v", v, err)
	}
	if v, err := r.ReadU32(); err != nil || v != 0xdeadbeef {
		t.Fatalf("u32 mismatch: v=%x err=%v", v, err)
	}
	if v, err := r.ReadU64(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("u64 mismatch: v=%x err=%v", v, err)
	}
	if v, err := r.ReadI64(); err != nil || v != -42 {
		t.Fatalf("i64 mismatch: v=%d err=%v", v, err)
	}
}
