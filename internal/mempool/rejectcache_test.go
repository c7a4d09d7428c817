package mempool

import (
	"testing"

	"github.com/zheli/alephium/internal/hashes"
)

func TestRejectCacheRemembersReason(t *testing.T) {
	c, err := NewRejectCache(100)
	if err != nil {
		t.Fatalf("NewRejectCache: %v", err)
	}
	defer c.Close()

	id := hashes.Hash{1, 2, 3}
	if _, ok := c.Reason(id); ok {
		t.Fatalf("expected no reason remembered yet")
	}

	c.Remember(id, "insufficient funds")
	reason, ok := c.Reason(id)
	if !ok {
		t.Fatalf("expected reason to be remembered")
	}
	if reason != "insufficient funds" {
		t.Fatalf("got reason %q, want %q", reason, "insufficient funds")
	}
}
