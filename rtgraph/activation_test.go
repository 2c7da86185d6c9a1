package rtgraph_test

import (
	"testing"
	"unsafe"

	"github.com/m-lab/podgraph/rtgraph"
)

// TestActivationTransitions covers Testable Property 8: every status
// transition driven through CompareAndSwapStatus either takes effect
// exactly when the old value matches, or leaves the status untouched.
func TestActivationTransitions(t *testing.T) {
	block := &rtgraph.ActivationBlock{Status: rtgraph.StatusNotTriggered}

	if ok := rtgraph.CompareAndSwapStatus(block, rtgraph.StatusInactive, rtgraph.StatusTriggered); ok {
		t.Fatal("CAS succeeded against a non-matching old value")
	}
	if got := rtgraph.LoadStatus(block); got != rtgraph.StatusNotTriggered {
		t.Fatalf("status changed after a failed CAS: got %d", got)
	}

	if ok := rtgraph.CompareAndSwapStatus(block, rtgraph.StatusNotTriggered, rtgraph.StatusTriggered); !ok {
		t.Fatal("CAS failed against the correct old value")
	}
	if got := rtgraph.LoadStatus(block); got != rtgraph.StatusTriggered {
		t.Fatalf("status did not update: got %d", got)
	}

	prev := rtgraph.SwapStatus(block, rtgraph.StatusAwake)
	if prev != rtgraph.StatusTriggered {
		t.Fatalf("SwapStatus returned wrong previous value: %d", prev)
	}
	if got := rtgraph.LoadStatus(block); got != rtgraph.StatusAwake {
		t.Fatalf("status did not update after Swap: got %d", got)
	}
}

// TestActivationBlockLayout measures the actual compiled layout of
// ActivationBlock, the way inetdiag_test.go checks InetDiagSockID and
// InetDiagMsg against the kernel's wire sizes.
func TestActivationBlockLayout(t *testing.T) {
	var a rtgraph.ActivationBlock
	if got := unsafe.Sizeof(a); got != rtgraph.ActivationBlockSize {
		t.Errorf("unsafe.Sizeof(ActivationBlock{}) = %d, want %d", got, rtgraph.ActivationBlockSize)
	}
	if got := unsafe.Offsetof(a.ClientVersion); got != rtgraph.ClientVersionOffset {
		t.Errorf("unsafe.Offsetof(ClientVersion) = %d, want %d", got, rtgraph.ClientVersionOffset)
	}
}
