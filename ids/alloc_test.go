package ids_test

import (
	"testing"

	"github.com/m-lab/podgraph/ids"
)

// TestAllocNeverDoubleAllocates covers Testable Property 5: alloc
// never returns an id for which set/alloc was already called without
// an intervening unset, and after alloc the id is set.
func TestAllocNeverDoubleAllocates(t *testing.T) {
	a := ids.NewAllocator()
	seen := map[uint32]bool{ids.Core: true, ids.Client: true}

	for i := 0; i < 200; i++ {
		id, err := a.Alloc()
		if err != nil {
			t.Fatalf("Alloc() error: %v", err)
		}
		if seen[id] {
			t.Fatalf("Alloc() returned %d twice", id)
		}
		seen[id] = true
		if !a.IsSet(id) {
			t.Fatalf("IsSet(%d) = false after Alloc", id)
		}
	}
}

func TestUnsetAllowsReuse(t *testing.T) {
	a := ids.NewAllocator()
	id, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc() error: %v", err)
	}
	a.Unset(id)
	if a.IsSet(id) {
		t.Fatalf("IsSet(%d) = true after Unset", id)
	}
	again, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc() error: %v", err)
	}
	if again != id {
		t.Errorf("Alloc() after Unset = %d, want reused id %d", again, id)
	}
}

func TestPreSetCoreAndClient(t *testing.T) {
	a := ids.NewAllocator()
	if !a.IsSet(ids.Core) || !a.IsSet(ids.Client) {
		t.Fatal("Core and Client must be pre-set")
	}
}

// TestNextVisitsEverySetIDExactlyOnce covers the second half of
// Testable Property 5.
func TestNextVisitsEverySetIDExactlyOnce(t *testing.T) {
	a := ids.NewAllocator()
	want := map[uint32]bool{ids.Core: true, ids.Client: true}
	for i := 0; i < 130; i++ {
		id, err := a.Alloc()
		if err != nil {
			t.Fatalf("Alloc() error: %v", err)
		}
		want[id] = true
	}

	got := map[uint32]int{}
	a.Next(func(id uint32) { got[id]++ })

	if len(got) != len(want) {
		t.Fatalf("Next visited %d ids, want %d", len(got), len(want))
	}
	for id, count := range got {
		if count != 1 {
			t.Errorf("id %d visited %d times", id, count)
		}
		if !want[id] {
			t.Errorf("Next visited unexpected id %d", id)
		}
	}
}

func TestAllocSpansMultipleWords(t *testing.T) {
	a := ids.NewAllocator()
	for i := 0; i < 300; i++ {
		if _, err := a.Alloc(); err != nil {
			t.Fatalf("Alloc() #%d error: %v", i, err)
		}
	}
}
