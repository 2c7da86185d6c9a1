package ids_test

import (
	"testing"

	"github.com/m-lab/podgraph/ids"
)

// TestRemoveByGlobalClearsBothDirections covers Testable Property 6.
func TestRemoveByGlobalClearsBothDirections(t *testing.T) {
	m := ids.NewGlobalMap()
	m.Insert(10, 100)

	if !m.RemoveByGlobal(100) {
		t.Fatal("RemoveByGlobal() = false, want true")
	}
	if _, ok := m.ByGlobal(100); ok {
		t.Error("ByGlobal(100) still resolves after remove")
	}
	if _, ok := m.ByLocal(10); ok {
		t.Error("ByLocal(10) still resolves after RemoveByGlobal")
	}
}

func TestRemoveByGlobalUnknownIsNoop(t *testing.T) {
	m := ids.NewGlobalMap()
	if m.RemoveByGlobal(999) {
		t.Error("RemoveByGlobal() on unknown global = true")
	}
}

func TestInsertOverwritesStalePairings(t *testing.T) {
	m := ids.NewGlobalMap()
	m.Insert(1, 100)
	m.Insert(1, 200) // local 1 now maps to a different global

	if _, ok := m.ByGlobal(100); ok {
		t.Error("stale global 100 still resolves")
	}
	got, ok := m.ByLocal(1)
	if !ok || got != 200 {
		t.Errorf("ByLocal(1) = (%d, %v), want (200, true)", got, ok)
	}
}
