package rsp

import "testing"

func liveCountDirect(m *CoreManager) int {
	n := 0
	for i := 0; i < m.CoreCount(); i++ {
		if m.Core(i).Live() {
			n++
		}
	}
	return n
}

func TestCoreManagerLiveCountInvariant(t *testing.T) {
	m := NewCoreManager(4)
	if got := m.LiveCoreCount(); got != liveCountDirect(m) {
		t.Fatalf("got %d want %d", got, liveCountDirect(m))
	}

	m.KillCore(1)
	if got := m.LiveCoreCount(); got != liveCountDirect(m) {
		t.Fatalf("got %d want %d", got, liveCountDirect(m))
	}
	if got := m.LiveCoreCount(); got != 3 {
		t.Fatalf("got %d want 3", got)
	}

	// killing again is a no-op
	if m.KillCore(1) {
		t.Fatal("expected false killing an already-dead core")
	}
	if got := m.LiveCoreCount(); got != 3 {
		t.Fatalf("got %d want 3", got)
	}

	m.Reset()
	if got := m.LiveCoreCount(); got != 4 {
		t.Fatalf("got %d want 4", got)
	}
	if got := m.LiveCoreCount(); got != liveCountDirect(m) {
		t.Fatalf("got %d want %d", got, liveCountDirect(m))
	}
}

func TestCoreManagerOutOfRangePanics(t *testing.T) {
	m := NewCoreManager(2)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-range core index")
		}
	}()
	m.Core(5)
}

func TestPIDCoreMapping(t *testing.T) {
	if PIDToCore(1) != 0 {
		t.Fatal("pid 1 should map to core 0")
	}
	if CoreToPID(0) != 1 {
		t.Fatal("core 0 should map to pid 1")
	}
}
