package cjalloc

import "testing"

func TestRawAreaSeekRunFreeRun(t *testing.T) {
	r := initRawArea(0x1000, 4*fixedPageAreaSize, fixedPageAreaSize)

	addr, ok := r.seekRun(0, r.bitCount, 2)
	if !ok {
		t.Fatal("seekRun(0, 2) failed on empty area")
	}
	if addr != 0x1000 {
		t.Errorf("addr = %#x, want %#x", addr, 0x1000)
	}
	if r.freeSlots() != 2 {
		t.Errorf("freeSlots = %d, want 2", r.freeSlots())
	}

	if !r.freeRun(addr, 2) {
		t.Fatal("freeRun failed on a run seekRun just returned")
	}
	if r.freeSlots() != 4 {
		t.Errorf("freeSlots after freeRun = %d, want 4", r.freeSlots())
	}
}

func TestRawAreaSeekRunExhaustion(t *testing.T) {
	r := initRawArea(0, 2*fixedPageAreaSize, fixedPageAreaSize)

	if _, ok := r.seekRun(0, r.bitCount, 3); ok {
		t.Fatal("seekRun(0, 3) should fail: area only has 2 granules")
	}

	if _, ok := r.seekRun(0, r.bitCount, 2); !ok {
		t.Fatal("seekRun(0, 2) should succeed on a fresh 2-granule area")
	}
	if _, ok := r.seekRun(0, r.bitCount, 1); ok {
		t.Fatal("seekRun(0, 1) should fail once the area is fully reserved")
	}
}

func TestRawAreaReserve(t *testing.T) {
	r := initRawArea(0, 4*fixedPageAreaSize, fixedPageAreaSize)
	r.reserve(2)

	if r.freeSlots() != 2 {
		t.Errorf("freeSlots after reserve(2) = %d, want 2", r.freeSlots())
	}

	addr, ok := r.seekRun(0, r.bitCount, 1)
	if !ok {
		t.Fatal("seekRun(0, 1) failed after reserve")
	}
	if addr != uintptr(2*fixedPageAreaSize) {
		t.Errorf("addr = %#x, want %#x", addr, 2*fixedPageAreaSize)
	}
}

func TestRawAreaFreeRunRejectsBadAddr(t *testing.T) {
	r := initRawArea(0, 2*fixedPageAreaSize, fixedPageAreaSize)

	if r.freeRun(uintptr(fixedPageAreaSize/2), 1) {
		t.Error("freeRun should reject an address not on a granule boundary")
	}
	if r.freeRun(uintptr(10*fixedPageAreaSize), 1) {
		t.Error("freeRun should reject an address past the area")
	}
	if r.freeRun(uintptr(fixedPageAreaSize), 2) {
		t.Error("freeRun should reject a run that would run past the end")
	}
}

func TestRawWindowsUrgentReserve(t *testing.T) {
	w := rawWindows{
		near:           initRawArea(0, 4*fixedPageAreaSize, fixedPageAreaSize),
		hashGranules:   1,
		urgentGranules: 1,
	}
	// Only the hash granules are marked, as Configure does; the urgent
	// granule stays free for seekUrgentRaw.
	w.near.reserve(w.hashGranules)

	if _, ok := w.seekRaw(3); ok {
		t.Fatal("seekRaw should not reach into the hash+urgent reservation")
	}
	addr, ok := w.seekUrgentRaw(1)
	if !ok {
		t.Fatal("seekUrgentRaw should reach the urgent granule past the hash reservation")
	}
	if addr != uintptr(fixedPageAreaSize) {
		t.Errorf("urgent granule addr = %#x, want %#x", addr, fixedPageAreaSize)
	}
}

func TestRawWindowsNoFarConfigured(t *testing.T) {
	w := rawWindows{near: initRawArea(0, fixedPageAreaSize, fixedPageAreaSize)}

	if _, ok := w.seekFarRaw(1); ok {
		t.Error("seekFarRaw should fail when no far window is configured")
	}
	if w.freeInWindow(windowFar, 0, 1) {
		t.Error("freeInWindow(windowFar, ...) should fail when no far window is configured")
	}
}
