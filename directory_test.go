package cjalloc

import "testing"

func TestDirectoryPageAssignAllocFreeSubarea(t *testing.T) {
	dp := newDirectoryPage(layerSPA, windowNear, 0x1000)

	rowIdx, ok := spaClassIndexFor(64)
	if !ok {
		t.Fatal("spaClassIndexFor(64) should resolve to a row")
	}
	row := &dp.rows[rowIdx]

	idx := dp.assignEntry(rowIdx, row.capacity, 0x2000)
	if idx < 0 {
		t.Fatal("assignEntry failed on a fresh directory page")
	}

	addr1, ok := dp.allocSubarea(rowIdx, idx)
	if !ok {
		t.Fatal("allocSubarea failed on a freshly assigned entry")
	}
	addr2, ok := dp.allocSubarea(rowIdx, idx)
	if !ok {
		t.Fatal("second allocSubarea failed")
	}
	if addr1 == addr2 {
		t.Fatalf("allocSubarea returned the same address twice: %#x", addr1)
	}

	if _, released := dp.freeSubarea(rowIdx, idx, addr1); released {
		t.Fatal("freeSubarea reported released while the entry still has addr2 live")
	}
	backing, released := dp.freeSubarea(rowIdx, idx, addr2)
	if !released {
		t.Fatal("freeSubarea should report released once the entry's last subarea is freed")
	}
	if backing != 0x2000 {
		t.Errorf("released backing = %#x, want %#x", backing, 0x2000)
	}
	if !dp.empty() {
		t.Error("directory page should be empty once its only entry returns to the free list")
	}
}

func TestDirectoryPageAssignEntryExhaustion(t *testing.T) {
	dp := newDirectoryPage(layerMPA, windowNear, 0)
	rowIdx, _ := mpaClassIndexFor(4096)
	row := &dp.rows[rowIdx]

	var last int32 = -1
	for i := 0; i < entriesPerDirectoryPage; i++ {
		idx := dp.assignEntry(rowIdx, row.capacity, uintptr(i+1)*fixedPageAreaSize)
		if idx < 0 {
			t.Fatalf("assignEntry failed early at i=%d", i)
		}
		last = idx
	}
	if dp.assignEntry(rowIdx, row.capacity, 0xdead) != -1 {
		t.Fatal("assignEntry should fail once every entry slot is assigned")
	}
	_ = last
}

func TestDirectoryPageFullChainTransition(t *testing.T) {
	dp := newDirectoryPage(layerSPA, windowNear, 0)
	rowIdx, _ := spaClassIndexFor(2048) // capacity 2 (onePageAreaSize/2048)
	row := &dp.rows[rowIdx]

	idx := dp.assignEntry(rowIdx, row.capacity, 0x4000)
	if row.chain.empty() {
		t.Fatal("a freshly assigned entry should be on chain, not fullChain")
	}

	for i := uint32(0); i < row.capacity; i++ {
		if _, ok := dp.allocSubarea(rowIdx, idx); !ok {
			t.Fatalf("allocSubarea failed at i=%d of capacity %d", i, row.capacity)
		}
	}
	if !row.chain.empty() || row.fullChain.empty() {
		t.Error("entry should have moved to fullChain once exhausted")
	}
}

func TestDirectoryChainAddRemove(t *testing.T) {
	var c directoryChain
	dp1 := newDirectoryPage(layerHPA, windowNear, 0x1000)
	dp2 := newDirectoryPage(layerHPA, windowNear, 0x2000)

	c.add(dp1)
	c.add(dp2)
	if len(c.pages) != 2 {
		t.Fatalf("len(pages) = %d, want 2", len(c.pages))
	}

	c.remove(dp1)
	if len(c.pages) != 1 || c.pages[0] != dp2 {
		t.Fatal("remove did not leave exactly dp2 behind")
	}
}

func TestDirectoryPageHPAEntryLifecycle(t *testing.T) {
	dp := newDirectoryPage(layerHPA, windowNear, 0)

	idx := dp.assignHPAEntry(0x8000, 3)
	if idx < 0 {
		t.Fatal("assignHPAEntry failed on a fresh page")
	}
	if dp.hot.empty() {
		t.Fatal("assignHPAEntry should place the entry on the hot list")
	}

	backing, granules := dp.releaseHPAEntry(idx)
	if backing != 0x8000 || granules != 3 {
		t.Errorf("releaseHPAEntry = (%#x, %d), want (%#x, 3)", backing, granules, 0x8000)
	}
	if !dp.empty() {
		t.Error("directory page should be empty after releasing its only HPA entry")
	}
}
