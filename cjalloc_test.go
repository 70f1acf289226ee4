package cjalloc

import "testing"

// The scenarios below mirror the end-to-end examples worked through by
// hand: a near window, an optional far window, and (for S5) an urgent
// reserve, each exercising one layer-routing decision or flag.

func TestScenarioS1SmallAllocRounds(t *testing.T) {
	a, _ := newTestAllocator(t, 4)

	if got := Calculate(100); got != 128 {
		t.Fatalf("calculate(100) = %d, want 128", got)
	}

	p1, ok := a.Alloc(100, Near)
	if !ok {
		t.Fatal("alloc(100, NEAR) failed")
	}
	if got := a.Free(p1); got != 128 {
		t.Fatalf("free(p1) = %d, want 128", got)
	}
	if f := a.LastFault(); f != nil {
		t.Fatalf("unexpected fault freeing p1: %v", f)
	}
}

func TestScenarioS2TwoMPAAllocs(t *testing.T) {
	a, _ := newTestAllocator(t, 4)

	if got := Calculate(4095); got != 4096 {
		t.Fatalf("calculate(4095) = %d, want 4096", got)
	}
	if got := Calculate(4097); got != 8192 {
		t.Fatalf("calculate(4097) = %d, want 8192", got)
	}

	p1, ok := a.Alloc(4095, Near)
	if !ok {
		t.Fatal("alloc(4095, NEAR) failed")
	}
	p2, ok := a.Alloc(4097, Near)
	if !ok {
		t.Fatal("alloc(4097, NEAR) failed")
	}
	if p1 == p2 {
		t.Fatal("the two MPA allocations must not overlap")
	}
	if got := a.Free(p1); got != 4096 {
		t.Errorf("free(p1) = %d, want 4096", got)
	}
	if got := a.Free(p2); got != 8192 {
		t.Errorf("free(p2) = %d, want 8192", got)
	}
}

func TestScenarioS3HugeAllocRoundsToGranules(t *testing.T) {
	a, _ := newTestAllocator(t, 8)

	if got := Calculate(262145); got != 393216 {
		t.Fatalf("calculate(262145) = %d, want 393216 (three granules)", got)
	}

	p, ok := a.Alloc(262145, Near)
	if !ok {
		t.Fatal("alloc(262145, NEAR) failed")
	}
	if got := a.Free(p); got != 393216 {
		t.Fatalf("free(p) = %d, want 393216", got)
	}
}

func TestScenarioS4OrderAllocsFreedInReverse(t *testing.T) {
	a, _ := newTestAllocator(t, 64)

	var ptrs []uintptr
	for i := 0; i < 10; i++ {
		p, ok := a.AllocByOrder(7, Near) // 4096 << 7 = 512KiB = 4 granules
		if !ok {
			t.Fatalf("alloc_by_order(7) #%d failed", i)
		}
		ptrs = append(ptrs, p)
	}
	for i := len(ptrs) - 1; i >= 0; i-- {
		if got := a.Free(ptrs[i]); got != onePageAreaSize<<7 {
			t.Errorf("free(ptrs[%d]) = %d, want %d", i, got, onePageAreaSize<<7)
		}
	}
	if chain := a.chainFor(layerHPA, windowNear); len(chain.pages) != 0 {
		t.Errorf("all HPA directory pages should be gone after freeing every run, got %d", len(chain.pages))
	}
}

// TestAllocByOrderRoutesBySize exercises the maintainer-flagged divergence:
// low orders must stay within MPA (and even SPA, for order 0 requests
// rounding at or below the SPA/MPA threshold would not apply here since
// 4096 already exceeds it) rather than always being forced through HPA.
func TestAllocByOrderRoutesBySize(t *testing.T) {
	a, _ := newTestAllocator(t, 4)

	p, ok := a.AllocByOrder(0, Near) // 4096 bytes, an MPA class exactly.
	if !ok {
		t.Fatal("alloc_by_order(0) failed")
	}
	if got := a.Free(p); got != 4096 {
		t.Fatalf("free(alloc_by_order(0)) = %d, want 4096, not a whole HPA granule", got)
	}
	if chain := a.chainFor(layerHPA, windowNear); len(chain.pages) != 0 {
		t.Error("alloc_by_order(0) should never touch the HPA layer")
	}
}

func TestScenarioS5UrgentReserveIsolation(t *testing.T) {
	// One hash granule, a two-granule urgent reserve (an SPA directory page
	// plus the MPA granule backing its page), and two ordinary granules.
	near := make([]byte, 5*fixedPageAreaSize)
	a := New()
	if err := a.Configure(0, near, 0, nil, 2*fixedPageAreaSize); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	// Drain the ordinary (non-reserved) portion of the near window.
	var ok bool
	for {
		if _, got := a.Alloc(4096, Near); !got {
			break
		}
		ok = true
	}
	if !ok {
		t.Fatal("expected at least one ordinary NEAR allocation to succeed before exhaustion")
	}

	if _, got := a.Alloc(64, Near); got {
		t.Fatal("alloc(64, NEAR) should fail once the ordinary portion is exhausted")
	}
	if _, got := a.Alloc(64, UrgentNear); !got {
		t.Fatal("alloc(64, URGENT_NEAR) should succeed by drawing on the reserve")
	}
}

func TestScenarioS6FarAllocUsesFarHash(t *testing.T) {
	near := make([]byte, 2*fixedPageAreaSize)
	// An SPA allocation in far needs an SPA directory page, an MPA
	// directory page and one MPA backing granule.
	far := make([]byte, 3*fixedPageAreaSize)
	a := New()
	if err := a.Configure(0, near, uintptr(2*fixedPageAreaSize), far, 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	p, ok := a.Alloc(64, Far)
	if !ok {
		t.Fatal("alloc(64, FAR) failed on an empty far window")
	}
	if a.windowOf(p) != windowFar {
		t.Fatal("a FAR allocation should land in the far window")
	}
	if _, found := a.farHash.lookup(p); !found {
		t.Fatal("far_hash_table should carry a slot for p")
	}

	if got := a.Free(p); got != 64 {
		t.Errorf("free(p) = %d, want 64", got)
	}
	if _, found := a.farHash.lookup(p); found {
		t.Fatal("far_hash_table slot should be cleared after free")
	}
}

// TestNoDoubleAllocation exercises property 1 over the SPA and MPA layers:
// no two outstanding allocations share a start address.
func TestNoDoubleAllocation(t *testing.T) {
	a, _ := newTestAllocator(t, 16)

	seen := map[uintptr]bool{}
	sizes := []uint32{32, 100, 4096, 20000}
	var live []uintptr
	for _, sz := range sizes {
		for i := 0; i < 4; i++ {
			p, ok := a.Alloc(sz, Near)
			if !ok {
				t.Fatalf("alloc(%d) #%d failed", sz, i)
			}
			if seen[p] {
				t.Fatalf("address %#x handed out twice", p)
			}
			seen[p] = true
			live = append(live, p)
		}
	}
	for _, p := range live {
		a.Free(p)
	}
}

// TestRoundTrip exercises property 2: for any rounded size s =
// calculate(r), alloc(r) returns a pointer p such that free(p) == s.
func TestRoundTrip(t *testing.T) {
	a, _ := newTestAllocator(t, 16)

	for _, r := range []uint32{1, 100, 2048, 4095, 20000, 262145} {
		s := Calculate(r)
		p, ok := a.Alloc(r, Near)
		if !ok {
			t.Fatalf("alloc(%d) failed", r)
		}
		if got := a.Free(p); got != s {
			t.Errorf("alloc(%d): free(p) = %d, want calculate(%d) = %d", r, got, r, s)
		}
	}
}

// TestClassMonotonicity exercises property 3.
func TestClassMonotonicity(t *testing.T) {
	sizes := []uint32{1, 32, 33, 64, 2048, 2049, 4096, 4097, fixedPageAreaSize, fixedPageAreaSize + 1}
	for i := 1; i < len(sizes); i++ {
		if sizes[i-1] > sizes[i] {
			continue
		}
		if Calculate(sizes[i-1]) > Calculate(sizes[i]) {
			t.Errorf("calculate(%d)=%d > calculate(%d)=%d, violates monotonicity",
				sizes[i-1], Calculate(sizes[i-1]), sizes[i], Calculate(sizes[i]))
		}
	}
}

// TestIdempotentCleanup exercises property 4: once every outstanding
// allocation is freed, every directory page across every layer/window has
// been returned to the raw layer.
func TestIdempotentCleanup(t *testing.T) {
	a, _ := newTestAllocator(t, 16)

	var live []uintptr
	for _, sz := range []uint32{64, 512, 4096, 65536} {
		for i := 0; i < 3; i++ {
			p, ok := a.Alloc(sz, Near)
			if !ok {
				t.Fatalf("alloc(%d) #%d failed", sz, i)
			}
			live = append(live, p)
		}
	}
	for _, p := range live {
		a.Free(p)
	}

	for _, layer := range [3]layerKind{layerSPA, layerMPA, layerHPA} {
		for _, window := range [2]windowKind{windowNear, windowFar} {
			if chain := a.chainFor(layer, window); len(chain.pages) != 0 {
				t.Errorf("layer=%d window=%d: %d directory pages remain after full cleanup", layer, window, len(chain.pages))
			}
		}
	}
}
