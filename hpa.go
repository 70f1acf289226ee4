package cjalloc

// The huge-page-area layer services requests calculate() rounds to more
// than one fixedPageAreaSize granule, handing back arbitrary-length runs
// of whole granules. Unlike SPA/MPA, an HPA directory entry records a
// whole run's address and granule count directly — there's no subarea
// bitmap to subdivide, since a run this size is never shared between
// requests.
//
// Grounded on original_source/mm/xmcore.c's alloc_huge_mem/free_huge_mem
// and the seek_huge_page_dir_area/go_huge_page_dir_area/
// hit_huge_page_dir_area family.

// allocHPA services a request for `granules` contiguous granules,
// following the flag's window order.
func (a *Allocator) allocHPA(granules uint32, flag Flag) (uintptr, bool) {
	if flag&Far != 0 {
		if addr, ok := a.seekHPA(windowFar, granules, false); ok {
			return addr, true
		}
	}
	if addr, ok := a.seekHPA(windowNear, granules, false); ok {
		return addr, true
	}
	if flag&UrgentNear != 0 {
		if addr, ok := a.seekHPA(windowNear, granules, true); ok {
			return addr, true
		}
	}
	return 0, false
}

// seekHPA reserves `granules` raw slots in window, records an HPA
// directory entry for the run, and writes the reverse-hash slot.
func (a *Allocator) seekHPA(window windowKind, granules uint32, urgent bool) (uintptr, bool) {
	backing, ok := a.raw.seekInWindow(window, granules, urgent)
	if !ok {
		return 0, false
	}

	dir, idx := a.hpaEntryFor(window, backing, granules, urgent)
	if idx < 0 {
		a.raw.freeInWindow(window, backing, granules)
		return 0, false
	}

	a.hashFor(window).set(backing, uint64(granules)*fixedPageAreaSize, slotHPA, dir, idx)
	if a.hooks.OnAllocRawMem != nil {
		a.hooks.OnAllocRawMem(backing, uint64(granules)*fixedPageAreaSize)
	}
	return backing, true
}

// hpaEntryFor finds a directory page in window's HPA chain with a free
// entry slot, creating a new directory page if none has room.
func (a *Allocator) hpaEntryFor(window windowKind, backing uintptr, granules uint32, urgent bool) (*directoryPage, int32) {
	chain := a.chainFor(layerHPA, window)
	for _, dp := range chain.pages {
		if !dp.free.empty() {
			idx := dp.assignHPAEntry(backing, granules)
			return dp, idx
		}
	}

	dp, ok := a.newDirectoryPage(layerHPA, window, urgent)
	if !ok {
		return nil, -1
	}
	idx := dp.assignHPAEntry(backing, granules)
	return dp, idx
}

// freeHPA returns a previously-allocated run to the raw layer, reports
// the run's size in bytes, and destroys its directory page if that
// empties it, mirroring go_huge_page_dir_area/hit_huge_page_dir_area's
// free-count check.
func (a *Allocator) freeHPA(dir *directoryPage, idx int32) uint32 {
	backing, granules := dir.releaseHPAEntry(idx)
	size := granules * fixedPageAreaSize
	a.hashFor(dir.window).clear(backing, uint64(granules)*fixedPageAreaSize)
	a.raw.freeInWindow(dir.window, backing, granules)
	if a.hooks.OnFreeRawMem != nil {
		a.hooks.OnFreeRawMem(backing, uint64(granules)*fixedPageAreaSize)
	}

	if dir.empty() {
		a.destroyDirectoryPage(layerHPA, dir)
	}
	return size
}
