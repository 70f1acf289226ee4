package cjalloc

// The multi-page-area layer services requests that calculate() rounds to
// one of mpaClassSizes (4KB..128KB). Each directory entry is backed by one
// fixedPageAreaSize granule from the raw layer, split into that class's
// subareas. Requests larger
// than the biggest MPA class fall through to HPA, mirroring
// original_source/mm/xmcore.c's seek_mul_page_dir_area, which calls
// alloc_huge_mem once no class row is big enough.
//
// Grounded on xmcore.c's seek_mul_page_dir_area/go_mul_page_dir_area/
// hit_mul_page_dir_area.

func mpaClassIndexFor(size uint32) (int, bool) {
	for i, sz := range mpaClassSizes {
		if sz >= size {
			return i, true
		}
	}
	return 0, false
}

// allocMPA services a request for `size` bytes, already calculate()-
// rounded. size larger than the biggest MPA class routes straight to HPA.
func (a *Allocator) allocMPA(size uint32, flag Flag) (uintptr, bool) {
	rowIdx, ok := mpaClassIndexFor(size)
	if !ok {
		granules := size / fixedPageAreaSize
		return a.allocHPA(granules, flag)
	}

	if flag&Far != 0 {
		if addr, _, _, ok := a.seekMPA(windowFar, rowIdx, false); ok {
			return addr, true
		}
	}
	if addr, _, _, ok := a.seekMPA(windowNear, rowIdx, false); ok {
		return addr, true
	}
	if flag&UrgentNear != 0 {
		if addr, _, _, ok := a.seekMPA(windowNear, rowIdx, true); ok {
			return addr, true
		}
	}
	return 0, false
}

// seekMPA first looks for an existing directory page in window whose
// rowIdx class row still has a free subarea, then pulls a fresh granule
// either onto an existing directory page's free entry or a brand new
// directory page. It also reports which directory entry served the
// request, since spa.go's growSPAEntry needs to remember the owning MPA
// entry for a page it borrows.
func (a *Allocator) seekMPA(window windowKind, rowIdx int, urgent bool) (addr uintptr, dir *directoryPage, idx int32, ok bool) {
	chain := a.chainFor(layerMPA, window)

	// An entry's backing granule is hash-registered once, when it's first
	// assigned (growMPAEntry); every subarea within it already resolves
	// through that one slot, so reusing a hot entry needs no hash write.
	for _, dp := range chain.pages {
		row := &dp.rows[rowIdx]
		if row.chain.empty() {
			continue
		}
		entryIdx := row.chain.head
		if servedAddr, ok := dp.allocSubarea(rowIdx, entryIdx); ok {
			return servedAddr, dp, entryIdx, true
		}
	}

	for _, dp := range chain.pages {
		if dp.free.empty() {
			continue
		}
		if servedAddr, entryIdx, ok := a.growMPAEntry(window, dp, rowIdx, urgent); ok {
			return servedAddr, dp, entryIdx, true
		}
	}

	newDP, ok2 := a.newDirectoryPage(layerMPA, window, urgent)
	if !ok2 {
		return 0, nil, -1, false
	}
	addr, entryIdx, ok2 := a.growMPAEntry(window, newDP, rowIdx, urgent)
	if !ok2 {
		a.destroyDirectoryPage(layerMPA, newDP)
		return 0, nil, -1, false
	}
	return addr, newDP, entryIdx, true
}

// growMPAEntry draws one fresh granule from the raw layer and assigns it
// to rowIdx as a new backing entry on dp.
func (a *Allocator) growMPAEntry(window windowKind, dp *directoryPage, rowIdx int, urgent bool) (uintptr, int32, bool) {
	backing, ok := a.raw.seekInWindow(window, 1, urgent)
	if !ok {
		return 0, -1, false
	}
	row := &dp.rows[rowIdx]
	idx := dp.assignEntry(rowIdx, row.capacity, backing)
	if idx < 0 {
		a.raw.freeInWindow(window, backing, 1)
		return 0, -1, false
	}
	a.hashFor(window).set(backing, fixedPageAreaSize, slotMPA, dp, idx)
	addr, _ := dp.allocSubarea(rowIdx, idx)
	if a.hooks.OnAllocRawMem != nil {
		a.hooks.OnAllocRawMem(backing, fixedPageAreaSize)
	}
	return addr, idx, true
}

// freeMPA returns a subarea to entry idx and reports the class size it
// belonged to, releasing the whole granule back to the raw layer (and
// destroying the directory page if that empties it) once the entry's
// last subarea is freed.
func (a *Allocator) freeMPA(dir *directoryPage, idx int32, addr uintptr) uint32 {
	rowIdx := int(dir.entries[idx].rowIndex)
	size := dir.rows[rowIdx].size
	backing, released := dir.freeSubarea(rowIdx, idx, addr)
	if !released {
		return size
	}

	a.hashFor(dir.window).clear(backing, fixedPageAreaSize)
	a.raw.freeInWindow(dir.window, backing, 1)
	if a.hooks.OnFreeRawMem != nil {
		a.hooks.OnFreeRawMem(backing, fixedPageAreaSize)
	}
	if dir.empty() {
		a.destroyDirectoryPage(layerMPA, dir)
	}
	return size
}
