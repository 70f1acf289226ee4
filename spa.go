package cjalloc

// The single-page-area layer services requests that calculate() rounds
// to one of spaClassSizes (32..2048 bytes). Every SPA directory entry's
// backing is a single onePageAreaSize page, obtained not from the raw
// layer directly but through the MPA layer's 4096-byte class — mirroring
// original_source/mm/xmcore.c's alloc_one_page_mem, which calls
// seek_mul_page_dir_area(size=ONE_PAGE_AREA_SIZE) rather than
// alloc_raw_granularity. free_one_page_mem symmetrically resolves the
// owning granule and calls back into the MPA layer's hit path, which
// mpa.go's freeMPA plays the part of.
//
// Grounded on xmcore.c's alloc_one_page_mem/free_one_page_mem and the
// seek_sin_page_dir_area/go_sin_page_dir_area/hit_sin_page_dir_area
// family.

// mpaPageClassIndex is the MPA row SPA borrows pages from: mpaClassSizes[0]
// is exactly onePageAreaSize, one subarea per page.
const mpaPageClassIndex = 0

func spaClassIndexFor(size uint32) (int, bool) {
	for i, sz := range spaClassSizes {
		if sz >= size {
			return i, true
		}
	}
	return 0, false
}

// allocSPA services a request for `size` bytes, already calculate()-
// rounded to an spaClassSizes entry.
func (a *Allocator) allocSPA(size uint32, flag Flag) (uintptr, bool) {
	rowIdx, ok := spaClassIndexFor(size)
	if !ok {
		return 0, false
	}

	if flag&Far != 0 {
		if addr, ok := a.seekSPA(windowFar, rowIdx, false); ok {
			return addr, true
		}
	}
	if addr, ok := a.seekSPA(windowNear, rowIdx, false); ok {
		return addr, true
	}
	if flag&UrgentNear != 0 {
		if addr, ok := a.seekSPA(windowNear, rowIdx, true); ok {
			return addr, true
		}
	}
	return 0, false
}

func (a *Allocator) seekSPA(window windowKind, rowIdx int, urgent bool) (uintptr, bool) {
	chain := a.chainFor(layerSPA, window)

	for _, dp := range chain.pages {
		row := &dp.rows[rowIdx]
		if row.chain.empty() {
			continue
		}
		idx := row.chain.head
		if addr, ok := dp.allocSubarea(rowIdx, idx); ok {
			return addr, true
		}
	}

	for _, dp := range chain.pages {
		if dp.free.empty() {
			continue
		}
		if addr, ok := a.growSPAEntry(window, dp, rowIdx, urgent); ok {
			return addr, true
		}
	}

	dp, ok := a.newDirectoryPage(layerSPA, window, urgent)
	if !ok {
		return 0, false
	}
	addr, ok := a.growSPAEntry(window, dp, rowIdx, urgent)
	if !ok {
		a.destroyDirectoryPage(layerSPA, dp)
		return 0, false
	}
	return addr, true
}

// growSPAEntry obtains a fresh backing page through the MPA layer's
// 4096-byte class and assigns it to rowIdx on dp. The hash slot MPA wrote
// for that page is overwritten to name this SPA entry instead — the same
// overwrite original_source/mm/xmcore.c's alloc_one_page_mem performs
// after seek_mul_page_dir_area hands it a page.
func (a *Allocator) growSPAEntry(window windowKind, dp *directoryPage, rowIdx int, urgent bool) (uintptr, bool) {
	backingPage, mpaDir, mpaIdx, ok := a.seekMPA(window, mpaPageClassIndex, urgent)
	if !ok {
		return 0, false
	}
	row := &dp.rows[rowIdx]
	idx := dp.assignEntry(rowIdx, row.capacity, backingPage)
	if idx < 0 {
		a.freeMPA(mpaDir, mpaIdx, backingPage)
		return 0, false
	}
	dp.setBacking(idx, mpaDir, mpaIdx)

	a.hashFor(window).set(backingPage, onePageAreaSize, slotSPA, dp, idx)
	addr, _ := dp.allocSubarea(rowIdx, idx)
	if a.hooks.OnAllocOnePageMem != nil {
		a.hooks.OnAllocOnePageMem(backingPage)
	}
	return addr, true
}

// freeSPA returns the subarea at addr to entry idx and reports the
// class size it belonged to, mirroring xfree2's return of the rounded
// size it freed. If that empties the entry, its backing page is handed
// back to the MPA layer via the owning entry recorded at growSPAEntry
// time — the reverse-hash slot for the page was overwritten to name this
// SPA entry the moment it was borrowed, so it can no longer be used to
// find the MPA entry back; backingDir/backingIdx are the only remaining
// path, mirroring free_one_page_mem's call into hit_mul_page_dir_area.
func (a *Allocator) freeSPA(dir *directoryPage, idx int32, addr uintptr) uint32 {
	rowIdx := int(dir.entries[idx].rowIndex)
	size := dir.rows[rowIdx].size
	backingDir := dir.entries[idx].backingDir
	backingIdx := dir.entries[idx].backingIdx

	backingPage, released := dir.freeSubarea(rowIdx, idx, addr)
	if !released {
		return size
	}

	// Hand the page's hash slot back to the owning MPA entry, so a later
	// direct MPA allocation of this page still resolves on Free.
	a.hashFor(dir.window).set(backingPage, onePageAreaSize, slotMPA, backingDir, backingIdx)
	if a.hooks.OnFreeOnePageMem != nil {
		a.hooks.OnFreeOnePageMem(backingPage)
	}
	a.freeMPA(backingDir, backingIdx, backingPage)

	if dir.empty() {
		a.destroyDirectoryPage(layerSPA, dir)
	}
	return size
}
