package cjalloc

import (
	"log"
	"math/bits"
)

// layerKind identifies which of the three allocation layers a directory
// page belongs to.
type layerKind uint8

const (
	layerSPA layerKind = iota
	layerMPA
	layerHPA
)

// entriesPerDirectoryPage is how many entries a single directory page
// tracks. original_source/mm/xmcore.c lays the entry array out inside the
// granule's own bytes, so its capacity falls out of sizeof(entry); since
// Go entries are ordinary heap structs rather than an in-place byte
// layout, this is a deliberately chosen constant instead — one tracked
// entry per page-equivalent slot of the granule.
const entriesPerDirectoryPage = fixedPageAreaSize / onePageAreaSize

// directoryEntry is one tracked allocation unit within a directory page:
// for SPA, a single onePageAreaSize page subdivided into subareas; for
// MPA, a single fixedPageAreaSize granule subdivided into subareas; for
// HPA, a whole multi-granule run with no further subdivision.
type directoryEntry struct {
	backing  uintptr
	bitmap   [2]uint64 // subarea-allocated bits; 128 bits covers SPA's max 4096/32=128 subareas
	used     uint32
	capacity uint32 // subareas this entry's backing unit holds (SPA/MPA); unused for HPA
	granules uint32 // HPA only: size of the huge run this entry owns
	rowIndex int8   // class row owning this entry, or -1 if free or HPA
	link     link   // membership in exactly one of: page free list, a row's chain, a row's fullChain, or the HPA hot list

	// backingDir/backingIdx name the MPA directory entry that owns this
	// entry's backing page, for SPA entries only. The reverse hash is
	// overwritten to point at the SPA entry once a page is borrowed (see
	// spa.go's growSPAEntry), so this is the only remaining way to release
	// the page back to the MPA layer once the SPA entry empties.
	backingDir *directoryPage
	backingIdx int32
}

// classRow is one size class's bookkeeping within an SPA or MPA directory
// page: chain holds entries with at least one free subarea, fullChain
// holds entries with none. Grounded on
// original_source/mm/xmcore.c's per-class chain/full_chain pair.
type classRow struct {
	size      uint32
	capacity  uint32 // subareas per backing unit for this class
	chain     entryList
	fullChain entryList
}

// directoryPage is one fixedPageAreaSize granule's worth of allocation
// metadata. SPA and MPA pages carry one classRow per size class; HPA
// pages carry a single hot list of whole-run entries instead.
type directoryPage struct {
	layer       layerKind
	window      windowKind
	selfGranule uintptr // the granule this page's own metadata consumed from the raw layer
	entries     []directoryEntry
	free        entryList // entries not currently assigned to any row or the hot list
	rows        []classRow
	hot         entryList // HPA only
}

func newDirectoryPage(layer layerKind, window windowKind, selfGranule uintptr) *directoryPage {
	dp := &directoryPage{
		layer:       layer,
		window:      window,
		selfGranule: selfGranule,
		entries:     make([]directoryEntry, entriesPerDirectoryPage),
		free:        emptyEntryList(),
	}
	switch layer {
	case layerSPA:
		dp.rows = make([]classRow, len(spaClassSizes))
		for i, sz := range spaClassSizes {
			dp.rows[i] = classRow{size: sz, capacity: onePageAreaSize / sz, chain: emptyEntryList(), fullChain: emptyEntryList()}
		}
	case layerMPA:
		dp.rows = make([]classRow, len(mpaClassSizes))
		for i, sz := range mpaClassSizes {
			dp.rows[i] = classRow{size: sz, capacity: fixedPageAreaSize / sz, chain: emptyEntryList(), fullChain: emptyEntryList()}
		}
	case layerHPA:
		dp.hot = emptyEntryList()
	}

	get, set := dp.linkAccessors()
	for i := range dp.entries {
		dp.entries[i].rowIndex = -1
		dp.free.pushFront(int32(i), get, set)
	}
	return dp
}

func (dp *directoryPage) linkAccessors() (func(int32) link, func(int32, link)) {
	return func(i int32) link { return dp.entries[i].link },
		func(i int32, l link) { dp.entries[i].link = l }
}

// empty reports whether every entry has returned to the free list, i.e.
// this directory page is carrying no live allocations and can be
// destroyed.
func (dp *directoryPage) empty() bool {
	return dp.free.count == uint32(len(dp.entries))
}

// assignEntry pulls an entry off the free list, points it at backing, and
// pushes it onto rowIdx's chain (an entry always starts empty, so it
// belongs on chain, never fullChain). Returns -1 if the page has no free
// entries left.
func (dp *directoryPage) assignEntry(rowIdx int, capacity uint32, backing uintptr) int32 {
	if dp.free.empty() {
		return -1
	}
	get, set := dp.linkAccessors()
	idx := dp.free.head
	dp.free.remove(idx, get, set)

	e := &dp.entries[idx]
	e.backing = backing
	e.capacity = capacity
	e.used = 0
	e.bitmap = [2]uint64{}
	e.rowIndex = int8(rowIdx)
	e.backingDir = nil
	e.backingIdx = -1

	dp.rows[rowIdx].chain.pushFront(idx, get, set)
	return idx
}

// setBacking records the MPA directory entry backing an SPA entry's
// page, for later release in spa.go's freeSPA.
func (dp *directoryPage) setBacking(idx int32, dir *directoryPage, backingIdx int32) {
	dp.entries[idx].backingDir = dir
	dp.entries[idx].backingIdx = backingIdx
}

// allocSubarea marks the first free subarea of entry idx used and returns
// its address. It moves the entry from chain to fullChain if that
// exhausts it.
func (dp *directoryPage) allocSubarea(rowIdx int, idx int32) (uintptr, bool) {
	e := &dp.entries[idx]
	bit := firstZeroBit128(&e.bitmap, e.capacity)
	if bit < 0 {
		return 0, false
	}
	setBit128(&e.bitmap, uint32(bit))
	e.used++

	row := &dp.rows[rowIdx]
	addr := e.backing + uintptr(uint32(bit))*uintptr(row.size)
	if e.used == e.capacity {
		get, set := dp.linkAccessors()
		row.chain.remove(idx, get, set)
		row.fullChain.pushFront(idx, get, set)
	}
	return addr, true
}

// freeSubarea clears the subarea at addr within entry idx. If the entry
// had been full it moves back onto chain; if it becomes completely empty
// it returns to the page's free list and freeSubarea reports the backing
// address the caller should release (to the raw layer for MPA, to the MPA
// layer for SPA).
func (dp *directoryPage) freeSubarea(rowIdx int, idx int32, addr uintptr) (releasedBacking uintptr, released bool) {
	e := &dp.entries[idx]
	row := &dp.rows[rowIdx]
	bit := uint32((addr - e.backing) / uintptr(row.size))

	if debugEnabled && !bitSet128(&e.bitmap, bit) {
		log.Printf("cjalloc: freeSubarea: bit %d already clear on entry %d", bit, idx)
	}

	wasFull := e.used == e.capacity
	clearBit128(&e.bitmap, bit)
	e.used--

	get, set := dp.linkAccessors()
	if wasFull {
		row.fullChain.remove(idx, get, set)
		row.chain.pushFront(idx, get, set)
	}
	if e.used == 0 {
		row.chain.remove(idx, get, set)
		backing := e.backing
		e.backing = 0
		e.capacity = 0
		e.rowIndex = -1
		e.backingDir = nil
		e.backingIdx = -1
		dp.free.pushFront(idx, get, set)
		return backing, true
	}
	return 0, false
}

// assignHPAEntry pulls an entry off the free list and records it as a
// whole-run allocation on the hot list.
func (dp *directoryPage) assignHPAEntry(backing uintptr, granules uint32) int32 {
	if dp.free.empty() {
		return -1
	}
	get, set := dp.linkAccessors()
	idx := dp.free.head
	dp.free.remove(idx, get, set)

	e := &dp.entries[idx]
	e.backing = backing
	e.granules = granules
	e.rowIndex = -1

	dp.hot.pushFront(idx, get, set)
	return idx
}

// releaseHPAEntry removes idx from the hot list and returns it to the
// free list, reporting the backing run so the caller can release it.
func (dp *directoryPage) releaseHPAEntry(idx int32) (backing uintptr, granules uint32) {
	get, set := dp.linkAccessors()
	e := &dp.entries[idx]
	backing, granules = e.backing, e.granules

	dp.hot.remove(idx, get, set)
	e.backing = 0
	e.granules = 0
	dp.free.pushFront(idx, get, set)
	return backing, granules
}

// firstZeroBit128 finds the lowest-index unset bit below capacity, or -1
// if none.
func firstZeroBit128(bm *[2]uint64, capacity uint32) int {
	for w := 0; w < len(bm); w++ {
		word := bm[w]
		if word == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^word)
		idx := w*64 + bit
		if uint32(idx) >= capacity {
			continue
		}
		return idx
	}
	return -1
}

func setBit128(bm *[2]uint64, i uint32)   { bm[i/64] |= 1 << (i % 64) }
func clearBit128(bm *[2]uint64, i uint32) { bm[i/64] &^= 1 << (i % 64) }
func bitSet128(bm *[2]uint64, i uint32) bool {
	return bm[i/64]&(1<<(i%64)) != 0
}

// directoryChain is one of the six top-level directory-page chains
// (SPA/MPA/HPA × near/far), a plain slice rather than an intrusive list —
// unlike entry-level links, directory pages come and go rarely enough
// that slice appends/removals don't need index-stable intrusive links.
type directoryChain struct {
	pages []*directoryPage
}

func (c *directoryChain) add(dp *directoryPage) {
	c.pages = append(c.pages, dp)
}

func (c *directoryChain) remove(dp *directoryPage) {
	for i, p := range c.pages {
		if p == dp {
			c.pages = append(c.pages[:i], c.pages[i+1:]...)
			return
		}
	}
}
