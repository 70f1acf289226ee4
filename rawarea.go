package cjalloc

import "math/bits"

// rawArea carves a physical memory window into fixedPageAreaSize-byte
// granules — one bit per granule, per spec.md §3's "bit_field[]" — and
// hands back contiguous runs of them. It is the bottom layer every other
// layer is built on: directory pages consume exactly one granule of it,
// and huge allocations are arbitrary-length runs of it.
//
// Unlike spill.Bitmap (one slot per Allocate call), rawArea searches for
// a contiguous run of N free granules and clears/sets them as a batch —
// the directory-page and huge-page layers both need runs, not single
// slots.
type rawArea struct {
	words     []uint64
	bitCount  uint32 // total granules
	subareaSz uint32 // bytes per slot: fixedPageAreaSize for near/far raw areas

	base uintptr // address of slot 0
}

// initRawArea builds a rawArea covering size bytes starting at base, using
// subareaSz-byte slots (fixedPageAreaSize for the near/far windows). base
// and size are both expected to already be fixedPageAreaSize-aligned by
// the caller (Configure does the alignment).
func initRawArea(base uintptr, size uint64, subareaSz uint32) *rawArea {
	bitCount := uint32(size / uint64(subareaSz))
	numWords := (bitCount + 63) / 64
	return &rawArea{
		words:     make([]uint64, numWords),
		bitCount:  bitCount,
		subareaSz: subareaSz,
		base:      base,
	}
}

// reserve marks the first n slots permanently allocated — used to carve
// the reverse-hash tables out of the leading granules of the near window
// before any ordinary allocation happens. The urgent reserve that follows
// them is left unmarked: seekRaw's start index keeps ordinary searches out
// of it, so seekUrgentRaw can still hand its granules out.
func (r *rawArea) reserve(n uint32) {
	for i := uint32(0); i < n && i < r.bitCount; i++ {
		r.words[i/64] |= 1 << (i % 64)
	}
}

// seekRun finds and marks the first contiguous run of `needed` free slots
// in [startIdx, endIdx). It returns the byte address of the run's first
// slot, or 0 if no such run exists. A run must not straddle endIdx, per
// spec.md §4.1's "the run must not straddle the near/far boundary" rule,
// applied equally to the ordinary/urgent boundary.
//
// The search keeps a single cursor and a result_index that resets to -1
// every time it crosses a set bit; a run "closes" once the cursor reaches
// result_index+needed, mirroring the bit-by-bit scan in the original
// seek_raw_area/seek_far_raw_area/seek_urgent_raw_area family rather than
// a word-parallel scan, since runs are rare and usually short (at most a
// few granules) in practice.
func (r *rawArea) seekRun(startIdx, endIdx uint32, needed uint32) (uintptr, bool) {
	if needed == 0 || needed > endIdx-startIdx {
		return 0, false
	}
	resultIndex := int64(-1)
	for cursor := startIdx; cursor < endIdx; cursor++ {
		if r.bitSet(cursor) {
			resultIndex = -1
			continue
		}
		if resultIndex < 0 {
			resultIndex = int64(cursor)
		}
		if uint32(cursor)-uint32(resultIndex)+1 == needed {
			for i := uint32(resultIndex); i <= cursor; i++ {
				r.setBit(i)
			}
			return r.base + uintptr(uint32(resultIndex))*uintptr(r.subareaSz), true
		}
	}
	return 0, false
}

// freeRun clears the `needed` slots starting at the slot addr falls on.
// It returns false without touching any bit if addr doesn't land on a
// slot boundary within this area, or if the run would run past the end
// of the area — the bounds check original_source/mm/xmcore.c's
// go_raw_area/go_far_raw_area never perform (see SPEC_FULL.md PART D,
// Open Question 2).
func (r *rawArea) freeRun(addr uintptr, needed uint32) bool {
	idx, ok := r.indexOf(addr)
	if !ok {
		return false
	}
	if uint64(idx)+uint64(needed) > uint64(r.bitCount) {
		return false
	}
	for i := idx; i < idx+needed; i++ {
		r.clearBit(i)
	}
	return true
}

// indexOf converts a byte address into a slot index, failing if addr is
// out of range or not slot-aligned.
func (r *rawArea) indexOf(addr uintptr) (uint32, bool) {
	if addr < r.base {
		return 0, false
	}
	off := uint64(addr - r.base)
	if off%uint64(r.subareaSz) != 0 {
		return 0, false
	}
	idx := off / uint64(r.subareaSz)
	if idx >= uint64(r.bitCount) {
		return 0, false
	}
	return uint32(idx), true
}

func (r *rawArea) bitSet(i uint32) bool {
	return r.words[i/64]&(1<<(i%64)) != 0
}

func (r *rawArea) setBit(i uint32) {
	r.words[i/64] |= 1 << (i % 64)
}

func (r *rawArea) clearBit(i uint32) {
	r.words[i/64] &^= 1 << (i % 64)
}

// freeSlots returns the number of currently-unallocated slots.
func (r *rawArea) freeSlots() uint32 {
	var setCount uint32
	for _, w := range r.words {
		setCount += uint32(bits.OnesCount64(w))
	}
	return r.bitCount - setCount
}

// rawWindows holds the near and far rawArea instances plus the delta
// bookkeeping original_source/mm/xmcore.c calls delta[0] (reverse-hash
// reservation) and delta[1] (urgent reservation), both carved exclusively
// from the near window per SPEC_FULL.md PART D, Open Question 1.
type rawWindows struct {
	near *rawArea
	far  *rawArea // nil if no far window was configured

	hashGranules   uint32 // delta[0]: granules reserved for reverse-hash tables
	urgentGranules uint32 // delta[1]: granules reserved for the urgent reserve
}

// seekRaw searches the near window, skipping the hash and urgent
// reservations at the front, for a run of `granules` free 128KB slots.
func (w *rawWindows) seekRaw(granules uint32) (uintptr, bool) {
	return w.near.seekRun(w.hashGranules+w.urgentGranules, w.near.bitCount, granules)
}

// seekUrgentRaw searches only the urgent reserve
// [hashGranules, hashGranules+urgentGranules) for a run of `granules` free
// slots, mirroring spec.md §4.1's seek_urgent_raw_area scan range — it
// never spills into the ordinary pool past the reserve's end.
func (w *rawWindows) seekUrgentRaw(granules uint32) (uintptr, bool) {
	return w.near.seekRun(w.hashGranules, w.hashGranules+w.urgentGranules, granules)
}

// seekFarRaw searches the far window, if configured, for a run of
// `granules` free slots.
func (w *rawWindows) seekFarRaw(granules uint32) (uintptr, bool) {
	if w.far == nil {
		return 0, false
	}
	return w.far.seekRun(0, w.far.bitCount, granules)
}

// freeInWindow frees a run of `granules` slots in the named window. The
// caller always knows which window an address belongs to (it's recorded
// on the directoryPage that owns the address), so unlike
// original_source/mm/xmcore.c's free_raw_mem — which compares the address
// against far_subarea_set to guess the window — this never has to guess.
func (w *rawWindows) freeInWindow(window windowKind, addr uintptr, granules uint32) bool {
	if window == windowFar {
		if w.far == nil {
			return false
		}
		return w.far.freeRun(addr, granules)
	}
	return w.near.freeRun(addr, granules)
}

// seekInWindow searches the named window for a run of `granules` free
// slots. urgent restricts a near-window search to the urgent reserve (see
// seekUrgentRaw); it has no effect when window is windowFar.
func (w *rawWindows) seekInWindow(window windowKind, granules uint32, urgent bool) (uintptr, bool) {
	if window == windowFar {
		return w.seekFarRaw(granules)
	}
	if urgent {
		return w.seekUrgentRaw(granules)
	}
	return w.seekRaw(granules)
}
