package cjalloc

import "log"

// Allocator is the top-level handle, grounded on env.go's Env: a
// configure-then-use struct with a setter-style configuration method,
// optional hooks installed before Configure, and the six directory chains
// (SPA/MPA/HPA x near/far) plus one reverse-hash table per window.
//
// Grounded on xmalloc.c's xalloc/xfree/xcalculate and xmcore.c's
// init_page_context for Configure's shape.
type Allocator struct {
	raw rawWindows

	nearHash *revHash
	farHash  *revHash // nil if no far window configured

	nearBase uintptr
	farBase  uintptr

	spaChains [2]directoryChain // indexed by windowKind
	mpaChains [2]directoryChain
	hpaChains [2]directoryChain

	hooks     Hooks
	lastFault *Error
}

// Hooks are the "out of scope" kernel collaborators named in §1: accounting
// callbacks the surrounding system installs to track raw-granule and
// one-page traffic. None are required; a nil hook is simply not called.
// Grounded on Env.SetUserCtx's pattern of an opaque, optional side-channel.
type Hooks struct {
	OnInitRawMem      func(base uintptr, size uint64)
	OnAllocRawMem     func(addr uintptr, size uint64)
	OnFreeRawMem      func(addr uintptr, size uint64)
	OnAllocOnePageMem func(addr uintptr)
	OnFreeOnePageMem  func(addr uintptr)
}

// New returns an unconfigured Allocator. Configure must be called before
// Alloc/Free.
func New() *Allocator {
	return &Allocator{}
}

// SetHooks installs accounting callbacks. Call before Configure, or at any
// point no allocation is in flight.
func (a *Allocator) SetHooks(h Hooks) {
	a.hooks = h
}

// Configure installs the near window (required) and an optional far
// window, plus the urgent reserve carved from the near window's leading
// granules. Both bases are rounded up to fixedPageAreaSize and both byte
// slices are trimmed to a whole number of granules, mirroring
// xmcore.c's init_page_context/init_far_raw_area.
//
// Per SPEC_FULL.md PART D (Open Question 4), an overlapping or
// out-of-order far window is a hard ErrBadConfig rather than the C
// original's silent zero-size degenerate window.
func (a *Allocator) Configure(nearBase uintptr, near []byte, farBase uintptr, far []byte, urgentSize uint64) error {
	if len(near) == 0 {
		return NewError(ErrBadConfig)
	}

	alignedNearBase, nearOff := alignUp(nearBase)
	nearSize := truncateToGranules(uint64(len(near)) - nearOff)
	if nearSize == 0 {
		return NewError(ErrBadConfig)
	}

	a.nearBase = alignedNearBase
	a.raw.near = initRawArea(alignedNearBase, nearSize, fixedPageAreaSize)

	var farSize uint64
	if len(far) > 0 {
		alignedFarBase, farOff := alignUp(farBase)
		farSize = truncateToGranules(uint64(len(far)) - farOff)
		if farSize == 0 {
			return NewError(ErrBadConfig)
		}
		// Reject a far window that overlaps or precedes the near window,
		// rather than clamping it to zero size as init_far_raw_area does.
		if alignedFarBase < alignedNearBase+uintptr(nearSize) {
			return NewError(ErrBadConfig)
		}
		a.farBase = alignedFarBase
		a.raw.far = initRawArea(alignedFarBase, farSize, fixedPageAreaSize)
		a.farHash = newRevHash(alignedFarBase, farSize)
	}

	a.nearHash = newRevHash(alignedNearBase, nearSize)

	// Pre-allocate the reverse-hash arrays: (near_pages + far_pages) worth
	// of hash slots, reserved exclusively from near-window granules, per
	// Open Question 1.
	nearPages := nearSize / onePageAreaSize
	farPages := farSize / onePageAreaSize
	hashBytes := (nearPages + farPages) * uint64(hashSlotSize)
	hashGranules := uint32(ceilDiv(hashBytes, fixedPageAreaSize))

	urgentGranules := uint32(ceilDiv(urgentSize, fixedPageAreaSize))
	nearGranuleCount := uint32(nearSize / fixedPageAreaSize)
	if hashGranules > nearGranuleCount {
		hashGranules = nearGranuleCount
	}
	if hashGranules+urgentGranules > nearGranuleCount {
		// urgent_size > near_size is clamped to near_size, per §7.
		urgentGranules = nearGranuleCount - hashGranules
	}

	a.raw.hashGranules = hashGranules
	a.raw.urgentGranules = urgentGranules
	a.raw.near.reserve(hashGranules)

	if a.hooks.OnInitRawMem != nil {
		a.hooks.OnInitRawMem(alignedNearBase, nearSize)
		if farSize > 0 {
			a.hooks.OnInitRawMem(a.farBase, farSize)
		}
	}
	return nil
}

const hashSlotSize = 16 // bytes per reverse-hash slot, sized for (kind, dir pointer, idx)

func alignUp(base uintptr) (uintptr, uint64) {
	rem := uint64(base) % fixedPageAreaSize
	if rem == 0 {
		return base, 0
	}
	pad := fixedPageAreaSize - rem
	return base + uintptr(pad), pad
}

func truncateToGranules(size uint64) uint64 {
	return (size / fixedPageAreaSize) * fixedPageAreaSize
}

func ceilDiv(n, d uint64) uint64 {
	if n == 0 {
		return 0
	}
	return (n + d - 1) / d
}

// Calculate rounds size up to the next allocation-routed size, mirroring
// xmalloc.c's xcalculate: doubling up to one granule, then linear by
// granule above it, floored at minSubareaSize.
func Calculate(size uint32) uint32 {
	if size == 0 {
		size = 1
	}
	calc := uint32(minSubareaSize)
	for calc < size {
		if calc < fixedPageAreaSize {
			calc += calc
		} else {
			calc += fixedPageAreaSize
		}
	}
	return calc
}

// Alloc services a request for size bytes, already routed by calculate's
// rounding: requests at or below spaMpaThreshold go to SPA, above it to
// MPA (which itself falls through to HPA past its largest class),
// mirroring xmalloc.c's xalloc routing threshold.
func (a *Allocator) Alloc(size uint32, flag Flag) (uintptr, bool) {
	if size == 0 {
		return 0, false
	}
	rounded := Calculate(size)
	if rounded <= spaMpaThreshold {
		return a.allocSPA(rounded, flag)
	}
	return a.allocMPA(rounded, flag)
}

// AllocByOrder allocates onePageAreaSize << order contiguous bytes,
// mirroring xmalloc.c's xalloc_o(order), which is exactly
// xalloc(ONE_PAGE_AREA_SIZE << order) — routed by size through
// SPA/MPA/HPA like any other request, not forced through HPA.
func (a *Allocator) AllocByOrder(order uint, flag Flag) (uintptr, bool) {
	return a.Alloc(onePageAreaSize<<order, flag)
}

// Free releases addr via the reverse-lookup hash — the hash-driven fast
// path xmalloc.c calls xfree2, the only free path this port exposes
// publicly (Open Question 3) — and reports the rounded byte size that was
// freed, or 0 if addr does not belong to any live allocation. Misses
// (unknown or already-freed addr) are otherwise silently ignored, matching
// alloc/free's no-panic, no-error-return contract in §7; LastFault
// records the signal for an interested caller.
func (a *Allocator) Free(addr uintptr) uint32 {
	window := a.windowOf(addr)
	hash := a.hashFor(window)
	if hash == nil {
		a.fault(ErrCorrupted)
		return 0
	}
	slot, ok := hash.lookup(addr)
	if !ok {
		a.fault(ErrCorrupted)
		return 0
	}
	switch slot.kind {
	case slotSPA:
		return a.freeSPA(slot.dir, slot.idx, addr)
	case slotMPA:
		return a.freeMPA(slot.dir, slot.idx, addr)
	case slotHPA:
		return a.freeHPA(slot.dir, slot.idx)
	default:
		a.fault(ErrCorrupted)
		return 0
	}
}

// scanFree is the four-way scanning fallback xmalloc.c calls xfree: try
// SPA-near, SPA-far, MPA-near, MPA-far directory chains in turn, matching
// addr against each entry's backing range. Unexported: it exists only for
// consistency-check tests verifying the hash-driven Free agrees with a
// brute-force scan, never as a public alternative (Open Question 3).
// Unlike go_mul_page_dir_area, a miss in the MPA scan does not fall
// through to HPA here: HPA runs are not searched, and are freed only
// through Free's hash switch above.
func (a *Allocator) scanFree(addr uintptr) bool {
	for _, window := range [2]windowKind{windowNear, windowFar} {
		for _, dp := range a.chainFor(layerSPA, window).pages {
			if idx, ok := scanSPAEntry(dp, addr); ok {
				a.freeSPA(dp, idx, addr)
				return true
			}
		}
	}
	for _, window := range [2]windowKind{windowNear, windowFar} {
		for _, dp := range a.chainFor(layerMPA, window).pages {
			if idx, ok := scanMPAEntry(dp, addr); ok {
				a.freeMPA(dp, idx, addr)
				return true
			}
		}
	}
	return false
}

func scanSPAEntry(dp *directoryPage, addr uintptr) (int32, bool) {
	for i := range dp.entries {
		e := &dp.entries[i]
		if e.rowIndex < 0 || e.backing == 0 {
			continue
		}
		if addr >= e.backing && addr < e.backing+onePageAreaSize {
			return int32(i), true
		}
	}
	return -1, false
}

func scanMPAEntry(dp *directoryPage, addr uintptr) (int32, bool) {
	for i := range dp.entries {
		e := &dp.entries[i]
		if e.rowIndex < 0 || e.backing == 0 {
			continue
		}
		if addr >= e.backing && addr < e.backing+fixedPageAreaSize {
			return int32(i), true
		}
	}
	return -1, false
}

// windowOf reports which window addr falls in by comparing it with the far
// window's base: when a far window is configured, any address at or above
// farBase is treated as far, everything else as near.
func (a *Allocator) windowOf(addr uintptr) windowKind {
	if a.raw.far != nil && addr >= a.farBase {
		return windowFar
	}
	return windowNear
}

func (a *Allocator) hashFor(window windowKind) *revHash {
	if window == windowFar {
		return a.farHash
	}
	return a.nearHash
}

func (a *Allocator) chainFor(layer layerKind, window windowKind) *directoryChain {
	var chains *[2]directoryChain
	switch layer {
	case layerSPA:
		chains = &a.spaChains
	case layerMPA:
		chains = &a.mpaChains
	default:
		chains = &a.hpaChains
	}
	return &chains[window]
}

// newDirectoryPage draws one fresh granule from the raw layer to back a
// brand new directory page's own metadata, and links it onto the layer's
// chain for window. urgent is threaded through from the caller's flag so a
// directory page created to serve an URGENT_NEAR request can itself draw
// its metadata granule from the reserve, the same as alloc_raw_granularity
// does for every other granule draw.
func (a *Allocator) newDirectoryPage(layer layerKind, window windowKind, urgent bool) (*directoryPage, bool) {
	selfGranule, ok := a.raw.seekInWindow(window, 1, urgent)
	if !ok {
		return nil, false
	}
	dp := newDirectoryPage(layer, window, selfGranule)
	a.chainFor(layer, window).add(dp)
	return dp, true
}

// destroyDirectoryPage unlinks dp from its chain and returns the granule
// backing its own metadata to the raw layer, mirroring the directory-page
// destruction described in §3 ("Created"/"Destroyed").
func (a *Allocator) destroyDirectoryPage(layer layerKind, dp *directoryPage) {
	a.chainFor(layer, dp.window).remove(dp)
	a.raw.freeInWindow(dp.window, dp.selfGranule, 1)
}

// LastFault returns the most recent corruption/misuse signal recorded by
// Free, or nil if none occurred since the last call. It never participates
// in the hot alloc/free contract (§7); it's a diagnostic side channel.
func (a *Allocator) LastFault() *Error {
	f := a.lastFault
	a.lastFault = nil
	return f
}

func (a *Allocator) fault(code ErrorCode) {
	a.lastFault = NewError(code)
	if debugEnabled {
		log.Print(a.lastFault.Error())
	}
}

var debugEnabled = false

// SetDebugLog enables or disables debug logging consulted by directory.go's
// consistency assertions and by fault recording above.
func SetDebugLog(enabled bool) {
	debugEnabled = enabled
}
