package cjalloc

// Geometry constants shared by every layer. A granule is the unit the raw
// layer carves memory into; a page is one thirty-second of a granule.
const (
	// onePageAreaSize is the size of a single page (4KB).
	onePageAreaSize = 4096

	// fixedPageAreaSize is the size of a directory-page granule (128KB),
	// thirty-two pages.
	fixedPageAreaSize = 32 * onePageAreaSize

	// minSubareaSize is the smallest unit calculate() ever rounds up to.
	minSubareaSize = 32

	// spaMpaThreshold is the largest size routed to the SPA layer; anything
	// larger goes to MPA. calculate() values above onePageAreaSize/2 are
	// always MPA-bound.
	spaMpaThreshold = onePageAreaSize / 2
)

// spaClassSizes are the single-page-area size classes, smallest first.
// Index i backs requests in (spaClassSizes[i-1], spaClassSizes[i]].
var spaClassSizes = [...]uint32{32, 64, 128, 256, 512, 1024, 2048}

// mpaClassSizes are the multi-page-area size classes, smallest first, each
// a whole multiple of onePageAreaSize up to one full granule.
var mpaClassSizes = [...]uint32{4096, 8192, 16384, 32768, 65536, 131072}

// Directory-page row layout. Row 0 holds the hot/total-count header, row 1
// the free-list/free-count header; class rows start at xpaDirStartIndex.
const (
	xpaDirStartIndex = 2

	// spaDirArrayLen is the number of rows in an SPA directory page:
	// the two header rows plus one row per spaClassSizes entry.
	spaDirArrayLen = xpaDirStartIndex + len(spaClassSizes)

	// mpaDirArrayLen is the MPA equivalent.
	mpaDirArrayLen = xpaDirStartIndex + len(mpaClassSizes)

	// hpaDirArrayLen is the HPA directory row count: total-count,
	// free-count, and a single hot-list row (HPA entries are not
	// size-classed, so there is no class-row table).
	hpaDirArrayLen = 3
)

// Flag controls how Alloc/AllocByOrder choose a memory window.
type Flag uint8

const (
	// Near allocates from the near window only. The default.
	Near Flag = 0

	// Far tries the far window first, and always also tries near if the
	// far attempt fails — it never leaves an allocation unserved solely
	// because far is exhausted.
	Far Flag = 1 << iota

	// UrgentNear additionally draws on the near window's urgent reserve
	// if the ordinary near attempt fails.
	UrgentNear
)

// windowKind discriminates which physical window a granule or page lives in.
type windowKind uint8

const (
	windowNear windowKind = iota
	windowFar
)
