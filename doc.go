// Package cjalloc is a page-and-subpage memory allocator intended to
// replace a buddy-system allocator in a kernel-like environment. It
// services allocations ranging from small objects (tens of bytes) to
// multi-page contiguous regions, over two disjoint physical memory
// windows ("near" and "far"), plus an urgent reserve carved out of the
// near window.
//
// Three size-routed layers do the work: a single-page-area layer for
// 32..2048-byte objects, a multi-page-area layer for 4K..128K objects,
// and a huge-page-area layer for arbitrary multi-granule runs. A
// reverse-lookup hash lets Free identify an address's owning layer
// without a size argument.
//
// Basic usage:
//
//	near, _ := arena.New(64 << 20)
//	defer near.Close()
//
//	a := cjalloc.New()
//	if err := a.Configure(0, near.Bytes(), 0, nil, 1<<20); err != nil {
//	    log.Fatal(err)
//	}
//
//	addr, ok := a.Alloc(200, cjalloc.Near)
//	if !ok {
//	    log.Fatal("out of memory")
//	}
//	a.Free(addr)
package cjalloc
