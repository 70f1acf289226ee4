package cjalloc

// link is an index-based intrusive doubly-linked list node, embedded in
// directoryEntry. Unlike original_source/mm/xmcore.c's chain/full_chain,
// which link entries via raw pointers into a fixed memory cell, link
// stores indices into the owning directoryPage's entries slice — a slice
// never relocates out from under a live link the way an arbitrary []byte
// region might if this were unsafe.Pointer arithmetic, and the indices
// stay valid across any copy of the slice header, per Design Notes §9.
//
// -1 is the sentinel for "no neighbor" (the list is empty or this is an
// end).
type link struct {
	prev, next int32
}

const linkNone int32 = -1

// entryList is a doubly-linked list of entry indices within one
// directoryPage. Every list threads through the entry's single link field,
// since an entry belongs to at most one list at a time. head/tail are
// entry indices, or linkNone if empty.
type entryList struct {
	head, tail int32
	count      uint32
}

func emptyEntryList() entryList {
	return entryList{head: linkNone, tail: linkNone}
}

// pushFront links entry idx at the front of the list. get/set access the
// entry's link field.
func (l *entryList) pushFront(idx int32, get func(int32) link, set func(int32, link)) {
	set(idx, link{prev: linkNone, next: l.head})
	if l.head != linkNone {
		h := get(l.head)
		h.prev = idx
		set(l.head, h)
	} else {
		l.tail = idx
	}
	l.head = idx
	l.count++
}

// remove unlinks entry idx from the list.
func (l *entryList) remove(idx int32, get func(int32) link, set func(int32, link)) {
	n := get(idx)
	if n.prev != linkNone {
		p := get(n.prev)
		p.next = n.next
		set(n.prev, p)
	} else {
		l.head = n.next
	}
	if n.next != linkNone {
		nx := get(n.next)
		nx.prev = n.prev
		set(n.next, nx)
	} else {
		l.tail = n.prev
	}
	set(idx, link{prev: linkNone, next: linkNone})
	l.count--
}

func (l *entryList) empty() bool {
	return l.head == linkNone
}
