// Package arena hands back anonymous, page-aligned memory windows for
// cjalloc's near/far raw areas. It is grounded on the teacher's
// mmap/mmap_unix.go + mmap_linux.go + mmap_windows.go, adapted from
// file-backed mappings (unix.Mmap(fd, ...) / CreateFileMapping over an
// open *os.File) to anonymous ones: cjalloc has no on-disk format, so
// there is no file to back a window, only a raw span of addressable
// memory the OS reserves on request.
package arena

// Window is one mmap'd span of memory, handed to
// (*cjalloc.Allocator).Configure as a near or far window.
type Window struct {
	data []byte
}

// Bytes returns the window's backing slice.
func (w *Window) Bytes() []byte {
	return w.data
}

// New reserves a new anonymous window of at least size bytes, rounded up
// to the host page size by the OS. size must be positive.
func New(size int) (*Window, error) {
	if size <= 0 {
		return nil, errInvalidSize
	}
	data, err := mmapAnon(size)
	if err != nil {
		return nil, err
	}
	return &Window{data: data}, nil
}

// Close releases the window back to the OS. The Window must not be used
// afterward.
func (w *Window) Close() error {
	if w.data == nil {
		return nil
	}
	err := munmapAnon(w.data)
	w.data = nil
	return err
}
