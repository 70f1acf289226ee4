//go:build windows

package arena

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// mmapAnon reserves and commits an anonymous region directly via
// VirtualAlloc — the Windows analogue of mmap_windows.go's
// CreateFileMapping/MapViewOfFile pair, simplified because an anonymous
// region needs no file mapping object at all.
func mmapAnon(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, &mmapError{"VirtualAlloc", err}
	}

	var data []byte
	sh := (*struct {
		Data uintptr
		Len  int
		Cap  int
	})(unsafe.Pointer(&data))
	sh.Data = addr
	sh.Len = size
	sh.Cap = size
	return data, nil
}

func munmapAnon(data []byte) error {
	addr := uintptr(unsafe.Pointer(&data[0]))
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return &mmapError{"VirtualFree", err}
	}
	return nil
}
