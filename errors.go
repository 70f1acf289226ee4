package cjalloc

import (
	"errors"
	"fmt"
)

// Error represents a cjalloc error with an error code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cjalloc: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("cjalloc: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode identifies the kind of failure an Error carries.
type ErrorCode int

const (
	// Success indicates no error.
	Success ErrorCode = 0

	// ErrBadConfig indicates Configure was given an unusable geometry: a
	// near window (or a non-empty far window) with no whole granule left
	// after its base is aligned, or a far window that overlaps or precedes
	// the near window's end. A misaligned base is aligned up and an
	// oversized urgent reserve is clamped instead.
	ErrBadConfig ErrorCode = 1

	// ErrOutOfMemory indicates a raw-area or directory-page allocation
	// could not be satisfied from any window the flags permit.
	ErrOutOfMemory ErrorCode = 2

	// ErrMisaligned names an address that does not fall on a subarea
	// boundary cjalloc itself produced. Free does not check subarea
	// alignment and never records this code.
	ErrMisaligned ErrorCode = 3

	// ErrCorrupted indicates Free was handed an address that no live
	// allocation owns — an alien pointer, or one already freed. Surfaced
	// only through LastFault, never by panicking.
	ErrCorrupted ErrorCode = 4
)

var errorMessages = map[ErrorCode]string{
	Success:        "success",
	ErrBadConfig:   "invalid allocator configuration",
	ErrOutOfMemory: "no memory available in the requested window",
	ErrMisaligned:  "address is not a cjalloc-owned subarea boundary",
	ErrCorrupted:   "directory or reverse-hash state is inconsistent",
}

// NewError creates a new Error with the given code.
func NewError(code ErrorCode) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = fmt.Sprintf("unknown error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// WrapError creates a new Error wrapping another error.
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

var (
	ErrBadConfigError   = NewError(ErrBadConfig)
	ErrOutOfMemoryError = NewError(ErrOutOfMemory)
	ErrMisalignedError  = NewError(ErrMisaligned)
	ErrCorruptedError   = NewError(ErrCorrupted)
)

// IsBadConfig returns true if err is an ErrBadConfig Error.
func IsBadConfig(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrBadConfig
	}
	return false
}

// IsOutOfMemory returns true if err is an ErrOutOfMemory Error.
func IsOutOfMemory(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrOutOfMemory
	}
	return false
}

// IsCorrupted returns true if err is an ErrCorrupted Error.
func IsCorrupted(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCorrupted
	}
	return false
}

// Code returns the error code from an error, or ErrCorrupted if err is
// non-nil but not a cjalloc Error.
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCorrupted
}
