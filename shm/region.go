package shm

import (
	"fmt"
	"unsafe"
)

// View returns a typed pointer over r.Data's first size bytes, after
// validating that the region is at least that large and 8-byte
// aligned, per spec.md §9 "every typed view over a mapped region is
// obtained through a checked cast". Callers are responsible for only
// accessing atomic fields of T through sync/atomic and non-atomic
// fields only when the writer is known to be quiescent, per the same
// section.
func View[T any](r *Region) (*T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(r.Data) < size {
		return nil, fmt.Errorf("shm: region too small for %T: have %d bytes, need %d: %w", zero, len(r.Data), size, ErrOutOfRange)
	}
	if uintptr(unsafe.Pointer(&r.Data[0]))%8 != 0 {
		return nil, fmt.Errorf("shm: region base not 8-byte aligned: %w", ErrAlignment)
	}
	return (*T)(unsafe.Pointer(&r.Data[0])), nil
}

// Sub returns a Region-like byte slice for [offset, offset+size) of
// r.Data without a fresh mmap — the MEM_PTR case of spec.md §4.4
// "UseBuffers": a sub-region taken as an offset into an already-mapped
// outer region.
func Sub(r *Region, offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > len(r.Data) {
		return nil, ErrOutOfRange
	}
	return r.Data[offset : offset+size], nil
}
