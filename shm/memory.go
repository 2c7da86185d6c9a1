// Package shm implements the memory table and refcounted mapped
// region bookkeeping described in spec.md §4.3: server memory ids map
// to owned fds, which may have zero or more live mmap'd views, each
// reference-counted back to the table entry.
package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Errors the memory table surfaces, per spec.md §7 "MemoryError".
var (
	ErrUnknownMemory    = errors.New("shm: unknown memory id")
	ErrRegionStillLive  = errors.New("shm: memory id has live mapped regions")
	ErrOutOfRange       = errors.New("shm: offset/size out of range")
	ErrAlignment        = errors.New("shm: region is not 8-byte aligned")
	ErrAlreadyRegistered = errors.New("shm: memory id already registered")
)

// DataType identifies the kind of data a memory region's owning fd
// backs (opaque blob, buffer chunk data, activation block, ...). The
// concrete values are assigned by the server; this core only threads
// them through.
type DataType uint32

// entry is one server-assigned memory id's bookkeeping.
type entry struct {
	dataType DataType
	fd       int
	flags    uint32
	mappings map[*Region]struct{}
}

// Table is the memory table keyed by server memory id, per spec.md
// §3/§4.3. It is not safe for concurrent use from multiple goroutines
// without external synchronization, matching the single-threaded
// cooperative state machine of spec.md §5.
type Table struct {
	entries map[uint32]*entry
}

// NewTable returns an empty memory table.
func NewTable() *Table {
	return &Table{entries: make(map[uint32]*entry)}
}

// Add registers a new memory id with its owned fd, data type, and
// flags. It fails if the id is already registered (the caller must
// Remove or treat a re-Add as an implicit remove per spec.md §4.4
// "AddMem with a valid fd").
func (t *Table) Add(memID uint32, fd int, dataType DataType, flags uint32) error {
	if _, ok := t.entries[memID]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyRegistered, memID)
	}
	t.entries[memID] = &entry{dataType: dataType, fd: fd, flags: flags, mappings: make(map[*Region]struct{})}
	return nil
}

// Remove unregisters memID, closing its owned fd. It fails with
// ErrRegionStillLive if any mapped Region derived from it has not yet
// been Free'd; spec.md §4.3 permits implementations to instead defer
// the unmap until the last Free, which is the policy Remove follows:
// it marks the entry for removal and performs the close once the last
// live region is freed.
func (t *Table) Remove(memID uint32) error {
	e, ok := t.entries[memID]
	if !ok {
		return ErrUnknownMemory
	}
	if len(e.mappings) > 0 {
		e.flags |= flagPendingRemoval
		return ErrRegionStillLive
	}
	delete(t.entries, memID)
	return unix.Close(e.fd)
}

const flagPendingRemoval uint32 = 1 << 31

// Region is a live mapped view over part of a memory id's backing fd.
// Its Data slice is only valid while the entry it was Map'd from
// remains registered and the Region has not been Free'd.
type Region struct {
	memID  uint32
	entry  *entry
	offset int64
	Data   []byte
	refs   int
}

// MemID returns the server memory id this region was mapped from.
func (r *Region) MemID() uint32 { return r.memID }

// Map creates a new mapped Region over [offset, offset+size) of
// memID's backing fd, validated against an 8-byte alignment contract
// for regions used as typed structures (spec.md §4.3/§9).
func (t *Table) Map(memID uint32, offset int64, size int) (*Region, error) {
	e, ok := t.entries[memID]
	if !ok {
		return nil, ErrUnknownMemory
	}
	if offset < 0 || size < 0 {
		return nil, ErrOutOfRange
	}
	if offset%8 != 0 {
		return nil, ErrAlignment
	}
	data, err := unix.Mmap(e.fd, offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap mem %d: %w", memID, err)
	}
	r := &Region{memID: memID, entry: e, offset: offset, Data: data, refs: 1}
	e.mappings[r] = struct{}{}
	return r, nil
}

// Track increments r's refcount, per spec.md §4.3.
func (t *Table) Track(r *Region) {
	r.refs++
}

// Free decrements r's refcount; when it reaches zero the region is
// unmapped, and if its owning entry was pending removal with no other
// live regions, the entry's fd is closed too.
func (t *Table) Free(r *Region) error {
	r.refs--
	if r.refs > 0 {
		return nil
	}
	delete(r.entry.mappings, r)
	if err := unix.Munmap(r.Data); err != nil {
		return fmt.Errorf("shm: munmap mem %d: %w", r.memID, err)
	}
	r.Data = nil
	if r.entry.flags&flagPendingRemoval != 0 && len(r.entry.mappings) == 0 {
		delete(t.entries, r.memID)
		return unix.Close(r.entry.fd)
	}
	return nil
}

// Has reports whether memID is currently registered.
func (t *Table) Has(memID uint32) bool {
	_, ok := t.entries[memID]
	return ok
}
