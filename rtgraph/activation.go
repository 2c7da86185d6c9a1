// Package rtgraph implements the real-time processing path of
// spec.md §4.5: per-cycle buffer exchange over shared memory, the
// activation status state machine, and peer event-fd signalling.
package rtgraph

import (
	"sync/atomic"
	"unsafe"

	"github.com/m-lab/podgraph/shm"
)

// Activation status values, per spec.md §6.
const (
	StatusInactive     uint32 = 0
	StatusNotTriggered uint32 = 1
	StatusTriggered    uint32 = 2
	StatusAwake        uint32 = 3
	StatusFinished     uint32 = 4
)

// ActivationBlock is the 2312-byte shared-memory activation block ABI
// of spec.md §6. Go does not guarantee a layout matching a foreign C
// ABI, so every field up to client_version is sized so its own natural
// alignment lands it exactly where the C struct does: Reposition and
// Segment are full-width spa_io_segment-shaped blocks (not the bare
// version/flags/start/offset/position prefix we actually interpret),
// and an explicit pad closes the remaining gap, putting client_version
// at byte offset 540. The compile-time checks below verify that
// arithmetic instead of trusting it by inspection.
type ActivationBlock struct {
	Status        uint32
	HeaderBits    uint32
	State         [2]PeerState
	SignalTime    uint64
	AwakeTime     uint64
	FinishTime    uint64
	PrevSignalTime uint64
	Reposition    Segment
	Segment       Segment
	SegmentOwner  [16]uint32
	PrevAwakeTime uint64
	PrevFinishTime uint64
	pad           [7]uint32 // explicit spacer before client_version@540

	ClientVersion  uint32
	ServerVersion  uint32
	ActiveDriverID uint32
	DriverID       uint32
	Flags          uint32
	Position       IoPosition
	SyncTimeout    uint64
	SyncLeft       uint64
	CPULoad        [3]float32
	XrunCount      uint32
	XrunTime       uint64
	XrunDelay      uint64
	MaxDelay       uint64
	Command        uint32
	RepositionOwner uint32
}

// PeerState is one of the activation block's two per-peer counters
// (state[0] for this node's own cycle, state[1] reserved for the
// driver), per spec.md §6.
type PeerState struct {
	Status   uint32
	Required uint32
	Pending  uint32
}

// Segment is the driver's position/reposition segment descriptor, per
// the upstream C ABI (spec.md §6 "Segment"). The real spa_io_segment
// also carries bar/video sub-segments we never interpret; Reserved
// holds their place so the fields after two embedded Segments
// (SegmentOwner onward, and ultimately ClientVersion) land at their
// documented offsets.
type Segment struct {
	Version  uint32
	Flags    uint32
	Start    uint64
	Offset   uint64
	Position uint64
	Reserved [152]byte
}

// ActivationBlockSize is the fixed wire size of ActivationBlock, per
// spec.md §6. The struct above is a Go-shaped view; callers must only
// treat View[ActivationBlock] results as valid if the mapped region is
// at least this large (the generic View helper already enforces that
// against unsafe.Sizeof, this constant documents the ABI contract
// independent of whatever padding the Go compiler happens to add).
const ActivationBlockSize = 2312

// ClientVersionOffset is the documented byte offset of ClientVersion
// within the activation block, per spec.md §6.
const ClientVersionOffset = 540

// These fail to compile, rather than misreading client_version/xrun
// fields at runtime, if ActivationBlock's layout ever drifts from the
// sizes and offsets above: each array length is the difference between
// the two sides, so a mismatch in either direction is negative and
// invalid.
type _ [int(unsafe.Sizeof(ActivationBlock{})) - ActivationBlockSize]byte
type _ [ActivationBlockSize - int(unsafe.Sizeof(ActivationBlock{}))]byte
type _ [int(unsafe.Offsetof(ActivationBlock{}.ClientVersion)) - ClientVersionOffset]byte
type _ [ClientVersionOffset - int(unsafe.Offsetof(ActivationBlock{}.ClientVersion))]byte

// StatusView returns a checked typed view over region as an
// ActivationBlock.
func StatusView(region *shm.Region) (*ActivationBlock, error) {
	return shm.View[ActivationBlock](region)
}

// statusWord returns an atomic-capable pointer to the block's status
// field. Every access to Status must go through sync/atomic per
// spec.md §9 "Atomic fields are accessed only via atomic primitives".
func statusWord(a *ActivationBlock) *uint32 {
	return &a.Status
}

// CompareAndSwapStatus atomically transitions a's status from old to
// next, reporting whether the transition took effect.
func CompareAndSwapStatus(a *ActivationBlock, old, next uint32) bool {
	return atomic.CompareAndSwapUint32(statusWord(a), old, next)
}

// SwapStatus atomically sets a's status to next, returning the
// previous value.
func SwapStatus(a *ActivationBlock, next uint32) uint32 {
	return atomic.SwapUint32(statusWord(a), next)
}

// LoadStatus atomically loads a's status.
func LoadStatus(a *ActivationBlock) uint32 {
	return atomic.LoadUint32(statusWord(a))
}
