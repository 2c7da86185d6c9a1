package rtgraph

// IoFraction is a rate numerator/denominator pair, as carried in
// IoClock.Rate (spec.md §6).
type IoFraction struct {
	Num   uint32
	Denom uint32
}

// IoClock mirrors the upstream driver clock block: the fields the
// real-time cycle reads each pass (spec.md §4.5 step 2: "obtain
// clock.duration and clock.rate").
type IoClock struct {
	ID       uint32
	Flags    uint32
	Name     [64]byte
	Nsec     uint64
	Rate     IoFraction
	Position uint64
	Duration uint64
	Delay    int64
	RateDiff float64
	NextNsec uint64
}

// maxSegments bounds the fixed-size segment array embedded in
// IoPosition; the upstream ABI reserves a small fixed count rather
// than a dynamic list.
const maxSegments = 8

// IoPosition is the driver position block mapped read-only into every
// node (spec.md §4.5 step 2, §6). The whole structure is read with a
// single volatile load per cycle. Reserved closes the gap to the
// upstream struct's documented 1688-byte size, which activation.go's
// compile-time offset checks depend on to place ClientVersion at byte
// 540 of ActivationBlock.
type IoPosition struct {
	Clock       IoClock
	Offset      int64
	State       uint32
	NumSegments uint32
	Segments    [maxSegments]Segment
	Reserved    [72]byte
}

// Chunk describes one buffer's populated region: byte offset, size,
// stride, and flags (spec.md §4.5 steps 3-4, §6).
type Chunk struct {
	Offset uint32
	Size   uint32
	Stride int32
	Flags  int32
}

// MetaHeader is the well-known "header" Meta payload carried alongside
// a buffer's Data records.
type MetaHeader struct {
	PtsNsec   uint64
	Flags     uint32
	SeqOffset uint32
	DtsOffset int64
}

// IoBuffers is the per-IO-descriptor exchange block an input or
// output port's buffer ring is driven through: a status word (OK /
// NEED_DATA / HAVE_DATA / STOPPED / DRAINED) and the currently-owned
// buffer id (spec.md §4.5, §6).
type IoBuffers struct {
	Status   uint32
	BufferID uint32
}
