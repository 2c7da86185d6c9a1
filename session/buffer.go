package session

import (
	"github.com/m-lab/podgraph/proto"
	"github.com/m-lab/podgraph/shm"
)

// BufferMeta is one Meta descriptor within a Buffer (spec.md §3
// "Buffer").
type BufferMeta struct {
	Type uint32
	Size uint32
}

// BufferData is one Data descriptor within a Buffer: a data-type tag,
// the mapped region it refers to, flags, and the maximum sample count
// that fits, per spec.md §4.4 "UseBuffers".
type BufferData struct {
	Type    uint32
	Region  *shm.Region
	Flags   uint32
	MaxSize int
}

// Buffer is one buffer installed by UseBuffers: the outer mapped
// region plus its Meta and Data descriptors.
type Buffer struct {
	MemID  uint32
	Offset int32
	Size   uint32
	Outer  *shm.Region
	Metas  []BufferMeta
	Datas  []BufferData
}

// PortBuffers is a port's entire installed buffer set, replaced
// wholesale by each UseBuffers event.
type PortBuffers struct {
	Direction proto.Direction
	MixID     uint32
	Flags     uint32
	Buffers   []Buffer
}
