package session

import (
	"github.com/m-lab/podgraph/rtgraph"
	"github.com/m-lab/podgraph/shm"
)

// Port is one input or output port of a client-node (spec.md §3
// "Port"). Mixes is populated by PortSetIO and consumed by the
// real-time cycle (spec.md §4.5).
type Port struct {
	ID      uint32
	Name    string
	Buffers *PortBuffers
	Mixes   map[uint32]*PortMixIO
}

// PortMixIO is the IO-buffers descriptor PortSetIO installs for one
// mix of a port: the mapped region carrying the status/buffer_id word
// the real-time cycle polls each pass, and a typed view over it
// (spec.md §3 "IO-buffer descriptors per mix", §4.4 "PortSetIO").
type PortMixIO struct {
	MixID  uint32
	Region *shm.Region
	IO     *rtgraph.IoBuffers
}
