package session

import "github.com/m-lab/podgraph/shm"

// PeerActivation is one peer this node must signal after producing
// output each cycle: an owned event-fd and the peer's mapped
// activation region (spec.md §3 "Peer activation").
type PeerActivation struct {
	PeerID uint32
	FD     int
	Region *shm.Region
}

// NodeActivation is a client-node's own activation block, installed by
// a Transport event (spec.md §4.4 "Transport").
type NodeActivation struct {
	ReadFD  int
	WriteFD int
	Region  *shm.Region
}
