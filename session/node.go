package session

import (
	"github.com/m-lab/podgraph/pod"
	"github.com/m-lab/podgraph/shm"
)

// ClientNode is the session-side mirror of a "client-node" server
// object: ports, parameters, IO regions, the node's own activation,
// and the set of peers it must signal each cycle, per spec.md §3
// "Client-node".
type ClientNode struct {
	LocalID uint32
	Active  bool

	Activation *NodeActivation

	// ControlIO, ClockIO, PositionIO hold the last region installed by
	// SetIO for each well-known IoType; spec.md §4.4 "SetIO" has any
	// other IoType logged and ignored.
	ControlIO  *shm.Region
	ClockIO    *shm.Region
	PositionIO *shm.Region

	// Params holds the last SetParam object per parameter id, stored as
	// an owned copy of its encoded bytes, independent of the frame
	// payload it was decoded from.
	Params map[uint32][]byte

	InputPorts  []*Port
	OutputPorts []*Port

	// Peers is keyed by peer node id, populated by SetActivation.
	Peers map[uint32]*PeerActivation
}

func newClientNode(localID uint32) *ClientNode {
	return &ClientNode{
		LocalID: localID,
		Params:  make(map[uint32][]byte),
		InputPorts: []*Port{
			{ID: 0, Name: "input"},
		},
		OutputPorts: []*Port{
			{ID: 0, Name: "output"},
		},
		Peers: make(map[uint32]*PeerActivation),
	}
}

// portByDirection returns the slice of ports for dir.
func (n *ClientNode) portByDirection(dir uint32) []*Port {
	if dir == 1 {
		return n.OutputPorts
	}
	return n.InputPorts
}

// ParamObject decodes a previously stored SetParam value as an Object,
// or ok=false if no value is stored for param.
func (n *ClientNode) ParamObject(param uint32) (*pod.ObjectReader, bool, error) {
	raw, ok := n.Params[param]
	if !ok {
		return nil, false, nil
	}
	obj, err := pod.NewReader(raw).IntoObject()
	if err != nil {
		return nil, true, err
	}
	return obj, true, nil
}
