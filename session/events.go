package session

import (
	"github.com/m-lab/podgraph/pod"
	"github.com/m-lab/podgraph/proto"
)

// localKind records what an allocated local id refers to, so that a
// frame addressed to it can be routed without a global type registry
// lookup on every frame (spec.md §9 tagged dispatch).
type localKind struct {
	isRegistry bool
	nodeIndex  uint32 // valid when !isRegistry
}

// event is the decoded, not-yet-dispatched shape of one inbound frame:
// which receiver class it targets, its opcode, and a reader over its
// POD payload. Dispatch switches on (class, opcode) exactly as
// spec.md §9 describes, modelled as this one discriminated struct
// instead of a family of interface implementations.
type event struct {
	class  proto.ReceiverClass
	opcode uint8
	target uint32
	body   *pod.Reader
	fds    []int
}
