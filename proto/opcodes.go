// Package proto carries the wire-level identifiers that the session
// package dispatches on: well-known local ids and the per-receiver
// opcode constants from spec §6. It holds no behaviour, only the
// vocabulary shared by the framer and the state machine, the way the
// teacher keeps its `message.pb.go`-equivalent tags separate from
// `collector.go`'s dispatch logic.
package proto

// Well-known local ids, pre-set in any fresh ids.Allocator.
const (
	CoreID   uint32 = 0
	ClientID uint32 = 1
)

// ReceiverClass identifies which mirror a frame's target id routes to,
// derived by the session from its id/registry bookkeeping rather than
// carried on the wire.
type ReceiverClass uint8

const (
	ReceiverCore ReceiverClass = iota
	ReceiverClient
	ReceiverRegistry
	ReceiverClientNode
)

// Core opcodes, outbound.
const (
	OpCoreHello        uint8 = 1
	OpCorePong         uint8 = 2
	OpCoreSync         uint8 = 3
	OpCoreGetRegistry  uint8 = 4
	OpCoreCreateObject uint8 = 5
)

// Core opcodes, inbound.
const (
	EvCoreInfo       uint8 = 1
	EvCoreDone       uint8 = 2
	EvCorePing       uint8 = 3
	EvCoreError      uint8 = 4
	EvCoreBoundID    uint8 = 5
	EvCoreAddMem     uint8 = 6
	EvCoreRemoveMem  uint8 = 7
	EvCoreDestroy    uint8 = 8
	EvCoreBoundProps uint8 = 9
)

// Client opcodes.
const (
	OpClientUpdateProperties uint8 = 1

	EvClientInfo  uint8 = 1
	EvClientError uint8 = 2
)

// Registry opcodes, inbound only.
const (
	EvRegistryGlobal       uint8 = 1
	EvRegistryGlobalRemove uint8 = 2
)

// Client-node opcodes, outbound.
const (
	OpNodeUpdate     uint8 = 1
	OpNodePortUpdate uint8 = 2
	OpNodeSetActive  uint8 = 3
	OpNodeGetNode    uint8 = 4
)

// Client-node opcodes, inbound.
const (
	EvNodeTransport     uint8 = 1
	EvNodeSetParam      uint8 = 2
	EvNodeSetIO         uint8 = 3
	EvNodeCommand       uint8 = 4
	EvNodePortSetParam  uint8 = 5
	EvNodeUseBuffers    uint8 = 6
	EvNodePortSetIO     uint8 = 7
	EvNodeSetActivation uint8 = 8
	EvNodePortSetMixInfo uint8 = 9
)

// GetRegistrySync is the sync counter value used for the initial
// registry fetch, per spec §4.4 step 3.
const GetRegistrySync uint32 = 1

// InterfaceFactory is the registry entry type URI that marks a global
// as a factory, the kind ConstructNode looks up by name (spec §4.4
// step 5).
const InterfaceFactory = "Factory"

// ClientNodeFactoryName is the well-known factory name ConstructNode
// asks the registry for.
const ClientNodeFactoryName = "client-node"

// NodeCommand ids understood by the Command inbound handler.
type NodeCommand uint32

const (
	NodeCommandStart NodeCommand = 1
	NodeCommandPause NodeCommand = 2
)

// Direction of a port, per spec §6.
type Direction uint32

const (
	DirectionInput  Direction = 0
	DirectionOutput Direction = 1
)

// IoBuffer status flag bits, per spec §6.
const (
	IoStatusOK       uint32 = 0
	IoStatusNeedData uint32 = 1 << 0
	IoStatusHaveData uint32 = 1 << 1
	IoStatusStopped  uint32 = 1 << 2
	IoStatusDrained  uint32 = 1 << 3
)

// IoType identifies which well-known IO area a SetIO/PortSetIO event
// installs a region for, per spec §6.
type IoType uint32

const (
	IoTypeInvalid  IoType = 0
	IoTypeBuffers  IoType = 1
	IoTypeControl  IoType = 2
	IoTypeClock    IoType = 3
	IoTypePosition IoType = 4
)

// DataType identifies how a buffer's Data record is backed: an offset
// into an already-mapped region (MemPtr) or a region of its own
// (MemFd), per spec §4.4 "UseBuffers".
type DataType uint32

const (
	DataTypeInvalid DataType = 0
	DataTypeMemPtr  DataType = 1
	DataTypeMemFd   DataType = 2
)

// ParamID identifies a SetParam target, per spec §4.4 "SetParam".
type ParamID uint32

const (
	ParamIDProps  ParamID = 1
	ParamIDFormat ParamID = 2
)
