package session

import (
	"fmt"
	"log"

	"github.com/m-lab/podgraph/frame"
	"github.com/m-lab/podgraph/pod"
	"github.com/m-lab/podgraph/proto"
)

// processOp serializes and enqueues one queued Op's outbound frame(s),
// per spec.md §4.4 "Outbound op handlers". Ops with no wire
// representation (the host-visible signals) are no-ops here; the OnOp
// hook is what surfaces them.
func (s *Session) processOp(op Op) error {
	switch op.Kind {
	case OpCoreHello:
		return s.sendCoreHello()
	case OpGetRegistry:
		return s.sendGetRegistry()
	case OpPong:
		return s.sendPong(op.PingID, op.PingSeq)
	case OpConstructNode:
		return s.sendConstructNode()
	case OpNodeActivated:
		return s.sendNodeActivated(op.NodeLocalID)
	case OpNodeStart, OpNodePause, OpNodeReadInterest:
		return nil
	default:
		return fmt.Errorf("session: unknown op kind %v", op.Kind)
	}
}

func (s *Session) sendCoreHello() error {
	b := pod.NewBuilder()
	st := b.BeginStruct()
	st.Builder().Int(1) // protocol version, spec.md §4.4 step 1
	if err := st.End(); err != nil {
		return fmt.Errorf("Core::Hello: %w", err)
	}
	payload := b.Bytes()
	h := frame.Header{Target: proto.CoreID, Opcode: proto.OpCoreHello, Size: uint32(len(payload)), Seq: s.nextSeq()}
	if err := s.enqueue(h, payload, nil); err != nil {
		return fmt.Errorf("Core::Hello: %w", err)
	}
	return s.sendClientUpdateProperties()
}

func (s *Session) sendClientUpdateProperties() error {
	b := pod.NewBuilder()
	st := b.BeginStruct()
	inner := st.Builder()
	inner.Long(1) // change_mask: properties changed
	if err := writePropertyPairs(inner, s.AppProperties); err != nil {
		return fmt.Errorf("Client::UpdateProperties: %w", err)
	}
	if err := st.End(); err != nil {
		return fmt.Errorf("Client::UpdateProperties: %w", err)
	}
	payload := b.Bytes()
	h := frame.Header{Target: proto.ClientID, Opcode: proto.OpClientUpdateProperties, Size: uint32(len(payload)), Seq: s.nextSeq()}
	return s.enqueue(h, payload, nil)
}

func (s *Session) sendGetRegistry() error {
	local, err := s.ids.Alloc()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutOfIdentifiers, err)
	}
	s.registryLocal = local
	s.localKinds[local] = localKind{isRegistry: true}

	b := pod.NewBuilder()
	st := b.BeginStruct()
	inner := st.Builder()
	inner.Id(proto.GetRegistrySync)
	inner.Id(local)
	if err := st.End(); err != nil {
		return fmt.Errorf("Core::GetRegistry: %w", err)
	}
	payload := b.Bytes()
	h := frame.Header{Target: proto.CoreID, Opcode: proto.OpCoreGetRegistry, Size: uint32(len(payload)), Seq: s.nextSeq()}
	return s.enqueue(h, payload, nil)
}

func (s *Session) sendPong(id, seq uint32) error {
	b := pod.NewBuilder()
	st := b.BeginStruct()
	inner := st.Builder()
	inner.Id(id)
	inner.Id(seq)
	if err := st.End(); err != nil {
		return fmt.Errorf("Core::Pong: %w", err)
	}
	payload := b.Bytes()
	h := frame.Header{Target: proto.CoreID, Opcode: proto.OpCorePong, Size: uint32(len(payload)), Seq: s.nextSeq()}
	return s.enqueue(h, payload, nil)
}

// sendConstructNode looks up the client-node factory in the registry
// and asks the server to create one, per spec.md §4.4 "ConstructNode".
// If the factory hasn't registered yet, the request is deferred until
// registryGlobalEvent observes it (avoids a busy retry loop inside
// Advance).
func (s *Session) sendConstructNode() error {
	if _, ok := s.factories[proto.ClientNodeFactoryName]; !ok {
		s.pendingConstructNode = true
		log.Printf("session: client-node factory not yet registered, deferring construct")
		return nil
	}

	localID, err := s.ids.Alloc()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutOfIdentifiers, err)
	}

	b := pod.NewBuilder()
	st := b.BeginStruct()
	inner := st.Builder()
	inner.String(proto.ClientNodeFactoryName)
	inner.String("ClientNode")
	inner.Id(0) // interface version
	if err := writePropertyPairs(inner, s.AppProperties); err != nil {
		return fmt.Errorf("Core::CreateObject: %w", err)
	}
	inner.Id(localID)
	if err := st.End(); err != nil {
		return fmt.Errorf("Core::CreateObject: %w", err)
	}
	payload := b.Bytes()
	h := frame.Header{Target: proto.CoreID, Opcode: proto.OpCoreCreateObject, Size: uint32(len(payload)), Seq: s.nextSeq()}
	if err := s.enqueue(h, payload, nil); err != nil {
		s.ids.Unset(localID)
		return fmt.Errorf("Core::CreateObject: %w", err)
	}

	s.nodes[localID] = newClientNode(localID)
	s.localKinds[localID] = localKind{isRegistry: false, nodeIndex: localID}
	s.phase = PhaseIdle
	log.Printf("session: constructed client node local=%d", localID)
	return nil
}

// sendNodeActivated realizes the start-up trace once the constructed
// node's global id resolves in the registry: advertise the node, mark
// it active, then advertise each of its ports (spec.md §4.4
// "NodeActivated").
func (s *Session) sendNodeActivated(nodeLocalID uint32) error {
	node, ok := s.nodes[nodeLocalID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClientNode, nodeLocalID)
	}

	if err := s.sendNodeUpdate(node); err != nil {
		return err
	}
	if err := s.sendNodeSetActive(node, true); err != nil {
		return err
	}
	for _, p := range node.InputPorts {
		if err := s.sendPortUpdate(node, proto.DirectionInput, p); err != nil {
			return err
		}
	}
	for _, p := range node.OutputPorts {
		if err := s.sendPortUpdate(node, proto.DirectionOutput, p); err != nil {
			return err
		}
	}
	node.Active = true
	return nil
}

func (s *Session) sendNodeUpdate(node *ClientNode) error {
	b := pod.NewBuilder()
	st := b.BeginStruct()
	inner := st.Builder()
	inner.Long(0) // change_mask: no params advertised at construction
	inner.Int(int32(len(node.InputPorts)))
	inner.Int(int32(len(node.OutputPorts)))
	inner.Id(0) // n_params
	if err := st.End(); err != nil {
		return fmt.Errorf("ClientNode::Update: %w", err)
	}
	payload := b.Bytes()
	h := frame.Header{Target: node.LocalID, Opcode: proto.OpNodeUpdate, Size: uint32(len(payload)), Seq: s.nextSeq()}
	return s.enqueue(h, payload, nil)
}

func (s *Session) sendNodeSetActive(node *ClientNode, active bool) error {
	b := pod.NewBuilder()
	st := b.BeginStruct()
	st.Builder().Bool(active)
	if err := st.End(); err != nil {
		return fmt.Errorf("ClientNode::SetActive: %w", err)
	}
	payload := b.Bytes()
	h := frame.Header{Target: node.LocalID, Opcode: proto.OpNodeSetActive, Size: uint32(len(payload)), Seq: s.nextSeq()}
	return s.enqueue(h, payload, nil)
}

func (s *Session) sendPortUpdate(node *ClientNode, direction proto.Direction, port *Port) error {
	b := pod.NewBuilder()
	st := b.BeginStruct()
	inner := st.Builder()
	inner.Id(uint32(direction))
	inner.Id(port.ID)
	inner.Long(0) // change_mask
	inner.Id(0)   // n_params
	if err := st.End(); err != nil {
		return fmt.Errorf("ClientNode::PortUpdate: %w", err)
	}
	payload := b.Bytes()
	h := frame.Header{Target: node.LocalID, Opcode: proto.OpNodePortUpdate, Size: uint32(len(payload)), Seq: s.nextSeq()}
	return s.enqueue(h, payload, nil)
}

// writePropertyPairs writes a (count, then count*(key, value)) struct
// of properties, the outbound mirror of readPropertyPairsInto.
func writePropertyPairs(b *pod.Builder, props *Properties) error {
	inner := b.BeginStruct()
	ib := inner.Builder()
	ib.Int(int32(props.Len()))
	for _, p := range props.Pairs() {
		ib.String(p.Key)
		ib.String(p.Value)
	}
	return inner.End()
}
