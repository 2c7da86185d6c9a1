package session

import (
	"fmt"
	"log"

	"github.com/m-lab/podgraph/proto"
	"github.com/m-lab/podgraph/rtgraph"
	"github.com/m-lab/podgraph/shm"
)

// handleClientNode dispatches a frame addressed to an allocated
// client-node local id, per spec.md §4.4: ClientNode {Transport,
// SetParam, SetIO, Command, PortSetParam, UseBuffers, PortSetIO,
// SetActivation, PortSetMixInfo}.
func (s *Session) handleClientNode(localID uint32, ev event) error {
	node, ok := s.nodes[localID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownClientNode, localID)
	}
	switch ev.opcode {
	case proto.EvNodeTransport:
		return s.nodeTransportEvent(node, ev)
	case proto.EvNodeSetParam:
		return s.nodeSetParamEvent(node, ev)
	case proto.EvNodeSetIO:
		return s.nodeSetIOEvent(node, ev)
	case proto.EvNodeCommand:
		return s.nodeCommandEvent(node, ev)
	case proto.EvNodePortSetParam:
		return s.nodePortSetParamEvent(node, ev)
	case proto.EvNodeUseBuffers:
		return s.nodeUseBuffersEvent(node, ev)
	case proto.EvNodePortSetIO:
		return s.nodePortSetIOEvent(node, ev)
	case proto.EvNodeSetActivation:
		return s.nodeSetActivationEvent(node, ev)
	case proto.EvNodePortSetMixInfo:
		return s.nodePortSetMixInfoEvent(node, ev)
	default:
		log.Printf("session: client node unsupported opcode %d", ev.opcode)
		return nil
	}
}

func (s *Session) nodeTransportEvent(node *ClientNode, ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("ClientNode::Transport: %w", err)
	}
	readFdIdx, err := st.ReadFd()
	if err != nil {
		return fmt.Errorf("ClientNode::Transport read_fd: %w", err)
	}
	writeFdIdx, err := st.ReadFd()
	if err != nil {
		return fmt.Errorf("ClientNode::Transport write_fd: %w", err)
	}
	memID, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("ClientNode::Transport mem_id: %w", err)
	}
	offset, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("ClientNode::Transport offset: %w", err)
	}
	size, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("ClientNode::Transport size: %w", err)
	}

	readFd, _ := takeFD(ev.fds, readFdIdx)
	writeFd, _ := takeFD(ev.fds, writeFdIdx)

	region, err := s.memory.Map(uint32(memID), int64(offset), int(size))
	if err != nil {
		return fmt.Errorf("ClientNode::Transport map activation: %w", err)
	}
	block, err := rtgraph.StatusView(region)
	if err != nil {
		return fmt.Errorf("ClientNode::Transport activation view: %w", err)
	}
	rtgraph.CompareAndSwapStatus(block, rtgraph.StatusInactive, rtgraph.StatusNotTriggered)

	node.Activation = &NodeActivation{ReadFD: readFd, WriteFD: writeFd, Region: region}
	s.ops = append(s.ops, Op{Kind: OpNodeReadInterest, NodeLocalID: node.LocalID})
	return nil
}

func (s *Session) nodeSetParamEvent(node *ClientNode, ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("ClientNode::SetParam: %w", err)
	}
	param, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::SetParam param: %w", err)
	}
	if _, err := st.ReadId(); err != nil { // flags
		return fmt.Errorf("ClientNode::SetParam flags: %w", err)
	}
	before := st.Bytes()
	obj, err := st.IntoObject()
	if err != nil {
		return fmt.Errorf("ClientNode::SetParam object: %w", err)
	}
	if obj.ObjectID == uint32(proto.ParamIDProps) {
		props, err := obj.Properties()
		if err != nil {
			return fmt.Errorf("ClientNode::SetParam properties: %w", err)
		}
		for _, p := range props {
			log.Printf("session: node %d set param prop key=%d", node.LocalID, p.Key)
		}
	}
	node.Params[param] = append([]byte(nil), before[:len(before)-st.Remaining()]...)
	return nil
}

func (s *Session) nodeSetIOEvent(node *ClientNode, ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("ClientNode::SetIO: %w", err)
	}
	ioType, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::SetIO id: %w", err)
	}
	memID, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("ClientNode::SetIO mem_id: %w", err)
	}
	offset, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::SetIO offset: %w", err)
	}
	size, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::SetIO size: %w", err)
	}

	var dst **shm.Region
	switch proto.IoType(ioType) {
	case proto.IoTypeControl:
		dst = &node.ControlIO
	case proto.IoTypeClock:
		dst = &node.ClockIO
	case proto.IoTypePosition:
		dst = &node.PositionIO
	default:
		log.Printf("session: node %d unsupported IO type %d", node.LocalID, ioType)
		return nil
	}

	if *dst != nil {
		if err := s.memory.Free(*dst); err != nil {
			log.Printf("session: node %d free old IO region: %v", node.LocalID, err)
		}
		*dst = nil
	}
	if memID < 0 {
		return nil
	}
	region, err := s.memory.Map(uint32(memID), int64(offset), int(size))
	if err != nil {
		return fmt.Errorf("ClientNode::SetIO map: %w", err)
	}
	*dst = region
	return nil
}

func (s *Session) nodeCommandEvent(node *ClientNode, ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("ClientNode::Command: %w", err)
	}
	obj, err := st.IntoObject()
	if err != nil {
		return fmt.Errorf("ClientNode::Command object: %w", err)
	}
	switch proto.NodeCommand(obj.ObjectID) {
	case proto.NodeCommandStart:
		s.ops = append(s.ops, Op{Kind: OpNodeStart, NodeLocalID: node.LocalID})
	case proto.NodeCommandPause:
		s.ops = append(s.ops, Op{Kind: OpNodePause, NodeLocalID: node.LocalID})
	default:
		log.Printf("session: node %d unsupported command %d", node.LocalID, obj.ObjectID)
	}
	return nil
}

func (s *Session) nodePortSetParamEvent(node *ClientNode, ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetParam: %w", err)
	}
	direction, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetParam direction: %w", err)
	}
	portID, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetParam port_id: %w", err)
	}
	port, err := portByID(node.portByDirection(direction), portID)
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetParam: %w", err)
	}
	log.Printf("session: node %d port %d (dir %d) set param", node.LocalID, port.ID, direction)
	return nil
}

func (s *Session) nodeUseBuffersEvent(node *ClientNode, ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("ClientNode::UseBuffers: %w", err)
	}
	direction, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::UseBuffers direction: %w", err)
	}
	portID, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::UseBuffers port_id: %w", err)
	}
	mixID, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::UseBuffers mix_id: %w", err)
	}
	flags, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::UseBuffers flags: %w", err)
	}
	nBuffers, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::UseBuffers n_buffers: %w", err)
	}

	ports := node.portByDirection(direction)
	port, err := portByID(ports, portID)
	if err != nil {
		return fmt.Errorf("ClientNode::UseBuffers: %w", err)
	}

	var buffers []Buffer
	for i := uint32(0); i < nBuffers; i++ {
		memID, err := st.ReadId()
		if err != nil {
			return fmt.Errorf("ClientNode::UseBuffers buffer mem_id: %w", err)
		}
		offset, err := st.ReadInt()
		if err != nil {
			return fmt.Errorf("ClientNode::UseBuffers buffer offset: %w", err)
		}
		size, err := st.ReadId()
		if err != nil {
			return fmt.Errorf("ClientNode::UseBuffers buffer size: %w", err)
		}
		nMetas, err := st.ReadId()
		if err != nil {
			return fmt.Errorf("ClientNode::UseBuffers n_metas: %w", err)
		}

		outer, err := s.memory.Map(memID, int64(offset), int(size))
		if err != nil {
			return fmt.Errorf("ClientNode::UseBuffers map buffer %d: %w", memID, err)
		}

		var metas []BufferMeta
		for j := uint32(0); j < nMetas; j++ {
			metaType, err := st.ReadId()
			if err != nil {
				return fmt.Errorf("ClientNode::UseBuffers meta type: %w", err)
			}
			metaSize, err := st.ReadId()
			if err != nil {
				return fmt.Errorf("ClientNode::UseBuffers meta size: %w", err)
			}
			metas = append(metas, BufferMeta{Type: metaType, Size: metaSize})
		}

		nDatas, err := st.ReadId()
		if err != nil {
			return fmt.Errorf("ClientNode::UseBuffers n_datas: %w", err)
		}

		var datas []BufferData
		for j := uint32(0); j < nDatas; j++ {
			dataType, err := st.ReadId()
			if err != nil {
				return fmt.Errorf("ClientNode::UseBuffers data type: %w", err)
			}
			data, err := st.ReadId()
			if err != nil {
				return fmt.Errorf("ClientNode::UseBuffers data: %w", err)
			}
			dataFlags, err := st.ReadId()
			if err != nil {
				return fmt.Errorf("ClientNode::UseBuffers data flags: %w", err)
			}
			dataOffset, err := st.ReadInt()
			if err != nil {
				return fmt.Errorf("ClientNode::UseBuffers data offset: %w", err)
			}
			maxSize, err := st.ReadId()
			if err != nil {
				return fmt.Errorf("ClientNode::UseBuffers data max_size: %w", err)
			}

			var region *shm.Region
			switch dataType {
			case uint32(proto.DataTypeMemPtr):
				if _, err := shm.Sub(outer, int(data), int(maxSize)); err != nil {
					return fmt.Errorf("ClientNode::UseBuffers MEM_PTR bounds: %w", err)
				}
				s.memory.Track(outer)
				region = outer
			case uint32(proto.DataTypeMemFd):
				r, err := s.memory.Map(data, int64(dataOffset), int(maxSize))
				if err != nil {
					return fmt.Errorf("ClientNode::UseBuffers MEM_FD map: %w", err)
				}
				region = r
			default:
				return fmt.Errorf("ClientNode::UseBuffers: unsupported data type %d", dataType)
			}

			datas = append(datas, BufferData{Type: dataType, Region: region, Flags: dataFlags, MaxSize: int(maxSize)})
		}

		buffers = append(buffers, Buffer{MemID: memID, Offset: offset, Size: size, Outer: outer, Metas: metas, Datas: datas})
	}

	replaced := port.Buffers
	port.Buffers = &PortBuffers{
		Direction: proto.Direction(direction),
		MixID:     mixID,
		Flags:     flags,
		Buffers:   buffers,
	}

	if replaced != nil {
		for _, b := range replaced.Buffers {
			for _, d := range b.Datas {
				if err := s.memory.Free(d.Region); err != nil {
					log.Printf("session: free replaced buffer region: %v", err)
				}
			}
			if err := s.memory.Free(b.Outer); err != nil {
				log.Printf("session: free replaced buffer outer region: %v", err)
			}
		}
	}
	return nil
}

func (s *Session) nodePortSetIOEvent(node *ClientNode, ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO: %w", err)
	}
	direction, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO direction: %w", err)
	}
	portID, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO port_id: %w", err)
	}
	mixID, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO mix_id: %w", err)
	}
	ioType, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO id: %w", err)
	}
	memID, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO mem_id: %w", err)
	}
	offset, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO offset: %w", err)
	}
	size, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO size: %w", err)
	}

	port, err := portByID(node.portByDirection(direction), portID)
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO: %w", err)
	}

	if prev, ok := port.Mixes[mixID]; ok && prev.Region != nil {
		if err := s.memory.Free(prev.Region); err != nil {
			log.Printf("session: free replaced port mix io: %v", err)
		}
	}

	if memID < 0 {
		delete(port.Mixes, mixID)
		return nil
	}

	if proto.IoType(ioType) != proto.IoTypeBuffers {
		log.Printf("session: node %d port %d mix %d unsupported IO type %d", node.LocalID, portID, mixID, ioType)
		return nil
	}

	region, err := s.memory.Map(uint32(memID), int64(offset), int(size))
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO map: %w", err)
	}
	view, err := shm.View[rtgraph.IoBuffers](region)
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetIO view: %w", err)
	}
	if port.Mixes == nil {
		port.Mixes = make(map[uint32]*PortMixIO)
	}
	port.Mixes[mixID] = &PortMixIO{MixID: mixID, Region: region, IO: view}
	return nil
}

func (s *Session) nodeSetActivationEvent(node *ClientNode, ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("ClientNode::SetActivation: %w", err)
	}
	peerID, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("ClientNode::SetActivation node_id: %w", err)
	}
	fdIdx, err := st.ReadFd()
	if err != nil {
		return fmt.Errorf("ClientNode::SetActivation fd: %w", err)
	}
	memID, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("ClientNode::SetActivation mem_id: %w", err)
	}
	offset, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("ClientNode::SetActivation offset: %w", err)
	}
	size, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("ClientNode::SetActivation size: %w", err)
	}

	fd, fdOk := takeFD(ev.fds, fdIdx)
	if !fdOk || memID < 0 {
		if prev, ok := node.Peers[uint32(peerID)]; ok {
			if err := s.memory.Free(prev.Region); err != nil {
				log.Printf("session: free removed peer activation: %v", err)
			}
			delete(node.Peers, uint32(peerID))
		}
		return nil
	}

	region, err := s.memory.Map(uint32(memID), int64(offset), int(size))
	if err != nil {
		return fmt.Errorf("ClientNode::SetActivation map: %w", err)
	}
	if prev, ok := node.Peers[uint32(peerID)]; ok {
		if err := s.memory.Free(prev.Region); err != nil {
			log.Printf("session: free replaced peer activation: %v", err)
		}
	}
	node.Peers[uint32(peerID)] = &PeerActivation{PeerID: uint32(peerID), FD: fd, Region: region}
	return nil
}

func (s *Session) nodePortSetMixInfoEvent(node *ClientNode, ev event) error {
	_, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("ClientNode::PortSetMixInfo: %w", err)
	}
	log.Printf("session: node %d port mix info", node.LocalID)
	return nil
}

func portByID(ports []*Port, id uint32) (*Port, error) {
	for _, p := range ports {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownPort, id)
}
