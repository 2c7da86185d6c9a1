package session

import (
	"fmt"
	"log"

	"github.com/m-lab/podgraph/pod"
	"github.com/m-lab/podgraph/proto"
	"github.com/m-lab/podgraph/shm"
)

// handleCore dispatches a frame addressed to the core object, per
// spec.md §4.4 "Inbound event handlers": Core {Info, Done, Ping,
// Error, BoundId, AddMem, RemoveMem-via-AddMem-null, Destroy}.
func (s *Session) handleCore(ev event) error {
	switch ev.opcode {
	case proto.EvCoreInfo:
		return s.coreInfoEvent(ev)
	case proto.EvCoreDone:
		return s.coreDoneEvent(ev)
	case proto.EvCorePing:
		return s.corePingEvent(ev)
	case proto.EvCoreError:
		return s.coreErrorEvent(ev)
	case proto.EvCoreBoundID:
		return s.coreBoundIDEvent(ev)
	case proto.EvCoreAddMem:
		return s.coreAddMemEvent(ev)
	case proto.EvCoreDestroy:
		return s.coreDestroyEvent(ev)
	default:
		log.Printf("session: core unsupported opcode %d", ev.opcode)
		return nil
	}
}

func (s *Session) coreInfoEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Core::Info: %w", err)
	}
	id, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::Info id: %w", err)
	}
	cookie, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("Core::Info cookie: %w", err)
	}
	userName, err := st.ReadString()
	if err != nil {
		return fmt.Errorf("Core::Info user_name: %w", err)
	}
	hostName, err := st.ReadString()
	if err != nil {
		return fmt.Errorf("Core::Info host_name: %w", err)
	}
	version, err := st.ReadString()
	if err != nil {
		return fmt.Errorf("Core::Info version: %w", err)
	}
	name, err := st.ReadString()
	if err != nil {
		return fmt.Errorf("Core::Info name: %w", err)
	}
	changeMask, err := st.ReadLong()
	if err != nil {
		return fmt.Errorf("Core::Info change_mask: %w", err)
	}
	props, err := st.IntoStruct()
	if err != nil {
		return fmt.Errorf("Core::Info properties: %w", err)
	}
	if changeMask&0x1 != 0 {
		if err := readPropertyPairsInto(props, s.core.properties); err != nil {
			return fmt.Errorf("Core::Info properties: %w", err)
		}
	}

	s.core.id = id
	s.core.cookie = cookie
	s.core.userName = userName
	s.core.hostName = hostName
	s.core.version = version
	s.core.name = name
	s.phase = PhaseAwaitingCoreInfo
	s.ops = append(s.ops, Op{Kind: OpGetRegistry})
	return nil
}

func (s *Session) coreDoneEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Core::Done: %w", err)
	}
	id, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::Done id: %w", err)
	}
	seq, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::Done seq: %w", err)
	}
	if id == proto.GetRegistrySync {
		s.phase = PhaseRegistryPending
		s.ops = append(s.ops, Op{Kind: OpConstructNode})
		log.Printf("session: initial registry sync done (seq=%d)", seq)
		return nil
	}
	log.Printf("session: unhandled core done id=%d seq=%d", id, seq)
	return nil
}

func (s *Session) corePingEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Core::Ping: %w", err)
	}
	id, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::Ping id: %w", err)
	}
	seq, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::Ping seq: %w", err)
	}
	s.ops = append(s.ops, Op{Kind: OpPong, PingID: id, PingSeq: seq})
	return nil
}

func (s *Session) coreErrorEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Core::Error: %w", err)
	}
	id, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("Core::Error id: %w", err)
	}
	seq, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("Core::Error seq: %w", err)
	}
	res, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("Core::Error res: %w", err)
	}
	message, err := st.ReadString()
	if err != nil {
		return fmt.Errorf("Core::Error message: %w", err)
	}
	log.Printf("session: %v", &PeerProtocolError{ID: id, Seq: seq, Res: res, Message: message})
	return nil
}

func (s *Session) coreBoundIDEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Core::BoundId: %w", err)
	}
	local, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::BoundId local: %w", err)
	}
	global, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::BoundId global: %w", err)
	}
	s.globals.Insert(local, global)
	log.Printf("session: bound local=%d global=%d", local, global)
	return nil
}

func (s *Session) coreAddMemEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Core::AddMem: %w", err)
	}
	memID, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::AddMem id: %w", err)
	}
	dataType, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::AddMem type: %w", err)
	}
	fdIndex, err := st.ReadFd()
	if err != nil {
		return fmt.Errorf("Core::AddMem fd: %w", err)
	}
	flags, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::AddMem flags: %w", err)
	}

	fd, ok := takeFD(ev.fds, fdIndex)
	if !ok {
		if err := s.memory.Remove(memID); err != nil && err != shm.ErrUnknownMemory {
			return fmt.Errorf("Core::AddMem remove %d: %w", memID, err)
		}
		return nil
	}
	if err := s.memory.Add(memID, fd, shm.DataType(dataType), flags); err != nil {
		return fmt.Errorf("Core::AddMem add %d: %w", memID, err)
	}
	return nil
}

func (s *Session) coreDestroyEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Core::Destroy: %w", err)
	}
	id, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Core::Destroy id: %w", err)
	}
	log.Printf("session: core destroy id=%d", id)
	return nil
}

// readPropertyPairsInto decodes a (count:i32, then count*(key,value)
// string pairs) properties struct into dst, per spec.md §4.4's
// Info/UpdateProperties property encoding.
func readPropertyPairsInto(props *pod.Reader, dst map[string]string) error {
	n, err := props.ReadInt()
	if err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		key, err := props.ReadString()
		if err != nil {
			return err
		}
		value, err := props.ReadString()
		if err != nil {
			return err
		}
		dst[key] = value
	}
	return nil
}
