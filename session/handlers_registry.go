package session

import (
	"fmt"
	"log"

	"github.com/m-lab/podgraph/proto"
)

// handleRegistry dispatches a frame addressed to the allocated
// registry local id, per spec.md §4.4: Registry {Global, GlobalRemove}.
func (s *Session) handleRegistry(ev event) error {
	switch ev.opcode {
	case proto.EvRegistryGlobal:
		return s.registryGlobalEvent(ev)
	case proto.EvRegistryGlobalRemove:
		return s.registryGlobalRemoveEvent(ev)
	default:
		log.Printf("session: registry unsupported opcode %d", ev.opcode)
		return nil
	}
}

func (s *Session) registryGlobalEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Registry::Global: %w", err)
	}
	id, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Registry::Global id: %w", err)
	}
	permissions, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("Registry::Global permissions: %w", err)
	}
	ty, err := st.ReadString()
	if err != nil {
		return fmt.Errorf("Registry::Global type: %w", err)
	}
	version, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Registry::Global version: %w", err)
	}
	props, err := st.IntoStruct()
	if err != nil {
		return fmt.Errorf("Registry::Global properties: %w", err)
	}
	n, err := props.ReadInt()
	if err != nil {
		return fmt.Errorf("Registry::Global properties count: %w", err)
	}

	entry := &RegistryEntry{
		GlobalID:    id,
		Permissions: permissions,
		Type:        ty,
		Version:     version,
		Properties:  make(map[string]string, n),
	}
	for i := int32(0); i < n; i++ {
		key, err := props.ReadString()
		if err != nil {
			return fmt.Errorf("Registry::Global property key: %w", err)
		}
		value, err := props.ReadString()
		if err != nil {
			return fmt.Errorf("Registry::Global property value: %w", err)
		}
		entry.Properties[key] = value
	}

	if entry.Type == proto.InterfaceFactory {
		if name, ok := entry.Properties["factory.name"]; ok {
			s.factories[name] = id
			if name == proto.ClientNodeFactoryName && s.pendingConstructNode {
				s.pendingConstructNode = false
				s.ops = append(s.ops, Op{Kind: OpConstructNode})
			}
		}
	}

	s.registries[id] = entry

	if local, ok := s.globals.ByGlobal(id); ok {
		if kind, ok := s.localKinds[local]; ok && !kind.isRegistry {
			s.ops = append(s.ops, Op{Kind: OpNodeActivated, NodeLocalID: kind.nodeIndex})
		}
	}

	return nil
}

func (s *Session) registryGlobalRemoveEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Registry::GlobalRemove: %w", err)
	}
	id, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Registry::GlobalRemove id: %w", err)
	}

	if _, ok := s.registries[id]; !ok {
		log.Printf("session: tried to remove unknown registry %d", id)
		return nil
	}
	delete(s.registries, id)

	local, ok := s.globals.ByGlobal(id)
	if !ok {
		return nil
	}
	s.globals.RemoveByGlobal(id)
	s.ids.Unset(local)

	kind, ok := s.localKinds[local]
	if !ok {
		return nil
	}
	delete(s.localKinds, local)
	if !kind.isRegistry {
		delete(s.nodes, kind.nodeIndex)
		log.Printf("session: removed client node %d", kind.nodeIndex)
	}
	return nil
}
