package session

import (
	"fmt"
	"log"

	"github.com/m-lab/podgraph/proto"
)

// handleClient dispatches a frame addressed to the client object, per
// spec.md §4.4: Client {Info, Error}.
func (s *Session) handleClient(ev event) error {
	switch ev.opcode {
	case proto.EvClientInfo:
		return s.clientInfoEvent(ev)
	case proto.EvClientError:
		return s.clientErrorEvent(ev)
	default:
		log.Printf("session: client unsupported opcode %d", ev.opcode)
		return nil
	}
}

func (s *Session) clientInfoEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Client::Info: %w", err)
	}
	id, err := st.ReadId()
	if err != nil {
		return fmt.Errorf("Client::Info id: %w", err)
	}
	changeMask, err := st.ReadLong()
	if err != nil {
		return fmt.Errorf("Client::Info change_mask: %w", err)
	}
	props, err := st.IntoStruct()
	if err != nil {
		return fmt.Errorf("Client::Info properties: %w", err)
	}
	if changeMask&0x1 != 0 {
		if err := readPropertyPairsInto(props, s.client.properties); err != nil {
			return fmt.Errorf("Client::Info properties: %w", err)
		}
	}
	s.client.id = id
	return nil
}

func (s *Session) clientErrorEvent(ev event) error {
	st, err := ev.body.IntoStruct()
	if err != nil {
		return fmt.Errorf("Client::Error: %w", err)
	}
	id, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("Client::Error id: %w", err)
	}
	res, err := st.ReadInt()
	if err != nil {
		return fmt.Errorf("Client::Error res: %w", err)
	}
	message, err := st.ReadString()
	if err != nil {
		return fmt.Errorf("Client::Error message: %w", err)
	}
	log.Printf("session: %v", &PeerProtocolError{ID: id, Res: res, Message: message})
	return nil
}
