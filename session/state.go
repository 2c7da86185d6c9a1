// Package session implements the protocol state machine described in
// spec.md §4.4: it owns the connection's core/client/registry mirrors
// and client-node slab, decodes inbound frames into session-state
// mutations, and serialises queued operations into outbound frames.
package session

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m-lab/podgraph/frame"
	"github.com/m-lab/podgraph/ids"
	"github.com/m-lab/podgraph/metrics"
	"github.com/m-lab/podgraph/pod"
	"github.com/m-lab/podgraph/proto"
	"github.com/m-lab/podgraph/shm"
)

// Phase is the session's coarse linear progression, per spec.md §4.4
// "States".
type Phase int

const (
	PhaseOpening Phase = iota
	PhaseAwaitingCoreInfo
	PhaseRegistryPending
	PhaseIdle
)

func (p Phase) String() string {
	switch p {
	case PhaseOpening:
		return "Opening"
	case PhaseAwaitingCoreInfo:
		return "AwaitingCoreInfo"
	case PhaseRegistryPending:
		return "RegistryPending"
	case PhaseIdle:
		return "Idle"
	default:
		return "Unknown"
	}
}

type coreState struct {
	id       uint32
	cookie   int32
	userName string
	hostName string
	version  string
	name     string
	properties map[string]string
}

type clientState struct {
	id         uint32
	properties map[string]string
}

// Session is the client-side connection state machine. It is not safe
// for concurrent use: the protocol state machine is single-threaded
// cooperative, per spec.md §5.
type Session struct {
	Conn *frame.Conn

	AppProperties *Properties

	core   coreState
	client clientState

	registries    map[uint32]*RegistryEntry // keyed by global id
	factories     map[string]uint32         // factory name -> registry global id
	globals       *ids.GlobalMap
	nodes         map[uint32]*ClientNode // keyed by local id
	localKinds    map[uint32]localKind
	ids           *ids.Allocator
	memory        *shm.Table
	ops           []Op
	syncSeq       uint32
	registryLocal uint32

	// pendingConstructNode is set when OpConstructNode ran before the
	// client-node factory was known; registryGlobalEvent re-queues the
	// op once that factory registers (spec.md §4.4 "ConstructNode").
	pendingConstructNode bool

	phase Phase

	// OnOp, when set, is invoked for every op as it is processed, after
	// its outbound frame (if any) is sent — the hook the real-time host
	// loop and eventsocket use to learn about node lifecycle (spec.md §2
	// "surface a Process event to the host application").
	OnOp func(Op)
}

// New creates a Session ready to drive conn. appProperties are the
// fixed application properties sent with ClientUpdateProperties
// (spec.md §4.4 step 1).
func New(conn *frame.Conn, appProperties *Properties) *Session {
	if appProperties == nil {
		appProperties = NewProperties()
	}
	s := &Session{
		Conn:          conn,
		AppProperties: appProperties,
		registries:    make(map[uint32]*RegistryEntry),
		factories:     make(map[string]uint32),
		globals:       ids.NewGlobalMap(),
		nodes:         make(map[uint32]*ClientNode),
		localKinds:    make(map[uint32]localKind),
		ids:           ids.NewAllocator(),
		memory:        shm.NewTable(),
		syncSeq:       1,
		phase:         PhaseOpening,
	}
	s.ops = append(s.ops, Op{Kind: OpCoreHello})
	s.core.properties = make(map[string]string)
	s.client.properties = make(map[string]string)
	return s
}

// Phase returns the session's current coarse phase.
func (s *Session) Phase() Phase { return s.phase }

// Node looks up a client-node by local id.
func (s *Session) Node(localID uint32) (*ClientNode, bool) {
	n, ok := s.nodes[localID]
	return n, ok
}

// Memory exposes the session's memory table, for the real-time path to
// read mapped regions from.
func (s *Session) Memory() *shm.Table { return s.memory }

// ActiveNodeIDs returns the local ids of every client-node currently
// installed, for diagnostics (e.g. the poll loop's pending-process
// size metric).
func (s *Session) ActiveNodeIDs() []uint32 {
	ids := make([]uint32, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	return ids
}

// Advance drains every queued op (sending its outbound frame) and then
// dispatches every fully-buffered inbound frame, per the run loop of
// spec.md §4.4 / §5. It returns only on an IO-layer error (fatal, per
// spec.md §7); per-event decoding errors are logged and the session
// continues.
func (s *Session) Advance() error {
	for {
		for len(s.ops) > 0 {
			op := s.ops[0]
			s.ops = s.ops[1:]
			if err := s.processOp(op); err != nil {
				log.Printf("session: op %v failed: %v", op.Kind, err)
			}
			if s.OnOp != nil {
				s.OnOp(op)
			}
		}
		if s.Conn.WantWrite() {
			if err := s.Conn.Send(); err != nil {
				return fmt.Errorf("session: send: %w", err)
			}
		}

		frames, err := s.Conn.Drain()
		if err != nil {
			return fmt.Errorf("session: drain: %w", err)
		}
		if len(frames) == 0 {
			return nil
		}
		for _, f := range frames {
			s.dispatchFrame(f)
		}
	}
}

func (s *Session) dispatchFrame(f frame.Frame) {
	start := time.Now()
	ev := event{
		target: f.Header.Target,
		opcode: f.Header.Opcode,
		body:   pod.NewReader(f.Payload),
		fds:    f.Fds,
	}

	var err error
	switch f.Header.Target {
	case proto.CoreID:
		ev.class = proto.ReceiverCore
		err = s.handleCore(ev)
	case proto.ClientID:
		ev.class = proto.ReceiverClient
		err = s.handleClient(ev)
	default:
		kind, ok := s.localKinds[f.Header.Target]
		if !ok {
			err = fmt.Errorf("%w: %d", ErrUnknownReceiver, f.Header.Target)
			break
		}
		if kind.isRegistry {
			ev.class = proto.ReceiverRegistry
			err = s.handleRegistry(ev)
		} else {
			ev.class = proto.ReceiverClientNode
			err = s.handleClientNode(kind.nodeIndex, ev)
		}
	}
	metrics.FrameDecodeHistogram.With(prometheus.Labels{"opcode": strconv.Itoa(int(f.Header.Opcode))}).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ErrorCount.With(prometheus.Labels{"kind": "protocol"}).Inc()
		log.Printf("session: event (target=%d opcode=%d) failed: %v", f.Header.Target, f.Header.Opcode, err)
	}
}

// takeFD resolves a decoded pod.Fd index against the frame's carried
// fds. The index is carried on the wire as a signed value reinterpreted
// as u64; -1 (all bits set) means "no fd".
func takeFD(fds []int, index uint64) (int, bool) {
	signed := int64(index)
	if signed < 0 || signed >= int64(len(fds)) {
		return -1, false
	}
	return fds[signed], true
}

func (s *Session) enqueue(h frame.Header, payload []byte, fds []int) error {
	return s.Conn.Enqueue(h, payload, fds)
}

func (s *Session) nextSeq() uint32 {
	seq := s.syncSeq
	s.syncSeq++
	return seq
}
