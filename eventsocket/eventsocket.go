// Package eventsocket serves client-node lifecycle and xrun events over
// a Unix-domain socket as newline-delimited JSON, for any number of
// subscribers. It has no bearing on the protocol itself — it is a
// diagnostics surface a host process can tail the way `ss` tails kernel
// socket state.
package eventsocket

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

//go:generate stringer -type=NodeEventKind

// NodeEventKind identifies which client-node lifecycle transition a
// NodeEvent reports.
type NodeEventKind int

const (
	// NodeCreated is sent when ConstructNode installs a new client node
	// (spec.md §4.4 "ConstructNode").
	NodeCreated = NodeEventKind(iota)
	// NodeActive is sent when a node's start-up trace completes
	// (spec.md §4.4 "NodeActivated").
	NodeActive
	// NodeRemoved reports that the registry dropped a node's global id
	// (spec.md §4.4 "Registry::GlobalRemove"). cmd/graphctl does not
	// emit this kind.
	NodeRemoved
	// XRun reports that a real-time cycle missed its trigger
	// (spec.md §4.5 step 1). cmd/graphctl does not emit this kind.
	XRun
)

// Filename is a command-line flag holding the name of the unix-domain
// socket used by the client and server.
var Filename = flag.String("podgraph.eventsocket", "", "The filename of the unix-domain socket on which node events are served.")

// NodeEvent is the data sent down the socket in JSONL form to clients.
// Kind, Timestamp, and LocalID are always populated; the rest are
// optional depending on Kind.
type NodeEvent struct {
	Kind      NodeEventKind
	Timestamp time.Time
	LocalID   uint32
	GlobalID  uint32 `json:",omitempty"`
}

// Server serves NodeEvents over a Unix-domain socket. Construct with
// New unless you really know what you're doing (e.g. unit tests).
type Server struct {
	eventC       chan *NodeEvent
	filename     string
	clients      map[net.Conn]struct{}
	unixListener net.Listener
	mutex        sync.Mutex
	servingWG    sync.WaitGroup
}

func (s *Server) addClient(c net.Conn) {
	log.Println("Adding new node event client", c)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c net.Conn) {
	s.servingWG.Add(1)
	defer s.servingWG.Done()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.clients[c]
	if !ok {
		log.Println("Tried to remove node event client", c, "that was not present")
		return
	}
	delete(s.clients, c)
}

func (s *Server) sendToAllListeners(data string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for c := range s.clients {
		_, err := fmt.Fprintln(c, data)
		if err != nil {
			log.Println("Write to client", c, "failed with error", err, " - removing the client.")
			go s.removeClient(c)
			go c.Close()
		}
	}
}

func (s *Server) notifyClients(ctx context.Context) {
	s.servingWG.Add(1)
	defer s.servingWG.Done()
	for ctx.Err() == nil {
		event := <-s.eventC
		var b []byte
		var err error
		if event != nil {
			b, err = json.Marshal(*event)
		}
		if event == nil || err != nil {
			log.Printf("WARNING: Bad event received %v (err: %v)\n", event, err)
			continue
		}
		s.sendToAllListeners(string(b))
	}
}

// Listen returns quickly. Connections to the server will not succeed
// until Serve is also called. Call only once per Server.
func (s *Server) Listen() error {
	s.servingWG.Add(1)
	var err error
	s.unixListener, err = net.Listen("unix", s.filename)
	return err
}

// Serve accepts clients until ctx is cancelled. Call in a goroutine
// after Listen. Call only once per Server.
func (s *Server) Serve(ctx context.Context) error {
	defer s.servingWG.Done()
	derivedCtx, derivedCancel := context.WithCancel(ctx)
	defer derivedCancel()

	go s.notifyClients(derivedCtx)

	s.servingWG.Add(1)
	go func() {
		<-derivedCtx.Done()
		s.unixListener.Close()
		close(s.eventC)
		s.servingWG.Done()
	}()

	var err error
	for derivedCtx.Err() == nil {
		var conn net.Conn
		conn, err = s.unixListener.Accept()
		if err != nil {
			log.Printf("Could not Accept on socket %q: %s\n", s.filename, err)
			break
		}
		s.addClient(conn)
	}
	return err
}

// NodeCreated broadcasts a NodeCreated event.
func (s *Server) NodeCreated(localID uint32) {
	s.eventC <- &NodeEvent{Kind: NodeCreated, Timestamp: time.Now(), LocalID: localID}
}

// NodeActive broadcasts a NodeActive event.
func (s *Server) NodeActive(localID, globalID uint32) {
	s.eventC <- &NodeEvent{Kind: NodeActive, Timestamp: time.Now(), LocalID: localID, GlobalID: globalID}
}

// NodeRemoved broadcasts a NodeRemoved event.
func (s *Server) NodeRemoved(localID uint32) {
	s.eventC <- &NodeEvent{Kind: NodeRemoved, Timestamp: time.Now(), LocalID: localID}
}

// XRunEvent broadcasts an XRun event for localID.
func (s *Server) XRunEvent(localID uint32) {
	s.eventC <- &NodeEvent{Kind: XRun, Timestamp: time.Now(), LocalID: localID}
}

// New makes a new Server that serves clients on the given Unix-domain
// socket path.
func New(filename string) *Server {
	c := make(chan *NodeEvent, 100)
	return &Server{
		filename: filename,
		eventC:   c,
		clients:  make(map[net.Conn]struct{}),
	}
}
