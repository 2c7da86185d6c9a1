package eventsocket

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net"
	"strings"

	"github.com/m-lab/go/rtx"
)

// Handler is the interface implemented by anything that wants to react
// to node lifecycle notifications read from an eventsocket.
type Handler interface {
	Created(ctx context.Context, event *NodeEvent)
	Active(ctx context.Context, event *NodeEvent)
	Removed(ctx context.Context, event *NodeEvent)
	XRun(ctx context.Context, event *NodeEvent)
}

// MustRun reads from the passed-in socket filename until ctx is
// cancelled, dispatching each decoded NodeEvent to handler. Any error
// other than the connection closing normally is fatal.
func MustRun(ctx context.Context, socket string, handler Handler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c, err := net.Dial("unix", socket)
	rtx.Must(err, "Could not connect to %q", socket)
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	// bufio.Scanner defaults to splitting on newlines, which matches the
	// JSONL wire format written by sendToAllListeners.
	s := bufio.NewScanner(c)
	for s.Scan() {
		var event NodeEvent
		rtx.Must(json.Unmarshal(s.Bytes(), &event), "Could not unmarshal")
		switch event.Kind {
		case NodeCreated:
			handler.Created(ctx, &event)
		case NodeActive:
			handler.Active(ctx, &event)
		case NodeRemoved:
			handler.Removed(ctx, &event)
		case XRun:
			handler.XRun(ctx, &event)
		default:
			log.Println("Unknown node event kind:", event.Kind)
		}
	}

	// A closed connection surfaces as an unexported error rather than
	// io.EOF; Scanner already hides EOF the same way, so hide this too.
	err = s.Err()
	if err != nil && strings.Contains(err.Error(), "use of closed network connection") {
		err = nil
	}
	rtx.Must(err, "Scanning of %q died with non-EOF error", socket)
}
