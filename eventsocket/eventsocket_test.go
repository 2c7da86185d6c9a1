package eventsocket

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/m-lab/go/rtx"
)

func TestServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir, err := os.MkdirTemp("", "TestEventSocketServer")
	rtx.Must(err, "Could not create tempdir")
	defer os.RemoveAll(dir)

	srv := New(dir + "/podgraph.sock")
	rtx.Must(srv.Listen(), "Could not listen")
	go srv.Serve(ctx)
	c, err := net.Dial("unix", dir+"/podgraph.sock")
	rtx.Must(err, "Could not open UNIX domain socket")

	for {
		srv.mutex.Lock()
		length := len(srv.clients)
		srv.mutex.Unlock()
		if length > 0 {
			break
		}
	}

	srv.NodeRemoved(9)
	r := bufio.NewScanner(c)
	if !r.Scan() {
		t.Fatal("Should have been able to scan until the next newline, but couldn't")
	}
	var event NodeEvent
	rtx.Must(json.Unmarshal(r.Bytes(), &event), "Could not unmarshal")
	if event.Kind != NodeRemoved || event.LocalID != 9 {
		t.Error("Event was supposed to be {NodeRemoved, 9}, not", event)
	}

	before := time.Now()
	srv.NodeActive(3, 30)
	if !r.Scan() {
		t.Fatal("Should have been able to scan until the next newline, but couldn't")
	}
	rtx.Must(json.Unmarshal(r.Bytes(), &event), "Could not unmarshal")
	after := time.Now()
	if before.After(event.Timestamp) || after.Before(event.Timestamp) {
		t.Error("It should be true that", before, "<", event.Timestamp, "<", after)
	}
	event.Timestamp = time.Time{}
	if diff := deep.Equal(event, NodeEvent{Kind: NodeActive, LocalID: 3, GlobalID: 30}); diff != nil {
		t.Error("Event differed from expected:", diff)
	}

	c.Close()

	// Exercise the nil-handling paths; a panic here is the failure.
	srv.eventC <- nil
	srv.removeClient(nil)
}
