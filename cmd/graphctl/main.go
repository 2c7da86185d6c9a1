// Command graphctl owns the poll loop of spec.md §2/§5: it opens the
// connection to the local media graph server, drives the session state
// machine against socket readiness, and exposes the resulting metrics
// and node-lifecycle events. It carries no audio content of its own —
// sample production/consumption is out of scope per spec.md's
// Non-goals.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/m-lab/podgraph/eventsocket"
	"github.com/m-lab/podgraph/frame"
	"github.com/m-lab/podgraph/metrics"
	"github.com/m-lab/podgraph/session"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	socketPath   = flag.String("podgraph.socket", "", "Unix-domain socket path of the media graph server.")
	promPort     = flag.String("prom", ":9090", "Prometheus metrics export address and port.")
	appName      = flag.String("podgraph.name", "podgraph", "application.name property sent with Client::UpdateProperties.")
	pollInterval = flag.Duration("podgraph.poll", 5*time.Millisecond, "Interval between socket poll/drive cycles.")

	ctx, cancel = context.WithCancel(context.Background())
)

// lifecycleBridge adapts Session.OnOp callbacks into eventsocket
// broadcasts, the way saver.Saver subscribes to collector output in
// the teacher.
type lifecycleBridge struct {
	events *eventsocket.Server
}

func (b *lifecycleBridge) onOp(op session.Op) {
	switch op.Kind {
	case session.OpConstructNode:
		b.events.NodeCreated(op.NodeLocalID)
	case session.OpNodeActivated:
		b.events.NodeActive(op.NodeLocalID, op.NodeLocalID)
	}
}

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	if *socketPath == "" {
		log.Fatal("-podgraph.socket is required")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(ctx)

	var events *eventsocket.Server
	if *eventsocket.Filename != "" {
		events = eventsocket.New(*eventsocket.Filename)
		rtx.Must(events.Listen(), "Could not listen on %q", *eventsocket.Filename)
		go func() {
			rtx.Must(events.Serve(ctx), "eventsocket server failed")
		}()
		defer os.Remove(*eventsocket.Filename)
	}

	conn, err := frame.Dial(*socketPath)
	rtx.Must(err, "Could not dial %q", *socketPath)
	defer conn.Close()

	props := session.NewProperties()
	props.Set("application.name", *appName)

	sess := session.New(conn, props)
	if events != nil {
		bridge := &lifecycleBridge{events: events}
		sess.OnOp = bridge.onOp
	}

	log.Printf("graphctl: connected to %s, entering poll loop", *socketPath)
	runPollLoop(ctx, conn, sess)
	log.Println("graphctl: shutting down")
}

// runPollLoop repeatedly pumps the socket and the session state
// machine, the way collector.Run repeatedly pumps AF_NETLINK on a
// ticker (spec.md §5 "Threads" maps this core's poller thread onto a
// single goroutine).
func runPollLoop(ctx context.Context, conn *frame.Conn, sess *session.Session) {
	ticker := time.NewTicker(*pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Receive(); err != nil {
				log.Printf("graphctl: receive: %v", err)
				metrics.ErrorCount.WithLabelValues("framing").Inc()
				return
			}
			if err := sess.Advance(); err != nil {
				log.Printf("graphctl: advance: %v", err)
				metrics.ErrorCount.WithLabelValues("state").Inc()
				return
			}
			if conn.WantWrite() {
				if err := conn.Send(); err != nil {
					log.Printf("graphctl: send: %v", err)
					metrics.ErrorCount.WithLabelValues("framing").Inc()
					return
				}
			}
			metrics.PendingProcessSizeHistogram.Observe(float64(len(sess.ActiveNodeIDs())))
		}
	}
}
