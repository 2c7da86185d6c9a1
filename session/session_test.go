package session_test

import (
	"net"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/m-lab/podgraph/frame"
	"github.com/m-lab/podgraph/pod"
	"github.com/m-lab/podgraph/proto"
	"github.com/m-lab/podgraph/session"
)

// newConnPair returns two ends of a connected AF_UNIX SOCK_STREAM
// socket, one wrapped as a *frame.Conn (the session's side) and one as
// a raw *net.UnixConn (the fake server's side), the way the original
// crate's tests drive client.rs against a mock transport.
func newConnPair(t *testing.T) (*frame.Conn, *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	clientFile := os.NewFile(uintptr(fds[0]), "client")
	serverFile := os.NewFile(uintptr(fds[1]), "server")
	clientConn, err := net.FileConn(clientFile)
	if err != nil {
		t.Fatalf("FileConn: %v", err)
	}
	clientFile.Close()
	serverConn, err := net.FileConn(serverFile)
	if err != nil {
		t.Fatalf("FileConn: %v", err)
	}
	serverFile.Close()
	return frame.NewConn(clientConn.(*net.UnixConn)), serverConn.(*net.UnixConn)
}

// writeFrame builds and writes one frame directly to the fake server
// connection, bypassing frame.Conn's queueing since the test plays the
// server role.
func writeFrame(t *testing.T, conn *net.UnixConn, target uint32, opcode uint8, payload []byte) {
	t.Helper()
	h := frame.Header{Target: target, Opcode: opcode, Size: uint32(len(payload)), Seq: 1}
	enc, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	padded := (len(payload) + 7) &^ 7
	buf := make([]byte, 0, frame.HeaderSize+padded)
	buf = append(buf, enc[:]...)
	buf = append(buf, payload...)
	for len(buf) < frame.HeaderSize+padded {
		buf = append(buf, 0)
	}
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

// readFrame reads exactly one frame from the fake server connection.
func readFrame(t *testing.T, conn *net.UnixConn) frame.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	hdr := make([]byte, frame.HeaderSize)
	if _, err := readFull(conn, hdr); err != nil {
		t.Fatalf("read header: %v", err)
	}
	h, err := frame.DecodeHeader(hdr)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	padded := (int(h.Size) + 7) &^ 7
	body := make([]byte, padded)
	if padded > 0 {
		if _, err := readFull(conn, body); err != nil {
			t.Fatalf("read body: %v", err)
		}
	}
	return frame.Frame{Header: h, Payload: body[:h.Size]}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func drive(t *testing.T, conn *frame.Conn, sess *session.Session) {
	t.Helper()
	if err := conn.Receive(); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := sess.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if conn.WantWrite() {
		if err := conn.Send(); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
}

func buildRegistryGlobal(id uint32, ty string, props map[string]string) []byte {
	b := pod.NewBuilder()
	st := b.BeginStruct()
	inner := st.Builder()
	inner.Id(id)
	inner.Int(0) // permissions
	inner.String(ty)
	inner.Id(0) // version
	propsStruct := inner.BeginStruct()
	pb := propsStruct.Builder()
	pb.Int(int32(len(props)))
	for k, v := range props {
		pb.String(k)
		pb.String(v)
	}
	propsStruct.End()
	st.End()
	return b.Bytes()
}

// TestStartupTrace covers Testable Property 9: from a freshly
// constructed Session, the very first outbound frame is Core::Hello,
// followed by Client::UpdateProperties, before any inbound frame has
// arrived.
func TestStartupTrace(t *testing.T) {
	clientConn, serverConn := newConnPair(t)
	defer serverConn.Close()
	sess := session.New(clientConn, nil)

	if err := sess.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	hello := readFrame(t, serverConn)
	if hello.Header.Target != proto.CoreID || hello.Header.Opcode != proto.OpCoreHello {
		t.Fatalf("first frame = target %d opcode %d, want Core::Hello", hello.Header.Target, hello.Header.Opcode)
	}

	props := readFrame(t, serverConn)
	if props.Header.Target != proto.ClientID || props.Header.Opcode != proto.OpClientUpdateProperties {
		t.Fatalf("second frame = target %d opcode %d, want Client::UpdateProperties", props.Header.Target, props.Header.Opcode)
	}
}

// TestRegistryToNodeConstruct covers Scenario S3: once Core::Info and
// Core::Done(registry sync) arrive, the session requests the registry
// and, once the client-node factory appears there, constructs a node.
func TestRegistryToNodeConstruct(t *testing.T) {
	clientConn, serverConn := newConnPair(t)
	defer serverConn.Close()
	sess := session.New(clientConn, nil)

	drive(t, clientConn, sess) // sends Hello + UpdateProperties
	readFrame(t, serverConn)
	readFrame(t, serverConn)

	infoBody := pod.NewBuilder()
	ist := infoBody.BeginStruct()
	ib := ist.Builder()
	ib.Id(0)      // core id
	ib.Int(1234)  // cookie
	ib.String("u")
	ib.String("h")
	ib.String("v1")
	ib.String("srv")
	ib.Long(0) // change_mask
	propsSt := ib.BeginStruct()
	propsSt.Builder().Int(0)
	propsSt.End()
	ist.End()
	writeFrame(t, serverConn, proto.CoreID, proto.EvCoreInfo, infoBody.Bytes())
	drive(t, clientConn, sess)

	getRegistry := readFrame(t, serverConn)
	if getRegistry.Header.Opcode != proto.OpCoreGetRegistry {
		t.Fatalf("expected Core::GetRegistry, got opcode %d", getRegistry.Header.Opcode)
	}

	doneBody := pod.NewBuilder()
	dst := doneBody.BeginStruct()
	dst.Builder().Id(proto.GetRegistrySync)
	dst.Builder().Id(0)
	dst.End()
	writeFrame(t, serverConn, proto.CoreID, proto.EvCoreDone, doneBody.Bytes())

	factoryPayload := buildRegistryGlobal(10, proto.InterfaceFactory, map[string]string{"factory.name": proto.ClientNodeFactoryName})
	registryLocal := uint32(2) // core=0, client=1, first alloc=2
	writeFrame(t, serverConn, registryLocal, proto.EvRegistryGlobal, factoryPayload)
	drive(t, clientConn, sess)

	createObj := readFrame(t, serverConn)
	if createObj.Header.Opcode != proto.OpCoreCreateObject {
		t.Fatalf("expected Core::CreateObject, got opcode %d", createObj.Header.Opcode)
	}
	if len(sess.ActiveNodeIDs()) != 1 {
		t.Fatalf("expected exactly one client node, got %v", sess.ActiveNodeIDs())
	}
}

// TestPingPong covers Scenario S4: a Core::Ping must be answered with
// exactly one Core::Pong carrying the same id and sequence.
func TestPingPong(t *testing.T) {
	clientConn, serverConn := newConnPair(t)
	defer serverConn.Close()
	sess := session.New(clientConn, nil)

	drive(t, clientConn, sess)
	readFrame(t, serverConn)
	readFrame(t, serverConn)

	pingBody := pod.NewBuilder()
	pst := pingBody.BeginStruct()
	pst.Builder().Id(7)
	pst.Builder().Id(42)
	pst.End()
	writeFrame(t, serverConn, proto.CoreID, proto.EvCorePing, pingBody.Bytes())
	drive(t, clientConn, sess)

	pong := readFrame(t, serverConn)
	if pong.Header.Target != proto.CoreID || pong.Header.Opcode != proto.OpCorePong {
		t.Fatalf("expected Core::Pong, got target %d opcode %d", pong.Header.Target, pong.Header.Opcode)
	}
	st, err := pod.NewReader(pong.Payload).IntoStruct()
	if err != nil {
		t.Fatalf("IntoStruct: %v", err)
	}
	id, err := st.ReadId()
	if err != nil || id != 7 {
		t.Fatalf("pong id = %d, err = %v, want 7", id, err)
	}
	seq, err := st.ReadId()
	if err != nil || seq != 42 {
		t.Fatalf("pong seq = %d, err = %v, want 42", seq, err)
	}
}
