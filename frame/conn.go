package frame

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// Frame is one fully-assembled inbound message: a header, its POD
// payload bytes (a copy owned by the Frame, not aliasing the
// connection's internal buffer), and any ancillary fds that travelled
// with it.
type Frame struct {
	Header  Header
	Payload []byte
	Fds     []int
}

// Conn wraps a Unix-domain stream socket, carrying an inbound byte
// buffer, an inbound fd queue, and an outbound send queue, per
// spec.md §4.2. It plays the role the teacher's netlink socket
// plumbing (collector/socket-monitor.go) plays for AF_NETLINK: the
// thin syscall-facing layer beneath the parser.
type Conn struct {
	uc *net.UnixConn

	mu     sync.Mutex
	inBuf  []byte
	inFds  []int
	outQ   []*outFrame
	outPos int // bytes of outQ[0] already written
}

type outFrame struct {
	bytes []byte
	fds   []int
	sent  bool // fds already handed to the kernel for this frame
}

// NewConn wraps an already-connected Unix-domain socket.
func NewConn(uc *net.UnixConn) *Conn {
	return &Conn{uc: uc}
}

// Dial connects to a Unix-domain stream socket at path, as
// cmd/graphctl does to reach the media graph server (spec.md §6).
func Dial(path string) (*Conn, error) {
	addr := &net.UnixAddr{Name: path, Net: "unix"}
	uc, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("frame: dial %s: %w", path, err)
	}
	return NewConn(uc), nil
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.uc.Close()
}

// Enqueue appends one outbound frame (header + payload) carrying the
// given fds to the send queue. Readiness (WantWrite) becomes true as
// soon as this is non-empty, per spec.md §4.2 "writer's interest is
// EPOLLOUT iff the outbound buffer is non-empty".
func (c *Conn) Enqueue(h Header, payload []byte, fds []int) error {
	hdr, err := h.Encode()
	if err != nil {
		return err
	}
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = append(buf, hdr[:]...)
	buf = append(buf, payload...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.outQ = append(c.outQ, &outFrame{bytes: buf, fds: fds})
	return nil
}

// WantWrite reports whether the outbound queue is non-empty.
func (c *Conn) WantWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outQ) > 0
}

// rawControl runs fn against the connection's raw file descriptor.
func (c *Conn) rawControl(fn func(fd int) error) error {
	raw, err := c.uc.SyscallConn()
	if err != nil {
		return err
	}
	var innerErr error
	err = raw.Control(func(fd uintptr) {
		innerErr = fn(int(fd))
	})
	if err != nil {
		return err
	}
	return innerErr
}

// Send writes as much of the outbound queue as the socket will accept
// without blocking. Partial writes leave the remainder queued for the
// next writable event, per spec.md §4.2.
func (c *Conn) Send() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.outQ) > 0 {
		cur := c.outQ[0]
		remaining := cur.bytes[c.outPos:]

		var n int
		var sendErr error
		err := c.rawControl(func(fd int) error {
			if !cur.sent && len(cur.fds) > 0 {
				oob := unix.UnixRights(cur.fds...)
				written, err := unix.SendmsgN(fd, remaining, oob, nil, unix.MSG_DONTWAIT)
				n = written
				sendErr = err
				return nil
			}
			written, err := unix.Write(fd, remaining)
			n = written
			sendErr = err
			return nil
		})
		if err != nil {
			return fmt.Errorf("frame: send control: %w", err)
		}
		if sendErr == unix.EAGAIN || sendErr == unix.EWOULDBLOCK {
			return nil
		}
		if sendErr != nil {
			return fmt.Errorf("frame: sendmsg: %w", sendErr)
		}
		if len(cur.fds) > 0 {
			cur.sent = true
		}
		c.outPos += n
		if c.outPos >= len(cur.bytes) {
			c.outQ = c.outQ[1:]
			c.outPos = 0
		} else if n == 0 {
			// Nothing accepted this round; wait for the next writable event.
			return nil
		}
	}
	return nil
}

const maxAncillaryFds = 64

// Receive reads available bytes and ancillary fds from the socket into
// the connection's internal buffers without blocking.
func (c *Conn) Receive() error {
	buf := make([]byte, 64*1024)
	oob := make([]byte, unix.CmsgSpace(maxAncillaryFds*4))

	var n, oobn int
	var recvErr error
	err := c.rawControl(func(fd int) error {
		got, gotOob, _, _, err := unix.Recvmsg(fd, buf, oob, unix.MSG_DONTWAIT)
		n = got
		oobn = gotOob
		recvErr = err
		return nil
	})
	if err != nil {
		return fmt.Errorf("frame: receive control: %w", err)
	}
	if recvErr == unix.EAGAIN || recvErr == unix.EWOULDBLOCK {
		return nil
	}
	if recvErr != nil {
		return fmt.Errorf("frame: recvmsg: %w", recvErr)
	}

	fds, err := parseAncillaryFds(oob[:oobn])
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.inBuf = append(c.inBuf, buf[:n]...)
	c.inFds = append(c.inFds, fds...)
	c.mu.Unlock()
	return nil
}

func parseAncillaryFds(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("frame: parse control message: %w", err)
	}
	var fds []int
	for _, m := range msgs {
		got, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

// Drain parses as many complete frames as the buffered bytes and fds
// allow, in order, and removes their bytes/fds from the internal
// buffers. A frame is dispatched only once at least one full header is
// available AND the fd queue holds at least NumFds entries for it, per
// spec.md §4.2. Unused fds from a fully-handled frame with no declared
// fds are never touched; fds belonging to a frame that can't yet be
// parsed are left queued for the next Drain call.
func (c *Conn) Drain() ([]Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var frames []Frame
	for {
		if len(c.inBuf) < HeaderSize {
			break
		}
		h, err := DecodeHeader(c.inBuf[:HeaderSize])
		if err != nil {
			return frames, err
		}
		paddedSize := (int(h.Size) + 7) &^ 7
		total := HeaderSize + paddedSize
		if len(c.inBuf) < total {
			break // wait for more bytes
		}
		if uint32(len(c.inFds)) < h.NumFds {
			break // wait for more ancillary fds
		}

		payload := make([]byte, h.Size)
		copy(payload, c.inBuf[HeaderSize:HeaderSize+int(h.Size)])

		var fds []int
		if h.NumFds > 0 {
			fds = append(fds, c.inFds[:h.NumFds]...)
			c.inFds = c.inFds[h.NumFds:]
		}

		frames = append(frames, Frame{Header: h, Payload: payload, Fds: fds})
		c.inBuf = c.inBuf[total:]
	}
	return frames, nil
}
