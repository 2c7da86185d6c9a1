package rtgraph

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/m-lab/podgraph/metrics"
	"github.com/m-lab/podgraph/proto"
	"github.com/m-lab/podgraph/shm"
)

// Peer is one downstream node this cycle must signal after producing
// output, per spec.md §3 "Peer activation".
type Peer struct {
	ID     uint32
	FD     int
	Region *shm.Region
}

// Buffer is one real-time view of a buffer installed by UseBuffers:
// the backing bytes of its sample data record, the chunk descriptor
// published alongside it, and (if the buffer carries one) its header
// Meta, per spec.md §3 "Buffer" and §4.5 steps 3-4.
type Buffer struct {
	Data  []byte
	Chunk *Chunk
	Meta  *MetaHeader
}

// Port is one input or output port's real-time exchange state for a
// single mix: the mapped IoBuffers status/buffer_id word and the
// buffer ring it selects from, per spec.md §3 "IO-buffer descriptors
// per mix" and §6.
type Port struct {
	IO      *IoBuffers
	Buffers []Buffer
}

// InputPort is a Port together with the function that consumes one
// cycle's worth of bytes from whichever buffer the driver published.
type InputPort struct {
	Port
	Read func(data []byte, chunk Chunk, duration uint64, rate IoFraction) (int, error)
}

// OutputPort is a Port together with the function that fills one
// cycle's worth of bytes into whichever buffer is currently free, and
// the frame stride to record in its chunk.
type OutputPort struct {
	Port
	Stride int32
	Write  func(data []byte, duration uint64, rate IoFraction) (int, error)
}

// RunCycle executes the six-step real-time cycle of spec.md §4.5 once:
//
//  1. TRIGGERED -> AWAKE, counting an xrun if the status observed
//     wasn't TRIGGERED.
//  2. A single read of the driver's IoPosition (clock duration/rate).
//  3. For every input port with a buffer in HAVE_DATA, read it at the
//     offset/size its chunk describes and publish NEED_DATA.
//  4. For every output port waiting in NEED_DATA, fill its selected
//     buffer, update that buffer's chunk, and publish HAVE_DATA.
//  5. Signal every peer with an 8-byte eventfd write.
//  6. AWAKE -> NOT_TRIGGERED.
//
// The caller's poll loop is responsible for blocking on the
// activation fd between cycles; RunCycle only covers the cycle body.
func RunCycle(block *ActivationBlock, position *IoPosition, inputs []InputPort, outputs []OutputPort, peers []Peer) error {
	start := time.Now()
	defer func() {
		metrics.CycleDurationHistogram.Observe(time.Since(start).Seconds())
	}()

	if prev := SwapStatus(block, StatusAwake); prev != StatusTriggered {
		metrics.XrunCount.Inc()
	}

	duration := position.Clock.Duration
	rate := position.Clock.Rate

	var read int
	for i := range inputs {
		n, err := drainPort(inputs[i], duration, rate)
		if err != nil {
			SwapStatus(block, StatusNotTriggered)
			return fmt.Errorf("rtgraph: drain inputs: %w", err)
		}
		read += n
	}
	metrics.BytesTransferred.WithLabelValues("in").Add(float64(read))

	var written int
	for i := range outputs {
		n, err := producePort(outputs[i], duration, rate)
		if err != nil {
			SwapStatus(block, StatusNotTriggered)
			return fmt.Errorf("rtgraph: produce outputs: %w", err)
		}
		written += n
	}
	metrics.BytesTransferred.WithLabelValues("out").Add(float64(written))

	if err := signalPeers(peers); err != nil {
		SwapStatus(block, StatusNotTriggered)
		return fmt.Errorf("rtgraph: signal peers: %w", err)
	}

	SwapStatus(block, StatusNotTriggered)
	return nil
}

// drainPort is spec.md §4.5 step 3 for one input port: if the driver
// has published HAVE_DATA, hand the buffer it named by buffer_id to
// read at the byte range its chunk describes, then publish NEED_DATA
// to ask for the next one.
func drainPort(p InputPort, duration uint64, rate IoFraction) (int, error) {
	if atomic.LoadUint32(&p.IO.Status) != proto.IoStatusHaveData {
		return 0, nil
	}
	id := atomic.LoadUint32(&p.IO.BufferID)
	if int(id) >= len(p.Buffers) {
		return 0, fmt.Errorf("input buffer id %d out of range (%d buffers)", id, len(p.Buffers))
	}
	buf := p.Buffers[id]
	if buf.Chunk == nil {
		return 0, fmt.Errorf("input buffer %d has no chunk", id)
	}
	end := int(buf.Chunk.Offset) + int(buf.Chunk.Size)
	if end > len(buf.Data) {
		return 0, fmt.Errorf("input buffer %d chunk %d+%d exceeds %d-byte region", id, buf.Chunk.Offset, buf.Chunk.Size, len(buf.Data))
	}
	n, err := p.Read(buf.Data[buf.Chunk.Offset:end], *buf.Chunk, duration, rate)
	if err != nil {
		return 0, err
	}
	atomic.StoreUint32(&p.IO.Status, proto.IoStatusNeedData)
	return n, nil
}

// producePort is spec.md §4.5 step 4 for one output port: if the
// driver is waiting in NEED_DATA, fill the buffer it named by
// buffer_id, record how much of it holds data in that buffer's chunk,
// stamp its header Meta with this cycle's timestamp, and publish
// HAVE_DATA.
func producePort(p OutputPort, duration uint64, rate IoFraction) (int, error) {
	if atomic.LoadUint32(&p.IO.Status) != proto.IoStatusNeedData {
		return 0, nil
	}
	id := atomic.LoadUint32(&p.IO.BufferID)
	if int(id) >= len(p.Buffers) {
		return 0, fmt.Errorf("output buffer id %d out of range (%d buffers)", id, len(p.Buffers))
	}
	buf := p.Buffers[id]
	n, err := p.Write(buf.Data, duration, rate)
	if err != nil {
		return 0, err
	}
	if buf.Chunk != nil {
		buf.Chunk.Offset = 0
		buf.Chunk.Size = uint32(n)
		buf.Chunk.Stride = p.Stride
	}
	if buf.Meta != nil {
		buf.Meta.PtsNsec = uint64(time.Now().UnixNano())
	}
	atomic.StoreUint32(&p.IO.Status, proto.IoStatusHaveData)
	return n, nil
}

func signalPeers(peers []Peer) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for _, p := range peers {
		if _, err := unix.Write(p.FD, buf[:]); err != nil {
			return fmt.Errorf("peer %d: %w", p.ID, err)
		}
	}
	return nil
}

// WaitEventFD blocks until fd (an eventfd created by the host or
// received as a Transport read_fd) signals, returning the accumulated
// counter value per eventfd(2) semantics.
func WaitEventFD(fd int) (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 8 {
		return 0, fmt.Errorf("rtgraph: short eventfd read: %d bytes", n)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
