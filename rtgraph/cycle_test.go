package rtgraph_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sys/unix"

	"github.com/m-lab/podgraph/metrics"
	"github.com/m-lab/podgraph/proto"
	"github.com/m-lab/podgraph/rtgraph"
)

func testutilReadXrunCount(t *testing.T) float64 {
	t.Helper()
	return testutil.ToFloat64(metrics.XrunCount)
}

// TestRunCycleSineTone covers Scenario S6: a single real-time cycle at
// 128 frames of planar float32 (4-byte stride), where the output
// port's mix is waiting (NEED_DATA) on buffer 0. RunCycle must select
// that buffer, hand it to Write, record the resulting
// chunk.size=512/offset=0/stride=4, publish HAVE_DATA, and signal
// every peer with exactly one 8-byte event-fd write.
func TestRunCycleSineTone(t *testing.T) {
	block := &rtgraph.ActivationBlock{Status: rtgraph.StatusTriggered}
	position := &rtgraph.IoPosition{
		Clock: rtgraph.IoClock{
			Duration: 128,
			Rate:     rtgraph.IoFraction{Num: 1, Denom: 48000},
		},
	}

	peerFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		t.Skipf("eventfd unavailable: %v", err)
	}
	defer unix.Close(peerFD)
	peers := []rtgraph.Peer{{ID: 1, FD: peerFD}}

	chunk := &rtgraph.Chunk{}
	outputs := []rtgraph.OutputPort{{
		Port: rtgraph.Port{
			IO: &rtgraph.IoBuffers{Status: proto.IoStatusNeedData, BufferID: 0},
			Buffers: []rtgraph.Buffer{{
				Data:  make([]byte, 512),
				Chunk: chunk,
			}},
		},
		Stride: 4,
		Write: func(data []byte, duration uint64, rate rtgraph.IoFraction) (int, error) {
			return int(duration) * 4, nil // a sample generator would fill data here
		},
	}}

	if err := rtgraph.RunCycle(block, position, nil, outputs, peers); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}

	if chunk.Size != 512 || chunk.Offset != 0 || chunk.Stride != 4 {
		t.Fatalf("unexpected chunk shape: %+v", chunk)
	}
	if got := outputs[0].IO.Status; got != proto.IoStatusHaveData {
		t.Fatalf("output io status = %d, want HaveData", got)
	}
	if got := rtgraph.LoadStatus(block); got != rtgraph.StatusNotTriggered {
		t.Fatalf("status after cycle = %d, want NotTriggered", got)
	}

	n, err := rtgraph.WaitEventFD(peerFD)
	if err != nil {
		t.Fatalf("WaitEventFD() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("eventfd counter = %d, want 1 (single signal)", n)
	}
}

// TestRunCycleDrainsHaveData covers the input half of spec.md §4.5
// step 3: a port whose mix is already HAVE_DATA on buffer 0 must have
// that buffer's chunk range handed to Read, and the mix must come back
// NEED_DATA afterward.
func TestRunCycleDrainsHaveData(t *testing.T) {
	block := &rtgraph.ActivationBlock{Status: rtgraph.StatusTriggered}
	position := &rtgraph.IoPosition{Clock: rtgraph.IoClock{Duration: 64}}

	data := make([]byte, 256)
	var gotLen int
	inputs := []rtgraph.InputPort{{
		Port: rtgraph.Port{
			IO: &rtgraph.IoBuffers{Status: proto.IoStatusHaveData, BufferID: 0},
			Buffers: []rtgraph.Buffer{{
				Data:  data,
				Chunk: &rtgraph.Chunk{Offset: 0, Size: 256, Stride: 4},
			}},
		},
		Read: func(got []byte, chunk rtgraph.Chunk, duration uint64, rate rtgraph.IoFraction) (int, error) {
			gotLen = len(got)
			return len(got), nil
		},
	}}

	if err := rtgraph.RunCycle(block, position, inputs, nil, nil); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	if gotLen != 256 {
		t.Fatalf("Read saw %d bytes, want 256", gotLen)
	}
	if got := inputs[0].IO.Status; got != proto.IoStatusNeedData {
		t.Fatalf("input io status = %d, want NeedData", got)
	}
}

// TestRunCycleCountsXrun covers spec.md §4.5 step 1: a cycle that
// starts from a status other than TRIGGERED still runs to completion
// but is counted as an xrun.
func TestRunCycleCountsXrun(t *testing.T) {
	block := &rtgraph.ActivationBlock{Status: rtgraph.StatusNotTriggered}
	position := &rtgraph.IoPosition{Clock: rtgraph.IoClock{Duration: 64}}

	before := testutilReadXrunCount(t)
	if err := rtgraph.RunCycle(block, position, nil, nil, nil); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	after := testutilReadXrunCount(t)
	if after != before+1 {
		t.Fatalf("xrun count = %v, want %v", after, before+1)
	}
}
