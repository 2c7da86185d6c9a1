package pod_test

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/m-lab/podgraph/pod"
)

// TestRoundTripSizedAtoms covers Testable Property 1 (round-trip) and
// Property 2 (padding) for every sized atomic type, the way
// netlink_test.go round-trips parsed InetDiagMsg structs.
func TestRoundTripSizedAtoms(t *testing.T) {
	b := pod.NewBuilder()
	b.Bool(true)
	b.Id(0xCAFEBABE)
	b.Int(-7)
	b.Long(-123456789012)
	b.Float(3.25)
	b.Double(2.71828)
	b.Rectangle(pod.Rectangle{Width: 640, Height: 480})
	b.FractionValue(pod.Fraction{Num: 30000, Denom: 1001})
	b.PointerValue(pod.Pointer{Type: 7, Value: 0x1122334455667788})
	b.Fd(42)

	buf := b.Bytes()
	if len(buf)%8 != 0 {
		t.Fatalf("builder output not 8-byte aligned: %d bytes", len(buf))
	}

	r := pod.NewReader(buf)

	gotBool, err := r.ReadBool()
	if err != nil || gotBool != true {
		t.Fatalf("ReadBool() = %v, %v", gotBool, err)
	}
	gotID, err := r.ReadId()
	if err != nil || gotID != 0xCAFEBABE {
		t.Fatalf("ReadId() = %v, %v", gotID, err)
	}
	gotInt, err := r.ReadInt()
	if err != nil || gotInt != -7 {
		t.Fatalf("ReadInt() = %v, %v", gotInt, err)
	}
	gotLong, err := r.ReadLong()
	if err != nil || gotLong != -123456789012 {
		t.Fatalf("ReadLong() = %v, %v", gotLong, err)
	}
	gotFloat, err := r.ReadFloat()
	if err != nil || gotFloat != 3.25 {
		t.Fatalf("ReadFloat() = %v, %v", gotFloat, err)
	}
	gotDouble, err := r.ReadDouble()
	if err != nil || gotDouble != 2.71828 {
		t.Fatalf("ReadDouble() = %v, %v", gotDouble, err)
	}
	gotRect, err := r.ReadRectangle()
	if err != nil {
		t.Fatalf("ReadRectangle() error: %v", err)
	}
	if diff := deep.Equal(gotRect, pod.Rectangle{Width: 640, Height: 480}); diff != nil {
		t.Errorf("Rectangle mismatch: %v", diff)
	}
	gotFrac, err := r.ReadFraction()
	if err != nil {
		t.Fatalf("ReadFraction() error: %v", err)
	}
	if diff := deep.Equal(gotFrac, pod.Fraction{Num: 30000, Denom: 1001}); diff != nil {
		t.Errorf("Fraction mismatch: %v", diff)
	}
	gotPtr, err := r.ReadPointer()
	if err != nil {
		t.Fatalf("ReadPointer() error: %v", err)
	}
	if diff := deep.Equal(gotPtr, pod.Pointer{Type: 7, Value: 0x1122334455667788}); diff != nil {
		t.Errorf("Pointer mismatch: %v", diff)
	}
	gotFd, err := r.ReadFd()
	if err != nil || gotFd != 42 {
		t.Fatalf("ReadFd() = %v, %v", gotFd, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("expected reader fully drained, %d bytes remain", r.Remaining())
	}
}

func TestRoundTripUnsizedAtoms(t *testing.T) {
	b := pod.NewBuilder()
	b.String("hi")
	b.BytesValue([]byte{1, 2, 3, 4, 5})
	b.Bitmap([]byte{0xff, 0x00, 0x0f})

	r := pod.NewReader(b.Bytes())
	s, err := r.ReadString()
	if err != nil || s != "hi" {
		t.Fatalf("ReadString() = %q, %v", s, err)
	}
	bs, err := r.ReadBytes()
	if err != nil {
		t.Fatalf("ReadBytes() error: %v", err)
	}
	if diff := deep.Equal(bs, []byte{1, 2, 3, 4, 5}); diff != nil {
		t.Errorf("Bytes mismatch: %v", diff)
	}
	bm, err := r.ReadBitmap()
	if err != nil {
		t.Fatalf("ReadBitmap() error: %v", err)
	}
	if diff := deep.Equal(bm, []byte{0xff, 0x00, 0x0f}); diff != nil {
		t.Errorf("Bitmap mismatch: %v", diff)
	}
}

// TestPaddingIsZeroed covers Testable Property 2: padding bytes are
// zero.
func TestPaddingIsZeroed(t *testing.T) {
	b := pod.NewBuilder()
	b.Int(1)
	buf := b.Bytes()
	// header(8) + value(4) = 12, padded to 16: bytes [12:16] must be zero.
	if len(buf) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(buf))
	}
	for i := 12; i < 16; i++ {
		if buf[i] != 0 {
			t.Errorf("padding byte %d = %d, want 0", i, buf[i])
		}
	}
}

// TestHeaderSizeCorrectness covers Testable Property 3: the size field
// equals the content length, excluding the header itself.
func TestHeaderSizeCorrectness(t *testing.T) {
	b := pod.NewBuilder()
	b.String("hello")
	buf := b.Bytes()
	r := pod.NewReader(buf)
	size, ty, err := r.PeekHeader()
	if err != nil {
		t.Fatalf("PeekHeader() error: %v", err)
	}
	if ty != pod.STRING {
		t.Fatalf("PeekHeader() type = %v, want STRING", ty)
	}
	if size != len("hello")+1 {
		t.Errorf("PeekHeader() size = %d, want %d", size, len("hello")+1)
	}
}

func TestTypeMismatchCarriesObservedTypeAndSize(t *testing.T) {
	b := pod.NewBuilder()
	b.Int(5)
	r := pod.NewReader(b.Bytes())
	_, err := r.ReadLong()
	mismatch, ok := err.(*pod.TypeMismatchError)
	if !ok {
		t.Fatalf("expected *TypeMismatchError, got %T (%v)", err, err)
	}
	if mismatch.Expected != pod.LONG || mismatch.Observed != pod.INT {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestBufferUnderflow(t *testing.T) {
	r := pod.NewReader([]byte{1, 2, 3})
	if _, _, err := r.PeekHeader(); err != pod.ErrBufferUnderflow {
		t.Errorf("PeekHeader() error = %v, want ErrBufferUnderflow", err)
	}
}
