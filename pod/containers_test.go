package pod_test

import (
	"testing"

	"github.com/m-lab/podgraph/pod"
)

// TestStructRoundTrip covers Scenario S1: encode (Int 10, String "hi",
// Array<Int> [1,2,3]), check the encoding is 8-byte aligned, and read
// back the same triple.
func TestStructRoundTrip(t *testing.T) {
	b := pod.NewBuilder()
	st := b.BeginStruct()
	st.Builder().Int(10)
	st.Builder().String("hi")
	arr := st.Builder().BeginArray(pod.INT, 4)
	for _, v := range []int32{1, 2, 3} {
		var raw [4]byte
		raw[0] = byte(v)
		arr.Raw(raw[:])
	}
	if err := arr.End(); err != nil {
		t.Fatalf("array End() error: %v", err)
	}
	if err := st.End(); err != nil {
		t.Fatalf("struct End() error: %v", err)
	}

	buf := b.Bytes()
	// header(8) + struct body. Int: 8+4+4pad=16. String "hi": 8+3+5pad... let's
	// just verify round trip and 8-byte alignment rather than hardcode 40,
	// since the exact body size depends on encode choices already verified by
	// the padding test.
	if len(buf)%8 != 0 {
		t.Fatalf("buffer not 8-byte aligned: %d", len(buf))
	}

	r := pod.NewReader(buf)
	inner, err := r.IntoStruct()
	if err != nil {
		t.Fatalf("IntoStruct() error: %v", err)
	}
	gotInt, err := inner.ReadInt()
	if err != nil || gotInt != 10 {
		t.Fatalf("struct[0] = %v, %v", gotInt, err)
	}
	gotStr, err := inner.ReadString()
	if err != nil || gotStr != "hi" {
		t.Fatalf("struct[1] = %q, %v", gotStr, err)
	}
	gotArr, err := inner.IntoArray()
	if err != nil {
		t.Fatalf("struct[2] IntoArray() error: %v", err)
	}
	if gotArr.Len() != 3 {
		t.Fatalf("array length = %d, want 3", gotArr.Len())
	}
	for i, want := range []byte{1, 2, 3} {
		if got := gotArr.Raw(i)[0]; got != want {
			t.Errorf("array[%d] = %d, want %d", i, got, want)
		}
	}
}

// TestChoiceNoneUnwrap covers Scenario S2: encode Choice{NONE, Int,
// [42]}; reading as Int transparently yields 42.
func TestChoiceNoneUnwrap(t *testing.T) {
	b := pod.NewBuilder()
	c := b.BeginChoice(pod.ChoiceNone, 0, pod.INT, 4)
	c.Raw([]byte{42, 0, 0, 0})
	if err := c.End(); err != nil {
		t.Fatalf("choice End() error: %v", err)
	}

	r := pod.NewReader(b.Bytes())
	v, err := r.ReadInt()
	if err != nil {
		t.Fatalf("ReadInt() over Choice{NONE} error: %v", err)
	}
	if v != 42 {
		t.Errorf("ReadInt() = %d, want 42", v)
	}
}

func TestChoiceNonNoneRejected(t *testing.T) {
	b := pod.NewBuilder()
	c := b.BeginChoice(pod.ChoiceRange, 0, pod.INT, 4)
	c.Raw([]byte{1, 0, 0, 0})
	c.Raw([]byte{2, 0, 0, 0})
	c.Raw([]byte{3, 0, 0, 0})
	if err := c.End(); err != nil {
		t.Fatalf("choice End() error: %v", err)
	}

	r := pod.NewReader(b.Bytes())
	if _, err := r.ReadInt(); err != pod.ErrChoiceKindUnsupported {
		t.Errorf("ReadInt() over Choice{RANGE} error = %v, want ErrChoiceKindUnsupported", err)
	}
}

func TestChoiceRangeDecodeViaIntoChoice(t *testing.T) {
	b := pod.NewBuilder()
	c := b.BeginChoice(pod.ChoiceRange, 0, pod.INT, 4)
	for _, v := range []int32{5, 0, 10} { // default, min, max per spec ordering choice
		var raw [4]byte
		raw[0] = byte(v)
		c.Raw(raw[:])
	}
	if err := c.End(); err != nil {
		t.Fatalf("choice End() error: %v", err)
	}

	r := pod.NewReader(b.Bytes())
	cr, err := r.IntoChoice()
	if err != nil {
		t.Fatalf("IntoChoice() error: %v", err)
	}
	if cr.ChoiceType != pod.ChoiceRange {
		t.Errorf("ChoiceType = %v, want Range", cr.ChoiceType)
	}
	if cr.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", cr.Len())
	}
}

func TestObjectProperties(t *testing.T) {
	b := pod.NewBuilder()
	obj := b.BeginObject(pod.ObjectProps, 1)
	obj.Property(pod.PropsVolume, 0)
	obj.Builder().Float(0.75)
	if err := obj.End(); err != nil {
		t.Fatalf("object End() error: %v", err)
	}

	r := pod.NewReader(b.Bytes())
	or, err := r.IntoObject()
	if err != nil {
		t.Fatalf("IntoObject() error: %v", err)
	}
	if or.ObjectType != pod.ObjectProps || or.ObjectID != 1 {
		t.Errorf("object header = (%d, %d)", or.ObjectType, or.ObjectID)
	}
	props, err := or.Properties()
	if err != nil {
		t.Fatalf("Properties() error: %v", err)
	}
	if len(props) != 1 {
		t.Fatalf("len(props) = %d, want 1", len(props))
	}
	if props[0].Key != pod.PropsVolume {
		t.Errorf("props[0].Key = %d, want PropsVolume", props[0].Key)
	}
	v, err := props[0].Value.ReadFloat()
	if err != nil || v != 0.75 {
		t.Errorf("props[0].Value = %v, %v", v, err)
	}
}

func TestSequenceControls(t *testing.T) {
	b := pod.NewBuilder()
	seq := b.BeginSequence(0)
	seq.Control(0, 1)
	seq.Builder().Float(1.0)
	seq.Control(10, 1)
	seq.Builder().Float(0.5)
	if err := seq.End(); err != nil {
		t.Fatalf("sequence End() error: %v", err)
	}

	r := pod.NewReader(b.Bytes())
	sr, err := r.IntoSequence()
	if err != nil {
		t.Fatalf("IntoSequence() error: %v", err)
	}
	controls, err := sr.Controls()
	if err != nil {
		t.Fatalf("Controls() error: %v", err)
	}
	if len(controls) != 2 {
		t.Fatalf("len(controls) = %d, want 2", len(controls))
	}
	if controls[1].Offset != 10 {
		t.Errorf("controls[1].Offset = %d, want 10", controls[1].Offset)
	}
}

func TestArraySizeMismatch(t *testing.T) {
	// Directly construct a reader over a fabricated array whose declared
	// child_size does not evenly divide the body length.
	fab := []byte{
		14, 0, 0, 0, 12, 0, 0, 0, // header: size=14 content bytes follow, type=12(ARRAY)
		4, 0, 0, 0, // child_size = 4
		3, 0, 0, 0, // child_type = INT(3)
		1, 2, 3, 4, 5, 6, // 6 bytes body, not a multiple of 4
		0, 0, // padding to 8-byte boundary (8+14=22 -> pad to 24)
	}
	r := pod.NewReader(fab)
	if _, err := r.IntoArray(); err != pod.ErrArraySizeMismatch {
		t.Errorf("IntoArray() error = %v, want ErrArraySizeMismatch", err)
	}
}
