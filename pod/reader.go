package pod

import (
	"encoding/binary"
	"math"
)

// Reader is a lazy cursor over a borrowed byte slice. It never copies
// its input; every Into* call returns a sub-reader whose lifetime is
// tied to the same backing array, mirroring
// original_source/crates/pod/src/reader.rs.
type Reader struct {
	buf []byte
}

// NewReader wraps buf for reading. buf is borrowed, not copied.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf)
}

// Bytes returns the reader's unread backing slice, borrowed not
// copied. Callers that need the raw encoding of the next value (to
// store it for later re-decoding, as ClientNode::SetParam does) take
// this before and after the decode and slice the difference.
func (r *Reader) Bytes() []byte {
	return r.buf
}

func (r *Reader) require(n int) error {
	if len(r.buf) < n {
		return ErrBufferUnderflow
	}
	return nil
}

// PeekHeader reads the 8-byte header at the cursor without consuming
// it, returning the content size and type tag.
func (r *Reader) PeekHeader() (size int, ty Type, err error) {
	if err := r.require(8); err != nil {
		return 0, 0, err
	}
	size = int(binary.LittleEndian.Uint32(r.buf[0:4]))
	ty = Type(binary.LittleEndian.Uint32(r.buf[4:8]))
	return size, ty, nil
}

// advance moves the cursor forward by n bytes, failing with
// ErrBufferUnderflow if fewer remain. Callers pass padded lengths, so
// padding bytes are skipped without being inspected.
func (r *Reader) advance(n int) error {
	if err := r.require(n); err != nil {
		return err
	}
	r.buf = r.buf[n:]
	return nil
}

// readHeaderAndBody consumes the 8-byte header plus its content,
// returning the content slice, and leaves the cursor past any padding.
func (r *Reader) readHeaderAndBody() (content []byte, ty Type, err error) {
	size, ty, err := r.PeekHeader()
	if err != nil {
		return nil, 0, err
	}
	total := 8 + align8(size)
	if err := r.require(total); err != nil {
		return nil, 0, err
	}
	content = r.buf[8 : 8+size]
	if err := r.advance(total); err != nil {
		return nil, 0, err
	}
	return content, ty, nil
}

// unwrapChoiceIfNeeded returns content unchanged unless ty is CHOICE;
// a NONE-choice whose child type is expected is unwrapped to its first
// entry, and any other choice fails with ErrChoiceKindUnsupported, per
// spec.md §4.1 "Choice decoding policy".
func unwrapChoiceIfNeeded(content []byte, ty Type, expected Type) (out []byte, outTy Type, err error) {
	if ty != CHOICE {
		return content, ty, nil
	}
	if len(content) < 16 {
		return nil, 0, ErrBufferUnderflow
	}
	choiceType := ChoiceType(binary.LittleEndian.Uint32(content[0:4]))
	childSize := int(binary.LittleEndian.Uint32(content[8:12]))
	childType := Type(binary.LittleEndian.Uint32(content[12:16]))
	if choiceType != ChoiceNone || childType != expected {
		return nil, 0, ErrChoiceKindUnsupported
	}
	body := content[16:]
	if len(body) < childSize {
		return nil, 0, ErrBufferUnderflow
	}
	return body[:childSize], expected, nil
}

// ReadBool reads a Bool value, transparently unwrapping a NONE-choice.
func (r *Reader) ReadBool() (bool, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return false, err
	}
	content, ty, err = unwrapChoiceIfNeeded(content, ty, BOOL)
	if err != nil {
		return false, err
	}
	if ty != BOOL {
		return false, NewTypeMismatch(BOOL, ty, len(content))
	}
	if len(content) < 4 {
		return false, ErrBufferUnderflow
	}
	return binary.LittleEndian.Uint32(content[:4]) != 0, nil
}

// ReadId reads an Id value.
func (r *Reader) ReadId() (uint32, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return 0, err
	}
	content, ty, err = unwrapChoiceIfNeeded(content, ty, ID)
	if err != nil {
		return 0, err
	}
	if ty != ID {
		return 0, NewTypeMismatch(ID, ty, len(content))
	}
	if len(content) < 4 {
		return 0, ErrBufferUnderflow
	}
	return binary.LittleEndian.Uint32(content[:4]), nil
}

// ReadInt reads an Int value.
func (r *Reader) ReadInt() (int32, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return 0, err
	}
	content, ty, err = unwrapChoiceIfNeeded(content, ty, INT)
	if err != nil {
		return 0, err
	}
	if ty != INT {
		return 0, NewTypeMismatch(INT, ty, len(content))
	}
	if len(content) < 4 {
		return 0, ErrBufferUnderflow
	}
	return int32(binary.LittleEndian.Uint32(content[:4])), nil
}

// ReadLong reads a Long value.
func (r *Reader) ReadLong() (int64, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return 0, err
	}
	content, ty, err = unwrapChoiceIfNeeded(content, ty, LONG)
	if err != nil {
		return 0, err
	}
	if ty != LONG {
		return 0, NewTypeMismatch(LONG, ty, len(content))
	}
	if len(content) < 8 {
		return 0, ErrBufferUnderflow
	}
	return int64(binary.LittleEndian.Uint64(content[:8])), nil
}

// ReadFloat reads a Float value.
func (r *Reader) ReadFloat() (float32, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return 0, err
	}
	content, ty, err = unwrapChoiceIfNeeded(content, ty, FLOAT)
	if err != nil {
		return 0, err
	}
	if ty != FLOAT {
		return 0, NewTypeMismatch(FLOAT, ty, len(content))
	}
	if len(content) < 4 {
		return 0, ErrBufferUnderflow
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(content[:4])), nil
}

// ReadDouble reads a Double value.
func (r *Reader) ReadDouble() (float64, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return 0, err
	}
	content, ty, err = unwrapChoiceIfNeeded(content, ty, DOUBLE)
	if err != nil {
		return 0, err
	}
	if ty != DOUBLE {
		return 0, NewTypeMismatch(DOUBLE, ty, len(content))
	}
	if len(content) < 8 {
		return 0, ErrBufferUnderflow
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(content[:8])), nil
}

// ReadRectangle reads a Rectangle value.
func (r *Reader) ReadRectangle() (Rectangle, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return Rectangle{}, err
	}
	if ty != RECTANGLE {
		return Rectangle{}, NewTypeMismatch(RECTANGLE, ty, len(content))
	}
	if len(content) < 8 {
		return Rectangle{}, ErrBufferUnderflow
	}
	return Rectangle{
		Width:  binary.LittleEndian.Uint32(content[0:4]),
		Height: binary.LittleEndian.Uint32(content[4:8]),
	}, nil
}

// ReadFraction reads a Fraction value.
func (r *Reader) ReadFraction() (Fraction, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return Fraction{}, err
	}
	if ty != FRACTION {
		return Fraction{}, NewTypeMismatch(FRACTION, ty, len(content))
	}
	if len(content) < 8 {
		return Fraction{}, ErrBufferUnderflow
	}
	return Fraction{
		Num:   binary.LittleEndian.Uint32(content[0:4]),
		Denom: binary.LittleEndian.Uint32(content[4:8]),
	}, nil
}

// ReadPointer reads a Pointer value.
func (r *Reader) ReadPointer() (Pointer, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return Pointer{}, err
	}
	if ty != POINTER {
		return Pointer{}, NewTypeMismatch(POINTER, ty, len(content))
	}
	if len(content) < 16 {
		return Pointer{}, ErrBufferUnderflow
	}
	lo := binary.LittleEndian.Uint32(content[8:12])
	hi := binary.LittleEndian.Uint32(content[12:16])
	return Pointer{
		Type:  binary.LittleEndian.Uint32(content[0:4]),
		Value: uint64(lo) | uint64(hi)<<32,
	}, nil
}

// ReadFd reads an Fd value (an index into the frame's fd array).
func (r *Reader) ReadFd() (uint64, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return 0, err
	}
	if ty != FD {
		return 0, NewTypeMismatch(FD, ty, len(content))
	}
	if len(content) < 8 {
		return 0, ErrBufferUnderflow
	}
	return binary.LittleEndian.Uint64(content[:8]), nil
}

// ReadString reads a NUL-terminated UTF-8 string, dropping the
// trailing NUL.
func (r *Reader) ReadString() (string, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return "", err
	}
	if ty != STRING {
		return "", NewTypeMismatch(STRING, ty, len(content))
	}
	if len(content) == 0 || content[len(content)-1] != 0 {
		return string(content), nil
	}
	return string(content[:len(content)-1]), nil
}

// ReadBytes reads a raw byte blob, returning a view borrowed from the
// reader's backing array.
func (r *Reader) ReadBytes() ([]byte, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return nil, err
	}
	if ty != BYTES {
		return nil, NewTypeMismatch(BYTES, ty, len(content))
	}
	return content, nil
}

// ReadBitmap reads a raw bitmap blob.
func (r *Reader) ReadBitmap() ([]byte, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return nil, err
	}
	if ty != BITMAP {
		return nil, NewTypeMismatch(BITMAP, ty, len(content))
	}
	return content, nil
}

// ArrayReader is a cursor over an Array's packed elements.
type ArrayReader struct {
	childSize int
	childType Type
	body      []byte
}

// ChildType returns the array's declared element type.
func (a *ArrayReader) ChildType() Type { return a.childType }

// ChildSize returns the array's declared per-element byte size.
func (a *ArrayReader) ChildSize() int { return a.childSize }

// Len returns the number of packed elements.
func (a *ArrayReader) Len() int {
	if a.childSize == 0 {
		return 0
	}
	return len(a.body) / a.childSize
}

// Raw returns the raw bytes of element i.
func (a *ArrayReader) Raw(i int) []byte {
	return a.body[i*a.childSize : (i+1)*a.childSize]
}

// IntoArray decodes the value at the cursor as an Array container.
func (r *Reader) IntoArray() (*ArrayReader, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return nil, err
	}
	if ty != ARRAY {
		return nil, NewTypeMismatch(ARRAY, ty, len(content))
	}
	if len(content) < 8 {
		return nil, ErrBufferUnderflow
	}
	childSize := int(binary.LittleEndian.Uint32(content[0:4]))
	childType := Type(binary.LittleEndian.Uint32(content[4:8]))
	body := content[8:]
	if childSize > 0 && len(body)%childSize != 0 {
		return nil, ErrArraySizeMismatch
	}
	return &ArrayReader{childSize: childSize, childType: childType, body: body}, nil
}

// IntoStruct decodes the value at the cursor as a Struct container,
// returning a Reader over its packed, self-headered children.
func (r *Reader) IntoStruct() (*Reader, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return nil, err
	}
	if ty != STRUCT {
		return nil, NewTypeMismatch(STRUCT, ty, len(content))
	}
	return NewReader(content), nil
}

// IntoPod decodes the value at the cursor as a nested Pod container,
// i.e. a single opaque POD value; returns a Reader positioned at it.
func (r *Reader) IntoPod() (*Reader, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return nil, err
	}
	if ty != POD {
		return nil, NewTypeMismatch(POD, ty, len(content))
	}
	return NewReader(content), nil
}

// ObjectProperty is one decoded Object property.
type ObjectProperty struct {
	Key   uint32
	Flags uint32
	Value *Reader
}

// ObjectReader is a cursor over a decoded Object's properties.
type ObjectReader struct {
	ObjectType uint32
	ObjectID   uint32
	body       []byte
}

// Properties decodes and returns all properties in order.
func (o *ObjectReader) Properties() ([]ObjectProperty, error) {
	var props []ObjectProperty
	body := o.body
	for len(body) > 0 {
		if len(body) < 8 {
			return nil, ErrBufferUnderflow
		}
		key := binary.LittleEndian.Uint32(body[0:4])
		flags := binary.LittleEndian.Uint32(body[4:8])
		body = body[8:]
		valReader := NewReader(body)
		size, _, err := valReader.PeekHeader()
		if err != nil {
			return nil, err
		}
		total := align8(8 + size)
		if len(body) < total {
			return nil, ErrBufferUnderflow
		}
		props = append(props, ObjectProperty{Key: key, Flags: flags, Value: NewReader(body[:total])})
		body = body[total:]
	}
	return props, nil
}

// IntoObject decodes the value at the cursor as an Object container.
func (r *Reader) IntoObject() (*ObjectReader, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return nil, err
	}
	if ty != OBJECT {
		return nil, NewTypeMismatch(OBJECT, ty, len(content))
	}
	if len(content) < 8 {
		return nil, ErrBufferUnderflow
	}
	return &ObjectReader{
		ObjectType: binary.LittleEndian.Uint32(content[0:4]),
		ObjectID:   binary.LittleEndian.Uint32(content[4:8]),
		body:       content[8:],
	}, nil
}

// SequenceControl is one decoded Sequence control.
type SequenceControl struct {
	Offset uint32
	Type   uint32
	Value  *Reader
}

// SequenceReader is a cursor over a decoded Sequence's controls.
type SequenceReader struct {
	Unit uint32
	body []byte
}

// Controls decodes and returns all controls in order.
func (s *SequenceReader) Controls() ([]SequenceControl, error) {
	var controls []SequenceControl
	body := s.body
	for len(body) > 0 {
		if len(body) < 8 {
			return nil, ErrBufferUnderflow
		}
		offset := binary.LittleEndian.Uint32(body[0:4])
		ctrlType := binary.LittleEndian.Uint32(body[4:8])
		body = body[8:]
		valReader := NewReader(body)
		size, _, err := valReader.PeekHeader()
		if err != nil {
			return nil, err
		}
		total := align8(8 + size)
		if len(body) < total {
			return nil, ErrBufferUnderflow
		}
		controls = append(controls, SequenceControl{Offset: offset, Type: ctrlType, Value: NewReader(body[:total])})
		body = body[total:]
	}
	return controls, nil
}

// IntoSequence decodes the value at the cursor as a Sequence container.
func (r *Reader) IntoSequence() (*SequenceReader, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return nil, err
	}
	if ty != SEQUENCE {
		return nil, NewTypeMismatch(SEQUENCE, ty, len(content))
	}
	if len(content) < 8 {
		return nil, ErrBufferUnderflow
	}
	unit := binary.LittleEndian.Uint32(content[0:4])
	return &SequenceReader{Unit: unit, body: content[8:]}, nil
}

// ChoiceReader is a cursor over a decoded Choice's packed children.
type ChoiceReader struct {
	ChoiceType ChoiceType
	Flags      uint32
	ArrayReader
}

// IntoChoice decodes the value at the cursor as a Choice container
// without unwrapping it (use the sized Read* methods for the
// transparent-unwrap policy of spec.md §4.1).
func (r *Reader) IntoChoice() (*ChoiceReader, error) {
	content, ty, err := r.readHeaderAndBody()
	if err != nil {
		return nil, err
	}
	if ty != CHOICE {
		return nil, NewTypeMismatch(CHOICE, ty, len(content))
	}
	if len(content) < 16 {
		return nil, ErrBufferUnderflow
	}
	choiceType := ChoiceType(binary.LittleEndian.Uint32(content[0:4]))
	flags := binary.LittleEndian.Uint32(content[4:8])
	childSize := int(binary.LittleEndian.Uint32(content[8:12]))
	childType := Type(binary.LittleEndian.Uint32(content[12:16]))
	body := content[16:]
	if childSize > 0 && len(body)%childSize != 0 {
		return nil, ErrArraySizeMismatch
	}
	return &ChoiceReader{
		ChoiceType: choiceType,
		Flags:      flags,
		ArrayReader: ArrayReader{childSize: childSize, childType: childType, body: body},
	}, nil
}
