package pod

import (
	"encoding/binary"
	"math"
)

// Builder writes POD values into a growable byte buffer. It plays the
// role of crates/pod/src/builder/builder.rs's Builder and
// crates/pod/src/buf/dynamic_buf.rs's DynamicBuf combined: a single
// writable byte slice plus a stack of "reserved header" positions for
// nested containers.
type Builder struct {
	buf []byte
}

// NewBuilder returns a Builder with no pre-allocated capacity.
func NewBuilder() *Builder {
	return &Builder{}
}

// NewBuilderCapacity returns a Builder that pre-allocates capacity bytes.
func NewBuilderCapacity(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the builder's current content.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int {
	return len(b.buf)
}

func (b *Builder) writeU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Builder) writeU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// pad appends zero bytes until Len() is a multiple of 8.
func (b *Builder) pad() {
	n := align8(len(b.buf)) - len(b.buf)
	for i := 0; i < n; i++ {
		b.buf = append(b.buf, 0)
	}
}

// header token returned by reserveHeader, used to seal a nested
// container once its body has been written.
type headerToken struct {
	pos int // offset of the size word
	ty  Type
}

// reserveHeader appends a placeholder 8-byte header (size=0, type=ty)
// and returns a token that Seal uses to patch the size field in once
// the body is known.
func (b *Builder) reserveHeader(ty Type) headerToken {
	pos := len(b.buf)
	b.writeU32(0)
	b.writeU32(uint32(ty))
	return headerToken{pos: pos, ty: ty}
}

// seal patches the reserved header's size field with the number of
// content bytes written since the header, then pads the content to an
// 8-byte boundary.
func (b *Builder) seal(tok headerToken) error {
	contentLen := len(b.buf) - (tok.pos + 8)
	if contentLen < 0 || contentLen > math.MaxUint32 {
		return ErrSizeOverflow
	}
	binary.LittleEndian.PutUint32(b.buf[tok.pos:tok.pos+4], uint32(contentLen))
	b.pad()
	return nil
}

// writeSizedHeader writes a header for a sized atom of the given
// content length in one shot (no seal-back needed since the length is
// already known).
func (b *Builder) writeSizedHeader(ty Type, contentLen int) {
	b.writeU32(uint32(contentLen))
	b.writeU32(uint32(ty))
}

// None encodes a None value (4.1: header-only, zero content).
func (b *Builder) None() {
	b.writeSizedHeader(NONE, 0)
}

// Bool encodes a Bool value as a 32-bit word followed by 4 pad bytes.
func (b *Builder) Bool(v bool) {
	b.writeSizedHeader(BOOL, 4)
	if v {
		b.writeU32(1)
	} else {
		b.writeU32(0)
	}
	b.pad()
}

// Id encodes an Id value.
func (b *Builder) Id(v uint32) {
	b.writeSizedHeader(ID, 4)
	b.writeU32(v)
	b.pad()
}

// Int encodes an Int value: a 32-bit word followed by 4 pad bytes.
func (b *Builder) Int(v int32) {
	b.writeSizedHeader(INT, 4)
	b.writeU32(uint32(v))
	b.pad()
}

// Long encodes a Long (64-bit) value.
func (b *Builder) Long(v int64) {
	b.writeSizedHeader(LONG, 8)
	b.writeU64(uint64(v))
}

// Float encodes a Float value: 32 bits plus 4 pad bytes.
func (b *Builder) Float(v float32) {
	b.writeSizedHeader(FLOAT, 4)
	b.writeU32(math.Float32bits(v))
	b.pad()
}

// Double encodes a Double (64-bit) value.
func (b *Builder) Double(v float64) {
	b.writeSizedHeader(DOUBLE, 8)
	b.writeU64(math.Float64bits(v))
}

// String encodes a NUL-terminated UTF-8 string.
func (b *Builder) String(s string) {
	content := len(s) + 1
	b.writeSizedHeader(STRING, content)
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	b.pad()
}

// BytesValue encodes a raw byte blob.
func (b *Builder) BytesValue(data []byte) {
	b.writeSizedHeader(BYTES, len(data))
	b.buf = append(b.buf, data...)
	b.pad()
}

// Bitmap encodes a raw bitmap blob.
func (b *Builder) Bitmap(data []byte) {
	b.writeSizedHeader(BITMAP, len(data))
	b.buf = append(b.buf, data...)
	b.pad()
}

// Rectangle encodes a Rectangle atom.
func (b *Builder) Rectangle(r Rectangle) {
	b.writeSizedHeader(RECTANGLE, 8)
	b.writeU32(r.Width)
	b.writeU32(r.Height)
}

// FractionValue encodes a Fraction atom.
func (b *Builder) FractionValue(f Fraction) {
	b.writeSizedHeader(FRACTION, 8)
	b.writeU32(f.Num)
	b.writeU32(f.Denom)
}

// PointerValue encodes a Pointer atom: type + pad, then the two 32-bit
// halves of the 64-bit value.
func (b *Builder) PointerValue(p Pointer) {
	b.writeSizedHeader(POINTER, 16)
	b.writeU32(p.Type)
	b.writeU32(0)
	b.writeU32(uint32(p.Value))
	b.writeU32(uint32(p.Value >> 32))
}

// Fd encodes an Fd atom: a u64 index into the frame's fd array.
func (b *Builder) Fd(index uint64) {
	b.writeSizedHeader(FD, 8)
	b.writeU64(index)
}

// ArrayBuilder builds an Array container: header-body is
// (child_size, child_type) followed by packed elements with no
// per-element headers.
type ArrayBuilder struct {
	b         *Builder
	tok       headerToken
	childSize int
	childType Type
	count     int
}

// BeginArray reserves an Array header and returns a builder for its
// packed sized elements. childSize must be the exact per-element byte
// count; for sized atomic types this is Type.FixedSize(), for unsized
// children it is the agreed-upon fixed length.
func (b *Builder) BeginArray(childType Type, childSize int) *ArrayBuilder {
	tok := b.reserveHeader(ARRAY)
	b.writeU32(uint32(childSize))
	b.writeU32(uint32(childType))
	return &ArrayBuilder{b: b, tok: tok, childSize: childSize, childType: childType}
}

// Raw appends one packed element's raw bytes verbatim. len(data) must
// equal the array's childSize.
func (a *ArrayBuilder) Raw(data []byte) {
	a.b.buf = append(a.b.buf, data...)
	a.count++
}

// End seals the array's header.
func (a *ArrayBuilder) End() error {
	return a.b.seal(a.tok)
}

// StructBuilder builds a Struct container: an ordered sequence of
// fully self-headered children, each padded to 8 bytes.
type StructBuilder struct {
	b   *Builder
	tok headerToken
}

// BeginStruct reserves a Struct header.
func (b *Builder) BeginStruct() *StructBuilder {
	return &StructBuilder{b: b, tok: b.reserveHeader(STRUCT)}
}

// Builder exposes the underlying Builder so callers can append any
// encode call (Int, String, BeginArray, BeginStruct, ...) as the next
// struct child.
func (s *StructBuilder) Builder() *Builder { return s.b }

// End seals the struct's header.
func (s *StructBuilder) End() error {
	return s.b.seal(s.tok)
}

// ObjectBuilder builds an Object container: (object_type, object_id)
// followed by key:flags:value properties.
type ObjectBuilder struct {
	b   *Builder
	tok headerToken
}

// BeginObject reserves an Object header and writes its type/id words.
func (b *Builder) BeginObject(objectType, objectID uint32) *ObjectBuilder {
	tok := b.reserveHeader(OBJECT)
	b.writeU32(objectType)
	b.writeU32(objectID)
	return &ObjectBuilder{b: b, tok: tok}
}

// Property writes a property's key and flags words; the caller then
// encodes the value via Builder() and the value is padded to 8 bytes.
func (o *ObjectBuilder) Property(key, flags uint32) *Builder {
	o.b.writeU32(key)
	o.b.writeU32(flags)
	return o.b
}

// Builder exposes the underlying Builder for encoding a property value.
func (o *ObjectBuilder) Builder() *Builder { return o.b }

// PadValue pads the builder up to 8 bytes; call after writing a
// property's value content if the value's own encode call did not
// already pad (all atom encoders in this file do pad, so this is only
// needed after Raw-style writes).
func (o *ObjectBuilder) PadValue() { o.b.pad() }

// End seals the object's header.
func (o *ObjectBuilder) End() error {
	return o.b.seal(o.tok)
}

// SequenceBuilder builds a Sequence container: (unit, pad) followed by
// offset:type:value controls.
type SequenceBuilder struct {
	b   *Builder
	tok headerToken
}

// BeginSequence reserves a Sequence header and writes its unit word.
func (b *Builder) BeginSequence(unit uint32) *SequenceBuilder {
	tok := b.reserveHeader(SEQUENCE)
	b.writeU32(unit)
	b.writeU32(0)
	return &SequenceBuilder{b: b, tok: tok}
}

// Control writes a control's offset and type words; the caller then
// encodes the value via Builder().
func (s *SequenceBuilder) Control(offset, controlType uint32) *Builder {
	s.b.writeU32(offset)
	s.b.writeU32(controlType)
	return s.b
}

// Builder exposes the underlying Builder for encoding a control value.
func (s *SequenceBuilder) Builder() *Builder { return s.b }

// End seals the sequence's header.
func (s *SequenceBuilder) End() error {
	return s.b.seal(s.tok)
}

// ChoiceBuilder builds a Choice container: (choice_type, flags,
// child_size, child_type) followed by packed children like an Array.
type ChoiceBuilder struct {
	b   *Builder
	tok headerToken
}

// BeginChoice reserves a Choice header.
func (b *Builder) BeginChoice(choiceType ChoiceType, flags uint32, childType Type, childSize int) *ChoiceBuilder {
	tok := b.reserveHeader(CHOICE)
	b.writeU32(uint32(choiceType))
	b.writeU32(flags)
	b.writeU32(uint32(childSize))
	b.writeU32(uint32(childType))
	return &ChoiceBuilder{b: b, tok: tok}
}

// Raw appends one packed child's raw bytes verbatim.
func (c *ChoiceBuilder) Raw(data []byte) {
	c.b.buf = append(c.b.buf, data...)
}

// End seals the choice's header.
func (c *ChoiceBuilder) End() error {
	return c.b.seal(c.tok)
}
