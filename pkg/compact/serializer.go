// Package compact serializes polymorphic typed objects into a bit stream.
//
// An object is written as a 5-bit type id followed by its fields:
//
//	0       nil
//	1..30   index into the TypeTable
//	31      explicit type name follows as a compact string
//
// Integer fields use a one bit "wide" flag to pick between a short and a long
// width, so small magnitudes cost fewer bits. Floats are 32-bit IEEE754
// unless the field asks for a ranged 8-bit or a half precision encoding.
//
// Decoding is atomic: ReadObject returns either a complete object or an error.
package compact

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/x448/float16"

	"github.com/apistol78/traktor-sub009/pkg/bitio"
	"github.com/apistol78/traktor-sub009/pkg/vecmath"
)

// Limits.
const (
	// MaxArrayLength caps decoded array lengths.
	MaxArrayLength = 4096

	// MaxObjectDepth caps nested object recursion.
	MaxObjectDepth = 32

	maxStringLength = math.MaxUint16
)

// Field errors.
var (
	ErrArrayTooLarge = errors.New("compact: array length exceeds limit")
	ErrTooDeep       = errors.New("compact: object nesting too deep")
	ErrInvalidString = errors.New("compact: invalid UTF-8 string")
	ErrStringTooLong = errors.New("compact: string too long")
	ErrInvalidRange  = errors.New("compact: invalid float range")
)

// Direction tells Serialize implementations whether fields are being read
// or written.
type Direction uint8

const (
	Writing Direction = iota
	Reading
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Reading {
		return "Reading"
	}
	return "Writing"
}

// Serializer reads or writes object fields through a bit stream.
type Serializer struct {
	dir     Direction
	w       *bitio.Writer
	r       *bitio.Reader
	types   *TypeTable
	version int
	depth   int
}

// NewWriter returns a serializer writing to w.
func NewWriter(w *bitio.Writer, types *TypeTable) *Serializer {
	return &Serializer{dir: Writing, w: w, types: types}
}

// NewReader returns a serializer reading from r.
func NewReader(r *bitio.Reader, types *TypeTable) *Serializer {
	return &Serializer{dir: Reading, r: r, types: types}
}

// Direction returns whether the serializer reads or writes.
func (s *Serializer) Direction() Direction {
	return s.dir
}

// Version returns the declared version of the object being serialized.
func (s *Serializer) Version() int {
	return s.version
}

// Bool serializes a single bit.
func (s *Serializer) Bool(v *bool) error {
	if s.dir == Writing {
		return s.w.WriteBit(*v)
	}
	b, err := s.r.ReadBit()
	if err != nil {
		return err
	}
	*v = b
	return nil
}

// Int8 serializes a signed byte.
func (s *Serializer) Int8(v *int8) error {
	if s.dir == Writing {
		return s.w.WriteSigned(8, int64(*v))
	}
	n, err := s.r.ReadSigned(8)
	if err != nil {
		return err
	}
	*v = int8(n)
	return nil
}

// Uint8 serializes an unsigned byte.
func (s *Serializer) Uint8(v *uint8) error {
	if s.dir == Writing {
		return s.w.WriteUnsigned(8, uint64(*v))
	}
	n, err := s.r.ReadUnsigned(8)
	if err != nil {
		return err
	}
	*v = uint8(n)
	return nil
}

// Int16 serializes a sign bit, a wide bit, and a 15 or 8 bit magnitude.
func (s *Serializer) Int16(v *int16) error {
	n := int64(*v)
	if err := s.signedWide(&n, 15, 8); err != nil {
		return err
	}
	*v = int16(n)
	return nil
}

// Uint16 serializes a wide bit and a 16 or 8 bit value.
func (s *Serializer) Uint16(v *uint16) error {
	n := uint64(*v)
	if err := s.unsignedWide(&n, 16, 8); err != nil {
		return err
	}
	*v = uint16(n)
	return nil
}

// Int32 serializes a sign bit, a wide bit, and a 31 or 16 bit magnitude.
func (s *Serializer) Int32(v *int32) error {
	n := int64(*v)
	if err := s.signedWide(&n, 31, 16); err != nil {
		return err
	}
	*v = int32(n)
	return nil
}

// Uint32 serializes a wide bit and a 32 or 16 bit value.
func (s *Serializer) Uint32(v *uint32) error {
	n := uint64(*v)
	if err := s.unsignedWide(&n, 32, 16); err != nil {
		return err
	}
	*v = uint32(n)
	return nil
}

func (s *Serializer) unsignedWide(v *uint64, wide, short int) error {
	if s.dir == Writing {
		isWide := *v > (1<<short)-1
		if err := s.w.WriteBit(isWide); err != nil {
			return err
		}
		if isWide {
			return s.w.WriteUnsigned(wide, *v)
		}
		return s.w.WriteUnsigned(short, *v)
	}
	isWide, err := s.r.ReadBit()
	if err != nil {
		return err
	}
	width := short
	if isWide {
		width = wide
	}
	n, err := s.r.ReadUnsigned(width)
	if err != nil {
		return err
	}
	*v = n
	return nil
}

func (s *Serializer) signedWide(v *int64, wide, short int) error {
	if s.dir == Writing {
		negative := *v < 0
		mag := uint64(*v)
		if negative {
			mag = uint64(-*v)
		}
		if mag > (1<<wide)-1 {
			return bitio.ErrOverflow
		}
		if err := s.w.WriteBit(negative); err != nil {
			return err
		}
		return s.unsignedWide(&mag, wide, short)
	}
	negative, err := s.r.ReadBit()
	if err != nil {
		return err
	}
	var mag uint64
	if err := s.unsignedWide(&mag, wide, short); err != nil {
		return err
	}
	if negative {
		*v = -int64(mag)
	} else {
		*v = int64(mag)
	}
	return nil
}

// Float32 serializes a full precision float.
func (s *Serializer) Float32(v *float32) error {
	if s.dir == Writing {
		return s.w.WriteUnsigned(32, uint64(math.Float32bits(*v)))
	}
	n, err := s.r.ReadUnsigned(32)
	if err != nil {
		return err
	}
	*v = math.Float32frombits(uint32(n))
	return nil
}

// HalfFloat32 serializes a float as IEEE754 binary16.
func (s *Serializer) HalfFloat32(v *float32) error {
	if s.dir == Writing {
		return s.w.WriteUnsigned(16, uint64(float16.Fromfloat32(*v).Bits()))
	}
	n, err := s.r.ReadUnsigned(16)
	if err != nil {
		return err
	}
	*v = float16.Frombits(uint16(n)).Float32()
	return nil
}

// RangedFloat32 serializes a float quantized to 8 bits over [min, max],
// rounding to the nearest step. Values outside the range are clamped.
func (s *Serializer) RangedFloat32(v *float32, min, max float32) error {
	if !(max > min) {
		return ErrInvalidRange
	}
	if s.dir == Writing {
		x := *v
		if x < min {
			x = min
		} else if x > max {
			x = max
		}
		q := uint8(255*(x-min)/(max-min) + 0.5)
		return s.w.WriteUnsigned(8, uint64(q))
	}
	n, err := s.r.ReadUnsigned(8)
	if err != nil {
		return err
	}
	*v = float32(n)*(max-min)/255 + min
	return nil
}

// String serializes a compact uint16 length followed by UTF-8 bytes.
func (s *Serializer) String(v *string) error {
	if s.dir == Writing {
		if len(*v) > maxStringLength {
			return ErrStringTooLong
		}
		n := uint16(len(*v))
		if err := s.Uint16(&n); err != nil {
			return err
		}
		return s.w.WriteBytes([]byte(*v))
	}
	var n uint16
	if err := s.Uint16(&n); err != nil {
		return err
	}
	b, err := s.r.ReadBytes(int(n))
	if err != nil {
		return err
	}
	if !utf8.Valid(b) {
		return ErrInvalidString
	}
	*v = string(b)
	return nil
}

// GUID serializes a validity bit followed by 16 bytes when valid. A zero id
// is treated as invalid.
func (s *Serializer) GUID(v *[16]byte) error {
	valid := *v != [16]byte{}
	if err := s.Bool(&valid); err != nil {
		return err
	}
	if !valid {
		*v = [16]byte{}
		return nil
	}
	if s.dir == Writing {
		return s.w.WriteBytes(v[:])
	}
	b, err := s.r.ReadBytes(16)
	if err != nil {
		return err
	}
	copy(v[:], b)
	return nil
}

// VectorEncoding selects how Vector serializes its components.
type VectorEncoding uint8

const (
	// VectorFull writes all four components at 32 bits.
	VectorFull VectorEncoding = iota
	// VectorPoint writes XYZ at 32 bits; W reads back as 1.
	VectorPoint
	// VectorDirection writes XYZ at 32 bits; W reads back as 0.
	VectorDirection
	// VectorHalf writes XYZ as binary16; W reads back as 0.
	VectorHalf
	// VectorUnit writes a normalized direction packed into 3 bytes.
	VectorUnit
)

// Vector serializes a Vector4 with the given encoding.
func (s *Serializer) Vector(v *vecmath.Vector4, enc VectorEncoding) error {
	switch enc {
	case VectorFull:
		return s.floats(32, &v.X, &v.Y, &v.Z, &v.W)
	case VectorPoint, VectorDirection:
		if err := s.floats(32, &v.X, &v.Y, &v.Z); err != nil {
			return err
		}
	case VectorHalf:
		if err := s.floats(16, &v.X, &v.Y, &v.Z); err != nil {
			return err
		}
	case VectorUnit:
		if s.dir == Writing {
			return s.w.WriteUnsigned(24, uint64(PackUnit(*v)))
		}
		n, err := s.r.ReadUnsigned(24)
		if err != nil {
			return err
		}
		*v = UnpackUnit(uint32(n))
		return nil
	default:
		return fmt.Errorf("compact: unknown vector encoding %d", enc)
	}
	if s.dir == Reading {
		v.W = 0
		if enc == VectorPoint {
			v.W = 1
		}
	}
	return nil
}

// Quaternion serializes four full precision components.
func (s *Serializer) Quaternion(q *vecmath.Quaternion) error {
	return s.floats(32, &q.X, &q.Y, &q.Z, &q.W)
}

func (s *Serializer) floats(bits int, fs ...*float32) error {
	for _, f := range fs {
		var err error
		if bits == 16 {
			err = s.HalfFloat32(f)
		} else {
			err = s.Float32(f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ArrayLength serializes an array length as a compact uint32, rejecting
// lengths above MaxArrayLength in both directions.
func (s *Serializer) ArrayLength(n *int) error {
	if s.dir == Writing && (*n < 0 || *n > MaxArrayLength) {
		return ErrArrayTooLarge
	}
	u := uint32(*n)
	if err := s.Uint32(&u); err != nil {
		return err
	}
	if u > MaxArrayLength {
		return ErrArrayTooLarge
	}
	*n = int(u)
	return nil
}

// Array serializes a length-prefixed slice, calling fn for each element.
// On read the slice is replaced with a freshly allocated one.
func Array[T any](s *Serializer, items *[]T, fn func(s *Serializer, item *T) error) error {
	n := len(*items)
	if err := s.ArrayLength(&n); err != nil {
		return err
	}
	if s.dir == Reading {
		*items = make([]T, n)
	}
	for i := range *items {
		if err := fn(s, &(*items)[i]); err != nil {
			return fmt.Errorf("compact: element %d: %w", i, err)
		}
	}
	return nil
}

// Object serializes a nested polymorphic object, which may be nil.
func (s *Serializer) Object(obj *Serializable) error {
	if s.depth >= MaxObjectDepth {
		return ErrTooDeep
	}
	s.depth++
	defer func() { s.depth-- }()

	if s.dir == Writing {
		return s.writeObject(*obj)
	}
	o, err := s.readObject()
	if err != nil {
		return err
	}
	*obj = o
	return nil
}

func (s *Serializer) writeObject(obj Serializable) error {
	if obj == nil {
		return s.w.WriteUnsigned(typeIDBits, typeIDNil)
	}
	name := obj.TypeName()
	idx, ok := s.types.index(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnregisteredType, name)
	}
	id := wireID(idx)
	if err := s.w.WriteUnsigned(typeIDBits, id); err != nil {
		return err
	}
	if id == typeIDExplicit {
		if err := s.String(&name); err != nil {
			return err
		}
	}
	return s.withVersion(s.types.types[idx].Version, obj)
}

func (s *Serializer) readObject() (Serializable, error) {
	id, err := s.r.ReadUnsigned(typeIDBits)
	if err != nil {
		return nil, err
	}
	var desc TypeDescriptor
	switch {
	case id == typeIDNil:
		return nil, nil
	case id == typeIDExplicit:
		var name string
		if err := s.String(&name); err != nil {
			return nil, err
		}
		d, ok := s.types.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
		}
		desc = d
	default:
		i := int(id) - 1
		if i >= s.types.Len() {
			return nil, fmt.Errorf("%w: index %d", ErrUnknownType, id)
		}
		desc = s.types.types[i]
	}
	obj := desc.New()
	if err := s.withVersion(desc.Version, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *Serializer) withVersion(version int, obj Serializable) error {
	prev := s.version
	s.version = version
	err := obj.Serialize(s)
	s.version = prev
	return err
}

func (t *TypeTable) index(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.byName[name]
	return i, ok
}

// WriteObject writes obj, which must be nil or a registered type.
func WriteObject(w *bitio.Writer, types *TypeTable, obj Serializable) error {
	return NewWriter(w, types).Object(&obj)
}

// ReadObject reads one object. On error no object is returned.
func ReadObject(r *bitio.Reader, types *TypeTable) (Serializable, error) {
	var obj Serializable
	if err := NewReader(r, types).Object(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Marshal writes obj into a fresh buffer of at most maxSize bytes.
func Marshal(types *TypeTable, obj Serializable, maxSize int) ([]byte, error) {
	w := bitio.NewWriter(make([]byte, maxSize))
	if err := WriteObject(w, types, obj); err != nil {
		return nil, err
	}
	w.Flush()
	return w.Bytes(), nil
}

// Unmarshal reads one object from data.
func Unmarshal(types *TypeTable, data []byte) (Serializable, error) {
	return ReadObject(bitio.NewReader(data), types)
}
