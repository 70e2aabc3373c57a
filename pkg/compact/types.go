package compact

import (
	"errors"
	"fmt"
)

// Type table errors.
var (
	// ErrInvalidType is returned by NewTypeTable for an inconsistent descriptor.
	ErrInvalidType = errors.New("compact: invalid type descriptor")

	// ErrUnregisteredType is returned when writing an object whose type is
	// not in the table. This is a programming error.
	ErrUnregisteredType = errors.New("compact: unregistered type")

	// ErrUnknownType is returned when a decoded type index or name does not
	// resolve to a registered type.
	ErrUnknownType = errors.New("compact: unknown type")
)

// Type id wire values.
const (
	typeIDBits     = 5
	typeIDNil      = 0
	typeIDExplicit = 31

	// MaxIndexedTypes is the number of types addressable by a short index.
	MaxIndexedTypes = 30
)

// Serializable is an object that can be written and read by a Serializer.
// Serialize both reads and writes; it inspects s.Direction() only when the
// two directions need different handling.
type Serializable interface {
	TypeName() string
	Serialize(s *Serializer) error
}

// TypeDescriptor declares one serializable type.
type TypeDescriptor struct {
	// Name is the stable wire name of the type.
	Name string

	// Version is passed to Serialize through Serializer.Version.
	Version int

	// New allocates an empty instance for decoding.
	New func() Serializable
}

// TypeTable is the ordered dispatch table of known types. It is immutable
// once built and may be shared.
type TypeTable struct {
	types  []TypeDescriptor
	byName map[string]int
}

// NewTypeTable validates descs and builds a table. The first MaxIndexedTypes
// descriptors get short wire indexes; the remainder are encoded by name.
func NewTypeTable(descs ...TypeDescriptor) (*TypeTable, error) {
	t := &TypeTable{
		types:  make([]TypeDescriptor, 0, len(descs)),
		byName: make(map[string]int, len(descs)),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidType)
		}
		if d.New == nil {
			return nil, fmt.Errorf("%w: %s has no factory", ErrInvalidType, d.Name)
		}
		if len(d.Name) > maxStringLength {
			return nil, fmt.Errorf("%w: %s name too long", ErrInvalidType, d.Name)
		}
		if _, dup := t.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: %s registered twice", ErrInvalidType, d.Name)
		}
		obj := d.New()
		if obj == nil || obj.TypeName() != d.Name {
			return nil, fmt.Errorf("%w: %s factory yields a different type", ErrInvalidType, d.Name)
		}
		t.byName[d.Name] = len(t.types)
		t.types = append(t.types, d)
	}
	return t, nil
}

// MustTypeTable is like NewTypeTable but panics on error. It is intended for
// package-level schema declarations.
func MustTypeTable(descs ...TypeDescriptor) *TypeTable {
	t, err := NewTypeTable(descs...)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of registered types.
func (t *TypeTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.types)
}

// Lookup returns the descriptor registered under name.
func (t *TypeTable) Lookup(name string) (TypeDescriptor, bool) {
	if t == nil {
		return TypeDescriptor{}, false
	}
	i, ok := t.byName[name]
	if !ok {
		return TypeDescriptor{}, false
	}
	return t.types[i], true
}

// wireID returns the 5-bit id used to encode the type at table index i.
func wireID(i int) uint64 {
	if i < MaxIndexedTypes {
		return uint64(i + 1)
	}
	return typeIDExplicit
}
