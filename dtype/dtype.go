// Package dtype describes the runtime datatypes accepted by the distributed
// element-wise operations in this module. Values are passed around as typed
// slices; operations classify them at runtime and dispatch to a matching
// path, with Raw as the untyped byte fallback.
package dtype

import (
	"errors"
	"fmt"
)

// Kind identifies the element type of a value buffer
type Kind int

const (
	Unknown Kind = iota
	Int8
	Int32
	Int64
	Uint32
	Uint64
	Float32
	Float64
	Bytes // opaque elements, see Raw
)

// ErrUnsupported is returned when an operation receives a value whose
// runtime type it has no path for, or when source and destination buffers
// of a copy-style operation disagree on type.
var ErrUnsupported = errors.New("unsupported datatype")

// Raw carries opaque fixed-size elements through the byte path.
// Data holds the elements back to back; ElemSize is the size of one
// element in bytes, before any stride is applied.
type Raw struct {
	Data     []byte
	ElemSize int
}

// Size returns the size in bytes of one element of the given kind.
// Bytes and Unknown have no fixed size and report 0.
func (k Kind) Size() int {
	switch k {
	case Int8:
		return 1
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

func (k Kind) String() string {
	switch k {
	case Int8:
		return "int8"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Bytes:
		return "bytes"
	}
	return "unknown"
}

// KindOf classifies a value buffer. Unknown is returned for types with no
// dedicated path; callers are expected to fall back to Raw or fail with
// ErrUnsupported.
func KindOf(v any) Kind {
	switch v.(type) {
	case []int8:
		return Int8
	case []int32:
		return Int32
	case []int64:
		return Int64
	case []uint32:
		return Uint32
	case []uint64:
		return Uint64
	case []float32:
		return Float32
	case []float64:
		return Float64
	case Raw:
		return Bytes
	}
	return Unknown
}

// Check validates that v has a recognized kind and returns it.
func Check(v any) (Kind, error) {
	k := KindOf(v)
	if k == Unknown {
		return k, fmt.Errorf("value of type %T: %w", v, ErrUnsupported)
	}
	return k, nil
}
