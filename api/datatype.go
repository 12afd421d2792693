// File: api/datatype.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Datatype descriptors: element kind, packed size and extent (stride).

package api

// Kind is the primitive element kind a datatype is built from.
type Kind uint8

const (
	KindByte Kind = iota
	KindInt32
	KindInt64
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
)

// Width returns the width of a single lane in bytes.
func (k Kind) Width() int64 {
	switch k {
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	default:
		return 1
	}
}

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	default:
		return "byte"
	}
}

// Datatype describes the memory layout of one logical element.
//
// An element is Lanes primitive values of Kind, lane j starting at byte
// j*LaneStride from the element start; consecutive elements are Extent bytes
// apart. Bytes not covered by a lane are padding and never written.
type Datatype struct {
	Name       string
	Kind       Kind
	Lanes      int
	LaneStride int64
	Extent     int64

	committed bool
}

func builtin(name string, k Kind) Datatype {
	return Datatype{Name: name, Kind: k, Lanes: 1, LaneStride: k.Width(), Extent: k.Width(), committed: true}
}

// Predefined, committed datatypes.
var (
	Byte    = builtin("byte", KindByte)
	Int32   = builtin("int32", KindInt32)
	Int64   = builtin("int64", KindInt64)
	Uint32  = builtin("uint32", KindUint32)
	Uint64  = builtin("uint64", KindUint64)
	Float32 = builtin("float32", KindFloat32)
	Float64 = builtin("float64", KindFloat64)
)

// Size is the packed byte size of one element.
func (t Datatype) Size() int64 {
	return int64(t.Lanes) * t.Kind.Width()
}

// Committed reports whether the type may be used in communication.
func (t Datatype) Committed() bool { return t.committed }

// Commit returns a committed copy of t.
func (t Datatype) Commit() Datatype {
	t.committed = true
	return t
}

// IsContiguous reports whether elements carry no padding at all.
func (t Datatype) IsContiguous() bool {
	w := t.Kind.Width()
	return t.LaneStride == w && t.Extent == int64(t.Lanes)*w
}

// Valid checks the structural invariants of a descriptor.
func (t Datatype) Valid() error {
	if t.Lanes <= 0 {
		return Errorf(ErrCodeInvalidDatatype, "datatype %q has no lanes", t.Name)
	}
	w := t.Kind.Width()
	if t.LaneStride < w {
		return Errorf(ErrCodeInvalidDatatype, "datatype %q lane stride %d below lane width %d", t.Name, t.LaneStride, w)
	}
	if t.Extent < int64(t.Lanes-1)*t.LaneStride+w {
		return Errorf(ErrCodeInvalidDatatype, "datatype %q extent %d smaller than its data", t.Name, t.Extent)
	}
	return nil
}

// Resized returns t with a larger extent, adding trailing padding.
// The result is uncommitted.
func Resized(t Datatype, extent int64) (Datatype, error) {
	r := t
	r.Name = t.Name + "_resized"
	r.Extent = extent
	r.committed = false
	if err := r.Valid(); err != nil {
		return Datatype{}, err
	}
	return r, nil
}

// Contiguous returns a type of n consecutive copies of t. It requires t to
// be a single lane or to carry no trailing padding so lanes stay uniformly
// strided. The result is uncommitted.
func Contiguous(n int, t Datatype) (Datatype, error) {
	if n <= 0 {
		return Datatype{}, Errorf(ErrCodeInvalidCount, "contiguous count %d", n)
	}
	r := t
	r.Name = t.Name + "_contig"
	r.committed = false
	switch {
	case t.Lanes == 1:
		r.Lanes = n
		r.LaneStride = t.Extent
	case t.Extent == int64(t.Lanes)*t.LaneStride:
		r.Lanes = n * t.Lanes
	default:
		return Datatype{}, Errorf(ErrCodeInvalidDatatype, "datatype %q is not uniformly strided", t.Name)
	}
	r.Extent = int64(n) * t.Extent
	return r, nil
}
