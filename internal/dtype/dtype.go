// Package dtype describes the scalar element types understood by the linalg
// backends and the type-level constraints used to restrict operations to
// subsets of them.
package dtype

import "fmt"

// DType tags a scalar element type at runtime.
type DType uint8

const (
	Invalid DType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Complex64
	Complex128
)

var names = [...]string{
	Invalid:    "invalid",
	Int8:       "int8",
	Uint8:      "uint8",
	Int16:      "int16",
	Uint16:     "uint16",
	Int32:      "int32",
	Uint32:     "uint32",
	Int64:      "int64",
	Uint64:     "uint64",
	Float32:    "float32",
	Float64:    "float64",
	Complex64:  "complex64",
	Complex128: "complex128",
}

var sizes = [...]int{
	Int8: 1, Uint8: 1,
	Int16: 2, Uint16: 2,
	Int32: 4, Uint32: 4, Float32: 4,
	Int64: 8, Uint64: 8, Float64: 8, Complex64: 8,
	Complex128: 16,
}

func (d DType) String() string {
	if int(d) < len(names) {
		return names[d]
	}
	return fmt.Sprintf("dtype(%d)", d)
}

// Size returns the width of one element in bytes.
func (d DType) Size() int {
	if int(d) < len(sizes) {
		return sizes[d]
	}
	return 0
}

func (d DType) IsInteger() bool { return d >= Int8 && d <= Uint64 }
func (d DType) IsFloat() bool   { return d == Float32 || d == Float64 }
func (d DType) IsComplex() bool { return d == Complex64 || d == Complex128 }

// Parse maps a name such as "float64" back to its DType.
func Parse(s string) (DType, error) {
	for i, n := range names {
		if i != int(Invalid) && n == s {
			return DType(i), nil
		}
	}
	return Invalid, fmt.Errorf("unknown dtype %q", s)
}

// Integer is every fixed-width integer type.
type Integer interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64
}

// Float is the IEEE-754 real types.
type Float interface {
	~float32 | ~float64
}

// Complex is the complex types.
type Complex interface {
	~complex64 | ~complex128
}

// Real is every ordered numeric type.
type Real interface {
	Integer | Float
}

// Scalar is every element type a container may hold.
type Scalar interface {
	Real | Complex
}

// Of returns the tag for T. It inspects the type parameter once; kernels call it
// at entry, never inside element loops.
func Of[T Scalar]() DType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	case complex64:
		return Complex64
	case complex128:
		return Complex128
	}
	return Invalid
}

// Set is a bitmask of DTypes, used by backend capability descriptors.
type Set uint32

// SetOf builds a Set from the given tags.
func SetOf(ds ...DType) Set {
	var s Set
	for _, d := range ds {
		s |= 1 << d
	}
	return s
}

// All contains every valid DType.
var All = SetOf(Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64,
	Float32, Float64, Complex64, Complex128)

func (s Set) Has(d DType) bool { return d != Invalid && s&(1<<d) != 0 }

// List returns the members of s in tag order.
func (s Set) List() []DType {
	var out []DType
	for d := Int8; d <= Complex128; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}
