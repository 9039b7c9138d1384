package cl

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Scalar is a numeric element type of device memory.
type Scalar interface {
	constraints.Integer | constraints.Float
}

// Bytes reinterprets values as bytes without copying.
func Bytes[T Scalar](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*int(unsafe.Sizeof(zero)))
}

// View reinterprets b as elements of T without copying. Trailing bytes that
// do not fill an element are ignored.
func View[T Scalar](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

func scalarBytes[T Scalar](v T) []byte { return Bytes([]T{v}) }

func sizeOf[T Scalar]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Fill sets every element of b to value.
func Fill[T Scalar](q *Queue, b *Buffer, value T, opts ...EnqueueOption) error {
	return q.FillBuffer(b, scalarBytes(value), opts...)
}

// Write copies values into b starting at element offset.
func Write[T Scalar](q *Queue, b *Buffer, offset int, values []T, opts ...EnqueueOption) error {
	return q.WriteBuffer(b, offset*sizeOf[T](), Bytes(values), opts...)
}

// Read copies elements of b starting at element offset into dst.
func Read[T Scalar](q *Queue, b *Buffer, offset int, dst []T, opts ...EnqueueOption) error {
	return q.ReadBuffer(b, offset*sizeOf[T](), Bytes(dst), opts...)
}
