package gpu

import (
	"unsafe"

	"github.com/23skdu/longbow-linalg/internal/device"
	"github.com/23skdu/longbow-linalg/internal/dtype"
)

func sizeOf[T dtype.Scalar]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

// allocElems allocates device room for n elements of T. An empty operand
// still gets one element so it has a handle to stage into and pass to a
// kernel.
func allocElems[T dtype.Scalar](d device.Driver, n int) (*device.Handle, error) {
	return d.Alloc(max(n, 1) * sizeOf[T]())
}

// bytesOf reinterprets s as raw bytes for a device copy.
func bytesOf[T dtype.Scalar](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*sizeOf[T]())
}

// elems reinterprets the first n elements of a device buffer. Device buffers
// are word aligned.
func elems[T dtype.Scalar](b []byte, n int) []T {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// treeReduce combines x in place the way a work group does: each block of
// BlockSize elements is folded pairwise with doubling strides, then the block
// partials are reduced again until one value is left.
func treeReduce[T dtype.Scalar](x []T, combine func(a, b T) T) T {
	var zero T
	if len(x) == 0 {
		return zero
	}
	for len(x) > 1 {
		blocks := (len(x) + BlockSize - 1) / BlockSize
		for blk := 0; blk < blocks; blk++ {
			part := x[blk*BlockSize : min((blk+1)*BlockSize, len(x))]
			for stride := 1; stride < len(part); stride *= 2 {
				for i := 0; i+stride < len(part); i += 2 * stride {
					part[i] = combine(part[i], part[i+stride])
				}
			}
			x[blk] = part[0]
		}
		x = x[:blocks]
	}
	return x[0]
}

func add[T dtype.Scalar](a, b T) T { return a + b }
