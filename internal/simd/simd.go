// Package simd holds the unrolled host kernels shared by the CPU backend.
// Every reduction accumulates into a single running sum, left to right, so
// results are bit-reproducible across runs.
package simd

import "github.com/23skdu/longbow-linalg/internal/dtype"

// DotProduct computes sum(a[i]*b[i]) in index order.
func DotProduct[T dtype.Scalar](a, b []T) T {
	var sum T
	i := 0
	for ; i <= len(a)-4; i += 4 {
		sum += a[i] * b[i]
		sum += a[i+1] * b[i+1]
		sum += a[i+2] * b[i+2]
		sum += a[i+3] * b[i+3]
	}
	for ; i < len(a); i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Sum adds the elements of a in index order.
func Sum[T dtype.Scalar](a []T) T {
	var sum T
	i := 0
	for ; i <= len(a)-4; i += 4 {
		sum += a[i]
		sum += a[i+1]
		sum += a[i+2]
		sum += a[i+3]
	}
	for ; i < len(a); i++ {
		sum += a[i]
	}
	return sum
}

// VecAdd performs dst += src
func VecAdd[T dtype.Scalar](dst, src []T) {
	// Unrolled loop for better pipelining
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] += src[i]
		dst[i+1] += src[i+1]
		dst[i+2] += src[i+2]
		dst[i+3] += src[i+3]
	}
	for ; i < len(dst); i++ {
		dst[i] += src[i]
	}
}

// VecAddScaled performs dst += src * scale
func VecAddScaled[T dtype.Scalar](dst, src []T, scale T) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] += src[i] * scale
		dst[i+1] += src[i+1] * scale
		dst[i+2] += src[i+2] * scale
		dst[i+3] += src[i+3] * scale
	}
	for ; i < len(dst); i++ {
		dst[i] += src[i] * scale
	}
}

// Axpby performs dst = alpha*a + beta*b. dst may alias a or b.
func Axpby[T dtype.Scalar](dst, a, b []T, alpha, beta T) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] = alpha*a[i] + beta*b[i]
		dst[i+1] = alpha*a[i+1] + beta*b[i+1]
		dst[i+2] = alpha*a[i+2] + beta*b[i+2]
		dst[i+3] = alpha*a[i+3] + beta*b[i+3]
	}
	for ; i < len(dst); i++ {
		dst[i] = alpha*a[i] + beta*b[i]
	}
}

// VecScale performs dst = src * alpha. dst may alias src.
func VecScale[T dtype.Scalar](dst, src []T, alpha T) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] = src[i] * alpha
		dst[i+1] = src[i+1] * alpha
		dst[i+2] = src[i+2] * alpha
		dst[i+3] = src[i+3] * alpha
	}
	for ; i < len(dst); i++ {
		dst[i] = src[i] * alpha
	}
}

// Map2 performs dst[i] = fn(a[i], b[i]).
func Map2[T dtype.Scalar](dst, a, b []T, fn func(x, y T) T) {
	for i := range dst {
		dst[i] = fn(a[i], b[i])
	}
}

// MatVecMul performs dst = mat * vec where mat is rows x cols row-major
func MatVecMul[T dtype.Scalar](dst, mat, vec []T, rows, cols int) {
	for i := 0; i < rows; i++ {
		rowStart := i * cols
		dst[i] = DotProduct(mat[rowStart:rowStart+cols], vec)
	}
}
