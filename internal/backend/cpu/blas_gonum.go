//go:build !(cgo && netlib)

package cpu

// blasProvider names the BLAS implementation behind the float32/float64
// matrix kernels.
const blasProvider = "gonum"
