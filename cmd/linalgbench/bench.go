package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-linalg/internal/backend/gpu"
	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/linalg"
	"github.com/23skdu/longbow-linalg/internal/remote"
)

// agreementTolerance is the relative difference above which a CPU/GPU
// mismatch is logged as a warning.
const agreementTolerance = 1e-5

type benchOptions struct {
	N          int
	Iterations int
	ArrowOut   string
}

func runFor(ctx context.Context, d *linalg.Dispatcher, dt dtype.DType, opts benchOptions) (*Report, error) {
	switch dt {
	case dtype.Float32:
		return runBench[float32](ctx, d, opts)
	case dtype.Float64:
		return runBench[float64](ctx, d, opts)
	case dtype.Int32:
		return runBench[int32](ctx, d, opts)
	case dtype.Int64:
		return runBench[int64](ctx, d, opts)
	}
	return nil, fmt.Errorf("benchmark: dtype %s not supported", dt)
}

// inputs fills a with 1..n and b with a repeating 0..6 pattern, small enough
// that integer dot products do not overflow for the default sizes.
func inputs[T dtype.Real](ctx context.Context, d *linalg.Dispatcher, n int) (a, b *container.Vector[T], err error) {
	if a, err = container.NewVector[T](n); err != nil {
		return nil, nil, err
	}
	if err = linalg.RangeFill[T](ctx, d, a, 1); err != nil {
		return nil, nil, err
	}
	if b, err = container.NewVector[T](n); err != nil {
		return nil, nil, err
	}
	for i := range b.Data() {
		b.Set(i, T(i%7))
	}
	return a, b, nil
}

func runBench[T dtype.Real](ctx context.Context, d *linalg.Dispatcher, opts benchOptions) (*Report, error) {
	if opts.Iterations < 1 {
		opts.Iterations = 1
	}
	a, b, err := inputs[T](ctx, d, opts.N)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Timestamp:  time.Now().UTC(),
		N:          opts.N,
		Iterations: opts.Iterations,
		DType:      dtype.Of[T]().String(),
	}

	onCPU, err := timeOps[T](ctx, d, "cpu", a, b, opts.Iterations, report)
	if err != nil {
		return nil, err
	}
	if opts.ArrowOut != "" {
		sum, ok := onCPU.sum.(*container.Vector[T])
		if !ok {
			return nil, fmt.Errorf("benchmark: cpu add returned %T", onCPU.sum)
		}
		if err := writeArrowStream(opts.ArrowOut, []string{"a", "b", "a_plus_b"}, []*container.Vector[T]{a, b, sum}); err != nil {
			return nil, err
		}
		log.Info().Str("path", opts.ArrowOut).Msg("Arrow stream written")
	}

	g := d.GPU()
	if g == nil {
		return report, nil
	}

	start := time.Now()
	da, err := gpu.Upload(g, a)
	if err != nil {
		return nil, err
	}
	defer func() { _ = da.Release() }()
	db, err := gpu.Upload(g, b)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Release() }()
	report.Staging = time.Since(start)
	log.Info().
		Dur("elapsed", report.Staging).
		Str("bytes", humanize.Bytes(uint64(2*opts.N*dtype.Of[T]().Size()))).
		Msg("Staged inputs on device")

	onGPU, err := timeOps[T](ctx, d, "gpu", da, db, opts.Iterations, report)
	if err != nil {
		return nil, err
	}
	defer func() { _ = onGPU.release() }()

	for _, c := range []struct {
		op       string
		cpu, gpu float64
	}{
		{"dot", onCPU.dot, onGPU.dot},
		{"add", onCPU.addTotal, onGPU.addTotal},
		{"scale", onCPU.scaleTotal, onGPU.scaleTotal},
	} {
		ag := Agreement{Op: c.op, CPU: c.cpu, GPU: c.gpu, RelDiff: relDiff(c.cpu, c.gpu)}
		report.Agreement = append(report.Agreement, ag)
		ev := log.Info()
		if ag.RelDiff > agreementTolerance {
			ev = log.Warn()
		}
		ev.Str("op", ag.Op).
			Float64("cpu", ag.CPU).
			Float64("gpu", ag.GPU).
			Float64("rel_diff", ag.RelDiff).
			Msg("Backend agreement")
	}
	return report, nil
}

type results[T dtype.Real] struct {
	dot, addTotal, scaleTotal float64
	sum, scaled               container.Operand[T]
}

// releaser is a result holding device memory.
type releaser interface {
	Release() error
}

// keep stores v in *slot, releasing the device memory of the value it
// replaces. If that fails v is released too, so the caller owns nothing new.
func (r *results[T]) keep(slot *container.Operand[T], v container.Operand[T]) error {
	if old, ok := (*slot).(releaser); ok {
		if err := old.Release(); err != nil {
			if nv, ok := v.(releaser); ok {
				_ = nv.Release()
			}
			return fmt.Errorf("release previous result: %w", err)
		}
	}
	*slot = v
	return nil
}

func (r *results[T]) release() error {
	var first error
	for _, o := range []container.Operand[T]{r.sum, r.scaled} {
		if v, ok := o.(releaser); ok {
			if err := v.Release(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// timeOps runs dot, add and scale over x and y, which share one residency,
// and appends one Result per op to report.
func timeOps[T dtype.Real](ctx context.Context, d *linalg.Dispatcher, name string, x, y container.Operand[T], iterations int, report *Report) (_ *results[T], err error) {
	res := &results[T]{}
	defer func() {
		if err != nil {
			_ = res.release()
		}
	}()

	start := time.Now()
	for i := 0; i < iterations; i++ {
		v, err := linalg.Dot[T](ctx, d, x, y)
		if err != nil {
			return nil, fmt.Errorf("%s dot: %w", name, err)
		}
		res.dot = float64(v)
	}
	report.add(name, "dot", time.Since(start), iterations)

	start = time.Now()
	for i := 0; i < iterations; i++ {
		v, err := linalg.Add[T](ctx, d, x, y, 1, 1)
		if err != nil {
			return nil, fmt.Errorf("%s add: %w", name, err)
		}
		if err := res.keep(&res.sum, v); err != nil {
			return nil, err
		}
	}
	report.add(name, "add", time.Since(start), iterations)

	start = time.Now()
	for i := 0; i < iterations; i++ {
		v, err := linalg.Scale[T](ctx, d, x, 2)
		if err != nil {
			return nil, fmt.Errorf("%s scale: %w", name, err)
		}
		if err := res.keep(&res.scaled, v); err != nil {
			return nil, err
		}
	}
	report.add(name, "scale", time.Since(start), iterations)

	total, err := linalg.Sum[T](ctx, d, res.sum)
	if err != nil {
		return nil, err
	}
	res.addTotal = float64(total)
	if total, err = linalg.Sum[T](ctx, d, res.scaled); err != nil {
		return nil, err
	}
	res.scaleTotal = float64(total)
	return res, nil
}

func relDiff(a, b float64) float64 {
	if a == b {
		return 0
	}
	return math.Abs(a-b) / math.Max(math.Abs(a), math.Abs(b))
}

// remoteCheck sends a rows x 8 matrix to the Flight service at addr and
// compares its column sums with the local result.
func remoteCheck(ctx context.Context, d *linalg.Dispatcher, addr string, rows int) (*RemoteCheck, error) {
	const cols = 8
	m, err := container.NewMatrix[float64](rows, cols)
	if err != nil {
		return nil, err
	}
	if err := linalg.RangeFill[float64](ctx, d, m.AsVector(), 0); err != nil {
		return nil, err
	}
	want, err := remote.Reduce(ctx, d, remote.SumCols, m)
	if err != nil {
		return nil, err
	}

	c, err := remote.Dial(addr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Close() }()

	start := time.Now()
	got, err := c.Reduce(ctx, remote.SumCols, m)
	if err != nil {
		return nil, err
	}
	rc := &RemoteCheck{Server: addr, Rows: rows, Cols: cols, Elapsed: time.Since(start)}
	for j := 0; j < cols; j++ {
		rc.MaxRelDiff = math.Max(rc.MaxRelDiff, relDiff(want.At(j), got.At(j)))
	}
	log.Info().
		Str("server", addr).
		Dur("elapsed", rc.Elapsed).
		Float64("max_rel_diff", rc.MaxRelDiff).
		Msg("Remote reduction checked")
	return rc, nil
}
