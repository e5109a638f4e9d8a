package main

import (
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/dustin/go-humanize"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/interop/arrowvec"
)

// Report is the CBOR document written by -report.
type Report struct {
	Timestamp  time.Time     `cbor:"timestamp"`
	N          int           `cbor:"n"`
	Iterations int           `cbor:"iterations"`
	DType      string        `cbor:"dtype"`
	Driver     string        `cbor:"driver"`
	Staging    time.Duration `cbor:"staging_ns,omitempty"`
	Results    []Result      `cbor:"results"`
	Agreement  []Agreement   `cbor:"agreement,omitempty"`
	Remote     *RemoteCheck  `cbor:"remote,omitempty"`
}

// Result is the timing of one op on one backend.
type Result struct {
	Backend   string        `cbor:"backend"`
	Op        string        `cbor:"op"`
	Total     time.Duration `cbor:"total_ns"`
	PerOp     time.Duration `cbor:"per_op_ns"`
	OpsPerSec float64       `cbor:"ops_per_sec"`
}

// Agreement compares the scalar outcome of an op across backends.
type Agreement struct {
	Op      string  `cbor:"op"`
	CPU     float64 `cbor:"cpu"`
	GPU     float64 `cbor:"gpu"`
	RelDiff float64 `cbor:"rel_diff"`
}

type RemoteCheck struct {
	Server     string        `cbor:"server"`
	Rows       int           `cbor:"rows"`
	Cols       int           `cbor:"cols"`
	Elapsed    time.Duration `cbor:"elapsed_ns"`
	MaxRelDiff float64       `cbor:"max_rel_diff"`
}

func (r *Report) add(backendName, op string, total time.Duration, iterations int) {
	res := Result{Backend: backendName, Op: op, Total: total, PerOp: total / time.Duration(iterations)}
	if total > 0 {
		res.OpsPerSec = float64(iterations) / total.Seconds()
	}
	r.Results = append(r.Results, res)
	log.Info().
		Str("backend", backendName).
		Str("op", op).
		Dur("per_op", res.PerOp).
		Str("ops_per_sec", humanize.CommafWithDigits(res.OpsPerSec, 1)).
		Msg("Timed")
}

var reportEncoding = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func encodeReport(r *Report) ([]byte, error) {
	return reportEncoding.Marshal(r)
}

func decodeReport(b []byte) (*Report, error) {
	var r Report
	if err := cbor.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func writeReport(path string, r *Report) error {
	b, err := encodeReport(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// writeArrowStream writes cols as one record batch, each vector a column,
// in the Arrow IPC stream format. The columns share the vectors' memory.
func writeArrowStream[T dtype.Scalar](path string, names []string, cols []*container.Vector[T]) error {
	if len(names) != len(cols) || len(cols) == 0 {
		return fmt.Errorf("arrow stream: %d names for %d columns", len(names), len(cols))
	}
	fields := make([]arrow.Field, len(cols))
	arrs := make([]arrow.Array, len(cols))
	defer func() {
		for _, a := range arrs {
			if a != nil {
				a.Release()
			}
		}
	}()
	for i, v := range cols {
		arr, err := arrowvec.Export(v)
		if err != nil {
			return err
		}
		arrs[i] = arr
		fields[i] = arrow.Field{Name: names[i], Type: arr.DataType()}
	}
	rec := array.NewRecordBatch(arrow.NewSchema(fields, nil), arrs, int64(cols[0].Len()))
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	writer := ipc.NewWriter(f, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		_ = f.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
