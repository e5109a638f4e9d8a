package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-linalg/internal/errdefs"
	"github.com/23skdu/longbow-linalg/internal/interop/arrowvec"
	"github.com/23skdu/longbow-linalg/internal/linalg"
)

var tracer = otel.Tracer("github.com/23skdu/longbow-linalg/internal/remote")

var resultSchema = arrow.NewSchema([]arrow.Field{{Name: "result", Type: arrow.PrimitiveTypes.Float64}}, nil)

// Service is the Flight handler. Only DoExchange is implemented.
type Service struct {
	flight.BaseFlightServer
	d      *linalg.Dispatcher
	alloc  memory.Allocator
	logger zerolog.Logger
}

type ServiceOption func(*Service)

func WithAllocator(mem memory.Allocator) ServiceOption {
	return func(s *Service) { s.alloc = mem }
}

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(d *linalg.Dispatcher, opts ...ServiceOption) *Service {
	s := &Service{d: d, alloc: memory.NewGoAllocator(), logger: log.Logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	ctx, span := tracer.Start(stream.Context(), "remote.DoExchange")
	defer span.End()

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	desc := reader.LatestFlightDescriptor()
	if desc == nil || len(desc.Path) == 0 {
		return status.Error(codes.InvalidArgument, "descriptor path must name the reduction")
	}
	op := Op(desc.Path[0])
	span.SetAttributes(attribute.String("remote.op", string(op)))

	start := time.Now()
	defer func() {
		exchangeDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
	}()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(resultSchema), ipc.WithAllocator(s.alloc))
	defer func() { _ = writer.Close() }()

	for reader.Next() {
		out, err := s.reduce(ctx, op, reader.Record())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, errdefs.Kind(err))
			s.logger.Warn().Err(err).Str("op", string(op)).Msg("Remote reduction failed")
			return status.Error(codeOf(err), err.Error())
		}
		err = writer.Write(out)
		out.Release()
		if err != nil {
			return err
		}
		batchesServed.WithLabelValues(string(op)).Inc()
	}
	return reader.Err()
}

func (s *Service) reduce(ctx context.Context, op Op, rec arrow.RecordBatch) (arrow.RecordBatch, error) {
	if rec.NumCols() != 1 {
		return nil, fmt.Errorf("remote: %w: want one matrix column, got %d", errdefs.ErrBadOperand, rec.NumCols())
	}
	col, ok := rec.Column(0).(*array.FixedSizeList)
	if !ok {
		return nil, fmt.Errorf("remote: %w: matrix column is %s, not a fixed size list", errdefs.ErrBadOperand, rec.Column(0).DataType())
	}
	m, err := arrowvec.ViewMatrix[float64](col)
	if err != nil {
		return nil, err
	}
	res, err := Reduce(ctx, s.d, op, m)
	if err != nil {
		return nil, err
	}
	arr, err := arrowvec.Copy(s.alloc, res)
	if err != nil {
		return nil, err
	}
	defer arr.Release()
	return array.NewRecordBatch(resultSchema, []arrow.Array{arr}, int64(arr.Len())), nil
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, errdefs.ErrBadOperand), errors.Is(err, errdefs.ErrDimensionMismatch),
		errors.Is(err, errdefs.ErrUnsupportedType), errors.Is(err, errdefs.ErrUnsupportedOp):
		return codes.InvalidArgument
	case errors.Is(err, errdefs.ErrAllocation):
		return codes.ResourceExhausted
	case errors.Is(err, errdefs.ErrBackendUnavailable):
		return codes.Unavailable
	}
	return codes.Internal
}

// Listen binds a Flight server serving svc to addr. The caller runs Serve
// and Shutdown.
func Listen(addr string, svc *Service) (flight.Server, error) {
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(svc)
	if err := server.Init(addr); err != nil {
		return nil, err
	}
	svc.logger.Info().Str("addr", server.Addr().String()).Msg("Flight reduction service listening")
	return server, nil
}
