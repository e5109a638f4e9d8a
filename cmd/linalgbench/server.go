package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
	"github.com/23skdu/longbow-linalg/internal/linalg"
	"github.com/23skdu/longbow-linalg/internal/remote"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linalgbench_request_duration_seconds",
		Help:    "Time spent serving HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})

	elementsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linalgbench_elements_processed_total",
		Help: "The total number of input elements processed",
	})
)

var tracer = otel.Tracer("linalgbench-server")

// Reducer runs a reduction elsewhere. *remote.Client implements it.
type Reducer interface {
	Reduce(ctx context.Context, op remote.Op, m *container.Matrix[float64]) (*container.Vector[float64], error)
	Close() error
}

type dotRequest struct {
	A []float64 `cbor:"a"`
	B []float64 `cbor:"b"`
}

type dotResponse struct {
	Dot float64 `cbor:"dot"`
}

// reduceRequest carries a column-major matrix.
type reduceRequest struct {
	Op   string    `cbor:"op"`
	Rows int       `cbor:"rows"`
	Data []float64 `cbor:"data"`
}

type reduceResponse struct {
	Values []float64 `cbor:"values"`
}

type Server struct {
	d       *linalg.Dispatcher
	forward Reducer

	// sem bounds the number of elements held by in-flight requests.
	sem         *semaphore.Weighted
	maxElements int64
}

// NewServer serves kernels through d. Reductions go to forward when it is
// non-nil. maxElements bounds the elements admitted at once.
func NewServer(d *linalg.Dispatcher, forward Reducer, maxElements int64) *Server {
	return &Server{d: d, forward: forward, sem: semaphore.NewWeighted(maxElements), maxElements: maxElements}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/dot", s.handleDot)
	mux.HandleFunc("/reduce", s.handleReduce)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func startServer(addr string, s *Server) *http.Server {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	log.Info().Str("addr", addr).Msg("Starting HTTP server")
	if s.forward != nil {
		log.Info().Msg("Forwarding reductions to remote service")
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()
	return srv
}

func observe(handler string) func() {
	start := time.Now()
	return func() { requestDuration.WithLabelValues(handler).Observe(time.Since(start).Seconds()) }
}

// decode reads a CBOR body into v, answering the request itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := cbor.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func reply(w http.ResponseWriter, v any) {
	b, err := cbor.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	_, _ = w.Write(b)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrBadOperand),
		errors.Is(err, errdefs.ErrDimensionMismatch),
		errors.Is(err, errdefs.ErrUnsupportedType),
		errors.Is(err, errdefs.ErrUnsupportedOp):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrAllocation),
		errors.Is(err, errdefs.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// admit reserves n elements, answering the request itself on failure.
func (s *Server) admit(ctx context.Context, w http.ResponseWriter, n int) bool {
	if int64(n) > s.maxElements {
		http.Error(w, fmt.Sprintf("%d elements exceed the limit of %d", n, s.maxElements), http.StatusRequestEntityTooLarge)
		return false
	}
	if err := s.sem.Acquire(ctx, int64(n)); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) handleDot(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleDot")
	defer span.End()
	defer observe("dot")()

	var req dotRequest
	if !decode(w, r, &req) {
		return
	}
	n := len(req.A) + len(req.B)
	span.SetAttributes(attribute.Int("elements", n))
	if !s.admit(ctx, w, n) {
		return
	}
	defer s.sem.Release(int64(n))

	res, err := func() (float64, error) {
		a, err := container.VectorFrom(req.A)
		if err != nil {
			return 0, err
		}
		b, err := container.VectorFrom(req.B)
		if err != nil {
			return 0, err
		}
		return linalg.Dot[float64](ctx, s.d, a, b)
	}()
	if err != nil {
		span.RecordError(err)
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	elementsProcessed.Add(float64(n))
	reply(w, dotResponse{Dot: res})
}

func (s *Server) handleReduce(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleReduce")
	defer span.End()
	defer observe("reduce")()

	var req reduceRequest
	if !decode(w, r, &req) {
		return
	}
	span.SetAttributes(
		attribute.String("op", req.Op),
		attribute.Int("rows", req.Rows),
		attribute.Bool("forwarded", s.forward != nil),
	)
	if req.Rows <= 0 || len(req.Data)%req.Rows != 0 {
		http.Error(w, fmt.Sprintf("%d values do not form %d rows", len(req.Data), req.Rows), http.StatusBadRequest)
		return
	}
	if !s.admit(ctx, w, len(req.Data)) {
		return
	}
	defer s.sem.Release(int64(len(req.Data)))

	res, err := func() (*container.Vector[float64], error) {
		m, err := container.MatrixFrom(req.Rows, len(req.Data)/req.Rows, req.Data)
		if err != nil {
			return nil, err
		}
		if s.forward != nil {
			return s.forward.Reduce(ctx, remote.Op(req.Op), m)
		}
		return remote.Reduce(ctx, s.d, remote.Op(req.Op), m)
	}()
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("op", req.Op).Msg("Reduce failed")
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	elementsProcessed.Add(float64(len(req.Data)))
	reply(w, reduceResponse{Values: res.Data()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
