// Command linalgbench times vector kernels on the CPU and GPU backends and
// checks that both agree. It can also serve reductions over HTTP and Arrow
// Flight.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-linalg/internal/dtype"
	"github.com/23skdu/longbow-linalg/internal/linalg"
	"github.com/23skdu/longbow-linalg/internal/remote"
)

var (
	flagN           = flag.Int("n", 1<<20, "Vector length")
	flagIterations  = flag.Int("iterations", 10, "Timed iterations per operation")
	flagGPU         = flag.String("gpu", "none", "GPU driver (none, emulated, cuda)")
	flagDeviceMem   = flag.String("device-mem", "", "Device memory limit (e.g. 512MB)")
	flagDeviceConc  = flag.Int("device-concurrency", 0, "Maximum concurrent GPU operations (0 = unbounded)")
	flagWorkers     = flag.Int("workers", 0, "CPU worker goroutines (0 = all CPUs)")
	flagDType       = flag.String("dtype", "float64", "Element type (float32, float64, int32, int64)")
	flagOTel        = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	flagReport      = flag.String("report", "", "Write a CBOR report to this file")
	flagArrowOut    = flag.String("arrow-out", "", "Write inputs and CPU results as an Arrow IPC stream to this file")
	flagCPUProfile  = flag.String("cpuprofile", "", "Write cpu profile to file")
	flagListen      = flag.String("listen", "", "Serve /metrics, /health, /dot and /reduce on this address (e.g. :8080)")
	flagFlight      = flag.String("flight", "", "Serve reductions over Arrow Flight on this address (e.g. :9090)")
	flagServer      = flag.String("server", "", "Remote Flight service to check reductions against")
	flagRemoteRows  = flag.Int("remote-rows", 256, "Rows of the matrix sent to -server")
	flagRemoteCheck = flag.Duration("remote-timeout", 30*time.Second, "Timeout for the remote check")
	flagMaxInflight = flag.Int64("max-inflight", 1<<24, "Elements admitted concurrently by the HTTP server")
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *flagOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	if *flagCPUProfile != "" {
		f, err := os.Create(*flagCPUProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	cfg := linalg.Config{
		GPU:               *flagGPU,
		DeviceMemory:      *flagDeviceMem,
		DeviceConcurrency: *flagDeviceConc,
		Workers:           *flagWorkers,
	}
	d, err := linalg.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure backends")
	}
	defer func() {
		if err := d.Teardown(); err != nil {
			log.Warn().Err(err).Msg("Teardown failed")
		}
	}()

	if *flagListen != "" || *flagFlight != "" {
		serveUntilInterrupted(d)
		return
	}

	dt, err := dtype.Parse(*flagDType)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad -dtype")
	}
	log.Info().
		Str("n", humanize.Comma(int64(*flagN))).
		Int("iterations", *flagIterations).
		Stringer("dtype", dt).
		Str("gpu", *flagGPU).
		Msg("Starting benchmark")

	opts := benchOptions{N: *flagN, Iterations: *flagIterations, ArrowOut: *flagArrowOut}
	report, err := runFor(context.Background(), d, dt, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Benchmark failed")
	}
	report.Driver = *flagGPU

	if *flagServer != "" {
		ctx, cancel := context.WithTimeout(context.Background(), *flagRemoteCheck)
		rc, err := remoteCheck(ctx, d, *flagServer, *flagRemoteRows)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("server", *flagServer).Msg("Remote check failed")
		} else {
			report.Remote = rc
		}
	}

	if *flagReport != "" {
		if err := writeReport(*flagReport, report); err != nil {
			log.Fatal().Err(err).Msg("Failed to write report")
		}
		log.Info().Str("path", *flagReport).Msg("Report written")
	}
}

// serveUntilInterrupted runs the HTTP and Flight listeners until SIGINT.
func serveUntilInterrupted(d *linalg.Dispatcher) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var forward Reducer
	if *flagServer != "" {
		c, err := remote.Dial(*flagServer)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create flight client")
		}
		defer func() { _ = c.Close() }()
		log.Info().Str("addr", *flagServer).Msg("Forwarding reductions to Flight service")
		forward = c
	}

	if *flagFlight != "" {
		fs, err := remote.Listen(*flagFlight, remote.NewService(d))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to init Flight server")
		}
		go func() {
			if err := fs.Serve(); err != nil {
				log.Error().Err(err).Msg("Flight server failed")
			}
		}()
		defer fs.Shutdown()
	}

	if *flagListen != "" {
		srv := startServer(*flagListen, NewServer(d, forward, *flagMaxInflight))
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("linalgbench"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
