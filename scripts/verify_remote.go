//go:build ignore

// verify_remote sends a small matrix to a running reduction service
// (linalgbench -flight) and checks every op against the expected values.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/remote"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := "localhost:9090"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	log.Info().Str("addr", addr).Msg("Connecting to reduction service")

	c, err := remote.Dial(addr, remote.WithBreaker(remote.NewBreaker(20, time.Second)))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create client")
	}
	defer c.Close()

	// Column-major 2x3: columns (3,4) (1,1) (0,2).
	m, err := container.MatrixFrom(2, 3, []float64{3, 4, 1, 1, 0, 2})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build matrix")
	}
	want := map[remote.Op][]float64{
		remote.SumCols:  {7, 2, 2},
		remote.SumRows:  {4, 7},
		remote.NormCols: {5, math.Sqrt2, 2},
	}

	// The service may still be starting; retry the first call.
	var got *container.Vector[float64]
	for i := 0; i < 10; i++ {
		got, err = c.Reduce(context.Background(), remote.SumCols, m)
		if err == nil {
			break
		}
		log.Warn().Err(err).Msg("Reduce failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to reach service after retries")
	}
	check(remote.SumCols, got.Data(), want[remote.SumCols])

	for _, op := range []remote.Op{remote.SumRows, remote.NormCols} {
		start := time.Now()
		got, err := c.Reduce(context.Background(), op, m)
		if err != nil {
			log.Fatal().Err(err).Str("op", string(op)).Msg("Reduce failed")
		}
		log.Info().Str("op", string(op)).Dur("elapsed", time.Since(start)).Msg("Received result")
		check(op, got.Data(), want[op])
	}

	fmt.Println("VERIFICATION PASSED")
}

func check(op remote.Op, got, want []float64) {
	if len(got) != len(want) {
		log.Fatal().Str("op", string(op)).Int("expected", len(want)).Int("got", len(got)).Msg("Length mismatch")
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			log.Fatal().Str("op", string(op)).Int("index", i).Float64("expected", want[i]).Float64("got", got[i]).Msg("Value mismatch")
		}
	}
	log.Info().Str("op", string(op)).Floats64("values", got).Msg("Result valid")
}
