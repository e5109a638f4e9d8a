package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-linalg/internal/container"
	"github.com/23skdu/longbow-linalg/internal/errdefs"
	"github.com/23skdu/longbow-linalg/internal/interop/arrowvec"
)

// Client runs reductions on a remote Service.
type Client struct {
	client  flight.Client
	conn    *grpc.ClientConn
	breaker *Breaker
	alloc   memory.Allocator
}

type ClientOption func(*Client)

// WithBreaker replaces the default breaker, which opens after 5 consecutive
// failures for 10 seconds.
func WithBreaker(b *Breaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// Dial connects to a Service at addr. The connection is established lazily.
func Dial(addr string, opts ...ClientOption) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	c := &Client{
		client:  flight.NewClientFromConn(conn, nil),
		conn:    conn,
		breaker: NewBreaker(5, 10*time.Second),
		alloc:   memory.NewGoAllocator(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Reduce sends m to the service and returns the reduced vector. Calls fail
// with errdefs.ErrBackendUnavailable while the breaker is open.
func (c *Client) Reduce(ctx context.Context, op Op, m *container.Matrix[float64]) (*container.Vector[float64], error) {
	if err := m.Check(); err != nil {
		return nil, fmt.Errorf("remote %s: %w", op, err)
	}
	if !c.breaker.Allow() {
		breakerRejections.Inc()
		return nil, fmt.Errorf("remote %s: %w: circuit open", op, errdefs.ErrBackendUnavailable)
	}
	out, err := c.exchange(ctx, op, m)
	if err != nil {
		if transient(err) {
			c.breaker.Failure()
		} else {
			c.breaker.Success()
		}
		return nil, fmt.Errorf("remote %s: %w", op, err)
	}
	c.breaker.Success()
	return out, nil
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.ResourceExhausted, codes.Canceled:
		return false
	}
	return true
}

func (c *Client) exchange(ctx context.Context, op Op, m *container.Matrix[float64]) (*container.Vector[float64], error) {
	rec, err := arrowvec.Record(m, "matrix")
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	stream, err := c.client.DoExchange(ctx)
	if err != nil {
		return nil, err
	}
	writer := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{string(op)},
	})
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(c.alloc))
	if err != nil {
		return nil, err
	}
	defer reader.Release()
	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("no result batch")
	}
	view, err := arrowvec.View[float64](reader.Record().Column(0))
	if err != nil {
		return nil, err
	}
	// The view borrows the record, which is released on return.
	return view.Clone()
}

// Breaker returns the client's circuit breaker.
func (c *Client) Breaker() *Breaker { return c.breaker }

func (c *Client) Close() error {
	return c.conn.Close()
}
