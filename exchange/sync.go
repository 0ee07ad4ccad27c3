package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/kevinxiao27/echo/protocol"
	"github.com/kevinxiao27/echo/transport/memory"
)

// ErrTransportFailure is a sentinel for transport-level errors, as opposed
// to a protocol.ErrProtocolViolation raised by the FSMs themselves. Couple
// and Sync do not wrap errors in it: they return an exchange's error as is,
// and transport/ws reports connection failures as transport.ErrFailure.
var ErrTransportFailure = errors.New("exchange: transport failure")

// Couple wires producer's incoming exchange to consumer's outgoing
// exchange over an in-memory link, runs both to completion, and returns
// the first non-nil error either side produced. This is the one-directional
// half of spec §6's sync primitive: "a.outgoing ↔ b.incoming".
func Couple[T any](ctx context.Context, consumer, producer *Site[T]) error {
	incomingRecv, incomingSend := memory.NewLink[protocol.Incoming[T]]()
	outgoingRecv, outgoingSend := memory.NewLink[protocol.Outgoing]()

	errs := make(chan error, 2)
	go func() { errs <- producer.Incoming().Run(ctx, outgoingRecv, incomingSend) }()
	go func() { errs <- consumer.Outgoing().Run(ctx, incomingRecv, outgoingSend) }()

	var first error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Sync couples every nearest-neighbor pair in sites in both directions —
// sites[i].Outgoing() ↔ sites[i+1].Incoming() and
// sites[i+1].Outgoing() ↔ sites[i].Incoming() — and blocks until every
// coupling terminates or ctx is cancelled. A chain of two sites is the
// common case; a longer chain synchronizes transitively, matching spec
// §6's "composes an arbitrary chain by looping this crossing".
func Sync[T any](ctx context.Context, sites ...*Site[T]) error {
	if len(sites) < 2 {
		return nil
	}

	errs := make(chan error, 2*(len(sites)-1))
	for i := 0; i < len(sites)-1; i++ {
		a, b := sites[i], sites[i+1]
		go func() { errs <- Couple(ctx, a, b) }()
		go func() { errs <- Couple(ctx, b, a) }()
	}

	var first error
	for i := 0; i < 2*(len(sites)-1); i++ {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RetryForever runs fn repeatedly, waiting delay between attempts, until
// it returns nil or ctx is cancelled — the "sync retries on any failure
// after a fixed delay (1s nominal) unless externally cancelled" behavior
// from spec §5. It is meant to wrap transport-backed syncs (e.g. over
// transport/ws), where fn failing is an expected, retriable event; it is
// not needed for the in-memory Sync above, which never fails on its own.
func RetryForever(ctx context.Context, delay time.Duration, fn func(ctx context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
