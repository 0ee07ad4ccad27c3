package exchange

import (
	"context"
	"sync"

	"github.com/kevinxiao27/echo/eventlog"
	"github.com/kevinxiao27/echo/id"
	"github.com/kevinxiao27/echo/projection"
	"github.com/kevinxiao27/echo/protocol"
)

// Site owns an event log and exposes the two exchanges (incoming/outgoing)
// a peer pairing needs, plus the atomic local Event entry point. One
// mutex, one log, one insertion broadcaster: every write to the log (an
// exchange's setFn or a local Event call) and every subscription change on
// this site serializes through mu; exchanges read the log without it.
type Site[T any] struct {
	identifier id.Site
	log        *eventlog.Log[T]

	mu      sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
	tracer  protocol.Tracer
}

// New constructs an empty site with the given identifier.
func New[T any](identifier id.Site) *Site[T] {
	return &Site[T]{
		identifier: identifier,
		log:        eventlog.New[T](),
		subs:       make(map[int]chan struct{}),
		tracer:     protocol.NoopTracer{},
	}
}

// SetTracer installs a protocol.Tracer that every exchange run on this
// site reports its FSM effects to. Pass protocol.NewLitterTracer() to
// enable --trace-style structured dumps; New installs protocol.NoopTracer,
// which discards every trace.
func (s *Site[T]) SetTracer(tracer protocol.Tracer) { s.tracer = tracer }

// Identifier returns this site's immutable identifier.
func (s *Site[T]) Identifier() id.Site { return s.identifier }

// Log exposes the underlying event log for read-only inspection (tests,
// demo binaries printing diagnostics). Mutation must go through Event or
// an exchange's setFn — never call eventlog.Log.Set directly from outside
// this package, or insertion notifications will not fire.
func (s *Site[T]) Log() *eventlog.Log[T] { return s.log }

// subscribe registers a new insertion listener and returns its id and
// receive-only channel. Callers must unsubscribe when their exchange
// terminates to avoid leaking the channel and the publish work it costs.
func (s *Site[T]) subscribe() (int, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subID := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[subID] = ch
	return subID, ch
}

func (s *Site[T]) unsubscribe(subID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, subID)
}

// publishLocked notifies every subscriber that the log changed. Sends are
// non-blocking: each subscriber channel is buffered to depth one and
// coalesces any notifications it hasn't yet consumed, since a Sending
// state only needs "something changed", not the event identifier or a
// delivery per insertion. Callers must hold mu.
func (s *Site[T]) publishLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// EventScope is handed to the fn passed to Event; Yield appends a new
// event body authored by this site at the next available sequence number.
type EventScope[T any] struct {
	yield func(T)
}

// Yield appends body as a new local event.
func (y EventScope[T]) Yield(body T) { y.yield(body) }

// Event atomically appends zero or more locally-produced events. fn
// receives the current projected model (folded with projection.Append)
// and a scope to yield new event bodies. The whole block runs under the
// site mutex, so it is atomic with respect to every exchange's mutations
// (spec §4.7).
func (s *Site[T]) Event(_ context.Context, fn func(model []T, scope EventScope[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()

	model := eventlog.Foldl(s.log, []T(nil), projection.Append[T])

	scope := EventScope[T]{yield: func(body T) {
		seqno := s.log.ExpectedAll()
		if _, err := s.log.Set(seqno, s.identifier, body); err != nil {
			// A fresh seqno from ExpectedAll() can only collide with a
			// concurrent writer, and every writer to this site's own
			// partition holds s.mu — this should be unreachable.
			panic(err)
		}
		s.publishLocked()
	}}

	fn(model, scope)
}

// ReceiveExchange is the server side of a pairing: it serves this site's
// events to whatever consumes inbound on the other end.
type ReceiveExchange[T any] struct {
	site *Site[T]
}

// Run drives the incoming FSM until the peer's outgoing stream closes, the
// context is cancelled, or a protocol violation occurs.
func (e ReceiveExchange[T]) Run(ctx context.Context, inbound <-chan protocol.Outgoing, outbound chan<- protocol.Incoming[T]) error {
	subID, insertions := e.site.subscribe()
	defer e.site.unsubscribe(subID)
	return runIncoming(ctx, e.site.log, inbound, outbound, insertions, e.site.tracer)
}

// SendExchange is the client side of a pairing: it consumes events
// advertised and sent by whatever produces inbound on the other end.
type SendExchange[T any] struct {
	site *Site[T]
}

// Run drives the outgoing FSM until the peer's incoming stream closes, the
// context is cancelled, or a protocol violation occurs.
func (e SendExchange[T]) Run(ctx context.Context, inbound <-chan protocol.Incoming[T], outbound chan<- protocol.Outgoing) error {
	set := func(seqno id.Seq, site id.Site, body T) error {
		return mutate(e.site, seqno, site, body)
	}
	return runOutgoing(ctx, e.site.log, inbound, outbound, set, e.site.tracer)
}

// Incoming returns the server side of this site's pairing.
func (s *Site[T]) Incoming() ReceiveExchange[T] { return ReceiveExchange[T]{site: s} }

// Outgoing returns the client side of this site's pairing.
func (s *Site[T]) Outgoing() SendExchange[T] { return SendExchange[T]{site: s} }
