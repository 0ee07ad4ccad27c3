// Package exchange binds the protocol FSMs to concrete channels and a
// shared event log: it is the duplex-stream driver described in
// SPEC_FULL.md component 5, plus the Site that owns a log, a projection,
// and the pair of exchanges built from it.
package exchange

import (
	"context"

	"github.com/kevinxiao27/echo/eventlog"
	"github.com/kevinxiao27/echo/id"
	"github.com/kevinxiao27/echo/protocol"
)

// runIncoming drives the incoming FSM (the side that serves events) against
// inbound/outbound channels until it terminates or errors, per spec §4.6:
//
//	state ← initial()
//	loop: effect ← state.Step(...); Move|MoveToError|Terminate
func runIncoming[T any](ctx context.Context, log *eventlog.Log[T], inbound <-chan protocol.Outgoing, outbound chan<- protocol.Incoming[T], insertions <-chan struct{}, tracer protocol.Tracer) error {
	state := protocol.NewIncoming[T](log.Sites())
	for {
		effect := state.Step(ctx, log, inbound, outbound, insertions)
		tracer.Trace("incoming.effect", effect.Kind)
		switch effect.Kind {
		case protocol.EffectMove:
			state = effect.Next
		case protocol.EffectError:
			return effect.Err
		case protocol.EffectTerminate:
			return nil
		}
	}
}

// runOutgoing drives the outgoing FSM (the side that consumes events)
// against inbound/outbound channels until it terminates or errors.
func runOutgoing[T any](ctx context.Context, log *eventlog.Log[T], inbound <-chan protocol.Incoming[T], outbound chan<- protocol.Outgoing, set protocol.SetFunc[T], tracer protocol.Tracer) error {
	state := protocol.NewOutgoing[T]()
	for {
		effect := state.Step(ctx, log, inbound, outbound, set)
		tracer.Trace("outgoing.effect", effect.Kind)
		switch effect.Kind {
		case protocol.EffectMove:
			state = effect.Next
		case protocol.EffectError:
			return effect.Err
		case protocol.EffectTerminate:
			return nil
		}
	}
}

// mutate is the runtime's single shared setFn (spec §4.6): it acquires the
// log mutex, checks for an existing binding, writes if absent, and
// publishes an insertion notification only when the write was novel.
func mutate[T any](s *Site[T], seqno id.Seq, site id.Site, body T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.log.Get(seqno, site)
	if _, err := s.log.Set(seqno, site, body); err != nil {
		return err
	}
	if !existed {
		s.publishLocked()
	}
	return nil
}
