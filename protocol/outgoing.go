package protocol

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/kevinxiao27/echo/eventlog"
	"github.com/kevinxiao27/echo/id"
)

// SetFunc is the runtime-provided mutator a Listening state invokes when it
// receives an Event message. It is the same setFn described in spec §4.6:
// acquire the log mutex, check for a conflict, write if novel, and publish
// an insertion notification.
type SetFunc[T any] func(seqno id.Seq, site id.Site, body T) error

// OutgoingState is a state of the FSM that consumes events from a peer:
// its Step reads the peer's incoming stream and writes the local outgoing
// stream. States are a sealed sum: Advertising | Listening | Cancelling.
type OutgoingState[T any] interface {
	Step(ctx context.Context, log *eventlog.Log[T], inbound <-chan Incoming[T], outbound chan<- Outgoing, set SetFunc[T]) Effect[OutgoingState[T]]
	isOutgoingState()
}

// NewOutgoing constructs the initial Advertising state.
func NewOutgoing[T any]() OutgoingState[T] {
	return &advertisingState[T]{}
}

type advertisingState[T any] struct {
	available []id.Site
}

func (*advertisingState[T]) isOutgoingState() {}

func (s *advertisingState[T]) Step(ctx context.Context, _ *eventlog.Log[T], inbound <-chan Incoming[T], _ chan<- Outgoing, _ SetFunc[T]) Effect[OutgoingState[T]] {
	select {
	case <-ctx.Done():
		return Move[OutgoingState[T]](&cancellingState[T]{})

	case msg, ok := <-inbound:
		if !ok {
			return Move[OutgoingState[T]](&cancellingState[T]{})
		}
		switch msg.Tag {
		case TagAdvertisement:
			s.available = append(s.available, msg.Site)
			return Move[OutgoingState[T]](s)
		case TagReady:
			return Move[OutgoingState[T]](&listeningState[T]{
				pendingRequests: s.available,
				requested:       mapset.NewThreadUnsafeSet[id.Site](),
			})
		case TagEvent:
			return MoveToError[OutgoingState[T]](violation("Advertising", "Event before Ready"))
		case TagIncomingDone:
			return Move[OutgoingState[T]](&cancellingState[T]{})
		}
		return Move[OutgoingState[T]](s)
	}
}

type listeningState[T any] struct {
	pendingRequests []id.Site
	requested       mapset.Set[id.Site]
}

func (*listeningState[T]) isOutgoingState() {}

func (s *listeningState[T]) Step(ctx context.Context, log *eventlog.Log[T], inbound <-chan Incoming[T], outbound chan<- Outgoing, set SetFunc[T]) Effect[OutgoingState[T]] {
	// Drop any site at the top of the stack that was already requested —
	// a racing double advertisement (spec §8 scenario 6) can push the same
	// site onto pendingRequests twice, but requested ensures at most one
	// outstanding Request per site. This is plain bookkeeping, not a
	// channel branch, so it happens before the select rather than inside it.
	for len(s.pendingRequests) > 0 && s.requested.Contains(s.pendingRequests[len(s.pendingRequests)-1]) {
		s.pendingRequests = s.pendingRequests[:len(s.pendingRequests)-1]
	}

	var sendRequest chan<- Outgoing
	var requestMsg Outgoing
	var requestSite id.Site
	if len(s.pendingRequests) > 0 {
		requestSite = s.pendingRequests[len(s.pendingRequests)-1]
		sendRequest = outbound
		requestMsg = Request(requestSite, log.Expected(requestSite), log.ExpectedAll(), MaxCredit)
	}

	select {
	case <-ctx.Done():
		return Move[OutgoingState[T]](&cancellingState[T]{})

	case msg, ok := <-inbound:
		if !ok {
			return Move[OutgoingState[T]](&cancellingState[T]{})
		}
		switch msg.Tag {
		case TagAdvertisement:
			s.pendingRequests = append(s.pendingRequests, msg.Site)
			return Move[OutgoingState[T]](s)
		case TagEvent:
			if err := set(msg.Seq, msg.Site, msg.Body); err != nil {
				return MoveToError[OutgoingState[T]](err)
			}
			return Move[OutgoingState[T]](s)
		case TagReady:
			return MoveToError[OutgoingState[T]](violation("Listening", "Ready"))
		case TagIncomingDone:
			return Move[OutgoingState[T]](&cancellingState[T]{})
		}
		return Move[OutgoingState[T]](s)

	case sendRequest <- requestMsg:
		s.pendingRequests = s.pendingRequests[:len(s.pendingRequests)-1]
		s.requested.Add(requestSite)
		return Move[OutgoingState[T]](s)
	}
}

type cancellingState[T any] struct {
	sent bool
}

func (*cancellingState[T]) isOutgoingState() {}

func (s *cancellingState[T]) Step(ctx context.Context, _ *eventlog.Log[T], _ <-chan Incoming[T], outbound chan<- Outgoing, _ SetFunc[T]) Effect[OutgoingState[T]] {
	if s.sent {
		return Terminate[OutgoingState[T]]()
	}
	select {
	case <-ctx.Done():
		// The caller is gone; nothing to send to.
		return Terminate[OutgoingState[T]]()
	case outbound <- OutgoingDone():
		s.sent = true
		return Terminate[OutgoingState[T]]()
	}
}
