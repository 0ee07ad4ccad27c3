package protocol

import (
	"context"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/kevinxiao27/echo/eventlog"
	"github.com/kevinxiao27/echo/id"
)

// IncomingState is a state of the FSM that serves events to a peer: its
// Step reads the peer's outgoing stream and writes the local incoming
// stream. States are a sealed sum: New | Sending, realized as an interface
// with an unexported marker method so no other package can implement it.
type IncomingState[T any] interface {
	Step(ctx context.Context, log *eventlog.Log[T], inbound <-chan Outgoing, outbound chan<- Incoming[T], insertions <-chan struct{}) Effect[IncomingState[T]]
	isIncomingState()
}

// NewIncoming constructs the initial New state, parameterized by a
// snapshot of the sites this site currently knows about.
func NewIncoming[T any](sites mapset.Set[id.Site]) IncomingState[T] {
	remaining := sites.ToSlice()
	sort.Slice(remaining, func(i, j int) bool { return remaining[i] < remaining[j] })
	return &newState[T]{alreadySent: mapset.NewThreadUnsafeSet[id.Site](), remaining: remaining}
}

type newState[T any] struct {
	alreadySent mapset.Set[id.Site]
	remaining   []id.Site
}

func (*newState[T]) isIncomingState() {}

func (s *newState[T]) Step(ctx context.Context, _ *eventlog.Log[T], inbound <-chan Outgoing, outbound chan<- Incoming[T], _ <-chan struct{}) Effect[IncomingState[T]] {
	// Priority: a received message (or cancellation) wins the select so
	// that cancellation is observed promptly, per spec §4.4. A message that
	// arrives once ctx is cancelled (such as the peer's Done after the same
	// cancellation) ends the exchange like a closed channel.
	select {
	case <-ctx.Done():
		return Terminate[IncomingState[T]]()
	case _, ok := <-inbound:
		if !ok || ctx.Err() != nil {
			return Terminate[IncomingState[T]]()
		}
		return MoveToError[IncomingState[T]](violation("New", "any message"))
	default:
	}

	var toSend Incoming[T]
	if len(s.remaining) > 0 {
		toSend = Advertisement[T](s.remaining[len(s.remaining)-1])
	} else {
		toSend = Ready[T]()
	}

	select {
	case <-ctx.Done():
		return Terminate[IncomingState[T]]()
	case _, ok := <-inbound:
		if !ok || ctx.Err() != nil {
			return Terminate[IncomingState[T]]()
		}
		return MoveToError[IncomingState[T]](violation("New", "any message"))
	case outbound <- toSend:
		if len(s.remaining) > 0 {
			site := s.remaining[len(s.remaining)-1]
			s.remaining = s.remaining[:len(s.remaining)-1]
			s.alreadySent.Add(site)
			return Move[IncomingState[T]](s)
		}
		return Move[IncomingState[T]](&sendingState[T]{
			advertised:       s.alreadySent,
			nextSeqnoPerSite: map[id.Site]id.Seq{},
			creditsPerSite:   map[id.Site]id.Seq{},
		})
	}
}

type sendingState[T any] struct {
	advertised       mapset.Set[id.Site]
	nextSeqnoPerSite map[id.Site]id.Seq
	creditsPerSite   map[id.Site]id.Seq
}

func (*sendingState[T]) isIncomingState() {}

// nextEventToSend picks the deterministic next event to offer: the
// smallest seqno event for the first qualifying site in ascending
// SiteIdentifier order, where "qualifying" means advertised, credited, and
// the log holds an event at or after the site's next-expected seqno.
func (s *sendingState[T]) nextEventToSend(log *eventlog.Log[T]) (id.Value[T], bool) {
	sites := s.advertised.ToSlice()
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })

	for _, site := range sites {
		if s.creditsPerSite[site] == 0 {
			continue
		}
		from := s.nextSeqnoPerSite[site]
		events := log.Events(site, from)
		if len(events) > 0 {
			return events[0], true
		}
	}
	return id.Value[T]{}, false
}

// nextSiteToAdvertise picks the smallest site (by identifier) known to the
// log that has not yet been advertised to this peer.
func (s *sendingState[T]) nextSiteToAdvertise(log *eventlog.Log[T]) (id.Site, bool) {
	sites := log.Sites().ToSlice()
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	for _, site := range sites {
		if !s.advertised.Contains(site) {
			return site, true
		}
	}
	return 0, false
}

func (s *sendingState[T]) Step(ctx context.Context, log *eventlog.Log[T], inbound <-chan Outgoing, outbound chan<- Incoming[T], insertions <-chan struct{}) Effect[IncomingState[T]] {
	var sendEvent chan<- Incoming[T]
	var eventMsg Incoming[T]
	if ev, ok := s.nextEventToSend(log); ok {
		sendEvent = outbound
		eventMsg = Event(ev.Seq, ev.Site, ev.Body)
	}

	var sendAdvert chan<- Incoming[T]
	var advertMsg Incoming[T]
	if sendEvent == nil {
		if site, ok := s.nextSiteToAdvertise(log); ok {
			sendAdvert = outbound
			advertMsg = Advertisement[T](site)
		}
	}

	select {
	case <-ctx.Done():
		return Terminate[IncomingState[T]]()

	case msg, ok := <-inbound:
		if !ok {
			return Terminate[IncomingState[T]]()
		}
		switch msg.Tag {
		case TagAcknowledge:
			s.nextSeqnoPerSite[msg.Site] = msg.NextSeqno
			s.creditsPerSite[msg.Site] = 0
		case TagRequest:
			s.creditsPerSite[msg.Site] = id.AddCredit(s.creditsPerSite[msg.Site], msg.Count)
		case TagOutgoingDone:
			return Terminate[IncomingState[T]]()
		}
		return Move[IncomingState[T]](s)

	case <-insertions:
		// Re-enter the step to re-evaluate what may now be sendable; the
		// notification itself carries no state we need beyond "something
		// changed".
		return Move[IncomingState[T]](s)

	case sendEvent <- eventMsg:
		s.creditsPerSite[eventMsg.Site]--
		s.nextSeqnoPerSite[eventMsg.Site] = eventMsg.Seq.Inc()
		return Move[IncomingState[T]](s)

	case sendAdvert <- advertMsg:
		s.advertised.Add(advertMsg.Site)
		return Move[IncomingState[T]](s)
	}
}
