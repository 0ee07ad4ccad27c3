package protocol

import "github.com/kevinxiao27/echo/id"

// IncomingTag discriminates the alphabet sent by the passive side (the
// data source) to the active side (the data consumer).
type IncomingTag int

const (
	TagAdvertisement IncomingTag = iota
	TagReady
	TagEvent
	TagIncomingDone
)

func (t IncomingTag) String() string {
	switch t {
	case TagAdvertisement:
		return "Advertisement"
	case TagReady:
		return "Ready"
	case TagEvent:
		return "Event"
	case TagIncomingDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Incoming is a single message in the incoming alphabet. Only the fields
// relevant to Tag are meaningful, mirroring the teacher's InnerOp pattern
// of one tagged struct carrying fields used only for certain tags.
type Incoming[T any] struct {
	Tag  IncomingTag
	Site id.Site // Advertisement, Event
	Seq  id.Seq  // Event
	Body T       // Event
}

func Advertisement[T any](site id.Site) Incoming[T] {
	return Incoming[T]{Tag: TagAdvertisement, Site: site}
}

func Ready[T any]() Incoming[T] {
	return Incoming[T]{Tag: TagReady}
}

func Event[T any](seqno id.Seq, site id.Site, body T) Incoming[T] {
	return Incoming[T]{Tag: TagEvent, Seq: seqno, Site: site, Body: body}
}

func IncomingDone[T any]() Incoming[T] {
	return Incoming[T]{Tag: TagIncomingDone}
}

// OutgoingTag discriminates the alphabet sent by the active side (the data
// consumer) back to the passive side (the data source).
type OutgoingTag int

const (
	TagAcknowledge OutgoingTag = iota
	TagRequest
	TagOutgoingDone
)

func (t OutgoingTag) String() string {
	switch t {
	case TagAcknowledge:
		return "Acknowledge"
	case TagRequest:
		return "Request"
	case TagOutgoingDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Outgoing is a single message in the outgoing alphabet.
type Outgoing struct {
	Tag         OutgoingTag
	Site        id.Site // Acknowledge, Request
	NextSeqno   id.Seq  // Acknowledge: do not resend below this
	NextForSite id.Seq  // Request: start sending from this seqno
	NextForAll  id.Seq  // Request: consumer's overall expected seqno
	Count       id.Seq  // Request: credit granted
}

func Acknowledge(site id.Site, nextSeqno id.Seq) Outgoing {
	return Outgoing{Tag: TagAcknowledge, Site: site, NextSeqno: nextSeqno}
}

func Request(site id.Site, nextForSite, nextForAll, count id.Seq) Outgoing {
	return Outgoing{Tag: TagRequest, Site: site, NextForSite: nextForSite, NextForAll: nextForAll, Count: count}
}

func OutgoingDone() Outgoing {
	return Outgoing{Tag: TagOutgoingDone}
}

// MaxCredit is the credit count granted by a fresh Request: the spec's
// MAX_LONG, realized here as the saturating ceiling of the Seq type used
// for credit counters (SPEC_FULL.md §9 "Credit saturation").
const MaxCredit = id.Seq(^uint32(0))
