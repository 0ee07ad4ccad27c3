// Package eventlog implements the site-partitioned, ordered event store
// described by the replication core: an ImmutableEventLog reader contract
// plus the single PersistentEventLog mutator, Set.
//
// The reference representation is a map from site identifier to an ordered
// map of sequence number to event body. Each per-site ordered map is a
// github.com/zhangyunhao116/skipmap skip list, giving the O(log n) insert
// and O(log n) ascending range scan the spec's reference implementation
// calls for, and safe concurrent reads without an external lock.
package eventlog

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/zhangyunhao116/skipmap"

	"github.com/kevinxiao27/echo/id"
)

// ErrConflictingEvent is returned by Set when (seqno, site) is already
// recorded with a different body. See SPEC_FULL.md §9 for why this
// implementation detects rather than silently drops the conflict.
var ErrConflictingEvent = errors.New("eventlog: conflicting event body for existing (seqno, site)")

// ConflictError carries the detail of a conflicting re-insertion.
type ConflictError struct {
	Event id.Event
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("eventlog: event %s already recorded with a different body", e.Event)
}

func (e *ConflictError) Unwrap() error { return ErrConflictingEvent }

// Log is the concrete, in-memory PersistentEventLog implementation. The
// zero value is not usable; construct one with New.
type Log[T any] struct {
	mu    sync.RWMutex
	sites map[id.Site]*skipmap.OrderedMap[uint32, T]
}

// New returns an empty event log.
func New[T any]() *Log[T] {
	return &Log[T]{sites: make(map[id.Site]*skipmap.OrderedMap[uint32, T])}
}

func (l *Log[T]) siteMap(site id.Site) (*skipmap.OrderedMap[uint32, T], bool) {
	l.mu.RLock()
	m, ok := l.sites[site]
	l.mu.RUnlock()
	return m, ok
}

func (l *Log[T]) siteMapOrCreate(site id.Site) *skipmap.OrderedMap[uint32, T] {
	if m, ok := l.siteMap(site); ok {
		return m
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.sites[site]; ok {
		return m
	}
	m := skipmap.New[uint32, T]()
	l.sites[site] = m
	return m
}

// Sites returns the set of sites for which at least one event exists.
func (l *Log[T]) Sites() mapset.Set[id.Site] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := mapset.NewThreadUnsafeSet[id.Site]()
	for site, m := range l.sites {
		if m.Len() > 0 {
			out.Add(site)
		}
	}
	return out
}

// Expected returns the next sequence number this log expects for site:
// one past the highest recorded sequence number, or Zero if none.
func (l *Log[T]) Expected(site id.Site) id.Seq {
	m, ok := l.siteMap(site)
	if !ok {
		return id.Zero
	}
	found := false
	var max uint32
	// skipmap.Range visits keys in ascending order, so the last visited
	// key is the maximum recorded sequence number for this site.
	m.Range(func(seqno uint32, _ T) bool {
		max = seqno
		found = true
		return true
	})
	if !found {
		return id.Zero
	}
	return id.Seq(max).Inc()
}

// ExpectedAll returns the maximum of Expected over every site this log
// knows about, or Zero if the log is empty.
func (l *Log[T]) ExpectedAll() id.Seq {
	l.mu.RLock()
	sites := make([]id.Site, 0, len(l.sites))
	for site := range l.sites {
		sites = append(sites, site)
	}
	l.mu.RUnlock()

	max := id.Zero
	for _, site := range sites {
		if e := l.Expected(site); max.Less(e) {
			max = e
		}
	}
	return max
}

// Get performs an exact lookup of (seqno, site).
func (l *Log[T]) Get(seqno id.Seq, site id.Site) (T, bool) {
	m, ok := l.siteMap(site)
	if !ok {
		var zero T
		return zero, false
	}
	return m.Load(uint32(seqno))
}

// Events returns every event recorded for site with seqno >= from, in
// ascending sequence order.
func (l *Log[T]) Events(site id.Site, from id.Seq) []id.Value[T] {
	m, ok := l.siteMap(site)
	if !ok {
		return nil
	}
	var out []id.Value[T]
	m.Range(func(seqno uint32, body T) bool {
		if id.Seq(seqno) < from {
			return true
		}
		out = append(out, id.Value[T]{Event: id.Event{Seq: id.Seq(seqno), Site: site}, Body: body})
		return true
	})
	return out
}

// Set records (seqno, site) ↦ body if absent. If the key is already
// present with an equal body this is a no-op; if present with a different
// body it returns ConflictError. The returned log is always l itself: this
// implementation chooses the spec's "mutable map under an external lock"
// alternative over structural sharing (see SPEC_FULL.md §9/§11). Readers
// take no snapshot and hold no external lock: the site map is guarded by
// the log's own RWMutex and each per-site skip list is safe for concurrent
// reads.
func (l *Log[T]) Set(seqno id.Seq, site id.Site, body T) (*Log[T], error) {
	m := l.siteMapOrCreate(site)
	if existing, ok := m.LoadOrStore(uint32(seqno), body); ok {
		if !equalBody(existing, body) {
			return l, &ConflictError{Event: id.Event{Seq: seqno, Site: site}}
		}
	}
	return l, nil
}

// equalBody compares two event bodies for the idempotent-insert check.
// Bodies are application payloads of arbitrary shape: a body with an
// Equal(T) bool method is compared with it, and every other body, comparable
// or not, is compared by its fmt.Sprint formatting, so two bodies that print
// the same count as equal.
func equalBody[T any](a, b T) bool {
	if ca, ok := any(a).(interface{ Equal(T) bool }); ok {
		return ca.Equal(b)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Foldl left-folds every event in log, in ascending EventIdentifier order
// (sequence number, then site), into a model starting from initial.
// Iteration merges per-site ascending iterators with a min-heap over site
// heads, since sequence order alone does not imply a global order without
// tie-breaking on site.
//
// This is a free function rather than a method because Go methods cannot
// introduce a type parameter (M) beyond the receiver's own (T); the spec's
// log.foldl(initial, f) becomes Foldl(log, initial, f).
func Foldl[T, M any](l *Log[T], initial M, f func(acc M, ev id.Value[T]) M) M {
	l.mu.RLock()
	heads := make([]*siteCursor[T], 0, len(l.sites))
	for site, m := range l.sites {
		entries := make([]id.Value[T], 0, m.Len())
		m.Range(func(seqno uint32, body T) bool {
			entries = append(entries, id.Value[T]{Event: id.Event{Seq: id.Seq(seqno), Site: site}, Body: body})
			return true
		})
		if len(entries) > 0 {
			heads = append(heads, &siteCursor[T]{entries: entries})
		}
	}
	l.mu.RUnlock()

	h := cursorHeap[T](heads)
	heap.Init(&h)

	acc := initial
	for h.Len() > 0 {
		cur := h[0]
		acc = f(acc, cur.entries[cur.pos])
		cur.pos++
		if cur.pos == len(cur.entries) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return acc
}

type siteCursor[T any] struct {
	entries []id.Value[T]
	pos     int
}

type cursorHeap[T any] []*siteCursor[T]

func (h cursorHeap[T]) Len() int { return len(h) }
func (h cursorHeap[T]) Less(i, j int) bool {
	return h[i].entries[h[i].pos].Event.Less(h[j].entries[h[j].pos].Event)
}
func (h cursorHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap[T]) Push(x any)   { *h = append(*h, x.(*siteCursor[T])) }
func (h *cursorHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
