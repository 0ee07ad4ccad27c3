package exchange_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinxiao27/echo/eventlog"
	"github.com/kevinxiao27/echo/exchange"
	"github.com/kevinxiao27/echo/id"
	"github.com/kevinxiao27/echo/projection"
)

func modelOf[T any](log *eventlog.Log[T]) []T {
	return eventlog.Foldl(log, []T(nil), projection.Append[T])
}

// syncFor runs Sync against a fresh context with its own deadline: every
// exchange in this design keeps its stream open until cancelled (it is a
// continuous-replication link, not a one-shot batch job), so each call
// needs its own settle window rather than sharing one across a test's
// several Sync invocations.
func syncFor(t *testing.T, window time.Duration, sites ...*exchange.Site[string]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()
	require.NoError(t, exchange.Sync(ctx, sites...))
}

const settle = 200 * time.Millisecond

func TestEmptySync(t *testing.T) {
	a := exchange.New[string](1)
	b := exchange.New[string](2)

	syncFor(t, settle, a, b)
	assert.Empty(t, modelOf(a.Log()))
	assert.Empty(t, modelOf(b.Log()))
}

func TestOneWayDelivery(t *testing.T) {
	a := exchange.New[string](1)
	b := exchange.New[string](2)

	a.Event(context.Background(), func(_ []string, y exchange.EventScope[string]) {
		y.Yield("x0")
		y.Yield("x1")
		y.Yield("x2")
	})

	syncFor(t, settle, a, b)

	assert.Equal(t, id.Seq(3), b.Log().Expected(a.Identifier()))
	assert.Equal(t, modelOf(a.Log()), modelOf(b.Log()))
}

func TestCrossedInsertion(t *testing.T) {
	a := exchange.New[string](1)
	b := exchange.New[string](2)

	a.Event(context.Background(), func(_ []string, y exchange.EventScope[string]) { y.Yield("a0") })
	b.Event(context.Background(), func(_ []string, y exchange.EventScope[string]) { y.Yield("b0") })

	syncFor(t, settle, a, b)

	modelA := modelOf(a.Log())
	modelB := modelOf(b.Log())
	assert.Equal(t, modelA, modelB)
	// site 1 < site 2, so a's event orders first at the tied seqno 0.
	assert.Equal(t, []string{"a0", "b0"}, modelA)
}

func TestGapTolerance(t *testing.T) {
	a := exchange.New[string](1)
	for i := 0; i < 6; i++ {
		a.Event(context.Background(), func(_ []string, y exchange.EventScope[string]) { y.Yield("e") })
	}

	b := exchange.New[string](2)
	// Pre-populate the gap-tolerant entry with the same body A will
	// eventually advertise, so the backfill is a no-op re-insert rather
	// than a genuine conflict.
	_, err := b.Log().Set(5, a.Identifier(), "e")
	require.NoError(t, err)

	syncFor(t, settle, a, b)

	assert.Equal(t, id.Seq(6), b.Log().Expected(a.Identifier()))
	for seqno := id.Seq(0); seqno < 6; seqno++ {
		_, ok := b.Log().Get(seqno, a.Identifier())
		assert.True(t, ok, "seqno %d should have been backfilled", seqno)
	}
}

func TestNoPhantomEvents(t *testing.T) {
	a := exchange.New[string](1)
	b := exchange.New[string](2)
	c := exchange.New[string](3)

	a.Event(context.Background(), func(_ []string, y exchange.EventScope[string]) { y.Yield("a0") })
	b.Event(context.Background(), func(_ []string, y exchange.EventScope[string]) { y.Yield("b0") })
	c.Event(context.Background(), func(_ []string, y exchange.EventScope[string]) { y.Yield("c0") })

	syncFor(t, settle, a, b)
	syncFor(t, settle, b, c)
	syncFor(t, settle, a, b)

	want := []string{"a0", "b0", "c0"}
	assert.ElementsMatch(t, want, modelOf(a.Log()))
	assert.ElementsMatch(t, want, modelOf(b.Log()))
	assert.ElementsMatch(t, want, modelOf(c.Log()))
}

func TestCancellationMidStreamYieldsNoPartialEvents(t *testing.T) {
	a := exchange.New[string](1)
	for i := 0; i < 1000; i++ {
		a.Event(context.Background(), func(_ []string, y exchange.EventScope[string]) { y.Yield("e") })
	}
	b := exchange.New[string](2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	require.NoError(t, exchange.Sync(ctx, a, b))

	got := b.Log().Expected(a.Identifier())
	for seqno := id.Seq(0); seqno < got; seqno++ {
		_, ok := b.Log().Get(seqno, a.Identifier())
		assert.True(t, ok, "seqno %d within expected prefix must be complete", seqno)
	}
}
