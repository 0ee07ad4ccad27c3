package eventlog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinxiao27/echo/eventlog"
	"github.com/kevinxiao27/echo/id"
)

func concat(acc string, ev id.Value[string]) string {
	return acc + ev.Body
}

func TestReadAfterWrite(t *testing.T) {
	log := eventlog.New[string]()
	site := id.Site(1)

	_, err := log.Set(id.Zero, site, "a")
	require.NoError(t, err)

	got, ok := log.Get(id.Zero, site)
	require.True(t, ok)
	assert.Equal(t, "a", got)
}

func TestIdempotentInsert(t *testing.T) {
	log := eventlog.New[string]()
	site := id.Site(1)

	_, err := log.Set(id.Zero, site, "a")
	require.NoError(t, err)

	_, err = log.Set(id.Zero, site, "a")
	require.NoError(t, err, "re-inserting the same body is a no-op")

	_, err = log.Set(id.Zero, site, "b")
	require.ErrorIs(t, err, eventlog.ErrConflictingEvent)
}

func TestMonotonicExpected(t *testing.T) {
	log := eventlog.New[string]()
	site := id.Site(1)

	assert.Equal(t, id.Zero, log.Expected(site))

	_, err := log.Set(0, site, "a")
	require.NoError(t, err)
	assert.Equal(t, id.Seq(1), log.Expected(site))

	_, err = log.Set(1, site, "b")
	require.NoError(t, err)
	assert.Equal(t, id.Seq(2), log.Expected(site))
}

func TestGapTolerance(t *testing.T) {
	log := eventlog.New[string]()
	site := id.Site(1)

	_, err := log.Set(5, site, "z")
	require.NoError(t, err)
	assert.Equal(t, id.Seq(6), log.Expected(site))

	events := log.Events(site, id.Zero)
	require.Len(t, events, 1)
	assert.Equal(t, id.Seq(5), events[0].Seq)
}

func TestFoldlGlobalOrder(t *testing.T) {
	log := eventlog.New[string]()
	a, b := id.Site(1), id.Site(2)

	_, err := log.Set(0, b, "B")
	require.NoError(t, err)
	_, err = log.Set(0, a, "A")
	require.NoError(t, err)
	_, err = log.Set(1, a, "C")
	require.NoError(t, err)

	result := eventlog.Foldl(log, "", concat)
	// seq 0 ties between sites a and b resolve by ascending site id (a < b).
	assert.Equal(t, "ABC", result)
}

func TestSitesSet(t *testing.T) {
	log := eventlog.New[string]()
	a, b := id.Site(1), id.Site(2)

	_, err := log.Set(0, a, "x")
	require.NoError(t, err)
	_, err = log.Set(0, b, "y")
	require.NoError(t, err)

	sites := log.Sites()
	assert.True(t, sites.Contains(a))
	assert.True(t, sites.Contains(b))
	assert.Equal(t, 2, sites.Cardinality())
}
