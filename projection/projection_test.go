package projection_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinxiao27/echo/eventlog"
	"github.com/kevinxiao27/echo/id"
	"github.com/kevinxiao27/echo/projection"
)

func TestAppendIsDeterministicAcrossInsertionOrder(t *testing.T) {
	a, b := id.Site(1), id.Site(2)

	log1 := eventlog.New[string]()
	_, err := log1.Set(0, b, "B")
	require.NoError(t, err)
	_, err = log1.Set(0, a, "A")
	require.NoError(t, err)

	log2 := eventlog.New[string]()
	_, err = log2.Set(0, a, "A")
	require.NoError(t, err)
	_, err = log2.Set(0, b, "B")
	require.NoError(t, err)

	model1 := eventlog.Foldl(log1, []string(nil), projection.Append[string])
	model2 := eventlog.Foldl(log2, []string(nil), projection.Append[string])

	assert.Equal(t, model1, model2, "fold order depends on log contents, not insertion order")
	assert.Equal(t, []string{"A", "B"}, model1)
}
