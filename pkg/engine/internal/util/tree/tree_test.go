package tree

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

type key int

func (k key) String() string { return "key=" + strconv.Itoa(int(k)) }

func TestNode_Merge(t *testing.T) {
	n := NewNode("PickyAppend", "", NewProperty("rescans", false, int64(4)))
	n.Merge(
		NewProperty("read_calls", false, int64(9)),
		NewProperty("rescans", false, int64(1)),
	)

	require.Len(t, n.Properties, 2)
	require.Equal(t, []any{int64(4)}, n.Values("rescans"))
	require.Equal(t, []any{int64(9)}, n.Values("read_calls"))
	require.Nil(t, n.Values("rows_out"))

	_, ok := n.Property("rows_out")
	require.False(t, ok)
}

func TestIndexed(t *testing.T) {
	n := NewNode("Filter", "").Add(Indexed("predicate", []key{3, 7})...)
	require.Equal(t, []Property{
		NewProperty("predicate[0]", false, "key=3"),
		NewProperty("predicate[1]", false, "key=7"),
	}, n.Properties)
	require.Empty(t, Indexed[key]("predicate", nil))
}
