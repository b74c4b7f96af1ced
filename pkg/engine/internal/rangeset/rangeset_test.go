package rangeset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	for _, tt := range []struct {
		name   string
		input  []Range
		expect Set
	}{
		{
			name:   "empty",
			input:  nil,
			expect: nil,
		},
		{
			name:   "drops inverted ranges",
			input:  []Range{{Lo: 5, Hi: 2}},
			expect: nil,
		},
		{
			name:   "sorts",
			input:  []Range{{Lo: 8, Hi: 9}, {Lo: 0, Hi: 1}},
			expect: Set{{Lo: 0, Hi: 1}, {Lo: 8, Hi: 9}},
		},
		{
			name:   "merges overlapping",
			input:  []Range{{Lo: 0, Hi: 3}, {Lo: 2, Hi: 7}},
			expect: Set{{Lo: 0, Hi: 7}},
		},
		{
			name:   "merges adjacent",
			input:  []Range{{Lo: 0, Hi: 3}, {Lo: 4, Hi: 7}, {Lo: 9, Hi: 9}},
			expect: Set{{Lo: 0, Hi: 7}, {Lo: 9, Hi: 9}},
		},
		{
			name:   "contained range",
			input:  []Range{{Lo: 0, Hi: 10}, {Lo: 2, Hi: 3}},
			expect: Set{{Lo: 0, Hi: 10}},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expect, Of(tt.input...))
		})
	}
}

func TestIntersect(t *testing.T) {
	for _, tt := range []struct {
		name   string
		a, b   Set
		expect Set
	}{
		{
			name:   "with empty",
			a:      Full(10),
			b:      Empty(),
			expect: nil,
		},
		{
			name:   "with full",
			a:      Of(Range{2, 4}, Range{7, 8}),
			b:      Full(10),
			expect: Set{{2, 4}, {7, 8}},
		},
		{
			name:   "disjoint",
			a:      Single(1),
			b:      Single(2),
			expect: nil,
		},
		{
			name:   "one range spanning many",
			a:      Of(Range{0, 1}, Range{3, 5}, Range{8, 9}),
			b:      Of(Range{1, 8}),
			expect: Set{{1, 1}, {3, 5}, {8, 8}},
		},
		{
			name:   "interleaved",
			a:      Of(Range{0, 3}, Range{6, 9}),
			b:      Of(Range{2, 7}),
			expect: Set{{2, 3}, {6, 7}},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expect, tt.a.Intersect(tt.b))
			require.Equal(t, tt.expect, tt.b.Intersect(tt.a), "intersection must be commutative")
		})
	}
}

func TestIntersectAssociative(t *testing.T) {
	a := Of(Range{0, 4}, Range{6, 12})
	b := Of(Range{3, 7}, Range{10, 20})
	c := Of(Range{1, 11})

	require.Equal(t, a.Intersect(b).Intersect(c), a.Intersect(b.Intersect(c)))
	require.Equal(t, Set{{3, 4}, {6, 7}, {10, 11}}, a.Intersect(b).Intersect(c))
}

func TestUnion(t *testing.T) {
	a := Of(Range{0, 1}, Range{5, 6})
	b := Of(Range{2, 3}, Range{9, 9})

	require.Equal(t, Set{{0, 3}, {5, 6}, {9, 9}}, a.Union(b))
	require.Equal(t, a.Union(b), b.Union(a))
	require.Equal(t, a, a.Union(Empty()))

	// Union must not modify its inputs.
	require.Equal(t, Set{{0, 1}, {5, 6}}, a)
}

func TestSetQueries(t *testing.T) {
	s := Of(Range{1, 3}, Range{7, 7})

	require.Equal(t, 4, s.Len())
	require.Equal(t, []int{1, 2, 3, 7}, s.Indices())
	require.True(t, s.Contains(2))
	require.True(t, s.Contains(7))
	require.False(t, s.Contains(0))
	require.False(t, s.Contains(5))
	require.False(t, s.Contains(8))
	require.Equal(t, "{[1-3], [7]}", s.String())

	require.True(t, Empty().IsEmpty())
	require.Equal(t, "{}", Empty().String())
	require.Empty(t, Empty().Indices())
	require.True(t, Full(0).IsEmpty())
	require.Equal(t, Set{{0, 2}}, Of(Range{-5, 2}, Range{9, 12}).Clamp(3))
}
