package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_TermsOnly(t *testing.T) {
	req := require.New(t)

	q := Parse("/find pizza night")

	req.Equal("pizza night", q.Terms)
	req.Empty(q.Room)
	req.Equal(defaultLimit, q.Limit)
}

func TestParse_RoomWithSpacesAndLimit(t *testing.T) {
	req := require.New(t)

	q := Parse("/find boss fight --room Video Games --limit 3")

	req.Equal("boss fight", q.Terms)
	req.Equal("Video Games", q.Room)
	req.Equal(3, q.Limit)
}

func TestParse_IgnoresBrokenLimit(t *testing.T) {
	req := require.New(t)

	q := Parse("/find hello --limit nope")

	req.Equal("hello", q.Terms)
	req.Equal(defaultLimit, q.Limit)
}

func TestIsSearch(t *testing.T) {
	req := require.New(t)

	req.True(IsSearch("/find something"))
	req.True(IsSearch("  /find x"))
	req.False(IsSearch("find something"))
	req.False(IsSearch("hello /find"))
}
