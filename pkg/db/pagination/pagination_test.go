package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaultsAndClamps(t *testing.T) {
	after, size, err := Pagination{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, int64(0), after)
	assert.Equal(t, DefaultPageSize, size)

	_, size, err = Pagination{PageSize: 10_000}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, size)
}

func TestNormalizeRejectsGarbageToken(t *testing.T) {
	_, _, err := Pagination{PageToken: "%%%"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestBuildCursorPageInfoRoundTrip(t *testing.T) {
	rows := []int64{11, 12, 13}
	page, info := BuildCursorPageInfo(rows, 2, func(v int64) int64 { return v })
	assert.Equal(t, []int64{11, 12}, page)
	require.True(t, info.HasMore)

	after, _, err := Pagination{PageToken: info.NextPageToken}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, int64(12), after)

	page, info = BuildCursorPageInfo(rows, 5, func(v int64) int64 { return v })
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)
}
