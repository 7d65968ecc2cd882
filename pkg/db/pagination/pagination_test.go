package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCursorPageInfo(t *testing.T) {
	ids := []string{"a", "b", "c"}

	page, info, err := BuildCursorPageInfo(ids, 2, func(id string) string { return id })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, page)
	assert.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "b", cursor.ID)

	page, info, err = BuildCursorPageInfo(ids, 3, func(id string) string { return id })
	require.NoError(t, err)
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	cursor, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Empty(t, cursor.ID)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 7, Pagination{PageSize: 7}.Limit())
}
