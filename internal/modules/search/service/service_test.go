package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHits(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	raw := json.RawMessage(`{"hits":[{"id":"` + a.String() + `"},{"id":"not-a-uuid"},{"id":"` + b.String() + `"}],"estimatedTotalHits":7}`)

	ids, total, err := decodeHits(raw)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.Equal(t, int64(7), total)

	_, _, err = decodeHits(json.RawMessage(`{"hits":`))
	assert.Error(t, err)
}

func TestDisabledServiceIsInert(t *testing.T) {
	s := NewMeiliSearchService("", "", nil)
	assert.False(t, s.Enabled())

	n, err := s.Reindex(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	ids, total, err := s.SearchUsers(context.Background(), UserSearchQuery{Query: "alice"})
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, total)
}

func TestCleanTextStripsMarkup(t *testing.T) {
	s := &meiliSearchService{sanitizer: newSanitizer()}
	assert.Equal(t, "hello world & friends", s.cleanText("<p>hello</p><b>world</b> &amp; <script>x</script>friends"))
}
