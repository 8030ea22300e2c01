package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	got := Generate()

	require.True(t, strings.HasPrefix(got, Prefix), got)
	parsed, err := uuid.Parse(strings.TrimPrefix(got, Prefix))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
}

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		got := Generate()
		_, dup := seen[got]
		assert.False(t, dup, "duplicate id %s", got)
		seen[got] = struct{}{}
	}
}
