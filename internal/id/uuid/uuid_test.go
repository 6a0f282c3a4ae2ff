package uuid

import (
	"errors"
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := NewUUIDGenerator()
	first, err := gen.NewID()
	require.NoError(t, err)
	second, err := gen.NewID()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Len(t, first, 36)
	parsed, err := goUUID.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, goUUID.Version(7), parsed.Version())
}

func TestGeneratorZeroValue(t *testing.T) {
	t.Parallel()

	var gen Generator
	id, err := gen.NewID()
	require.NoError(t, err)
	_, err = goUUID.Parse(id)
	require.NoError(t, err)
}

func TestGeneratorSourceError(t *testing.T) {
	t.Parallel()

	boom := errors.New("entropy exhausted")
	gen := &Generator{source: func() (goUUID.UUID, error) { return goUUID.Nil, boom }}
	_, err := gen.NewID()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "generate row id")
}
