package execid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContext(t *testing.T) {
	ctx, id := NewContext(context.Background())
	require.NotEmpty(t, id)

	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, id2 := NewContext(context.Background())
	assert.NotEqual(t, id, id2)
}

func TestFromContext_Missing(t *testing.T) {
	id, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}
