package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, ClientIP(ctx))
	_, ok := ActorID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "abc")
	ctx = WithActorID(ctx, 7)
	ctx = WithClient(ctx, "10.1.2.3", "")

	assert.Equal(t, "abc", RequestID(ctx))
	assert.Equal(t, "10.1.2.3", ClientIP(ctx))
	assert.Empty(t, UserAgent(ctx))

	id, ok := ActorID(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}
