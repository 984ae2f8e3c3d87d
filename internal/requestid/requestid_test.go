package requestid

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	ctx, id := New(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, FromContext(ctx))
}

func TestFromContext_Missing(t *testing.T) {
	id := FromContext(context.Background())
	assert.NotEmpty(t, id) // generates new UUID
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "test-123")
	assert.Equal(t, "test-123", FromContext(ctx))
}

func TestFromInbound(t *testing.T) {
	ctx, id := FromInbound(context.Background(), " upstream-7 ")
	assert.Equal(t, "upstream-7", id)
	assert.Equal(t, "upstream-7", FromContext(ctx))

	_, id = FromInbound(context.Background(), "")
	assert.Len(t, id, 36)

	_, id = FromInbound(context.Background(), strings.Repeat("x", 500))
	assert.Len(t, id, 36)
}

func TestNewConnID(t *testing.T) {
	a, b := NewConnID(), NewConnID()
	assert.True(t, strings.HasPrefix(a, "conn_"))
	assert.Len(t, a, 17)
	assert.NotEqual(t, a, b)
}
