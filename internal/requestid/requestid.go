// Package requestid generates ids for management API requests and relay
// connections and carries them through a context.
package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header used to pass a request id in and out.
const Header = "X-Request-ID"

const maxInboundLen = 128

type ctxKey struct{}

// WithRequestID returns a context with the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from context, or generates a new one.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// New generates a new request ID and returns the enriched context and ID.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return WithRequestID(ctx, id), id
}

// FromInbound reuses a caller-supplied id when it is usable, otherwise
// generates one.
func FromInbound(ctx context.Context, inbound string) (context.Context, string) {
	inbound = strings.TrimSpace(inbound)
	if inbound == "" || len(inbound) > maxInboundLen {
		return New(ctx)
	}
	return WithRequestID(ctx, inbound), inbound
}

// NewConnID returns an id for a relay connection, e.g. "conn_3f2a9c1e7b04".
func NewConnID() string {
	return "conn_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
