package grpcx

import (
	"context"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicnear/libs/httpx"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey carries the request id over gRPC metadata.
const RequestIDMetadataKey = "x-request-id"

// RequestIDFromContext shares the HTTP request id slot so both transports log
// the same key.
func RequestIDFromContext(ctx context.Context) string {
	return httpx.RequestIDFromContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return httpx.ContextWithRequestID(ctx, id)
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 && len(vals[0]) <= 128 {
		return vals[0]
	}
	return ""
}

func NewRequestID() string {
	return uuid.NewString()
}
