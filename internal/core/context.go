package core

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// scope identifies the request and redaction stream a context belongs to.
type scope struct {
	requestID string
	streamID  string
}

func scopeFrom(ctx context.Context) scope {
	s, _ := ctx.Value(contextKey{}).(scope)
	return s
}

// WithRequestID attaches the HTTP request ID, keeping any stream ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	s := scopeFrom(ctx)
	s.requestID = requestID
	return context.WithValue(ctx, contextKey{}, s)
}

// WithStreamID attaches the redaction stream ID, keeping any request ID.
func WithStreamID(ctx context.Context, streamID string) context.Context {
	s := scopeFrom(ctx)
	s.streamID = streamID
	return context.WithValue(ctx, contextKey{}, s)
}

// GetRequestID returns the request ID, or "".
func GetRequestID(ctx context.Context) string {
	return scopeFrom(ctx).requestID
}

// GetStreamID returns the stream ID, or "".
func GetStreamID(ctx context.Context) string {
	return scopeFrom(ctx).streamID
}

// LogAttrs returns the scope as slog key/value pairs, followed by args.
// Empty IDs are left out.
func LogAttrs(ctx context.Context, args ...any) []any {
	s := scopeFrom(ctx)
	out := make([]any, 0, len(args)+4)
	if s.streamID != "" {
		out = append(out, slog.String("stream_id", s.streamID))
	}
	if s.requestID != "" {
		out = append(out, slog.String("request_id", s.requestID))
	}
	return append(out, args...)
}
