// Package correlation carries one id across every audit row, log line and
// span produced by a booking call chain, e.g. a checkout that reserves and
// then confirms payment.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	HeaderCorrelationID = "X-Correlation-Id"

	maxLength = 64
)

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID stores id on the context. Caller supplied ids end
// up in the audit table, so anything that is not a short token is dropped.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	id = Sanitize(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID returns the id already on ctx or attaches a new ULID.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if cid := ExtractCorrelationID(ctx); cid != "" {
		return ctx, cid
	}
	cid := ulid.Make().String()
	return context.WithValue(ctx, correlationKey{}, cid), cid
}

// Sanitize trims raw and returns it when it is at most 64 characters of
// letters, digits, '-', '_', '.' or ':'; otherwise "".
func Sanitize(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxLength {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return ""
		}
	}
	return id
}
