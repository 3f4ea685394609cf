package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"

	// Header carries the request ID between the qrng client and the QPU service.
	Header = "X-Request-ID"
)

// Generate creates a new unique request ID
func Generate() string {
	return uuid.New().String()
}

// ToContext adds a request ID to the context
func ToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// FromContext extracts the request ID from the context.
// Returns empty string if request ID is not found.
func FromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// FromRequest extracts the request ID from the HTTP request context.
// Returns empty string if request ID is not found.
func FromRequest(r *http.Request) string {
	return FromContext(r.Context())
}

// Middleware reuses the caller's request ID header or generates a new one,
// and stores it into the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = Generate()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(ToContext(r.Context(), id)))
	})
}
