package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const correlationKey ctxKey = iota

// CorrelationID propagates the caller's X-Correlation-ID header, minting a
// UUID when the caller did not send one. The ID rides the request context
// and is echoed on the response so a sync trigger can be traced through the
// request log and the fetch pass it started.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), correlationKey, id)))
	})
}

// CorrelationIDFrom returns the request's correlation ID, or "" when the
// middleware was not applied.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}
