// Package middleware holds the HTTP middleware wrapped around the ops listener.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/joshuaworth/hoistwaywatch/common/logging"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID or generates one, echoes it
// on the response and stores it as the context's correlation id so request
// logs can be joined with the caller's.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), requestID)))
	})
}

// GetRequestID returns the request id stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	return logging.CorrelationIDFromContext(ctx)
}
