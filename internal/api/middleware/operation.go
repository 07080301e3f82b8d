package middleware

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/retrieva/internal/progress"
)

// Operation tags the request context with its request id so progress events
// can be matched to the call that caused them. The id is echoed in
// X-Request-Id; clients may choose it by sending that header.
func Operation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimiddleware.GetReqID(r.Context())
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set(chimiddleware.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(progress.WithOp(r.Context(), id)))
	})
}
