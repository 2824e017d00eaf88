package middleware

import (
	"net/http"
)

// MaxBodyBytes caps request bodies at 1MB. Event descriptions are the largest
// accepted field and are bounded well below this.
const MaxBodyBytes int64 = 1 << 20

// RequestSize wraps request bodies with http.MaxBytesReader so a handler
// reading past maxBytes gets *http.MaxBytesError instead of consuming an
// unbounded payload.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
