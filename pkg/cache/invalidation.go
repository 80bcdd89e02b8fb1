package cache

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// InvalidateOnWrite purges c after every mutating request that succeeds.
// Approving a request can create units, so it is mounted above every router,
// not only the hierarchy one.
func InvalidateOnWrite(c *ResponseCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if c == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if status := ww.Status(); status == 0 || (status >= 200 && status < 300) {
				c.Purge()
			}
		})
	}
}
