package cache

import (
	"bytes"
	"net/http"
)

// Header reporting whether a response came from the cache.
const HeaderCache = "X-Cache"

// captureWriter records the status and body passing through it.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *captureWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Middleware serves GET requests from c. Misses are forwarded and stored when
// the handler answers 200. Other methods pass through. A nil cache disables
// caching.
func Middleware(c *ResponseCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if c == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			if cached, ok := c.get(key); ok {
				if cached.contentType != "" {
					w.Header().Set("Content-Type", cached.contentType)
				}
				w.Header().Set(HeaderCache, "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(cached.body)
				return
			}

			gen := c.generation.Load()
			cw := &captureWriter{ResponseWriter: w}
			cw.Header().Set(HeaderCache, "MISS")
			next.ServeHTTP(cw, r)

			if cw.statusCode == http.StatusOK {
				c.set(key, gen, entry{
					body:        bytes.Clone(cw.body.Bytes()),
					contentType: cw.Header().Get("Content-Type"),
				})
			}
		})
	}
}
