package middleware

import (
	"net/http"
	"strconv"
	"time"
)

const ResponseTimeHeader = "X-Response-Time"

type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (tw *timingWriter) WriteHeader(code int) {
	if !tw.wroteHeader {
		tw.wroteHeader = true
		tw.Header().Set(ResponseTimeHeader, strconv.FormatInt(time.Since(tw.start).Milliseconds(), 10)+"ms")
	}
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

// ResponseTime stamps every response with the elapsed handling time,
// e.g. "X-Response-Time: 42ms". The header is set when the status line
// is written, so it covers everything up to the first byte.
func ResponseTime() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&timingWriter{ResponseWriter: w, start: time.Now()}, r)
		})
	}
}
