package httpapi

import (
	"context"
	"crypto/rand"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/oklog/ulid/v2"

	"github.com/dmitrijs2005/starauth/internal/common"
	"github.com/dmitrijs2005/starauth/internal/logging"
)

const requestIDKey ctxKey = "requestID"

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestIDFrom returns the request id assigned by the access log middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// newRequestID keeps a well-formed inbound ULID and mints one otherwise.
func newRequestID(inbound string) string {
	if inbound != "" {
		if id, err := ulid.ParseStrict(inbound); err == nil {
			return id.String()
		}
	}
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err != nil {
		return ""
	}
	return id.String()
}

// accessLog tags every request with an id and logs its outcome.
func accessLog(logger logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := newRequestID(r.Header.Get(common.RequestIDHeaderName))
		w.Header().Set(common.RequestIDHeaderName, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		logger.Info(r.Context(), "request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", time.Since(start),
			"ip", clientIP(r),
		)
	})
}

// RequestObserver records per-route latency.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// instrument reports the latency of handle under its route pattern.
func instrument(obs RequestObserver, method, route string, handle httprouter.Handle) httprouter.Handle {
	if obs == nil {
		return handle
	}
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handle(rw, r, ps)
		obs.ObserveRequest(method, route, rw.status, time.Since(start))
	}
}
