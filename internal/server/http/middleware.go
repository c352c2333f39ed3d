package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/paperscope/discovery-service/internal/observability"
)

// requestContextMiddleware stores the request id and the optional opaque
// X-Session-ID header in the context. Session ids are logged for correlation
// only, never authenticated.
func requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := observability.RequestContext{
			RequestID: middleware.GetReqID(r.Context()),
			SessionID: r.Header.Get("X-Session-ID"),
		}
		if rc.RequestID != "" {
			w.Header().Set("X-Request-ID", rc.RequestID)
		}

		ctx := observability.WithRequestContextFull(r.Context(), rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs one line per request with timing and status.
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		event := s.logger.Info()
		if ww.Status() >= http.StatusInternalServerError {
			event = s.logger.Error()
		}

		rc := observability.RequestContextFromContext(r.Context())
		if rc.SessionID != "" {
			event = event.Str("session_id", rc.SessionID)
		}

		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", rc.RequestID).
			Msg("http request")
	})
}

// jsonContentTypeMiddleware sets Content-Type: application/json for all responses.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
