package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RequireAdmin rejects requests whose session lacks the admin flag.
func (h *HTTPHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := h.opts.Sessions.Get(r, sessionName)
		if admin, ok := session.Values[sessionAdmin].(bool); !ok || !admin {
			h.logger.Debug("admin route without admin session", "path", r.URL.Path)
			respondError(w, http.StatusUnauthorized, "unauthorized", "admin login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe records one request sample per response, labelled with the chi
// route pattern rather than the raw path.
func (h *HTTPHandler) observe(next http.Handler) http.Handler {
	if h.opts.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		h.opts.Metrics.ObserveRequest(r.Method, route, code, time.Since(start))
	})
}
