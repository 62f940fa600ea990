package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iudanet/securehub/internal/server/metrics"
)

// MetricsMiddleware записывает http_requests_total и длительность запроса.
// Метка route берётся из шаблона mux, чтобы /api/files/{id} не плодил серии,
// поэтому middleware подключается через Router.Use.
func MetricsMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			m.ObserveHTTP(r.Method, routeTemplate(r), wrapped.statusCode, time.Since(start))
		})
	}
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}
