package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-advanced-auth/internal/metrics"
)

// Metrics учитывает запрос в Prometheus. Метка route — шаблон маршрута chi,
// а не сырой путь. Ставится на корневой роутер: шаблон известен только
// после маршрутизации.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			var route string
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}

			m.ObserveRequest(r.Method, route, sw.Status(), time.Since(start))
		})
	}
}
