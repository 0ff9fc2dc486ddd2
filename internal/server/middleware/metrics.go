package middleware

import (
	"net/http"
	"time"
)

// HTTPObserver принимает метрики HTTP запросов
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, duration time.Duration)
}

// unmatchedRoute метка для запросов, не попавших ни в один маршрут
const unmatchedRoute = "unmatched"

// MetricsMiddleware собирает длительность и статус запросов.
// Метка маршрута берется из шаблона ServeMux (r.Pattern), поэтому
// middleware должен оборачивать сам ServeMux.
func MetricsMiddleware(observer HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			observer.ObserveHTTP(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}

// Chain применяет middleware в порядке перечисления: первый будет внешним
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
