package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter ограничивает число запросов с одного ключа (IP адреса).
// Каждому ключу выдается token bucket: rate запросов за window,
// не больше rate подряд.
type RateLimiter struct {
	now      func() time.Time
	visitors map[string]*visitor
	logger   *slog.Logger
	cleanupC chan struct{}
	stopOnce sync.Once
	limit    rate.Limit
	burst    int
	window   time.Duration
	mu       sync.Mutex
}

// visitor limiter одного ключа
type visitor struct {
	lastSeen time.Time
	limiter  *rate.Limiter
}

// NewRateLimiter создает новый rate limiter
// n - максимальное количество запросов за window
func NewRateLimiter(n int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		now:      time.Now,
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(n)),
		burst:    n,
		window:   window,
		logger:   logger,
		cleanupC: make(chan struct{}),
	}

	// Запускаем периодическую очистку неактивных ключей
	go rl.cleanup()

	return rl
}

// cleanup периодически удаляет неактивные ключи для экономии памяти
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupIdle()
		case <-rl.cleanupC:
			return
		}
	}
}

// cleanupIdle удаляет ключи без запросов дольше 2*window.
// За это время bucket полностью восстанавливается, так что удаление ничего не меняет.
func (rl *RateLimiter) cleanupIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.window*2 {
			delete(rl.visitors, key)
		}
	}
}

// Stop останавливает cleanup goroutine. Повторный вызов безопасен.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.cleanupC) })
}

// Allow проверяет, разрешен ли запрос для ключа.
// Если нет, возвращает время до появления следующего токена.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, rl.window
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware отклоняет запросы сверх лимита с 429 и заголовком Retry-After
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientIP(r)

		allowed, retryAfter := rl.Allow(key)
		if !allowed {
			rl.logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("ip", key),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			seconds := int(retryAfter.Round(time.Second).Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP извлекает IP адрес клиента из запроса.
// Учитывает X-Forwarded-For и X-Real-IP от прокси.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Берем первый IP из списка (реальный клиент)
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
