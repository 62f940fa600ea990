package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/iudanet/securehub/internal/server/handlers"
	"github.com/iudanet/securehub/internal/validation"
	"github.com/iudanet/securehub/pkg/api"
)

// maxPeekBody сколько байт тела читается, чтобы достать email
const maxPeekBody = 64 << 10

// RateLimiter пропускает не более rate запросов на ключ за окно window
type RateLimiter struct {
	buckets map[string]*bucket
	now     func() time.Time
	rate    int
	window  time.Duration
	mu      sync.Mutex
}

// bucket счётчик запросов одного ключа в текущем окне
type bucket struct {
	windowStart time.Time
	count       int
}

// NewRateLimiter создает limiter без фоновых горутин; очистку делает Prune
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		rate:    rate,
		window:  window,
	}
}

// Allow проверяет, разрешен ли очередной запрос для ключа
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || now.Sub(b.windowStart) >= rl.window {
		b = &bucket{windowStart: now}
		rl.buckets[key] = b
	}

	if b.count >= rl.rate {
		return false
	}
	b.count++
	return true
}

// Prune удаляет ключи, не использованные дольше двух окон, и возвращает их число
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.windowStart) > rl.window*2 {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// AuthRateLimits лимиты публичных /api/auth эндпоинтов.
// Подтверждение OTP считается по паре (IP, email), вход и регистрация по IP.
type AuthRateLimits struct {
	logger     *slog.Logger
	byIP       *RateLimiter
	verify     *RateLimiter
	verifyPath string
	window     time.Duration
}

// NewAuthRateLimits создает лимиты; подтверждению OTP достаётся половина rate
func NewAuthRateLimits(logger *slog.Logger, verifyPath string, rate int, window time.Duration) *AuthRateLimits {
	return &AuthRateLimits{
		logger:     logger,
		byIP:       NewRateLimiter(rate, window),
		verify:     NewRateLimiter(max(rate/2, 1), window),
		verifyPath: verifyPath,
		window:     window,
	}
}

// Run чистит устаревшие ключи, пока не отменён ctx
func (a *AuthRateLimits) Run(ctx context.Context) {
	ticker := time.NewTicker(a.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.byIP.Prune()
			a.verify.Prune()
		case <-ctx.Done():
			return
		}
	}
}

// Middleware отвечает 429, если лимит ключа исчерпан
func (a *AuthRateLimits) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := handlers.ClientIP(r)

		limiter, key := a.byIP, ip
		attrs := []any{slog.String("ip", ip)}
		if r.URL.Path == a.verifyPath {
			email := peekEmail(r)
			limiter, key = a.verify, ip+"|"+email
			attrs = append(attrs, slog.String("email", email))
		}

		if !limiter.Allow(key) {
			attrs = append(attrs,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path))
			a.logger.WarnContext(r.Context(), "Rate limit exceeded", attrs...)

			writeError(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// peekEmail достаёт email из JSON тела и возвращает тело на место.
// Неразборчивое тело даёт пустой email: ключом остаётся только IP.
func peekEmail(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(head), r.Body), Closer: r.Body}
	if err != nil {
		return ""
	}

	var req api.VerifyDeviceOTPRequest
	if err := json.Unmarshal(head, &req); err != nil {
		return ""
	}
	return validation.NormalizeEmail(req.Email)
}

type readCloser struct {
	io.Reader
	io.Closer
}
