package middleware

import (
	"net/http"
	"strings"

	"github.com/shoplens/origin-report/internal/config"
	"github.com/shoplens/origin-report/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware implements token bucket rate limiting. The pixel
// endpoint takes every storefront page view and gets its own, much larger
// bucket than the admin API.
type RateLimitMiddleware struct {
	cfg          config.RateLimitConfig
	logger       *zap.Logger
	metrics      *metrics.Metrics
	trackLimiter *rate.Limiter
	adminLimiter *rate.Limiter
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:          cfg,
		logger:       logger,
		trackLimiter: rate.NewLimiter(rate.Limit(cfg.TrackRPS), cfg.TrackBurst),
		adminLimiter: rate.NewLimiter(rate.Limit(cfg.AdminRPS), cfg.AdminBurst),
	}
}

func (rl *RateLimitMiddleware) SetMetrics(m *metrics.Metrics) {
	rl.metrics = m
}

// Handler wraps an http.Handler with rate limiting.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		var limiter *rate.Limiter
		endpoint := "admin"
		if rl.isTrackEndpoint(r.URL.Path) {
			limiter = rl.trackLimiter
			endpoint = "track"
		} else {
			limiter = rl.adminLimiter
		}

		if !limiter.Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitHit(endpoint)
			}
			rl.tooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) isTrackEndpoint(path string) bool {
	return strings.HasPrefix(path, "/track/")
}

func (rl *RateLimitMiddleware) tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}
