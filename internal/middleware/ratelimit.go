package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/CharadesAI/charadesai-sub000/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter interface for rate limiting chat submissions
type RateLimiter interface {
	Allow(user string) bool
	Reset(user string)
}

// UserRateLimiter implements per-user rate limiting. Users are keyed by
// username; an empty key covers the anonymous case.
type UserRateLimiter struct {
	enabled         bool
	limiters        map[string]*rate.Limiter
	mu              sync.RWMutex
	rpm             int
	burst           int
	logger          *logrus.Logger
	cleanupInterval time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.Config, logger *logrus.Logger) RateLimiter {
	if !cfg.RateLimit.Enabled {
		return &UserRateLimiter{enabled: false}
	}

	rl := &UserRateLimiter{
		enabled:         true,
		limiters:        make(map[string]*rate.Limiter),
		rpm:             cfg.RateLimit.RequestsPerMinute,
		burst:           cfg.RateLimit.Burst,
		logger:          logger,
		cleanupInterval: 1 * time.Hour,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Allow checks if a user is allowed to make a request
func (r *UserRateLimiter) Allow(user string) bool {
	if !r.enabled {
		return true
	}

	limiter := r.getLimiter(user)
	allowed := limiter.Allow()

	if !allowed {
		r.logger.WithField("user", user).Warn("Rate limit exceeded")
	}

	return allowed
}

// Reset resets the rate limiter for a user
func (r *UserRateLimiter) Reset(user string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, user)
	r.mu.Unlock()
}

// getLimiter gets or creates a rate limiter for a user
func (r *UserRateLimiter) getLimiter(user string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[user]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := r.limiters[user]; exists {
		return limiter
	}

	// Rate per second = RPM / 60
	rps := float64(r.rpm) / 60.0
	limiter = rate.NewLimiter(rate.Limit(rps), r.burst)
	r.limiters[user] = limiter

	return limiter
}

// cleanup bounds the limiter map for long-running sessions
func (r *UserRateLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		if len(r.limiters) > 10000 {
			r.logger.Warn("Rate limiter map size exceeded threshold, clearing")
			r.limiters = make(map[string]*rate.Limiter)
		}
		r.mu.Unlock()
	}
}

// InputValidator performs basic checks on outgoing chat input
type InputValidator struct {
	logger *logrus.Logger
}

// NewInputValidator creates an input validator
func NewInputValidator(logger *logrus.Logger) *InputValidator {
	return &InputValidator{logger: logger}
}

// Validate rejects input the API would refuse anyway
func (v *InputValidator) Validate(text string) error {
	if len(text) > 4096 {
		return fmt.Errorf("message too long: %d bytes", len(text))
	}
	return nil
}
