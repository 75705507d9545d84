// Package ratelimit enforces a per-IP token-bucket limit on request
// throughput via golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/emberhttp/ember"
)

// Config holds the configuration settings for rate limiting, such as requests per duration, burst size, and expiration time.
type Config struct {
	Requests  int           // Max requests per duration
	Burst     int           // Burst size
	Duration  time.Duration // Duration window (e.g., 1 minute)
	ExpiresIn time.Duration // Visitor entry expiration
}

// DefaultConfig returns the default configuration for the ratelimit middleware.
func DefaultConfig() Config {
	return Config{
		Requests:  1,
		Burst:     5,
		Duration:  time.Minute,
		ExpiresIn: time.Hour,
	}
}

// ErrLimiter is the error rendered onto a rejected request's response.
var ErrLimiter = ember.NewHttpError(ember.StatusTooManyRequests, "limit reached")

// visitor tracks one IP's bucket and when it was last seen, for sweeping.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-IP token-bucket rate limiter with its own visitor table
// and sweep goroutine. Unlike a single package-level map shared across every
// registration, each Limiter is self-contained: an app that installs a
// strict Limiter on /admin and a loose one everywhere else gets two
// independent visitor tables and two independently-configured sweeps,
// rather than both fighting over one global map keyed only by IP.
type Limiter struct {
	cfg Config

	mu       sync.Mutex
	visitors map[string]*visitor

	stop chan struct{}
}

// NewLimiter builds a Limiter and starts its background sweep goroutine,
// evicting visitor entries idle longer than cfg.ExpiresIn. Call Close to
// stop the sweep once the Limiter is no longer installed.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{cfg: cfg, visitors: make(map[string]*visitor), stop: make(chan struct{})}
	go l.sweepLoop()
	return l
}

func (l *Limiter) sweepInterval() time.Duration {
	if l.cfg.ExpiresIn > 0 {
		return l.cfg.ExpiresIn
	}
	return time.Minute
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	cutoff := time.Now().Add(-l.cfg.ExpiresIn)
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

// Close stops the background sweep goroutine. Safe to call once.
func (l *Limiter) Close() {
	close(l.stop)
}

// newBucket builds a token bucket from cfg, guarding against a
// Requests <= 0 config (which would otherwise divide by zero).
func newBucket(cfg Config) *rate.Limiter {
	requests := cfg.Requests
	if requests <= 0 {
		requests = 1
	}
	return rate.NewLimiter(rate.Every(cfg.Duration/time.Duration(requests)), cfg.Burst)
}

// Allow reports whether ip may proceed right now, creating a fresh bucket
// for ip on first sight.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: newBucket(l.cfg)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	limiter := v.limiter
	l.mu.Unlock()
	return limiter.Allow()
}

// Middleware returns an ember.Middleware enforcing this Limiter's bucket
// per Ctx.IP. A rejected request gets a 429 with a JSON body and the chain
// stops there.
func (l *Limiter) Middleware() ember.Middleware {
	return func(c *ember.Ctx) {
		if !l.Allow(c.IP()) {
			c.Response.Status(ember.StatusTooManyRequests).JSON(map[string]any{
				"message": ErrLimiter.Message,
			})
			return
		}
		c.Next()
	}
}

// New builds a Limiter from cfg (DefaultConfig if omitted) and returns its
// middleware. Equivalent to NewLimiter(cfg).Middleware() for callers that
// never need to Close the underlying Limiter (e.g. one installed for the
// life of the process).
func New(config ...Config) ember.Middleware {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	return NewLimiter(cfg).Middleware()
}
