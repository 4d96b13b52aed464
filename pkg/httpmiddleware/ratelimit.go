package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateRule allows Max requests per Window for each key. Bursts up to Max
// are accepted; the budget then refills evenly over Window.
type RateRule struct {
	// Name scopes the keys of the rule and is echoed in X-RateLimit-Policy.
	Name   string
	Max    int
	Window time.Duration
	// Match selects the requests the rule applies to. Nil matches all.
	Match func(*http.Request) bool
	// Key identifies the client. Nil uses RateLimitConfig.KeyFunc.
	Key func(*http.Request) string
}

// RateLimitConfig lists the rules of RateLimit. The first matching rule
// applies; requests no rule matches are not limited.
type RateLimitConfig struct {
	Rules []RateRule
	// KeyFunc is the default client key. Nil uses ClientIP.
	KeyFunc func(*http.Request) string
}

type bucket struct {
	lim    *rate.Limiter
	window time.Duration
	seen   time.Time
}

type limiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &limiter{cfg: cfg, buckets: make(map[string]*bucket)}
}

func (l *limiter) rule(r *http.Request) (RateRule, bool) {
	for _, rule := range l.cfg.Rules {
		if rule.Max > 0 && rule.Window > 0 && (rule.Match == nil || rule.Match(r)) {
			return rule, true
		}
	}
	return RateRule{}, false
}

type decision struct {
	allowed    bool
	remaining  int
	reset      time.Duration // until the budget is full again
	retryAfter time.Duration
}

func (l *limiter) take(rule RateRule, key string, now time.Time) decision {
	l.mu.Lock()
	b, ok := l.buckets[rule.Name+"|"+key]
	if !ok {
		every := rule.Window / time.Duration(rule.Max)
		b = &bucket{lim: rate.NewLimiter(rate.Every(every), rule.Max), window: rule.Window}
		l.buckets[rule.Name+"|"+key] = b
	}
	b.seen = now
	l.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return decision{retryAfter: delay, reset: b.untilFull(now, rule.Max)}
	}
	return decision{
		allowed:   true,
		remaining: int(math.Max(math.Floor(b.lim.TokensAt(now)), 0)),
		reset:     b.untilFull(now, rule.Max),
	}
}

func (b *bucket) untilFull(now time.Time, size int) time.Duration {
	missing := float64(size) - b.lim.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(b.lim.Limit()) * float64(time.Second))
}

// sweep forgets buckets idle for a full window; they are full again anyway.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.Sub(b.seen) >= b.window {
			delete(l.buckets, key)
		}
	}
}

func (l *limiter) sweepEvery(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// RateLimit enforces cfg.Rules with one token bucket per rule and client.
// Limited responses carry X-RateLimit-Policy, X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset; rejected ones are 429 with
// Retry-After.
//
// Idle buckets are swept until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)

	var longest time.Duration
	for _, rule := range cfg.Rules {
		longest = max(longest, rule.Window)
	}
	if longest > 0 {
		go l.sweepEvery(ctx, longest)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := l.rule(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			keyFunc := rule.Key
			if keyFunc == nil {
				keyFunc = l.cfg.KeyFunc
			}

			d := l.take(rule, keyFunc(r), time.Now())
			h := w.Header()
			h.Set("X-RateLimit-Policy", rule.Name)
			h.Set("X-RateLimit-Limit", strconv.Itoa(rule.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
			h.Set("X-RateLimit-Reset", strconv.Itoa(seconds(d.reset)))

			if !d.allowed {
				h.Set("Retry-After", strconv.Itoa(max(seconds(d.retryAfter), 1)))
				WriteError(w, http.StatusTooManyRequests, "rate-limited", "Too many requests.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// ClientIP keys requests by the first X-Forwarded-For hop, then X-Real-IP,
// then the peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
