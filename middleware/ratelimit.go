package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mnehpets/onerpc/endpoint"
)

// RateLimiter is a Processor applying a token bucket per client. Requests
// over the limit fail with 429 Too Many Requests before any call runs.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   func(*http.Request) string
	idle  time.Duration

	mu      sync.Mutex
	clients map[string]*client
	swept   time.Time
}

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

// RateLimitOption configures a RateLimiter.
type RateLimitOption func(*RateLimiter)

// WithKeyFunc sets how clients are told apart. The default is the host part
// of r.RemoteAddr.
func WithKeyFunc(f func(*http.Request) string) RateLimitOption {
	return func(rl *RateLimiter) { rl.key = f }
}

// WithIdleTimeout sets how long an idle client's bucket is kept.
func WithIdleTimeout(d time.Duration) RateLimitOption {
	return func(rl *RateLimiter) { rl.idle = d }
}

// NewRateLimiter allows rps requests per second per client with bursts of
// burst. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int, opts ...RateLimitOption) *RateLimiter {
	rl := &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		key:     remoteHost,
		idle:    10 * time.Minute,
		clients: make(map[string]*client),
	}
	if rps <= 0 {
		rl.limit = rate.Inf
	}
	if rl.burst < 1 {
		rl.burst = 1
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.swept) > rl.idle {
		for k, c := range rl.clients {
			if now.Sub(c.seen) > rl.idle {
				delete(rl.clients, k)
			}
		}
		rl.swept = now
	}

	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.seen = now
	return c.limiter
}

// Process implements endpoint.Processor.
func (rl *RateLimiter) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if rl.limit == rate.Inf {
		return next(w, r)
	}
	now := time.Now()
	res := rl.limiter(rl.key(r), now).ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
		return endpoint.Error(http.StatusTooManyRequests, "rate limit exceeded", nil)
	}
	return next(w, r)
}

var _ endpoint.Processor = (*RateLimiter)(nil)
