// Package ratelimit caps how many requests a client may make per window.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/xhad/campusconnect/pkg/apperr"
)

const (
	DefaultRequests = 20
	DefaultWindow   = time.Minute
)

type Limiter interface {
	// Allow records one request for key and reports whether it is admitted.
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a per-key token bucket refilled at requests/window with a burst
// of requests. Buckets idle for more than a window are dropped.
type Memory struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	window    time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemory(requests int, window time.Duration) *Memory {
	if requests <= 0 {
		requests = DefaultRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// SetClock replaces time.Now; used by tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) > m.window {
		for k, b := range m.buckets {
			if now.Sub(b.lastSeen) > m.window {
				delete(m.buckets, k)
			}
		}
		m.lastSweep = now
	}

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1), nil
}

// Redis is a sliding-window log kept in one sorted set per key, so that
// every server instance shares the same counts.
type Redis struct {
	client   *redis.Client
	requests int
	window   time.Duration
	prefix   string
	now      func() time.Time
}

func NewRedis(client *redis.Client, requests int, window time.Duration) *Redis {
	if requests <= 0 {
		requests = DefaultRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{
		client:   client,
		requests: requests,
		window:   window,
		prefix:   "cc:ratelimit:",
		now:      time.Now,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	k := r.prefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	cutoff := strconv.FormatInt(now.Add(-r.window).UnixNano(), 10)

	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", "("+cutoff)
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: member})
		card = pipe.ZCard(ctx, k)
		pipe.PExpire(ctx, k, r.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}

	if card.Val() > int64(r.requests) {
		// Rejected requests do not consume the window.
		if err := r.client.ZRem(ctx, k, member).Err(); err != nil {
			return false, fmt.Errorf("rate limit %s: %w", key, err)
		}
		return false, nil
	}
	return true, nil
}

// KeyFunc picks the client identity a request is counted against.
type KeyFunc func(r *http.Request) string

// ClientIP keys on the remote address without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware answers 429 once a client exceeds its limit. Limiter errors
// let the request through.
func Middleware(l Limiter, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), key(r))
			if err == nil && !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": apperr.ErrRateLimited.Error() + ". Try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
