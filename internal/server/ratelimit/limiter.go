// Package ratelimit throttles mutating requests per client with token
// buckets.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int           // requests per window
	Remaining  int           // tokens left after this request
	ResetAt    time.Time     // when the bucket is full again
	RetryAfter time.Duration // zero when Allowed
}

// Limiter keeps one token bucket per client key.
type Limiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration
	idle   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	done    chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows requests per window on average, with bursts of up to
// burst requests. Call Close to stop the background sweep of idle buckets.
func NewLimiter(requests int, window time.Duration, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		limit:   rate.Limit(float64(requests) / window.Seconds()),
		burst:   burst,
		window:  window,
		idle:    max(window, 10*time.Minute),
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow takes one token from key's bucket if one is available.
func (l *Limiter) Allow(key string) Result {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	res := Result{
		Allowed:   allowed,
		Limit:     int(math.Round(float64(l.limit) * l.window.Seconds())),
		Remaining: max(int(tokens), 0),
		ResetAt:   now.Add(l.refill(float64(l.burst) - tokens)),
	}
	if !allowed {
		res.RetryAfter = max(l.refill(1-tokens), time.Second)
	}
	return res
}

// refill returns how long it takes to earn n tokens.
func (l *Limiter) refill(n float64) time.Duration {
	if n <= 0 || l.limit <= 0 {
		return 0
	}
	return time.Duration(n / float64(l.limit) * float64(time.Second))
}

func (l *Limiter) sweepLoop() {
	defer close(l.done)
	t := time.NewTicker(l.idle)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			l.sweep(now)
		case <-l.stop:
			return
		}
	}
}

// sweep forgets buckets that are idle and full, since a new bucket would be
// identical.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle && b.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	close(l.stop)
	<-l.done
}
