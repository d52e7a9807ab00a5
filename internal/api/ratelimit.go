package api

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// callerLimiter holds one token bucket per caller preview. A caller gets
// n requests per window, refilled evenly across the window.
type callerLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	window    time.Duration
	callers   map[string]*callerBucket
	lastSweep time.Time
	nowFunc   func() time.Time
}

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newCallerLimiter returns nil when n is not positive, which disables
// limiting.
func newCallerLimiter(window time.Duration, n int) *callerLimiter {
	if n <= 0 || window <= 0 {
		return nil
	}

	return &callerLimiter{
		limit:   rate.Every(window / time.Duration(n)),
		burst:   n,
		window:  window,
		callers: make(map[string]*callerBucket),
		nowFunc: time.Now,
	}
}

// allow reports whether key may proceed now and, if not, how long until it
// may.
func (l *callerLimiter) allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	l.sweep(now)

	b, ok := l.callers[key]
	if !ok {
		b = &callerBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.callers[key] = b
	}

	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}

	r := b.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)

	return false, delay
}

// sweep drops buckets idle for a full window; they would be full again.
func (l *callerLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}

	l.lastSweep = now

	for key, b := range l.callers {
		if now.Sub(b.lastSeen) >= l.window {
			delete(l.callers, key)
		}
	}
}

// retryAfterSeconds rounds d up to whole seconds, minimum one.
func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
