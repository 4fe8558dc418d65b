package http

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"despesas/internal/log"
)

const (
	defaultRateLimit = 120
	limiterCleanup   = 5 * time.Minute
	limiterTTL       = 10 * time.Minute
)

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientLimiter
	perSecond    rate.Limit
	burst        int
	hits         int64
	logger       *log.Logger
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perMinute int, logger *log.Logger) *rateLimiter {
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	rl := &rateLimiter{
		clients:     make(map[string]*clientLimiter),
		perSecond:   rate.Limit(float64(perMinute) / 60.0),
		burst:       burst,
		logger:      logger.WithComponent(log.ComponentRateLimit),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// allow reports whether clientIP may proceed and, when not, how long it
// should wait.
func (rl *rateLimiter) allow(clientIP string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	c, ok := rl.clients[clientIP]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.perSecond, rl.burst)}
		rl.clients[clientIP] = c
	}
	c.lastSeen = now

	if c.limiter.AllowN(now, 1) {
		return true, 0
	}
	atomic.AddInt64(&rl.hits, 1)

	wait := time.Duration(float64(time.Second) / float64(rl.perSecond))
	if r := c.limiter.ReserveN(now, 1); r.OK() {
		wait = r.DelayFrom(now)
		r.CancelAt(now)
	}
	return false, wait
}

// retryAfterSeconds rounds a wait up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// ActiveClients returns the number of tracked client buckets.
func (rl *rateLimiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Hits returns how many requests were refused.
func (rl *rateLimiter) Hits() int64 {
	return atomic.LoadInt64(&rl.hits)
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(limiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := rl.cleanupStaleEntries(time.Now()); n > 0 {
				rl.logger.Debug("Stale rate limiters removed", "count", n)
			}
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries drops buckets idle for longer than limiterTTL.
func (rl *rateLimiter) cleanupStaleEntries(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := now.Add(-limiterTTL)
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
