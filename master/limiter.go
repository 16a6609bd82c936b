package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdle is how long an address keeps its bucket without requests.
const limiterIdle = 10 * time.Minute

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands out one token bucket per client address and forgets
// addresses that went quiet.
type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	r        rate.Limit
	burst    int
	idle     time.Duration
	clk      clock.Clock
}

func newIPLimiter(perSecond float64, burst int, idle time.Duration, clk clock.Clock) *ipLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		r:        rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		clk:      clk,
	}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.r, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = l.clk.Now()
	return v.lim
}

// Run evicts idle addresses until ctx is done.
func (l *ipLimiter) Run(ctx context.Context) error {
	ticker := l.clk.Ticker(l.idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *ipLimiter) sweep() int {
	cutoff := l.clk.Now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			evicted++
		}
	}
	return evicted
}

func (l *ipLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *ipLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("rate limited"))
			return
		}
		c.Next()
	}
}
