package api

import (
	"net"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	guardIdleExpiry      = 10 * time.Minute
	guardCleanupInterval = 5 * time.Minute
)

// ipGuard keeps one token bucket per client IP. A nil guard admits everything.
type ipGuard struct {
	every    rate.Limit
	burst    int
	limiters *cache.Cache
}

func newIPGuard(perMinute int) *ipGuard {
	if perMinute <= 0 {
		return nil
	}
	return &ipGuard{
		every:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: cache.New(guardIdleExpiry, guardCleanupInterval),
	}
}

func (g *ipGuard) Allow(ip string) bool {
	if g == nil {
		return true
	}
	limiter := g.limiter(ip)
	// refresh the idle expiry
	g.limiters.Set(ip, limiter, cache.DefaultExpiration)
	return limiter.Allow()
}

func (g *ipGuard) limiter(ip string) *rate.Limiter {
	if v, ok := g.limiters.Get(ip); ok {
		return v.(*rate.Limiter)
	}
	fresh := rate.NewLimiter(g.every, g.burst)
	if err := g.limiters.Add(ip, fresh, cache.DefaultExpiration); err != nil {
		if v, ok := g.limiters.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return fresh
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
