package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/genesis-gov/genesis/internal/config"
)

// clientLimiter tracks one client's token bucket and its last activity so
// idle entries can be evicted.
type clientLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// limiterIdleTTL is how long a client bucket survives without traffic.
const limiterIdleTTL = 10 * time.Minute

// RateLimiter enforces a per-client token bucket keyed on c.ClientIP().
// The steady rate and burst come from the server config; a zero burst
// falls back to twice the rate. Idle buckets are swept out periodically.
func RateLimiter(cfg config.ServerConfig) gin.HandlerFunc {
	rps := cfg.RateLimitRPS
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 2 * rps
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*clientLimiter)
	)

	go func() {
		ticker := time.NewTicker(limiterIdleTTL / 2)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			for ip, cl := range clients {
				if time.Since(cl.lastSeen) > limiterIdleTTL {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		cl := clients[ip]
		if cl == nil {
			cl = &clientLimiter{bucket: rate.NewLimiter(rate.Limit(rps), burst)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if cl.bucket.Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "rate limit exceeded",
		})
	}
}
