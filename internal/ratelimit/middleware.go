package ratelimit

import (
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Middleware rejects requests over the limit with 429. Paths under any of the
// exempt prefixes are not counted.
func Middleware(rl *RateLimiter, exempt ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, p := range exempt {
			if strings.HasPrefix(path, p) {
				c.Next()
				return
			}
		}

		client := c.ClientIP()
		allowed, retryAfter := rl.AllowRequest(client)
		if !allowed {
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			log.Printf("RateLimit: Rejected %s %s from %s (retry in %ds)", c.Request.Method, path, client, secs)
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
