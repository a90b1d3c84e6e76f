package middleware

import (
	"net/http"

	"cryptoswap/internal/config"
	"cryptoswap/internal/model"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// RateLimit allows cfg.Requests per client IP in each window. Zero requests
// turns limiting off.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.Requests <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  cfg.Window(),
		Limit: uint(cfg.Requests),
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: rateLimited,
		KeyFunc:      clientIP,
	})
}

func clientIP(c *gin.Context) string {
	return c.ClientIP()
}

func rateLimited(c *gin.Context, info ratelimit.Info) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, model.Response{
		Success: false,
		Error:   "too many requests",
	})
}
