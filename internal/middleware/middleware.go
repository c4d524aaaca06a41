package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Brownie44l1/pancreas-api/internal/metrics"
)

// HTTPLogger writes one access line per request and records request metrics.
func HTTPLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		status := c.Writer.Status()

		tags := []string{
			metrics.Tag("path", route),
			metrics.Tag("method", method),
			metrics.Tag("http_status_code", strconv.Itoa(status)),
		}
		metrics.Incr(metrics.APIRequestCount, tags...)
		metrics.Timing(metrics.APIRequestLatency, latency, tags...)

		event := log.Info()
		if len(c.Errors) > 0 || status >= http.StatusInternalServerError {
			event = log.Error().Str("errors", c.Errors.String())
		}
		event.Msgf("[access] [%s] %s %s %d %v", c.ClientIP(), method, route, status, latency)
	}
}

// CORS allows any origin, which is what the browser frontend expects.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	})
}

// RateLimit rejects requests beyond rps (with burst) with 429. A non-positive
// rps disables limiting.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}
