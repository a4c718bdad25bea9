package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestObserver receives one observation per request
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// AnalyticsMiddleware records the latency and status of every request and
// sets the X-Response-Time and X-Cache-Hit debugging headers
func AnalyticsMiddleware(obs RequestObserver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		responseTime := time.Since(start)

		// The error handler has not run yet: derive the status it will write
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
		}

		// Unrouted requests leave the Use() route ("/") as the last match
		route := c.Route().Path
		if status == fiber.StatusNotFound && (route == "/" || route == "") {
			route = "unmatched"
		}
		obs.ObserveRequest(c.Method(), route, status, responseTime)

		cacheHit := false
		if val, ok := c.Locals("cache_hit").(bool); ok {
			cacheHit = val
		}
		c.Set("X-Response-Time", responseTime.String())
		c.Set("X-Cache-Hit", boolToString(cacheHit))

		return err
	}
}

// boolToString converts bool to string for headers
func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
