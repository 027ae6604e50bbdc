package middleware

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/edgeless-project/edgeless/common/ratelimit"
)

// isInternalRequest checks if the request is from an internal service.
// Internal services set X-Internal-Service header to bypass rate limits.
func isInternalRequest(c echo.Context) bool {
	internalHeader := c.Request().Header.Get("X-Internal-Service")
	if internalHeader == "" {
		return false
	}

	expectedSecret := os.Getenv("INTERNAL_SERVICE_SECRET")
	if expectedSecret == "" {
		expectedSecret = "default-internal-secret-change-in-prod"
	}

	return internalHeader == expectedSecret
}

// GlobalRateLimitMiddleware checks the global service-wide rate limit,
// protecting a controller's Workflow Instance API from being overwhelmed.
func GlobalRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			result, err := rateLimiter.CheckGlobalLimit(c.Request().Context(), limit)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "global_rate_limit_exceeded",
					"message": "Service is experiencing high load. Please try again later.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window":              "60 seconds",
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}

// DomainRateLimitMiddleware checks per-domain rate limits on every route it
// is mounted on, keyed by the path param, or failing that the query param,
// named domainIDParam (e.g. "domain_id"). A request that carries neither
// (such as a registration, whose domain_id is in the JSON body) passes
// unchecked. A domain_id is this system's closest
// analog to a rate-limited tenant, in place of a per-username limit.
func DomainRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, limit int64, domainIDParam string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			domainID := c.Param(domainIDParam)
			if domainID == "" {
				domainID = c.QueryParam(domainIDParam)
			}
			if domainID == "" {
				return next(c)
			}

			result, err := rateLimiter.CheckDomainLimit(c.Request().Context(), domainID, limit, 60)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "domain_rate_limit_exceeded",
					"message": "This domain has exceeded its request quota. Please wait before trying again.",
					"details": map[string]interface{}{
						"domain_id":           domainID,
						"limit":               result.Limit,
						"window":              "60 seconds",
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
