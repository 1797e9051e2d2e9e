package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gareci/bus-reservation/internal/config"
)

// gcraScript spends one request against a GCRA bucket stored as the
// theoretical arrival time (ms) of the next request.  It returns
// {allowed, remaining, retry_after_ms}.
var gcraScript = redis.NewScript(`
local emission = tonumber(ARGV[2])
local burst = emission * tonumber(ARGV[3])
local now = tonumber(ARGV[1])
local tat = tonumber(redis.call('GET', KEYS[1]) or now)
if tat < now then tat = now end

local next_tat = tat + emission
local allow_at = next_tat - burst
if now < allow_at then
	return {0, 0, allow_at - now}
end
redis.call('SET', KEYS[1], next_tat, 'PX', tonumber(ARGV[4]))
return {1, math.floor((burst - (next_tat - now)) / emission), 0}
`)

// bucketKey scopes a bucket to the caller and the route pattern.
func bucketKey(prefix string, c echo.Context) string {
	return strings.Join([]string{prefix, userKey(c), c.Request().Method, c.Path()}, ":")
}

// NewTokenBucket limits each caller per route: Capacity requests in a
// burst, refilled at RefillTokens per RefillInterval.  When Redis is
// missing or failing the request goes through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *logrus.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	emission := cfg.RefillInterval.Milliseconds() / int64(max(cfg.RefillTokens, 1))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := bucketKey(cfg.Prefix, c)
			vals, err := gcraScript.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(), max(emission, 1), cfg.Capacity, cfg.TTL.Milliseconds(),
			).Int64Slice()
			if err != nil || len(vals) != 3 {
				log.WithError(err).WithField("key", key).Warn("rate limiter unavailable, letting request through")
				return next(c)
			}
			allowed, remaining, retryMs := vals[0] == 1, vals[1], vals[2]

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if !allowed {
				secs := int((retryMs + 999) / 1000)
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate limit exceeded",
					"code":        "TOO_MANY_REQUESTS",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}
