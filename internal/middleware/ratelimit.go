package middleware

import (
    "math"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/campus-marketplace/internal/config"
)

// bookingBucket refills a bucket stored as a hash and takes one token.
// It replies {allowed, tokens_left, retry_after_ms}.
var bookingBucket = redis.NewScript(`
local now, capacity, refill, interval, ttl =
    tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local stamp = tonumber(redis.call('HGET', KEYS[1], 'stamp'))
if not tokens or not stamp then
    tokens, stamp = capacity, now
end

local steps = math.floor(math.max(0, now - stamp) / interval)
if steps > 0 then
    tokens = math.min(capacity, tokens + steps * refill)
    stamp = stamp + steps * interval
end

local allowed, wait = 0, 0
if tokens >= 1 then
    allowed, tokens = 1, tokens - 1
else
    wait = math.max(0, interval - (now - stamp))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'stamp', stamp)
redis.call('EXPIRE', KEYS[1], ttl)
return {allowed, tokens, wait}
`)

type bucketReply struct {
    allowed   bool
    remaining int64
    wait      time.Duration
}

func parseBucketReply(v interface{}) (bucketReply, bool) {
    arr, ok := v.([]interface{})
    if !ok || len(arr) != 3 {
        return bucketReply{}, false
    }
    nums := make([]int64, 3)
    for i, x := range arr {
        n, ok := x.(int64)
        if !ok {
            return bucketReply{}, false
        }
        nums[i] = n
    }
    return bucketReply{allowed: nums[0] == 1, remaining: nums[1], wait: time.Duration(nums[2]) * time.Millisecond}, true
}

// rateKey gives every user one bucket per booking route.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
    return cfg.Prefix + ":user:" + userID(c) + ":route:" + c.Request().Method + " " + c.Path()
}

// NewTokenBucket limits booking mutations with a Redis token bucket shared
// by every API replica.  Redis errors fail open.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *logrus.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := int64(cfg.TTL / time.Second)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := rateKey(cfg, c)
            raw, err := bookingBucket.Run(c.Request().Context(), rdb, []string{key},
                time.Now().UnixMilli(), cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval.Milliseconds(), ttl,
            ).Result()
            if err != nil {
                log.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
                return next(c)
            }
            reply, ok := parseBucketReply(raw)
            if !ok {
                log.WithField("key", key).Warnf("unexpected rate limit reply %#v", raw)
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(reply.remaining, 10))
            if reply.allowed {
                return next(c)
            }

            secs := int64(math.Ceil(reply.wait.Seconds()))
            h.Set("Retry-After", strconv.FormatInt(secs, 10))
            log.WithFields(logrus.Fields{"key": key, "retry_after": secs}).Debug("booking request rate limited")
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "too many booking requests, slow down",
                "code":        "rate_limited",
                "retry_after": secs,
            })
        }
    }
}
