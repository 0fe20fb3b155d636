package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/binary"
    "encoding/json"
    "fmt"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/campus-marketplace/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
    http.ResponseWriter
    status int
    buf    bytes.Buffer
    size   int64
    limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }
func (cw *captureWriter) Write(b []byte) (int, error) {
    if cw.limit <= 0 || cw.size < cw.limit {
        remain := cw.limit - cw.size
        if cw.limit <= 0 {
            cw.buf.Write(b)
        } else if remain > 0 {
            if int64(len(b)) <= remain {
                cw.buf.Write(b)
            } else {
                cw.buf.Write(b[:remain])
            }
        }
    }
    cw.size += int64(len(b))
    return cw.ResponseWriter.Write(b)
}

// cacheKeyFrom keys on the concrete path parameters, the route pattern and
// the query string.  Parameters stay readable so every entry of one listing
// matches listingKeyPattern; route and query are hashed to keep keys short.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
    params := make([]string, 0, len(c.ParamNames()))
    for i, name := range c.ParamNames() {
        params = append(params, name+"="+url.PathEscape(c.ParamValues()[i]))
    }
    seg := "-"
    if len(params) > 0 {
        seg = strings.Join(params, ",")
    }
    sum := sha1.Sum([]byte("route:" + c.Path() + ":q:" + c.Request().URL.RawQuery))
    return fmt.Sprintf("%s:%s:%x", cfg.Prefix, seg, sum[:])
}

// listingKeyPattern matches every cached response for GET /v1/listings/:id.
func listingKeyPattern(cfg config.CacheConfig, listingID uint64) string {
    return cfg.Prefix + ":id=" + strconv.FormatUint(listingID, 10) + ":*"
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
    hdrJSON, err := json.Marshal(header)
    if err != nil {
        return nil, err
    }
    out := make([]byte, 8+len(hdrJSON)+len(body))
    binary.BigEndian.PutUint32(out[0:4], uint32(status))
    binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
    copy(out[8:8+len(hdrJSON)], hdrJSON)
    copy(out[8+len(hdrJSON):], body)
    return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
    if len(bs) < 8 {
        return 0, nil, nil, false
    }
    status = int(binary.BigEndian.Uint32(bs[0:4]))
    hlen := int(binary.BigEndian.Uint32(bs[4:8]))
    if hlen < 0 || 8+hlen > len(bs) {
        return 0, nil, nil, false
    }
    hdr := make(http.Header)
    if hlen > 0 {
        if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
            return 0, nil, nil, false
        }
    }
    return status, hdr, bs[8+hlen:], true
}

// NewRedisCache caches successful GET responses of public listing reads.
// Headers are stored with the body so a hit is byte-identical to the miss
// that filled it.  Responses larger than MaxBodyBytes are not stored.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *logrus.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return func(c echo.Context) error { return next(c) } }
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = 15 * time.Second
    }
    maxBody := int64(cfg.MaxBodyBytes)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if c.Request().Method != http.MethodGet {
                return next(c)
            }

            ctx := c.Request().Context()
            key := cacheKeyFrom(cfg, c)

            if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
                if status, hdr, body, ok := decodePayload(bs); ok {
                    for k, vals := range hdr {
                        if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, "X-Cache") {
                            continue
                        }
                        for _, v := range vals {
                            c.Response().Header().Add(k, v)
                        }
                    }
                    c.Response().Header().Set("X-Cache", "HIT")
                    c.Response().WriteHeader(status)
                    _, _ = c.Response().Write(body)
                    return nil
                }
            } else if err != redis.Nil {
                log.WithError(err).WithField("key", key).Debug("cache read failed")
            }

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil {
                return err
            }
            if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
                return nil
            }

            hdr := c.Response().Header().Clone()
            payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
            if err != nil {
                return nil
            }
            if err := rdb.SetEx(context.WithoutCancel(ctx), key, payload, ttl).Err(); err != nil {
                log.WithError(err).WithField("key", key).Debug("cache write failed")
            }
            return nil
        }
    }
}

// keyScanner is the part of *redis.Client the invalidator uses.
type keyScanner interface {
    Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
    Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ListingCacheInvalidator removes cached reads of a listing.  The
// reservation manager calls it after a sale commits.
type ListingCacheInvalidator struct {
    rdb keyScanner
    cfg config.CacheConfig
    log *logrus.Logger
}

// NewListingCacheInvalidator returns an invalidator for the cache built by
// NewRedisCache with the same cfg.  With caching disabled or no Redis it
// does nothing.
func NewListingCacheInvalidator(cfg config.CacheConfig, rdb *redis.Client, log *logrus.Logger) *ListingCacheInvalidator {
    inv := &ListingCacheInvalidator{cfg: cfg, log: log}
    if cfg.Enabled && rdb != nil {
        inv.rdb = rdb
    }
    return inv
}

// InvalidateListing deletes every cached response for listingID.
func (i *ListingCacheInvalidator) InvalidateListing(ctx context.Context, listingID uint64) error {
    if i.rdb == nil {
        return nil
    }
    pattern := listingKeyPattern(i.cfg, listingID)
    var (
        cursor  uint64
        removed int64
    )
    for {
        keys, next, err := i.rdb.Scan(ctx, cursor, pattern, 100).Result()
        if err != nil {
            return fmt.Errorf("scan %s: %w", pattern, err)
        }
        if len(keys) > 0 {
            n, err := i.rdb.Del(ctx, keys...).Result()
            if err != nil {
                return fmt.Errorf("delete cached listing %d: %w", listingID, err)
            }
            removed += n
        }
        if next == 0 {
            break
        }
        cursor = next
    }
    if removed > 0 {
        i.log.WithFields(logrus.Fields{"listing_id": listingID, "keys": removed}).Debug("listing cache invalidated")
    }
    return nil
}
