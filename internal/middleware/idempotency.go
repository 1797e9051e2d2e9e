package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// IdempotencyHeader carries the client supplied retry key.
const IdempotencyHeader = "Idempotency-Key"

const pendingMarker = "pending"

// pendingTTL bounds how long a claim survives a crashed handler.  The
// stored response gets the full ttl.
const pendingTTL = 30 * time.Second

// captureWriter tees the response so it can be stored for replays.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.buf.Write(b)
	return cw.ResponseWriter.Write(b)
}

func idempotencyKey(c echo.Context, key string) string {
	tail := strings.Join([]string{userKey(c), c.Request().Method, c.Path(), key}, ":")
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("idem:%x", sum[:])
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
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// Idempotency replays the stored response when a request is retried with
// the same Idempotency-Key by the same caller.  A request still in
// flight under that key gets 409.  Only responses below 500 are stored,
// so a failed attempt can be retried.  Requests without the header, or
// a nil client, pass straight through.
func Idempotency(rdb *redis.Client, ttl time.Duration, log *logrus.Logger) echo.MiddlewareFunc {
	if rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := strings.TrimSpace(c.Request().Header.Get(IdempotencyHeader))
			if raw == "" {
				return next(c)
			}
			if len(raw) > 128 {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "idempotency key too long"})
			}
			ctx := c.Request().Context()
			key := idempotencyKey(c, raw)

			claimed, err := rdb.SetNX(ctx, key, pendingMarker, min(pendingTTL, ttl)).Result()
			if err != nil {
				log.WithError(err).Warn("idempotency store unavailable")
				return next(c)
			}
			if !claimed {
				bs, err := rdb.Get(ctx, key).Bytes()
				if err == nil && string(bs) != pendingMarker {
					if status, hdr, body, ok := decodePayload(bs); ok {
						for k, vals := range hdr {
							if strings.EqualFold(k, "Content-Length") {
								continue
							}
							for _, v := range vals {
								c.Response().Header().Add(k, v)
							}
						}
						c.Response().Header().Set("Idempotent-Replayed", "true")
						c.Response().WriteHeader(status)
						_, _ = c.Response().Write(body)
						return nil
					}
				}
				return c.JSON(http.StatusConflict, echo.Map{"error": "a request with this idempotency key is in progress"})
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw
			herr := next(c)
			if herr != nil {
				// Let echo render the error, then store that rendering.
				c.Error(herr)
			}

			store := context.Background()
			if !c.Response().Committed || cw.status >= http.StatusInternalServerError {
				_ = rdb.Del(store, key).Err()
				return nil
			}
			hdr := c.Response().Header().Clone()
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err == nil {
				err = rdb.Set(store, key, payload, ttl).Err()
			}
			if err != nil {
				log.WithError(err).Warn("could not store idempotent response")
				_ = rdb.Del(store, key).Err()
			}
			return nil
		}
	}
}
