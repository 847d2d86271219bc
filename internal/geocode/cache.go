package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"fieldcrm/internal/metrics"
)

// Cached wraps a Geocoder with a Redis result cache. Concurrent lookups of
// the same address share one upstream call. A nil client disables the Redis
// layer but keeps request coalescing.
type Cached struct {
	next   Geocoder
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	group  singleflight.Group
	log    logrus.FieldLogger

	// LookupTimeout bounds the shared upstream call, which outlives the
	// caller that started it.
	LookupTimeout time.Duration
}

func NewCached(next Geocoder, rdb redis.Cmdable, ttl time.Duration, log logrus.FieldLogger) *Cached {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl, prefix: "geocode:v1:", log: log, LookupTimeout: time.Minute}
}

// CacheKey is the Redis key for an address; case and surrounding space are ignored.
func (c *Cached) CacheKey(address string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(address))))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *Cached) Geocode(ctx context.Context, address string) Lookup {
	key := c.CacheKey(address)
	if r, ok := c.get(ctx, key); ok {
		return Lookup{Result: r, Attempts: []Attempt{{Provider: "cache", Outcome: outcomeOK}}}
	}
	ch := c.group.DoChan(key, func() (any, error) {
		// waiters share this call, so one caller's cancellation must not end it
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.LookupTimeout)
		defer cancel()
		l := c.next.Geocode(sctx, address)
		if l.Found() {
			c.put(sctx, key, l.Result)
		}
		return l, nil
	})
	select {
	case res := <-ch:
		return res.Val.(Lookup)
	case <-ctx.Done():
		return Lookup{Attempts: []Attempt{{Provider: "cache", Outcome: outcomeError, Error: ctx.Err().Error()}}}
	}
}

func (c *Cached) get(ctx context.Context, key string) (*Result, bool) {
	if c.rdb == nil {
		return nil, false
	}
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.GeocodeCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		metrics.GeocodeCache.WithLabelValues("error").Inc()
		c.log.WithError(err).Warn("geocode cache read failed")
		return nil, false
	}
	var r Result
	if err := json.Unmarshal(b, &r); err != nil || !Valid(&r) {
		metrics.GeocodeCache.WithLabelValues("error").Inc()
		return nil, false
	}
	metrics.GeocodeCache.WithLabelValues("hit").Inc()
	return &r, true
}

func (c *Cached) put(ctx context.Context, key string, r *Result) {
	if c.rdb == nil {
		return
	}
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("geocode cache write failed")
	}
}
