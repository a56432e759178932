package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/canteen-voting/internal/model"
)

// ResultsCache holds computed results per period.  Each period carries an
// invalidation counter: Invalidate bumps it and drops the entry, and Set only
// stores when the counter still has the value read before the tally.  A
// tally that raced with a cast is therefore never stored.
type ResultsCache interface {
	Get(ctx context.Context, period model.Period) (model.Results, bool)
	// Version returns the period's invalidation counter.
	Version(ctx context.Context, period model.Period) (int64, error)
	// Set stores res unless the period was invalidated after version was read.
	Set(ctx context.Context, res model.Results, version int64)
	Invalidate(ctx context.Context, period model.Period) error
}

// NoopResultsCache never stores anything.
type NoopResultsCache struct{}

func (NoopResultsCache) Get(context.Context, model.Period) (model.Results, bool) {
	return model.Results{}, false
}
func (NoopResultsCache) Version(context.Context, model.Period) (int64, error) { return 0, nil }
func (NoopResultsCache) Set(context.Context, model.Results, int64)            {}
func (NoopResultsCache) Invalidate(context.Context, model.Period) error       { return nil }

// setIfVersion stores ARGV[2] at KEYS[2] for ARGV[3] ms when the counter at
// KEYS[1] (missing means 0) equals ARGV[1].
var setIfVersion = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then cur = '0' end
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisResultsCache stores results as JSON under <prefix>:results:<period>
// and the counter under <prefix>:results:<period>:ver.
type RedisResultsCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewResultsCache returns a redis-backed cache, or NoopResultsCache when rdb
// is nil or ttl is not positive.
func NewResultsCache(rdb *redis.Client, prefix string, ttl time.Duration) ResultsCache {
	if rdb == nil || ttl <= 0 {
		return NoopResultsCache{}
	}
	if prefix == "" {
		prefix = "canteen"
	}
	return &RedisResultsCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisResultsCache) key(p model.Period) string {
	return c.prefix + ":results:" + string(p)
}

func (c *RedisResultsCache) versionKey(p model.Period) string {
	return c.key(p) + ":ver"
}

// Get returns the cached results for period.  Redis errors count as a miss.
func (c *RedisResultsCache) Get(ctx context.Context, period model.Period) (model.Results, bool) {
	bs, err := c.rdb.Get(ctx, c.key(period)).Bytes()
	if err != nil {
		return model.Results{}, false
	}
	var res model.Results
	if err := json.Unmarshal(bs, &res); err != nil || res.Period != period {
		return model.Results{}, false
	}
	return res, true
}

// Version returns the period's counter; a period never invalidated is at 0.
func (c *RedisResultsCache) Version(ctx context.Context, period model.Period) (int64, error) {
	v, err := c.rdb.Get(ctx, c.versionKey(period)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Set stores res if the period is still at version.  Failures are ignored;
// the next read recomputes.
func (c *RedisResultsCache) Set(ctx context.Context, res model.Results, version int64) {
	bs, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = setIfVersion.Run(ctx, c.rdb,
		[]string{c.versionKey(res.Period), c.key(res.Period)},
		strconv.FormatInt(version, 10), string(bs), c.ttl.Milliseconds(),
	).Err()
}

// Invalidate bumps the period's counter and drops its entry atomically.
func (c *RedisResultsCache) Invalidate(ctx context.Context, period model.Period) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey(period))
		pipe.Del(ctx, c.key(period))
		return nil
	})
	return err
}
