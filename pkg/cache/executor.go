package cache

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/chainclock/chainclock/pkg/query"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

const (
	layerLocal = "local"
	layerRedis = "redis"
)

// Remote is a shared byte cache, implemented by the redis client.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configures an Executor.
type Options struct {
	TTL        time.Duration
	MaxEntries int
	// Remote is consulted after the local layer. Nil disables it.
	Remote Remote
	// Requests counts lookups by layer and result when set.
	Requests *prometheus.CounterVec
}

type entry struct {
	rows    []query.Row
	expires time.Time
}

// Executor caches results of the wrapped executor by query text.
// Rows returned from the cache are shared and must not be modified.
type Executor struct {
	next   query.Executor
	logger *zap.Logger
	opts   Options
	local  *xsync.Map[uint64, entry]
	now    func() time.Time
}

// New wraps next with a TTL cache.
func New(next query.Executor, logger *zap.Logger, opts Options) *Executor {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		next:   next,
		logger: logger,
		opts:   opts,
		local:  xsync.NewMap[uint64, entry](),
		now:    time.Now,
	}
}

// Key returns the cache key of a query text.
func Key(text string) uint64 {
	return xxhash.Sum64String(text)
}

// Query implements query.Executor. Errors are never cached.
func (e *Executor) Query(ctx context.Context, text string) ([]query.Row, error) {
	key := Key(text)
	now := e.now()

	if v, ok := e.local.Load(key); ok && now.Before(v.expires) {
		e.count(layerLocal, "hit")
		return v.rows, nil
	}
	e.count(layerLocal, "miss")

	if e.opts.Remote != nil {
		if rows, ok := e.loadRemote(ctx, key); ok {
			e.store(key, rows, now)
			return rows, nil
		}
	}

	rows, err := e.next.Query(ctx, text)
	if err != nil {
		return nil, err
	}

	e.store(key, rows, now)
	if e.opts.Remote != nil {
		e.saveRemote(ctx, key, rows)
	}
	return rows, nil
}

func (e *Executor) loadRemote(ctx context.Context, key uint64) ([]query.Row, bool) {
	data, ok, err := e.opts.Remote.Get(ctx, remoteKey(key))
	if err != nil {
		e.logger.Warn("Failed to read cached result", zap.Uint64("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		e.count(layerRedis, "miss")
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []query.Row
	if err := dec.Decode(&rows); err != nil {
		e.logger.Warn("Discarding undecodable cached result", zap.Uint64("key", key), zap.Error(err))
		e.count(layerRedis, "miss")
		return nil, false
	}
	e.count(layerRedis, "hit")
	return rows, true
}

func (e *Executor) saveRemote(ctx context.Context, key uint64, rows []query.Row) {
	data, err := json.Marshal(rows)
	if err != nil {
		e.logger.Warn("Failed to encode result for cache", zap.Uint64("key", key), zap.Error(err))
		return
	}
	if err := e.opts.Remote.Set(ctx, remoteKey(key), data, e.opts.TTL); err != nil {
		e.logger.Warn("Failed to write cached result", zap.Uint64("key", key), zap.Error(err))
	}
}

func (e *Executor) store(key uint64, rows []query.Row, now time.Time) {
	if e.opts.TTL <= 0 {
		return
	}
	if e.local.Size() >= e.opts.MaxEntries {
		e.evict(now)
	}
	e.local.Store(key, entry{rows: rows, expires: now.Add(e.opts.TTL)})
}

// evict drops expired entries, and everything when that is not enough.
func (e *Executor) evict(now time.Time) {
	e.local.Range(func(k uint64, v entry) bool {
		if !now.Before(v.expires) {
			e.local.Delete(k)
		}
		return true
	})
	if e.local.Size() >= e.opts.MaxEntries {
		e.local.Clear()
	}
}

func (e *Executor) count(layer, result string) {
	if e.opts.Requests != nil {
		e.opts.Requests.WithLabelValues(layer, result).Inc()
	}
}

func remoteKey(key uint64) string {
	return "query:" + strconv.FormatUint(key, 16)
}
