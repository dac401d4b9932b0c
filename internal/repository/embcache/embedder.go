package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Aviyadav22/ParalegalAI/internal/db"
)

const (
	tierLocal  = "local"
	tierShared = "shared"

	defaultLocalSize = 1024
)

// QueryEmbedder embeds a single search query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// store is the consumer interface for the shared cache tier (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configures CachedEmbedder.
type Options struct {
	// KeyPrefix namespaces shared-tier keys, e.g. "paralegal:".
	KeyPrefix string
	// Model is mixed into the key so a model switch never serves stale vectors.
	Model     string
	LocalSize int
	TTL       time.Duration
	// CacheTotal is a counter vec with labels tier and result ("hit"/"miss").
	CacheTotal *prometheus.CounterVec
	Logger     *zap.Logger
}

// CachedEmbedder fronts query embedding with an in-process LRU and a shared KV tier.
// Shared-tier failures are logged and treated as misses.
type CachedEmbedder struct {
	inner      QueryEmbedder
	store      store
	local      *lru.Cache[string, []float32]
	keyPrefix  string
	model      string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. s may be nil to run with the local tier only.
func New(inner QueryEmbedder, s store, opts Options) (*CachedEmbedder, error) {
	size := opts.LocalSize
	if size <= 0 {
		size = defaultLocalSize
	}
	local, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create local cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		local:      local,
		keyPrefix:  opts.KeyPrefix,
		model:      opts.Model,
		ttl:        opts.TTL,
		cacheTotal: opts.CacheTotal,
		logger:     logger,
	}, nil
}

// EmbedQuery returns a cached vector or calls the inner embedder.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.local.Get(key); ok {
		c.incCache(tierLocal, "hit")
		return vec, nil
	}
	c.incCache(tierLocal, "miss")

	if vec, ok := c.getShared(ctx, key); ok {
		c.incCache(tierShared, "hit")
		c.local.Add(key, vec)
		return vec, nil
	}
	if c.store != nil {
		c.incCache(tierShared, "miss")
	}

	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	c.local.Add(key, vec)
	c.putShared(ctx, key, vec)
	return vec, nil
}

// Len returns the number of locally cached queries.
func (c *CachedEmbedder) Len() int { return c.local.Len() }

func (c *CachedEmbedder) incCache(tier, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(tier, result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return c.keyPrefix + "emb_cache:" + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedEmbedder) getShared(ctx context.Context, key string) ([]float32, bool) {
	if c.store == nil {
		return nil, false
	}
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) putShared(ctx context.Context, key string, vec []float32) {
	if c.store == nil {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, vectorToCacheBytes(vec), c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
