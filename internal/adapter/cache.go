package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"thoth/internal/task"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 5 * time.Minute
)

// CacheConfig configures the result cache decorator.
type CacheConfig struct {
	// MaxSize is the maximum number of entries in the LRU cache.
	MaxSize int
	// TTL is how long a cached result remains valid.
	TTL time.Duration
}

// cacheEntry holds a cached success result and the time it was stored.
type cacheEntry struct {
	data     map[string]any
	took     time.Duration
	storedAt time.Time
}

// cachedExecutor decorates an Executor with an LRU result cache keyed by
// task type plus normalized params. Mutating capabilities and failure
// results are never cached; repeating them must repeat their effects.
type cachedExecutor struct {
	delegate Executor
	cache    *lru.Cache[string, cacheEntry]
	ttl      time.Duration
}

// NewCached wraps delegate with an LRU result cache. Zero config values fall
// back to defaults.
func NewCached(delegate Executor, config CacheConfig) (Executor, error) {
	if delegate == nil {
		return nil, fmt.Errorf("cache: delegate is required")
	}
	size := config.MaxSize
	if size <= 0 {
		size = defaultCacheMaxSize
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &cachedExecutor{delegate: delegate, cache: cache, ttl: ttl}, nil
}

func (c *cachedExecutor) Name() string           { return c.delegate.Name() }
func (c *cachedExecutor) Capabilities() []string { return c.delegate.Capabilities() }

func (c *cachedExecutor) Capability(taskType string) (Capability, bool) {
	return c.delegate.Capability(taskType)
}

func (c *cachedExecutor) Execute(ctx context.Context, t *task.Task) (*task.Result, error) {
	cap, ok := c.delegate.Capability(t.Type)
	if !ok || cap.Mutating {
		return c.delegate.Execute(ctx, t)
	}

	key := cacheKey(t.Type, t.Params)
	if entry, hit := c.cache.Get(key); hit {
		if time.Since(entry.storedAt) < c.ttl {
			return task.NewSuccess(t.ID, entry.data, entry.took), nil
		}
		c.cache.Remove(key)
	}

	result, err := c.delegate.Execute(ctx, t)
	if err == nil && result.Succeeded() {
		c.cache.Add(key, cacheEntry{data: result.Data, took: result.ExecutionTime, storedAt: time.Now()})
	}
	return result, err
}

// cacheKey normalizes params into a stable string: keys sorted, values JSON
// encoded. Unencodable values defeat caching for that call only.
func cacheKey(taskType string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(taskType)
	for _, k := range keys {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte('=')
		if raw, err := json.Marshal(params[k]); err == nil {
			sb.Write(raw)
		} else {
			sb.WriteString(fmt.Sprintf("%v", params[k]))
		}
	}
	return sb.String()
}
