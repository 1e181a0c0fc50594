package ratelimit

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Budget caps how many script-model requests each provider may receive
// per window (a day by default), plus an overall cap. Zero limits mean
// unlimited. Cache hits are tracked so the stats show what was saved.
type Budget struct {
	mu        sync.Mutex
	limits    map[string]int
	maxTotal  int
	used      map[string]int
	total     int
	window    time.Duration
	resetTime time.Time
	cacheHits int
	now       func() time.Time
	logger    *slog.Logger
}

// NewBudget creates a budget with per-provider limits and a total cap.
func NewBudget(limits map[string]int, maxTotal int, logger *slog.Logger) *Budget {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Budget{
		limits:   make(map[string]int, len(limits)),
		maxTotal: maxTotal,
		used:     make(map[string]int),
		window:   24 * time.Hour,
		now:      time.Now,
		logger:   logger,
	}
	for k, v := range limits {
		b.limits[k] = v
	}
	b.resetTime = b.now().Add(b.window)
	return b
}

// Allow reports whether provider may be called right now.
func (b *Budget) Allow(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	return b.allowed(provider) == nil
}

// Use records one request for provider, or returns an error when the
// budget is exhausted.
func (b *Budget) Use(provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	if err := b.allowed(provider); err != nil {
		b.logger.Warn("model budget exhausted", "provider", provider, "used", b.used[provider], "limit", b.limits[provider])
		return err
	}

	b.used[provider]++
	b.total++
	b.logger.Debug("model budget used", "provider", provider, "used", b.used[provider], "total", b.total)
	return nil
}

// RecordCacheHit notes a request that was served from cache.
func (b *Budget) RecordCacheHit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cacheHits++
}

// Stats returns a snapshot for the status endpoint.
func (b *Budget) Stats() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	providers := make([]string, 0, len(b.used)+len(b.limits))
	seen := map[string]bool{}
	for p := range b.limits {
		providers = append(providers, p)
		seen[p] = true
	}
	for p := range b.used {
		if !seen[p] {
			providers = append(providers, p)
		}
	}
	sort.Strings(providers)

	perProvider := make(map[string]any, len(providers))
	for _, p := range providers {
		perProvider[p] = map[string]int{"used": b.used[p], "limit": b.limits[p]}
	}

	return map[string]any{
		"providers":   perProvider,
		"total_used":  b.total,
		"total_limit": b.maxTotal,
		"cache_hits":  b.cacheHits,
		"reset_time":  b.resetTime,
	}
}

func (b *Budget) allowed(provider string) error {
	if limit := b.limits[provider]; limit > 0 && b.used[provider] >= limit {
		return fmt.Errorf("%s request budget exhausted (%d/%d)", provider, b.used[provider], limit)
	}
	if b.maxTotal > 0 && b.total >= b.maxTotal {
		return fmt.Errorf("total model request budget exhausted (%d/%d)", b.total, b.maxTotal)
	}
	return nil
}

func (b *Budget) checkReset() {
	now := b.now()
	if now.Before(b.resetTime) {
		return
	}
	b.logger.Info("resetting model request budget", "total_used", b.total, "cache_hits", b.cacheHits)
	b.used = make(map[string]int)
	b.total = 0
	b.cacheHits = 0
	b.resetTime = now.Add(b.window)
}
