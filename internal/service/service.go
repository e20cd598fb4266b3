// Package service orchestrates the shortener's hot paths. It owns the
// operation ordering: creates go through the two-phase insert, resolves
// hit the cache before the store, and hit publishing never gets to fail
// a redirect. The analytical collaborator is optional; everything else
// is required.
package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shortr-io/shortr/internal/core"
	"github.com/shortr-io/shortr/internal/metrics"
	"github.com/shortr-io/shortr/internal/shortcode"
)

const (
	cacheKeyPrefix = "url:"

	// Analytics shape served by Stats.
	topReferersLimit = 10
	analyticsDays    = 30
)

// HitMeta is the request metadata captured for a redirect. Geo and
// device enrichment stay empty here; the fields exist for the worker
// pipeline's wire format.
type HitMeta struct {
	IPAddress string
	UserAgent string
	Referer   string
}

// Options wires a URLService. Store, Cache, Queue and Strategy are
// required; HitStorage is optional and only feeds Stats analytics.
type Options struct {
	Store      core.URLStore
	Cache      core.Cache
	Queue      core.Queue
	Strategy   shortcode.Strategy
	HitStorage core.HitStorage
	Metrics    *metrics.Metrics
	Logger     core.Logger
	CacheTTL   time.Duration
}

// URLService implements create, resolve, hit publishing, stats and
// delete over the configured backends.
type URLService struct {
	store    core.URLStore
	cache    core.Cache
	queue    core.Queue
	strategy shortcode.Strategy
	hits     core.HitStorage
	metrics  *metrics.Metrics
	logger   core.Logger
	cacheTTL time.Duration

	// resolveGroup collapses concurrent cache misses for the same code
	// into a single store query.
	resolveGroup singleflight.Group
}

// New validates the wiring and returns the service.
func New(opts Options) (*URLService, error) {
	if opts.Store == nil || opts.Cache == nil || opts.Queue == nil || opts.Strategy == nil {
		return nil, fmt.Errorf("store, cache, queue and strategy are required: %w", core.ErrInvalidConfiguration)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = &core.NoOpLogger{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}

	return &URLService{
		store:    opts.Store,
		cache:    opts.Cache,
		queue:    opts.Queue,
		strategy: opts.Strategy,
		hits:     opts.HitStorage,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		cacheTTL: opts.CacheTTL,
	}, nil
}

func cacheKey(code string) string {
	return cacheKeyPrefix + code
}

// Create shortens longURL. The store mints the id first, the strategy
// turns it into a code, and only then is the code attached; a crash
// in between leaves an unreachable placeholder row, never a dangling
// code.
func (s *URLService) Create(ctx context.Context, longURL string) (*core.URLRecord, error) {
	if err := validateLongURL(longURL); err != nil {
		return nil, err
	}

	rec, err := s.store.Insert(ctx, longURL)
	if err != nil {
		return nil, err
	}

	code, err := s.strategy.Generate(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	if err := s.store.AssignCode(ctx, rec.ID, code); err != nil {
		return nil, err
	}
	rec.ShortCode = code

	// Warm the cache; a failure here costs one future miss, nothing more.
	if err := s.cache.Set(ctx, cacheKey(code), longURL, s.cacheTTL); err != nil {
		s.metrics.CacheOps.WithLabelValues("set", metrics.ResultError).Inc()
		s.logger.Warn("Failed to warm cache after create", map[string]interface{}{
			"error":      err,
			"short_code": code,
		})
	}

	s.metrics.URLsCreated.Inc()
	s.logger.Info("Short URL created", map[string]interface{}{
		"short_code": code,
		"id":         rec.ID,
	})
	return rec, nil
}

// validateLongURL accepts absolute http and https URLs only.
func validateLongURL(raw string) error {
	invalid := func(msg string) error {
		return &core.ServiceError{
			Op:      "service.Create",
			Kind:    "validation",
			Message: msg,
			Err:     core.ErrInvalidInput,
		}
	}
	if raw == "" {
		return invalid("long_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("long_url is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("long_url scheme must be http or https")
	}
	if u.Host == "" {
		return invalid("long_url must be absolute")
	}
	return nil
}

// Resolve returns the long URL behind code. Cache errors degrade to
// misses; concurrent misses share one store lookup.
func (s *URLService) Resolve(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", &core.ServiceError{
			Op:      "service.Resolve",
			Kind:    "validation",
			Message: "short code is required",
			Err:     core.ErrInvalidInput,
		}
	}

	start := time.Now()
	defer func() {
		s.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}()

	cached, found, err := s.cache.Get(ctx, cacheKey(code))
	if err != nil {
		s.metrics.CacheOps.WithLabelValues("get", metrics.ResultError).Inc()
		s.logger.Warn("Cache lookup failed, falling through to store", map[string]interface{}{
			"error":      err,
			"short_code": code,
		})
	} else if found {
		s.metrics.CacheOps.WithLabelValues("get", metrics.ResultHit).Inc()
		s.metrics.Redirects.WithLabelValues(metrics.ResultOK).Inc()
		return cached, nil
	} else {
		s.metrics.CacheOps.WithLabelValues("get", metrics.ResultMiss).Inc()
	}

	longURL, err, _ := s.resolveGroup.Do(code, func() (interface{}, error) {
		rec, err := s.store.GetByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if err := s.cache.Set(ctx, cacheKey(code), rec.LongURL, s.cacheTTL); err != nil {
			s.metrics.CacheOps.WithLabelValues("set", metrics.ResultError).Inc()
			s.logger.Warn("Failed to repopulate cache", map[string]interface{}{
				"error":      err,
				"short_code": code,
			})
		}
		return rec.LongURL, nil
	})
	if err != nil {
		if core.IsNotFound(err) {
			s.metrics.Redirects.WithLabelValues(metrics.ResultNotFound).Inc()
		} else {
			s.metrics.Redirects.WithLabelValues(metrics.ResultError).Inc()
		}
		return "", err
	}

	s.metrics.Redirects.WithLabelValues(metrics.ResultOK).Inc()
	return longURL.(string), nil
}

// Get returns the active record behind code, uncached; the API detail
// endpoint wants fresh counters, not the redirect hot path.
func (s *URLService) Get(ctx context.Context, code string) (*core.URLRecord, error) {
	return s.store.GetByCode(ctx, code)
}

// PublishHit enqueues a hit event for the workers. It deliberately has
// no error return: a dead queue must never break a redirect, so
// failures are logged and counted instead.
func (s *URLService) PublishHit(ctx context.Context, code string, meta HitMeta) {
	event := &core.HitEvent{
		ShortCode: code,
		Timestamp: time.Now().UTC(),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Referer:   meta.Referer,
	}

	if err := s.queue.Publish(ctx, event); err != nil {
		s.metrics.PublishFailures.Inc()
		s.logger.Error("Failed to publish hit event", map[string]interface{}{
			"error":      err,
			"short_code": code,
		})
	}
}

// Stats returns the authoritative stats for an active code, extended
// with hit analytics when hit storage is wired in. Analytics failures
// degrade to the authoritative block alone.
func (s *URLService) Stats(ctx context.Context, code string) (*core.URLStats, error) {
	rec, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	stats := &core.URLStats{
		ShortCode:    rec.ShortCode,
		TotalHits:    rec.TotalHits,
		CreatedAt:    rec.CreatedAt,
		LastAccessed: rec.UpdatedAt,
	}

	if s.hits != nil {
		analytics, err := s.collectAnalytics(ctx, code)
		if err != nil {
			s.logger.Warn("Hit analytics unavailable", map[string]interface{}{
				"error":      err,
				"short_code": code,
			})
		} else {
			stats.Analytics = analytics
		}
	}

	return stats, nil
}

func (s *URLService) collectAnalytics(ctx context.Context, code string) (*core.HitAnalytics, error) {
	byDevice, err := s.hits.HitsByDevice(ctx, code)
	if err != nil {
		return nil, err
	}
	byBrowser, err := s.hits.HitsByBrowser(ctx, code)
	if err != nil {
		return nil, err
	}
	byCountry, err := s.hits.HitsByCountry(ctx, code)
	if err != nil {
		return nil, err
	}
	topReferers, err := s.hits.TopReferers(ctx, code, topReferersLimit)
	if err != nil {
		return nil, err
	}
	daily, err := s.hits.HitsOverTime(ctx, code, analyticsDays)
	if err != nil {
		return nil, err
	}

	return &core.HitAnalytics{
		ByDevice:    byDevice,
		ByBrowser:   byBrowser,
		ByCountry:   byCountry,
		TopReferers: topReferers,
		Daily:       daily,
	}, nil
}

// Delete soft-deletes the code. The store is the source of truth, so it
// goes first; only then is the cache entry dropped. A failed cache
// delete leaves a stale entry that expires with its TTL.
func (s *URLService) Delete(ctx context.Context, code string) error {
	if err := s.store.Deactivate(ctx, code); err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, cacheKey(code)); err != nil {
		s.metrics.CacheOps.WithLabelValues("delete", metrics.ResultError).Inc()
		s.logger.Warn("Failed to drop cache entry after delete", map[string]interface{}{
			"error":      err,
			"short_code": code,
		})
	}

	s.logger.Info("Short URL deleted", map[string]interface{}{
		"short_code": code,
	})
	return nil
}
