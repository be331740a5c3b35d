package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

const defaultCacheKey = "catalog:default"

// Service serves the default catalog snapshot. The snapshot is loaded once
// from the source (through the Redis cache when configured) and treated as
// immutable afterwards; Reload swaps it wholesale.
type Service struct {
	source   Source
	cache    *Cache
	cacheKey string
	defaults Defaults
	logger   zerolog.Logger

	mu       sync.RWMutex
	snapshot []Record
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source   Source
	Cache    *Cache
	CacheKey string
	Defaults Defaults
	Logger   *zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	key := cfg.CacheKey
	if key == "" {
		key = defaultCacheKey
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "catalog").Logger()
	}
	return &Service{
		source:   cfg.Source,
		cache:    cfg.Cache,
		cacheKey: key,
		defaults: cfg.Defaults,
		logger:   logger,
	}, nil
}

// Defaults returns the fallback values used when resolving records.
func (s *Service) Defaults() Defaults {
	return s.defaults
}

// Records returns the default catalog snapshot.
func (s *Service) Records(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	return s.load(ctx, true)
}

// For returns custom when it is non-empty and the default snapshot otherwise.
func (s *Service) For(ctx context.Context, custom []Record) ([]Record, error) {
	if len(custom) > 0 {
		return custom, nil
	}
	return s.Records(ctx)
}

// Reload re-reads the source, bypassing and refreshing the cache.
func (s *Service) Reload(ctx context.Context) ([]Record, error) {
	if err := s.cache.Invalidate(ctx, s.cacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache invalidate failed")
	}
	return s.load(ctx, false)
}

func (s *Service) load(ctx context.Context, useCache bool) ([]Record, error) {
	if useCache {
		cached, ok, err := s.cache.GetRecords(ctx, s.cacheKey)
		if err != nil {
			s.logger.Warn().Err(err).Msg("catalog cache read failed")
		}
		if ok {
			s.store(cached)
			return cached, nil
		}
	}
	records, err := s.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if err := Validate(records); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if err := s.cache.SetRecords(ctx, s.cacheKey, records); err != nil {
		s.logger.Warn().Err(err).Msg("catalog cache write failed")
	}
	s.store(records)
	s.logger.Info().Int("products", len(records)).Msg("catalog loaded")
	return records, nil
}

func (s *Service) store(records []Record) {
	s.mu.Lock()
	s.snapshot = records
	s.mu.Unlock()
}

// Lookup finds reference in records and resolves it.
func (s *Service) Lookup(records []Record, reference string) (Product, bool) {
	rec, ok := Find(records, reference)
	if !ok {
		return Product{}, false
	}
	return Resolve(rec, s.defaults), true
}

// Products resolves every record, in catalog order.
func (s *Service) Products(records []Record) []Product {
	out := make([]Product, 0, len(records))
	for _, r := range records {
		out = append(out, Resolve(r, s.defaults))
	}
	return out
}
