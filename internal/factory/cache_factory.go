package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/adapters/cache"
	"github.com/mikey/email-gateway/internal/config"
	"github.com/mikey/email-gateway/internal/core"
)

// CacheFactory creates the link store and reputation cache backends
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLinkStore creates the tracked-link store based on the configuration
func (f *CacheFactory) CreateLinkStore() (core.LinkStore, error) {
	cacheCfg := f.cfg.GetCache()

	switch cacheCfg.Type {
	case "memory":
		return cache.NewMemoryLinkStore(f.logger, cacheCfg.CleanupFrequency), nil
	case "redis":
		return cache.NewRedisLinkStore(cacheCfg.RedisAddr, cacheCfg.RedisPassword, cacheCfg.RedisDB, f.logger)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheCfg.Type)
	}
}

// CreateReputationCache creates the reputation cache based on the configuration
func (f *CacheFactory) CreateReputationCache() (core.ReputationCache, error) {
	cacheCfg := f.cfg.GetCache()

	switch cacheCfg.Type {
	case "memory":
		return cache.NewMemoryReputationCache(f.logger, cacheCfg.CleanupFrequency), nil
	case "redis":
		return cache.NewRedisReputationCache(cacheCfg.RedisAddr, cacheCfg.RedisPassword, cacheCfg.RedisDB, f.logger)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheCfg.Type)
	}
}
