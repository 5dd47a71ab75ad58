package di

import (
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/adapters/dns"
	"github.com/mikey/email-gateway/internal/adapters/sandbox"
	"github.com/mikey/email-gateway/internal/analysis/attachment"
	"github.com/mikey/email-gateway/internal/analysis/auth"
	"github.com/mikey/email-gateway/internal/analysis/headers"
	"github.com/mikey/email-gateway/internal/analysis/links"
	"github.com/mikey/email-gateway/internal/analysis/reputation"
	"github.com/mikey/email-gateway/internal/config"
	"github.com/mikey/email-gateway/internal/core"
	"github.com/mikey/email-gateway/internal/factory"
	"github.com/mikey/email-gateway/internal/logging"
	"github.com/mikey/email-gateway/internal/metrics"
	"github.com/mikey/email-gateway/internal/ports"
	"github.com/mikey/email-gateway/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.New); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewDetectorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewFrontendFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register DNS resolver
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *dns.Resolver {
		dnsCfg := cfg.GetDNS()
		return dns.NewResolver(dnsCfg.Servers, dnsCfg.Timeout, logger)
	}); err != nil {
		return nil, err
	}

	// Register DNSBL reputation feed
	if err := container.Provide(func(resolver *dns.Resolver, cfg *config.Config, logger *zap.Logger) reputation.Feed {
		return dns.NewBlacklistFeed(resolver, cfg.GetReputation().DNSBLZones, logger)
	}); err != nil {
		return nil, err
	}

	// Register link store and reputation cache
	if err := container.Provide(func(f *factory.CacheFactory) (core.LinkStore, error) {
		return f.CreateLinkStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.CacheFactory) (core.ReputationCache, error) {
		return f.CreateReputationCache()
	}); err != nil {
		return nil, err
	}

	// Register email store
	if err := container.Provide(func(f *factory.StoreFactory) (core.EmailStore, error) {
		return f.CreateEmailStore()
	}); err != nil {
		return nil, err
	}

	// Register pipeline signals
	if err := container.Provide(func(resolver *dns.Resolver, logger *zap.Logger) core.AuthenticationChecker {
		return auth.NewChecker(resolver, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(feed reputation.Feed, cache core.ReputationCache, cfg *config.Config, logger *zap.Logger) core.ReputationChecker {
		repCfg := cfg.GetReputation()
		return reputation.NewChecker(feed, cache, logger, repCfg.CacheTTL, repCfg.FeedRateLimit)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(logger *zap.Logger) core.HeaderAnalyzer {
		return headers.NewAnalyzer(logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.AttachmentValidator {
		attCfg := cfg.GetAttachments()
		return attachment.NewValidator(attachment.Config{
			MaxSize:           attCfg.MaxSize,
			MaxArchiveMembers: attCfg.MaxArchiveMembers,
			MaxArchiveDepth:   attCfg.MaxArchiveDepth,
		}, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, store core.LinkStore, logger *zap.Logger) core.LinkRewriter {
		linksCfg := cfg.GetLinks()
		return links.NewRewriter(links.Config{
			TrackingBaseURL: linksCfg.TrackingBaseURL,
			MaxLinks:        linksCfg.MaxLinks,
			RetentionTTL:    linksCfg.RetentionTTL,
			SafeDomains:     linksCfg.SafeDomains,
		}, store, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DetectorFactory) (core.ThreatDetector, error) {
		return f.CreateDetector()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.SandboxAnalyzer {
		return sandbox.NewStubAnalyzer(cfg.GetSandbox().VerdictDelay, logger)
	}); err != nil {
		return nil, err
	}

	// Register policy engine
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*core.PolicyEngine, error) {
		policyCfg := cfg.GetPolicy()
		engine, err := core.NewPolicyEngine(policyCfg.Thresholds, policyCfg.AllowedDomains, policyCfg.DeniedDomains)
		if err != nil {
			return nil, err
		}
		if len(policyCfg.AllowedDomains) > 0 || len(policyCfg.DeniedDomains) > 0 {
			logger.Info("Loaded policy domain lists",
				zap.Strings("allowed", policyCfg.AllowedDomains),
				zap.Strings("denied", policyCfg.DeniedDomains))
		}
		return engine, nil
	}); err != nil {
		return nil, err
	}

	// Register pipeline timeout
	if err := container.Provide(func(cfg *config.Config) time.Duration {
		return cfg.GetPipeline().Timeout
	}); err != nil {
		return nil, err
	}

	// Register gateway service
	if err := container.Provide(core.NewGatewayService); err != nil {
		return nil, err
	}

	// Register email frontend
	if err := container.Provide(func(f *factory.FrontendFactory) (ports.EmailFrontend, error) {
		return f.CreateEmailFrontend()
	}); err != nil {
		return nil, err
	}

	return container, nil
}
