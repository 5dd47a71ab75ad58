package di

import (
	"flag"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/adapters/cache"
	"github.com/mikey/email-gateway/internal/adapters/dns"
	"github.com/mikey/email-gateway/internal/adapters/store"
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

// CLIFlags contains all command line flags for the scanner
type CLIFlags struct {
	// LLM provider flags
	Provider    string
	MaxTokens   int
	Temperature float64
	TopP        float64
	MaxBodySize int

	// Bedrock flags
	BedrockRegion  string
	BedrockModelID string

	// Gemini flags
	GeminiAPIKey    string
	GeminiModelName string

	// OpenAI flags
	OpenAIAPIKey    string
	OpenAIModelName string

	// Policy flags
	BlockThreshold      float64
	QuarantineThreshold float64
	SandboxThreshold    float64

	// Input flags
	InputFile  string
	Sender     string
	Recipient  string
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// LLM provider flags
	flag.StringVar(&flags.Provider, "provider", "openai", "LLM provider (bedrock, gemini, openai)")
	flag.IntVar(&flags.MaxTokens, "max-tokens", 1000, "Maximum tokens for LLM response")
	flag.Float64Var(&flags.Temperature, "temperature", 0.1, "Temperature for LLM generation")
	flag.Float64Var(&flags.TopP, "top-p", 0.9, "Top-p for LLM generation")
	flag.IntVar(&flags.MaxBodySize, "max-body-size", 4096, "Maximum email body size to send to LLM")

	// Bedrock flags
	flag.StringVar(&flags.BedrockRegion, "bedrock-region", "us-east-1", "AWS region for Bedrock")
	flag.StringVar(&flags.BedrockModelID, "bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	flag.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	flag.StringVar(&flags.GeminiModelName, "gemini-model", "gemini-pro", "Gemini model name")

	// OpenAI flags
	flag.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	flag.StringVar(&flags.OpenAIModelName, "openai-model", "gpt-4", "OpenAI model name")

	// Policy flags
	flag.Float64Var(&flags.BlockThreshold, "block-threshold", 0.85, "Threat score at or above which mail is blocked")
	flag.Float64Var(&flags.QuarantineThreshold, "quarantine-threshold", 0.65, "Threat score at or above which mail is quarantined")
	flag.Float64Var(&flags.SandboxThreshold, "sandbox-threshold", 0.45, "Threat score at or above which attachments are sandboxed")

	// Input flags
	flag.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	flag.StringVar(&flags.Sender, "sender", "", "Envelope sender (falls back to the From header)")
	flag.StringVar(&flags.Recipient, "recipient", "", "Envelope recipient")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container
// for the one-shot scanner. Everything runs against in-memory backends.
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New()
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}
		return createConfigFromFlags(flags), nil
	}); err != nil {
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
	if err := container.Provide(factory.NewFrontendFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register DNS resolver and DNSBL feed
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *dns.Resolver {
		dnsCfg := cfg.GetDNS()
		return dns.NewResolver(dnsCfg.Servers, dnsCfg.Timeout, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(resolver *dns.Resolver, cfg *config.Config, logger *zap.Logger) reputation.Feed {
		return dns.NewBlacklistFeed(resolver, cfg.GetReputation().DNSBLZones, logger)
	}); err != nil {
		return nil, err
	}

	// Register in-memory backends
	if err := container.Provide(func(logger *zap.Logger) core.LinkStore {
		return cache.NewMemoryLinkStore(logger, time.Hour)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(logger *zap.Logger) core.ReputationCache {
		return cache.NewMemoryReputationCache(logger, time.Hour)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func() core.EmailStore {
		return store.NewMemoryStore()
	}); err != nil {
		return nil, err
	}

	// Register pipeline signals
	if err := container.Provide(func(resolver *dns.Resolver, logger *zap.Logger) core.AuthenticationChecker {
		return auth.NewChecker(resolver, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(feed reputation.Feed, repCache core.ReputationCache, cfg *config.Config, logger *zap.Logger) core.ReputationChecker {
		repCfg := cfg.GetReputation()
		return reputation.NewChecker(feed, repCache, logger, repCfg.CacheTTL, repCfg.FeedRateLimit)
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
	if err := container.Provide(func(cfg *config.Config, linkStore core.LinkStore, logger *zap.Logger) core.LinkRewriter {
		linksCfg := cfg.GetLinks()
		return links.NewRewriter(links.Config{
			TrackingBaseURL: linksCfg.TrackingBaseURL,
			MaxLinks:        linksCfg.MaxLinks,
			RetentionTTL:    linksCfg.RetentionTTL,
			SafeDomains:     linksCfg.SafeDomains,
		}, linkStore, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DetectorFactory) (core.ThreatDetector, error) {
		return f.CreateDetector()
	}); err != nil {
		return nil, err
	}

	// No sandbox for the one-shot scanner
	if err := container.Provide(func() core.SandboxAnalyzer {
		return nil
	}); err != nil {
		return nil, err
	}

	// Register policy engine
	if err := container.Provide(func(cfg *config.Config) (*core.PolicyEngine, error) {
		policyCfg := cfg.GetPolicy()
		return core.NewPolicyEngine(policyCfg.Thresholds, policyCfg.AllowedDomains, policyCfg.DeniedDomains)
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

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	// Set some cli specific settings
	v.Set("server.frontend_type", "cli")
	v.Set("cli.verbose", flags.Verbose)

	// Set LLM provider
	v.Set("llm.provider", flags.Provider)

	// Set provider-specific configuration
	switch flags.Provider {
	case "bedrock":
		v.Set("bedrock.region", flags.BedrockRegion)
		v.Set("bedrock.model_id", flags.BedrockModelID)
		v.Set("bedrock.max_tokens", flags.MaxTokens)
		v.Set("bedrock.temperature", flags.Temperature)
		v.Set("bedrock.top_p", flags.TopP)
		v.Set("bedrock.max_body_size", flags.MaxBodySize)
	case "gemini":
		v.Set("gemini.api_key", flags.GeminiAPIKey)
		v.Set("gemini.model_name", flags.GeminiModelName)
		v.Set("gemini.max_tokens", flags.MaxTokens)
		v.Set("gemini.temperature", flags.Temperature)
		v.Set("gemini.top_p", flags.TopP)
		v.Set("gemini.max_body_size", flags.MaxBodySize)
	case "openai":
		v.Set("openai.api_key", flags.OpenAIAPIKey)
		v.Set("openai.model_name", flags.OpenAIModelName)
		v.Set("openai.max_tokens", flags.MaxTokens)
		v.Set("openai.temperature", flags.Temperature)
		v.Set("openai.top_p", flags.TopP)
		v.Set("openai.max_body_size", flags.MaxBodySize)
	}

	// Set policy thresholds
	v.Set("policy.block_threshold", flags.BlockThreshold)
	v.Set("policy.quarantine_threshold", flags.QuarantineThreshold)
	v.Set("policy.sandbox_threshold", flags.SandboxThreshold)

	return config.NewFromViper(v)
}
