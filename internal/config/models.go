package config

import (
	"time"

	"github.com/mikey/email-gateway/internal/core"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
}

// ServerConfig represents the inbound frontend configuration
type ServerConfig struct {
	FrontendType  string
	ListenAddress string
	Hostname      string
	RelayAddress  string
	RelayPort     int
	RelayEnabled  bool
	ScoreHeader   string
	ActionHeader  string
	IDHeader      string
}

// PipelineConfig represents the pipeline orchestration configuration
type PipelineConfig struct {
	Timeout time.Duration
}

// PolicyConfig represents the zero-trust policy configuration
type PolicyConfig struct {
	Thresholds     core.PolicyThresholds
	AllowedDomains []string
	DeniedDomains  []string
}

// DNSConfig represents the DNS resolver configuration
type DNSConfig struct {
	Servers []string
	Timeout time.Duration
}

// ReputationConfig represents the sender reputation configuration
type ReputationConfig struct {
	CacheTTL      time.Duration
	FeedRateLimit float64
	DNSBLZones    []string
}

// LinksConfig represents the link rewriting configuration
type LinksConfig struct {
	TrackingBaseURL string
	MaxLinks        int
	RetentionTTL    time.Duration
	SafeDomains     []string
}

// AttachmentsConfig represents the attachment validation configuration
type AttachmentsConfig struct {
	MaxSize           int64
	MaxArchiveMembers int
	MaxArchiveDepth   int
}

// SandboxConfig represents the sandbox analyzer configuration
type SandboxConfig struct {
	VerdictDelay time.Duration
}

// CacheConfig represents the cache backend configuration
type CacheConfig struct {
	Type             string
	CleanupFrequency time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
}

// StoreConfig represents the durable store configuration
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// MetricsConfig represents the metrics endpoint configuration
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetServer returns the frontend configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FrontendType:  c.GetString("server.frontend_type"),
		ListenAddress: c.GetString("server.listen_address"),
		Hostname:      c.GetString("server.hostname"),
		RelayAddress:  c.GetString("server.relay.address"),
		RelayPort:     c.GetInt("server.relay.port"),
		RelayEnabled:  c.GetBool("server.relay.enabled"),
		ScoreHeader:   c.GetString("server.headers.score"),
		ActionHeader:  c.GetString("server.headers.action"),
		IDHeader:      c.GetString("server.headers.id"),
	}
}

// GetPipeline returns the pipeline configuration
func (c *Config) GetPipeline() PipelineConfig {
	return PipelineConfig{
		Timeout: c.GetDuration("pipeline.timeout"),
	}
}

// GetPolicy returns the policy configuration
func (c *Config) GetPolicy() PolicyConfig {
	return PolicyConfig{
		Thresholds: core.PolicyThresholds{
			Block:      c.GetFloat64("policy.block_threshold"),
			Quarantine: c.GetFloat64("policy.quarantine_threshold"),
			Sandbox:    c.GetFloat64("policy.sandbox_threshold"),
		},
		AllowedDomains: c.GetStringSlice("policy.allowed_domains"),
		DeniedDomains:  c.GetStringSlice("policy.denied_domains"),
	}
}

// GetDNS returns the DNS resolver configuration
func (c *Config) GetDNS() DNSConfig {
	return DNSConfig{
		Servers: c.GetStringSlice("dns.servers"),
		Timeout: c.GetDuration("dns.timeout"),
	}
}

// GetReputation returns the reputation configuration
func (c *Config) GetReputation() ReputationConfig {
	return ReputationConfig{
		CacheTTL:      c.GetDuration("reputation.cache_ttl"),
		FeedRateLimit: c.GetFloat64("reputation.feed_rate_limit"),
		DNSBLZones:    c.GetStringSlice("reputation.dnsbl_zones"),
	}
}

// GetLinks returns the link rewriting configuration
func (c *Config) GetLinks() LinksConfig {
	return LinksConfig{
		TrackingBaseURL: c.GetString("links.tracking_base_url"),
		MaxLinks:        c.GetInt("links.max_links"),
		RetentionTTL:    c.GetDuration("links.retention_ttl"),
		SafeDomains:     c.GetStringSlice("links.safe_domains"),
	}
}

// GetAttachments returns the attachment validation configuration
func (c *Config) GetAttachments() AttachmentsConfig {
	return AttachmentsConfig{
		MaxSize:           c.GetInt64("attachments.max_size"),
		MaxArchiveMembers: c.GetInt("attachments.max_archive_members"),
		MaxArchiveDepth:   c.GetInt("attachments.max_archive_depth"),
	}
}

// GetSandbox returns the sandbox configuration
func (c *Config) GetSandbox() SandboxConfig {
	return SandboxConfig{
		VerdictDelay: c.GetDuration("sandbox.verdict_delay"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		CleanupFrequency: c.GetDuration("cache.cleanup_frequency"),
		RedisAddr:        c.GetString("cache.redis_addr"),
		RedisPassword:    c.GetString("cache.redis_password"),
		RedisDB:          c.GetInt("cache.redis_db"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetMetrics returns the metrics configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled:       c.GetBool("metrics.enabled"),
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}
