package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/adapters/bedrock"
	"github.com/mikey/email-gateway/internal/adapters/gemini"
	"github.com/mikey/email-gateway/internal/adapters/openai"
	"github.com/mikey/email-gateway/internal/config"
	"github.com/mikey/email-gateway/internal/core"
	"github.com/mikey/email-gateway/internal/utils"
)

// DetectorFactory creates AI threat detectors
type DetectorFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewDetectorFactory creates a new detector factory
func NewDetectorFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *DetectorFactory {
	return &DetectorFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateDetector creates a threat detector based on the configured provider
func (f *DetectorFactory) CreateDetector() (core.ThreatDetector, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "bedrock":
		factory := bedrock.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateDetector()
	case "gemini":
		if f.cfg.GetGemini().APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		factory := gemini.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateDetector()
	case "openai":
		if f.cfg.GetOpenAI().APIKey == "" {
			return nil, fmt.Errorf("openai API key is required")
		}
		factory := openai.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateDetector()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}
