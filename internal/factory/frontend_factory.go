package factory

import (
	"fmt"

	"go.uber.org/zap"

	adaptersmtp "github.com/mikey/email-gateway/internal/adapters/smtp"
	"github.com/mikey/email-gateway/internal/config"
	"github.com/mikey/email-gateway/internal/core"
	"github.com/mikey/email-gateway/internal/ports"
)

// FrontendFactory creates email frontends based on configuration
type FrontendFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *core.GatewayService
}

// NewFrontendFactory creates a new frontend factory
func NewFrontendFactory(cfg *config.Config, logger *zap.Logger, service *core.GatewayService) *FrontendFactory {
	return &FrontendFactory{
		cfg:     cfg,
		logger:  logger,
		service: service,
	}
}

// CreateEmailFrontend creates an email frontend based on the configuration
func (f *FrontendFactory) CreateEmailFrontend() (ports.EmailFrontend, error) {
	serverCfg := f.cfg.GetServer()

	switch serverCfg.FrontendType {
	case "smtp":
		return adaptersmtp.NewGatewayFrontend(
			f.service,
			f.logger,
			serverCfg.ListenAddress,
			serverCfg.Hostname,
			serverCfg.RelayAddress,
			serverCfg.RelayPort,
			serverCfg.RelayEnabled,
			serverCfg.ScoreHeader,
			serverCfg.ActionHeader,
			serverCfg.IDHeader,
		), nil
	case "cli":
		return adaptersmtp.NewCliFrontend(
			f.service,
			f.logger,
			f.cfg.GetBool("cli.verbose"),
		)
	default:
		return nil, fmt.Errorf("unsupported frontend type: %s", serverCfg.FrontendType)
	}
}
