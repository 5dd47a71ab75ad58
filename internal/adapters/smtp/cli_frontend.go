package smtp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// CliFrontend runs one email through the pipeline and prints the verdict.
type CliFrontend struct {
	service *core.GatewayService
	logger  *zap.Logger
	verbose bool
}

// NewCliFrontend creates a new CLI frontend.
func NewCliFrontend(service *core.GatewayService, logger *zap.Logger, verbose bool) (*CliFrontend, error) {
	return &CliFrontend{
		service: service,
		logger:  logger,
		verbose: verbose,
	}, nil
}

// ProcessEmail processes an email and displays the results.
func (f *CliFrontend) ProcessEmail(ctx context.Context, email *core.InboundEmail) (*core.GatewayResponse, error) {
	f.logger.Debug("Processing email", zap.String("sender", email.Sender))

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", email.Sender)
	fmt.Printf("To: %s\n", strings.Join(email.Recipients, ", "))
	fmt.Printf("Subject: %s\n", email.Subject)
	fmt.Printf("Body length: %d bytes\n", len(email.BodyText)+len(email.BodyHTML))
	fmt.Printf("Attachments: %d\n", len(email.Attachments))

	if f.verbose {
		preview := email.BodyText
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Printf("\nBody preview:\n%s\n", preview)
	}

	fmt.Printf("\n=== Analysis ===\n")
	fmt.Printf("Running threat pipeline...\n")
	startTime := time.Now()
	resp, err := f.service.ProcessEmail(ctx, email)
	if err != nil {
		f.logger.Error("Failed to process email", zap.Error(err))
		fmt.Printf("Error: %v\n", err)
		return nil, err
	}
	duration := time.Since(startTime)

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Action: %s\n", resp.Action)
	fmt.Printf("Threat score: %.4f\n", resp.ThreatScore)
	fmt.Printf("Threat type: %s\n", resp.ThreatType)
	fmt.Printf("Confidence: %.4f\n", resp.Confidence)
	if len(resp.Indicators) > 0 {
		fmt.Printf("Indicators:\n")
		for _, indicator := range resp.Indicators {
			fmt.Printf("  - %s\n", indicator)
		}
	}
	fmt.Printf("Processing time: %v\n", duration)

	return resp, nil
}

// Start is a no-op for the CLI frontend.
func (f *CliFrontend) Start() error {
	return nil
}

// Stop is a no-op for the CLI frontend.
func (f *CliFrontend) Stop() error {
	return nil
}
