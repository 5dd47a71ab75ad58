package ports

import (
	"context"

	"github.com/mikey/email-gateway/internal/core"
)

// EmailFrontend is the inbound face of the gateway. Implementations
// receive mail (SMTP transaction, CLI one-shot) and hand it to the
// pipeline.
type EmailFrontend interface {
	// ProcessEmail runs one email through the pipeline.
	ProcessEmail(ctx context.Context, email *core.InboundEmail) (*core.GatewayResponse, error)

	// Start starts the frontend.
	Start() error

	// Stop stops the frontend.
	Stop() error
}
