package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	adaptersmtp "github.com/mikey/email-gateway/internal/adapters/smtp"
	"github.com/mikey/email-gateway/internal/di"
	"github.com/mikey/email-gateway/internal/ports"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(func(logger *zap.Logger, frontend ports.EmailFrontend) error {
		return scan(flags, logger, frontend)
	}); err != nil {
		fmt.Printf("Scan failed: %v\n", err)
		os.Exit(1)
	}
}

// scan reads one message from a file or stdin and runs it through the
// full pipeline.
func scan(flags *di.CLIFlags, logger *zap.Logger, frontend ports.EmailFrontend) error {
	defer logger.Sync()

	var emailReader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file %q: %w", flags.InputFile, err)
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	raw, err := io.ReadAll(emailReader)
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}

	var recipients []string
	if flags.Recipient != "" {
		recipients = []string{flags.Recipient}
	}
	email, err := adaptersmtp.ParseMessage(raw, flags.Sender, recipients, "")
	if err != nil {
		return fmt.Errorf("failed to parse email: %w", err)
	}

	_, err = frontend.ProcessEmail(context.Background(), email)
	return err
}
