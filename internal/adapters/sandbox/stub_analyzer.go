package sandbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// StubAnalyzer is a placeholder detonation sandbox. Every submitted
// attachment comes back clean after a short delay. It exists so the
// sandbox action has a working callback path until a real sandbox
// (Cuckoo, VMRay, cloud detonation) is integrated.
type StubAnalyzer struct {
	delay     time.Duration
	logger    *zap.Logger
	mu        sync.Mutex
	callbacks []func(emailID string, verdict core.AttachmentVerdict)
}

// NewStubAnalyzer creates a stub sandbox that reports verdicts after
// the given delay.
func NewStubAnalyzer(delay time.Duration, logger *zap.Logger) *StubAnalyzer {
	logger.Warn("Using stub sandbox analyzer, every attachment will be reported clean")
	return &StubAnalyzer{
		delay:  delay,
		logger: logger,
	}
}

// OnResult registers a callback invoked for each completed analysis.
func (a *StubAnalyzer) OnResult(fn func(emailID string, verdict core.AttachmentVerdict)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

// Submit accepts an attachment for analysis and schedules a clean
// verdict. The context only covers submission, not the analysis itself.
func (a *StubAnalyzer) Submit(ctx context.Context, emailID string, attachment core.Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.logger.Info("Attachment submitted to stub sandbox",
		zap.String("email_id", emailID),
		zap.String("filename", attachment.Filename),
		zap.Int64("size", attachment.Size))

	go func() {
		time.Sleep(a.delay)
		verdict := core.AttachmentVerdict{
			Filename:     attachment.Filename,
			DetectedMime: attachment.MimeType,
			Risk:         core.RiskSafe,
			IsSafe:       true,
			Indicators:   []string{"stub_sandbox_no_detonation"},
		}
		a.mu.Lock()
		callbacks := make([]func(string, core.AttachmentVerdict), len(a.callbacks))
		copy(callbacks, a.callbacks)
		a.mu.Unlock()
		for _, fn := range callbacks {
			fn(emailID, verdict)
		}
	}()
	return nil
}
