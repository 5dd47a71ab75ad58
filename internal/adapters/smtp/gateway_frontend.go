package smtp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// GatewayFrontend is the SMTP face of the gateway. It sits in front of
// the real MTA as a content filter: every inbound message is run through
// the pipeline and either relayed upstream with verdict headers, held,
// or rejected at DATA time.
type GatewayFrontend struct {
	service      *core.GatewayService
	logger       *zap.Logger
	listenAddr   string
	server       *smtp.Server
	hostname     string
	relayAddr    string
	relayPort    int
	relayEnabled bool
	scoreHeader  string
	actionHeader string
	idHeader     string
}

// NewGatewayFrontend creates a new SMTP frontend.
func NewGatewayFrontend(
	service *core.GatewayService,
	logger *zap.Logger,
	listenAddr string,
	hostname string,
	relayAddr string,
	relayPort int,
	relayEnabled bool,
	scoreHeader string,
	actionHeader string,
	idHeader string,
) *GatewayFrontend {
	if scoreHeader == "" {
		scoreHeader = "X-Threat-Score"
	}
	if actionHeader == "" {
		actionHeader = "X-Threat-Action"
	}
	if idHeader == "" {
		idHeader = "X-Gateway-ID"
	}
	return &GatewayFrontend{
		service:      service,
		logger:       logger,
		listenAddr:   listenAddr,
		hostname:     hostname,
		relayAddr:    relayAddr,
		relayPort:    relayPort,
		relayEnabled: relayEnabled,
		scoreHeader:  scoreHeader,
		actionHeader: actionHeader,
		idHeader:     idHeader,
	}
}

// Start starts the SMTP listener.
func (f *GatewayFrontend) Start() error {
	f.server = smtp.NewServer(&smtpBackend{frontend: f})

	f.server.Addr = f.listenAddr
	f.server.Domain = f.hostname
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 50 * 1024 * 1024
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("SMTP frontend starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				f.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP listener.
func (f *GatewayFrontend) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail runs an already-parsed email through the pipeline. Used
// for direct calls and testing; the SMTP session path builds the email
// from the wire itself.
func (f *GatewayFrontend) ProcessEmail(ctx context.Context, email *core.InboundEmail) (*core.GatewayResponse, error) {
	return f.service.ProcessEmail(ctx, email)
}

// relayUpstream hands the annotated message to the real MTA.
func (f *GatewayFrontend) relayUpstream(sender string, recipients []string, emailData []byte) error {
	upstream := fmt.Sprintf("%s:%d", f.relayAddr, f.relayPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", upstream, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to upstream MTA: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// annotate prepends the verdict headers to the raw message. The original
// bytes are kept intact below the new headers so MIME structure and
// signatures on the body survive.
func (f *GatewayFrontend) annotate(raw []byte, resp *core.GatewayResponse) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s: %.4f\r\n", f.scoreHeader, resp.ThreatScore)
	fmt.Fprintf(&buf, "%s: %s\r\n", f.actionHeader, resp.Action)
	fmt.Fprintf(&buf, "%s: %s\r\n", f.idHeader, resp.EmailID)
	if len(resp.Indicators) > 0 {
		indicators := resp.Indicators
		if len(indicators) > 10 {
			indicators = indicators[:10]
		}
		fmt.Fprintf(&buf, "X-Threat-Indicators: %s\r\n", strings.Join(indicators, ", "))
	}
	buf.Write(raw)
	return buf.Bytes()
}

// smtpBackend implements the go-smtp Backend interface.
type smtpBackend struct {
	frontend *GatewayFrontend
}

// NewSession creates a new SMTP session.
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	sourceIP := ""
	if addr := c.Conn().RemoteAddr(); addr != nil {
		if host, _, err := net.SplitHostPort(addr.String()); err == nil {
			sourceIP = host
		}
	}
	return &smtpSession{
		frontend:   b.frontend,
		sourceIP:   sourceIP,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface.
type smtpSession struct {
	frontend   *GatewayFrontend
	sourceIP   string
	sender     string
	recipients []string
}

// Reset resets the session state.
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed for the gateway).
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the envelope sender.
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds an envelope recipient.
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data receives the message and decides its fate. Blocked mail is
// rejected inside the SMTP transaction so the sending server owns the
// bounce; the gateway never generates backscatter.
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.frontend.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	email, err := ParseMessage(raw, s.sender, s.recipients, s.sourceIP)
	if err != nil {
		s.frontend.logger.Error("Failed to parse inbound message",
			zap.String("sender", s.sender),
			zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}

	resp, err := s.frontend.service.ProcessEmail(context.Background(), email)
	if err != nil {
		// Pipeline-internal failures are temporary from the sender's
		// point of view; let them retry.
		s.frontend.logger.Error("Pipeline failed for inbound message",
			zap.String("sender", s.sender),
			zap.Error(err))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary processing failure, try again later",
		}
	}

	switch resp.Action {
	case core.ActionBlock:
		s.frontend.logger.Info("Rejecting blocked email",
			zap.String("email_id", resp.EmailID),
			zap.String("sender", s.sender),
			zap.Float64("threat_score", resp.ThreatScore))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Message rejected by security policy (score: %.2f)", resp.ThreatScore),
		}

	case core.ActionQuarantine, core.ActionSandbox:
		// Accepted but held. Delivery resumes only via review or a
		// clean sandbox verdict.
		s.frontend.logger.Info("Holding email",
			zap.String("email_id", resp.EmailID),
			zap.String("sender", s.sender),
			zap.String("action", string(resp.Action)),
			zap.Float64("threat_score", resp.ThreatScore))
		return nil

	default:
		if !s.frontend.relayEnabled {
			s.frontend.logger.Warn("Upstream relay disabled, accepted message dropped",
				zap.String("email_id", resp.EmailID))
			return nil
		}
		annotated := s.frontend.annotate(raw, resp)
		if err := s.frontend.relayUpstream(s.sender, s.recipients, annotated); err != nil {
			s.frontend.logger.Error("Failed to relay email upstream",
				zap.String("email_id", resp.EmailID),
				zap.Error(err))
			return &smtp.SMTPError{
				Code:         451,
				EnhancedCode: smtp.EnhancedCode{4, 4, 1},
				Message:      "Upstream relay unavailable, try again later",
			}
		}
		s.frontend.logger.Info("Relayed email upstream",
			zap.String("email_id", resp.EmailID),
			zap.String("sender", s.sender),
			zap.Float64("threat_score", resp.ThreatScore))
		return nil
	}
}

// Logout handles SMTP logout.
func (s *smtpSession) Logout() error {
	return nil
}
