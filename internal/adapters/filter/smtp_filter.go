package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// SMTPFilter is an SMTP content filter: it accepts messages from an MTA,
// runs newsletter detection, injects X-Newsletter-* headers, and forwards
// the tagged message to the upstream relay. Detection failures tag instead
// of blocking delivery.
type SMTPFilter struct {
	service         *core.DetectionService
	logger          *zap.Logger
	listenAddr      string
	server          *smtp.Server
	statusHeader    string
	scoreHeader     string
	reasonHeader    string
	upstreamAddr    string
	upstreamPort    int
	upstreamEnabled bool
	subjectPrefix   string
	modifySubject   bool
}

// NewSMTPFilter creates a new SMTP content filter
func NewSMTPFilter(
	service *core.DetectionService,
	logger *zap.Logger,
	listenAddr string,
	statusHeader string,
	scoreHeader string,
	reasonHeader string,
	upstreamAddr string,
	upstreamPort int,
	upstreamEnabled bool,
	subjectPrefix string,
	modifySubject bool,
) *SMTPFilter {
	if subjectPrefix == "" && modifySubject {
		subjectPrefix = "[Newsletter] "
	}

	return &SMTPFilter{
		service:         service,
		logger:          logger,
		listenAddr:      listenAddr,
		statusHeader:    statusHeader,
		scoreHeader:     scoreHeader,
		reasonHeader:    reasonHeader,
		upstreamAddr:    upstreamAddr,
		upstreamPort:    upstreamPort,
		upstreamEnabled: upstreamEnabled,
		subjectPrefix:   subjectPrefix,
		modifySubject:   modifySubject,
	}
}

// Start starts the SMTP filter service
func (f *SMTPFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.listenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("SMTP filter starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				f.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP filter service
func (f *SMTPFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail runs detection directly, mainly for testing and API reuse
func (f *SMTPFilter) ProcessEmail(ctx context.Context, email *core.Email) (*core.DetectionResult, error) {
	return f.service.Detect(ctx, email, nil)
}

// statusValue maps a result onto the three-way triage outcome header value
func statusValue(result *core.DetectionResult) string {
	switch {
	case result.NeedsVerification:
		return "verify"
	case result.IsNewsletter:
		return "yes"
	default:
		return "no"
	}
}

// sendUpstream forwards the tagged message to the upstream relay
func (f *SMTPFilter) sendUpstream(sender string, recipients []string, emailData []byte) error {
	upstreamAddr := fmt.Sprintf("%s:%d", f.upstreamAddr, f.upstreamPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", upstreamAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to upstream relay: %w", err)
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

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *SMTPFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		filter:     b.filter,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *SMTPFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed for this filter)
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data analyzes the message, tags it, and forwards it upstream
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.filter.logger.Error("Failed to parse email message", zap.Error(err))
		return err
	}

	email, err := EmailFromMessage(uuid.NewString(), msg)
	if err != nil {
		s.filter.logger.Error("Failed to convert email message", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, analysisErr := s.filter.service.Detect(ctx, email, nil)
	if analysisErr != nil {
		s.filter.logger.Error("Failed to analyze email",
			zap.Error(analysisErr),
			zap.String("sender", s.sender))

		// Tag with a neutral result rather than blocking delivery
		result = &core.DetectionResult{
			ID:                email.ID,
			CombinedScore:     0.5,
			IsNewsletter:      false,
			NeedsVerification: true,
			AnalyzedAt:        time.Now(),
		}
	}

	var tagged bytes.Buffer
	fmt.Fprintf(&tagged, "%s: %s\r\n", s.filter.statusHeader, statusValue(result))
	fmt.Fprintf(&tagged, "%s: %.4f\r\n", s.filter.scoreHeader, result.CombinedScore)
	fmt.Fprintf(&tagged, "%s: %s\r\n", s.filter.reasonHeader, topReason(result))
	if analysisErr != nil {
		fmt.Fprintf(&tagged, "X-Newsletter-Analysis-Error: %s\r\n", analysisErr.Error())
	}

	rewriteSubject := result.IsNewsletter && s.filter.modifySubject && s.filter.subjectPrefix != ""
	for key, values := range msg.Header {
		if rewriteSubject && strings.EqualFold(key, "Subject") {
			continue
		}
		for _, value := range values {
			fmt.Fprintf(&tagged, "%s: %s\r\n", key, value)
		}
	}
	if rewriteSubject {
		subject := msg.Header.Get("Subject")
		if decoded, err := decodeEncodedHeader(subject); err == nil {
			subject = decoded
		}
		if !strings.HasPrefix(subject, s.filter.subjectPrefix) {
			subject = s.filter.subjectPrefix + subject
		}
		fmt.Fprintf(&tagged, "Subject: %s\r\n", subject)
	}
	fmt.Fprintf(&tagged, "\r\n")

	// Preserve the original body bytes, MIME parts and all
	bodyStart := bytes.Index(rawData, []byte("\r\n\r\n"))
	if bodyStart >= 0 {
		tagged.Write(rawData[bodyStart+4:])
	} else if bodyStart = bytes.Index(rawData, []byte("\n\n")); bodyStart >= 0 {
		tagged.Write(rawData[bodyStart+2:])
	}

	if s.filter.upstreamEnabled {
		if err := s.filter.sendUpstream(s.sender, s.recipients, tagged.Bytes()); err != nil {
			s.filter.logger.Error("Failed to forward email upstream",
				zap.Error(err),
				zap.String("sender", s.sender))
			return err
		}
	} else {
		s.filter.logger.Warn("Upstream forwarding disabled, message tagged but not relayed")
	}

	s.filter.logger.Info("Processed email",
		zap.String("from", s.sender),
		zap.String("status", statusValue(result)),
		zap.Float64("score", result.CombinedScore))

	return nil
}

// topReason returns the reason from the most influential analyzer score
func topReason(result *core.DetectionResult) string {
	best := ""
	bestConfidence := -1.0
	for _, score := range result.Scores {
		if score.Confidence > bestConfidence && score.Reason != "" {
			best = score.Reason
			bestConfidence = score.Confidence
		}
	}
	if best == "" {
		return "no analyzer evidence"
	}
	return best
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
