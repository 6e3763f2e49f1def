// -----------------------------------------------------------------------
// Mailer Service - delivers run outputs over SMTP
// -----------------------------------------------------------------------

package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/common"
)

// ErrNotConfigured is returned when SMTP settings are incomplete
var ErrNotConfigured = errors.New("email is not configured")

// Attachment represents an email attachment
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// sendFunc delivers a composed message. Replaced in tests.
type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Service sends run results to the configured recipients
type Service struct {
	config common.EmailConfig
	logger arbor.ILogger
	send   sendFunc
}

// NewService creates a new mailer service
func NewService(config common.EmailConfig, logger arbor.ILogger) *Service {
	s := &Service{
		config: config,
		logger: logger,
	}
	s.send = s.deliver
	return s
}

// Missing lists the settings that prevent sending
func (s *Service) Missing() []string {
	var missing []string
	if s.config.SMTPHost == "" {
		missing = append(missing, "smtp_host")
	}
	if s.config.Username == "" {
		missing = append(missing, "username")
	}
	if s.config.Password == "" {
		missing = append(missing, "password")
	}
	if len(s.config.Recipients) == 0 {
		missing = append(missing, "recipients")
	}
	return missing
}

// IsConfigured checks if SMTP is configured with minimum required settings
func (s *Service) IsConfigured() bool {
	return len(s.Missing()) == 0
}

// SendRunResults mails the run's output files with the stats block in the
// body. An incomplete configuration is logged and skipped, not an error.
func (s *Service) SendRunResults(ctx context.Context, files []string, dateRange, stats string) error {
	if missing := s.Missing(); len(missing) > 0 {
		s.logger.Warn().
			Str("missing", strings.Join(missing, ", ")).
			Msg("Email not sent: configuration incomplete")
		return nil
	}

	attachments := make([]Attachment, 0, len(files))
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read attachment %s: %w", path, err)
		}
		attachments = append(attachments, Attachment{
			Filename: filepath.Base(path),
			Content:  content,
		})
	}

	body := "Please see the attached files for the selected scraped jobs.\n"
	if stats != "" {
		body += "\n\n" + stats
	}
	body += "\nThanks,\nCalendar Buddy\n"

	subject := fmt.Sprintf("Job list for %s", dateRange)
	if err := s.SendEmailWithAttachments(ctx, subject, body, attachments); err != nil {
		s.logger.Error().Err(err).Str("subject", subject).Msg("Failed to send run results")
		return err
	}

	s.logger.Info().
		Str("subject", subject).
		Int("attachments", len(attachments)).
		Int("recipients", len(s.config.Recipients)).
		Msg("Run results emailed")
	return nil
}

// SendEmailWithAttachments sends a plain text email with file attachments to
// every configured recipient
func (s *Service) SendEmailWithAttachments(ctx context.Context, subject, textBody string, attachments []Attachment) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.config.From
	if from == "" {
		from = s.config.Username
	}

	msg, err := BuildMessage(from, s.config.Recipients, subject, textBody, attachments)
	if err != nil {
		return err
	}

	port := s.config.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(s.config.SMTPHost, strconv.Itoa(port))
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPHost)

	return s.send(addr, auth, from, s.config.Recipients, msg)
}

// BuildMessage composes a multipart/mixed message: a text/plain body part
// followed by one attachment part per file
func BuildMessage(from string, to []string, subject, textBody string, attachments []Attachment) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Address: from}})

	recipients := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		recipients = append(recipients, &mail.Address{Address: strings.TrimSpace(addr)})
	}
	h.SetAddressList("To", recipients)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create body: %w", err)
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := io.WriteString(pw, textBody); err != nil {
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	pw.Close()
	iw.Close()

	for _, att := range attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(att.Filename))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		var ah mail.AttachmentHeader
		ah.Set("Content-Type", contentType)
		ah.SetFilename(att.Filename)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment %s: %w", att.Filename, err)
		}
		if _, err := aw.Write(att.Content); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
		aw.Close()
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

// deliver picks the transport: STARTTLS when configured, implicit TLS on
// port 465, otherwise plain SMTP
func (s *Service) deliver(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	switch {
	case s.config.StartTLS:
		return s.sendWithSTARTTLS(addr, auth, from, to, msg)
	case s.config.SMTPPort == 465:
		return s.sendWithTLS(addr, auth, from, to, msg)
	default:
		return smtp.SendMail(addr, auth, from, to, msg)
	}
}

// sendWithTLS sends email over an implicit TLS connection
func (s *Service) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, _ := net.SplitHostPort(addr)

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return transmit(client, auth, from, to, msg)
}

// sendWithSTARTTLS sends email using STARTTLS upgrade
func (s *Service) sendWithSTARTTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, _ := net.SplitHostPort(addr)

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return transmit(client, auth, from, to, msg)
}

func transmit(client *smtp.Client, auth smtp.Auth, from string, to []string, msg []byte) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
