package mailer

import (
	"bytes"
	"context"
	"io"
	"net/smtp"
	"os"
	"path/filepath"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/common"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  []byte
}

func newTestService(config common.EmailConfig) (*Service, *[]capturedMail) {
	var sent []capturedMail
	service := NewService(config, arbor.NewLogger())
	service.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, capturedMail{addr: addr, from: from, to: to, msg: msg})
		return nil
	}
	return service, &sent
}

func configured() common.EmailConfig {
	return common.EmailConfig{
		Enabled:    true,
		SMTPHost:   "smtp.example.com",
		SMTPPort:   587,
		Username:   "dispatch@example.com",
		Password:   "secret",
		Recipients: []string{"lead@example.com", "ops@example.com"},
		StartTLS:   true,
	}
}

func TestSendRunResults_SkipsWhenUnconfigured(t *testing.T) {
	service, sent := newTestService(common.EmailConfig{SMTPHost: "smtp.example.com"})

	assert.False(t, service.IsConfigured())
	assert.Equal(t, []string{"username", "password", "recipients"}, service.Missing())
	require.NoError(t, service.SendRunResults(context.Background(), nil, "04/14/2025", ""))
	assert.Empty(t, *sent)

	err := service.SendEmailWithAttachments(context.Background(), "x", "y", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendRunResults_ComposesMessage(t *testing.T) {
	dir := t.TempDir()
	jobs := filepath.Join(dir, "Jobs0414.txt")
	require.NoError(t, os.WriteFile(jobs, []byte("Acme Fiber\n"), 0644))

	service, sent := newTestService(configured())
	require.NoError(t, service.SendRunResults(context.Background(), []string{jobs}, "04/14/2025", "Stats for this run:\n"))
	require.Len(t, *sent, 1)

	got := (*sent)[0]
	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.Equal(t, "dispatch@example.com", got.from)
	assert.Equal(t, []string{"lead@example.com", "ops@example.com"}, got.to)

	mr, err := mail.CreateReader(bytes.NewReader(got.msg))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Job list for 04/14/2025", subject)

	var body string
	var attachments []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			b, err := io.ReadAll(part.Body)
			require.NoError(t, err)
			body = string(b)
		case *mail.AttachmentHeader:
			name, err := h.Filename()
			require.NoError(t, err)
			attachments = append(attachments, name)
			content, err := io.ReadAll(part.Body)
			require.NoError(t, err)
			assert.Equal(t, "Acme Fiber\n", string(content))
		}
	}

	assert.Contains(t, body, "Please see the attached files")
	assert.Contains(t, body, "Stats for this run:")
	assert.Equal(t, []string{"Jobs0414.txt"}, attachments)
}

func TestSendRunResults_MissingAttachment(t *testing.T) {
	service, sent := newTestService(configured())
	err := service.SendRunResults(context.Background(), []string{filepath.Join(t.TempDir(), "nope.txt")}, "x", "")
	assert.Error(t, err)
	assert.Empty(t, *sent)
}
