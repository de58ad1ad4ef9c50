package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/bluevlad/HealthPulse/internal/config"
)

// SMTPTransport sends digest emails over SMTP with STARTTLS. One
// connection per message keeps the failure domain to a single
// recipient.
type SMTPTransport struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
}

// NewSMTPTransport creates a transport from configuration.
func NewSMTPTransport(cfg config.SMTPConfig) *SMTPTransport {
	return &SMTPTransport{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.FromAddress,
		fromName: cfg.FromName,
	}
}

// Send composes and delivers one HTML email.
func (t *SMTPTransport) Send(ctx context.Context, to, toName, subject, htmlBody string) error {
	msg, err := t.compose(to, toName, subject, htmlBody)
	if err != nil {
		return fmt.Errorf("failed to compose message for %s: %w", to, err)
	}

	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake with %s failed: %w", addr, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
			return fmt.Errorf("starttls with %s failed: %w", addr, err)
		}
	}

	if t.username != "" {
		auth := smtp.PlainAuth("", t.username, t.password, t.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(t.from); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO %s rejected: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := io.Copy(w, strings.NewReader(msg)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message not accepted: %w", err)
	}

	return client.Quit()
}

func (t *SMTPTransport) compose(to, toName, subject, htmlBody string) (string, error) {
	var header mail.Header
	header.SetAddressList("From", []*mail.Address{{Name: t.fromName, Address: t.from}})
	header.SetAddressList("To", []*mail.Address{{Name: toName, Address: to}})
	header.SetSubject(subject)
	header.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	var buf strings.Builder
	w, err := mail.CreateSingleInlineWriter(&buf, header)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(w, htmlBody); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
