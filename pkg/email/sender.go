package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	// From is the envelope sender and must be a bare mailbox address.
	From     string
	FromName string
	Timeout  time.Duration
}

// Enabled reports whether enough is configured to deliver mail.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.From) != ""
}

type Sender struct {
	config Config
	auth   smtp.Auth
}

func NewSender(config Config) *Sender {
	if config.Port == "" {
		config.Port = "587"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}
	return &Sender{config: config, auth: auth}
}

// SendMail delivers a single HTML message. The dial honours ctx; the SMTP
// exchange after that is bounded by the connection deadline.
func (s *Sender) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	if !s.config.Enabled() {
		return fmt.Errorf("smtp sender is not configured")
	}
	to = sanitizeHeader(to)
	addr := net.JoinHostPort(s.config.Host, s.config.Port)

	dialer := net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	deadline := time.Now().Add(s.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(tlsConfig(s.config.Host)); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.auth != nil {
		if err := c.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(buildMessage(s.config, to, subject, htmlBody)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return c.Quit()
}

func buildMessage(cfg Config, to, subject, htmlBody string) []byte {
	from := cfg.From
	if name := strings.TrimSpace(cfg.FromName); name != "" {
		from = fmt.Sprintf("%s <%s>", name, cfg.From)
	}
	lines := []string{
		"From: " + sanitizeHeader(from),
		"To: " + sanitizeHeader(to),
		"Subject: " + sanitizeHeader(subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
