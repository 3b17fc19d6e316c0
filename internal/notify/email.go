package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"inkwell/internal/domain"
	logx "inkwell/pkg/logx"
)

// SMTPConfig configures the email channel.
type SMTPConfig struct {
	Host     string
	Port     int // default 587
	Username string
	Password string
	From     string
}

// SMTP delivers email reports and nudges over plain SMTP with AUTH.
type SMTP struct {
	cfg SMTPConfig
	log logx.Logger

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg SMTPConfig, log logx.Logger) *SMTP {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SMTP{cfg: cfg, log: log, send: smtp.SendMail}
}

func (s *SMTP) Send(ctx context.Context, user domain.User, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	contentType := "text/plain; charset=utf-8"
	if msg.HTML {
		contentType = "text/html; charset=utf-8"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", user.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\nContent-Type: %s\r\n\r\n", contentType)
	b.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(addr, auth, s.cfg.From, []string{user.Email}, []byte(b.String())); err != nil {
		s.log.Warn("smtp send failed", logx.String("to", user.Email), logx.Err(err))
		return err
	}
	return nil
}
