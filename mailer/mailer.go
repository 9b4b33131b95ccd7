// Package mailer delivers verification, password-reset and two-factor
// notices over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore/credential"
	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Config holds SMTP settings and the links embedded in messages. The
// {token} placeholder in VerifyURL and ResetURL is replaced by the token.
type Config struct {
	Host      string `env:"SMTP_HOST"`
	Port      int    `env:"SMTP_PORT" envDefault:"587"`
	Username  string `env:"SMTP_USERNAME"`
	Password  string `env:"SMTP_PASSWORD"`
	From      string `env:"SMTP_FROM"`
	AppName   string `env:"MAIL_APP_NAME" envDefault:"authcore"`
	VerifyURL string `env:"MAIL_VERIFY_URL" envDefault:"http://localhost:8080/v1/verify-email?token={token}"`
	ResetURL  string `env:"MAIL_RESET_URL" envDefault:"http://localhost:8080/v1/password-reset?token={token}"`
}

// ConfigFromEnv reads Config from the process environment.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse mailer environment: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Host == "" {
		return errors.New("missing SMTP_HOST environment variable")
	}
	if c.Port == 0 {
		return errors.New("missing SMTP_PORT environment variable")
	}
	if c.From == "" {
		return errors.New("missing SMTP_FROM environment variable")
	}
	return nil
}

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends account notices. It implements authcore.Notifier.
type Mailer struct {
	config Config
	sender Sender
	logger zerolog.Logger
}

// New returns a Mailer that dials the configured SMTP server per message.
func New(cfg Config, logger zerolog.Logger) (*Mailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewWithSender(cfg, dialer, logger), nil
}

// NewWithSender returns a Mailer that hands messages to sender.
func NewWithSender(cfg Config, sender Sender, logger zerolog.Logger) *Mailer {
	return &Mailer{
		config: cfg,
		sender: sender,
		logger: logger.With().Str("component", "mailer").Logger(),
	}
}

type email struct {
	To       string
	Subject  string
	Body     string
	HTMLBody string
}

func (m *Mailer) SendVerification(ctx context.Context, rec *credential.Record, token string) error {
	link := expandLink(m.config.VerifyURL, token)
	return m.send(ctx, email{
		To:       rec.Email,
		Subject:  fmt.Sprintf("Verify your %s email address", m.config.AppName),
		Body:     fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening:\n%s\n", rec.Username, link),
		HTMLBody: fmt.Sprintf(`<p>Hi %s,</p><p><a href="%s">Confirm your email address</a></p>`, rec.Username, link),
	})
}

func (m *Mailer) SendPasswordReset(ctx context.Context, rec *credential.Record, token string) error {
	link := expandLink(m.config.ResetURL, token)
	return m.send(ctx, email{
		To:       rec.Email,
		Subject:  fmt.Sprintf("Reset your %s password", m.config.AppName),
		Body:     fmt.Sprintf("Hi %s,\n\nReset your password by opening:\n%s\n\nIgnore this message if you did not ask for a reset.\n", rec.Username, link),
		HTMLBody: fmt.Sprintf(`<p>Hi %s,</p><p><a href="%s">Reset your password</a></p><p>Ignore this message if you did not ask for a reset.</p>`, rec.Username, link),
	})
}

func (m *Mailer) SendTwoFactorEnabled(ctx context.Context, rec *credential.Record) error {
	return m.send(ctx, email{
		To:      rec.Email,
		Subject: fmt.Sprintf("Two-factor authentication enabled on %s", m.config.AppName),
		Body:    fmt.Sprintf("Hi %s,\n\nTwo-factor authentication is now enabled on your account.\n", rec.Username),
	})
}

func (m *Mailer) send(ctx context.Context, e email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.To == "" {
		return errors.New("no recipient specified")
	}
	msg := gomail.NewMessage()
	m.setEmailMessage(msg, e)
	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %q: %w", e.Subject, err)
	}
	m.logger.Debug().Str("to", e.To).Str("subject", e.Subject).Msg("email sent")
	return nil
}

func (m *Mailer) setEmailMessage(msg *gomail.Message, e email) {
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", e.To)
	msg.SetHeader("Subject", e.Subject)

	if e.HTMLBody != "" {
		msg.SetBody("text/html", e.HTMLBody)
		msg.AddAlternative("text/plain", e.Body)
	} else {
		msg.SetBody("text/plain", e.Body)
	}
}

func expandLink(pattern, token string) string {
	if !strings.Contains(pattern, "{token}") {
		return pattern + token
	}
	return strings.ReplaceAll(pattern, "{token}", token)
}
