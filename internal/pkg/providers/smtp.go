package providers

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mkessler-dev/HostPulse/internal/pkg/env"
	"github.com/mkessler-dev/HostPulse/internal/pkg/integration"
)

// MailMessage is the payload for email sends over any email provider.
type MailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SMTPConfig holds the relay settings for the self-hosted email fallback.
type SMTPConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required"`
	Username string
	Password string
	Sender   string `validate:"required,email"`
}

func (c SMTPConfig) Validate() error {
	v := validator.New()
	return v.Struct(c)
}

// newSMTPClient is the only non-HTTP provider: the call function speaks SMTP
// directly but reports outcomes through the same typed errors, so breaker
// and telemetry treat it like any other integration.
func newSMTPClient(deps integration.Deps) (*integration.Client, bool, error) {
	host := env.GetEnv("SMTP_HOST", "")
	if host == "" {
		return nil, false, nil
	}
	cfg := SMTPConfig{
		Host:     host,
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   env.GetEnv("SMTP_SENDER", "no-reply@localhost.localdomain"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("smtp config: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	call := func(ctx context.Context, req integration.Request) (*integration.Response, error) {
		if req.Endpoint == "/health" {
			return smtpDial(ctx, addr)
		}

		msg, ok := req.Payload.(MailMessage)
		if !ok {
			if p, isPtr := req.Payload.(*MailMessage); isPtr {
				msg = *p
			} else {
				return nil, &integration.TransportError{Err: fmt.Errorf("smtp payload must be MailMessage, got %T", req.Payload)}
			}
		}

		data := []byte(
			fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", cfg.Sender, msg.To, msg.Subject) +
				"MIME-Version: 1.0\r\n" +
				"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
				msg.Body,
		)
		if err := smtp.SendMail(addr, auth, cfg.Sender, []string{msg.To}, data); err != nil {
			return nil, &integration.TransportError{Err: err}
		}
		return &integration.Response{StatusCode: 200, Body: []byte(`{"status":"sent"}`)}, nil
	}

	probe := integration.Request{Endpoint: "/health", Method: "CONNECT", Timeout: 10 * time.Second}
	client := integration.NewClient(baseConfig("smtp", "SMTP"), call, probe, deps)
	return client, true, nil
}

// smtpDial checks relay reachability without sending mail.
func smtpDial(ctx context.Context, addr string) (*integration.Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &integration.TransportError{Err: err}
	}
	_ = conn.Close()
	return &integration.Response{StatusCode: 200, Body: []byte(`{"status":"reachable"}`)}, nil
}
