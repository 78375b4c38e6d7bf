package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mkessler-dev/HostPulse/app/models"
	"github.com/mkessler-dev/HostPulse/internal/pkg/env"
	"github.com/mkessler-dev/HostPulse/internal/pkg/integration"
	"github.com/mkessler-dev/HostPulse/internal/pkg/webhook"
)

const resendBaseURL = "https://api.resend.com"

// ResendConfig holds the transactional email provider credentials.
type ResendConfig struct {
	APIKey        string `validate:"required,startswith=re_"`
	WebhookSecret string
}

func (c ResendConfig) Validate() error {
	v := validator.New()
	return v.Struct(c)
}

func newResendClient(deps integration.Deps) (*integration.Client, bool, error) {
	apiKey := env.GetEnv("RESEND_API_KEY", "")
	if apiKey == "" {
		return nil, false, nil
	}
	cfg := ResendConfig{
		APIKey:        apiKey,
		WebhookSecret: env.GetEnv("RESEND_WEBHOOK_SECRET", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("resend config: %w", err)
	}

	call := integration.NewHTTPCall(resendBaseURL, map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	}, integration.NewDefaultHTTPClient())

	probe := integration.Request{Endpoint: "/domains", Method: "GET", Timeout: 10 * time.Second}
	client := integration.NewClient(baseConfig("resend", "RESEND"), call, probe, deps)
	return client, true, nil
}

func registerResendWebhook(gateway *webhook.Gateway, secret string) {
	gateway.RegisterValidator("resend", webhook.NewResendValidator(secret))
	gateway.RegisterHandler("resend", func(_ context.Context, event *models.WebhookEvent) (string, error) {
		var payload struct {
			Type string `json:"type"`
			Data struct {
				EmailID string   `json:"email_id"`
				To      []string `json:"to"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(event.PayloadJSON), &payload); err != nil {
			return "", fmt.Errorf("decode resend event: %w", err)
		}
		return fmt.Sprintf("email %s: %s", payload.Data.EmailID, payload.Type), nil
	})
}
