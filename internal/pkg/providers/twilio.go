package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mkessler-dev/HostPulse/app/models"
	"github.com/mkessler-dev/HostPulse/internal/pkg/env"
	"github.com/mkessler-dev/HostPulse/internal/pkg/integration"
	"github.com/mkessler-dev/HostPulse/internal/pkg/webhook"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioConfig holds the SMS provider credentials.
type TwilioConfig struct {
	AccountSID string `validate:"required,startswith=AC"`
	AuthToken  string `validate:"required"`
}

func (c TwilioConfig) Validate() error {
	v := validator.New()
	return v.Struct(c)
}

func newTwilioClient(deps integration.Deps) (*integration.Client, bool, error) {
	sid := env.GetEnv("TWILIO_ACCOUNT_SID", "")
	token := env.GetEnv("TWILIO_AUTH_TOKEN", "")
	if sid == "" && token == "" {
		return nil, false, nil
	}
	cfg := TwilioConfig{AccountSID: sid, AuthToken: token}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("twilio config: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(cfg.AccountSID + ":" + cfg.AuthToken))
	call := integration.NewHTTPCall(twilioBaseURL, map[string]string{
		"Authorization": "Basic " + basic,
	}, integration.NewDefaultHTTPClient())

	probe := integration.Request{
		Endpoint: fmt.Sprintf("/Accounts/%s.json", cfg.AccountSID),
		Method:   "GET",
		Timeout:  10 * time.Second,
	}
	client := integration.NewClient(baseConfig("twilio", "TWILIO"), call, probe, deps)
	return client, true, nil
}

func registerTwilioWebhook(gateway *webhook.Gateway, authToken string) {
	gateway.RegisterValidator("twilio", webhook.NewTwilioValidator(authToken))
	// Status callbacks carry no stable event id in the body; the idempotency
	// token header does.
	gateway.RegisterIdentity("twilio", func(rawBody []byte, headers map[string]string) (string, string) {
		var payload struct {
			MessageSid    string `json:"MessageSid"`
			MessageStatus string `json:"MessageStatus"`
		}
		_ = json.Unmarshal(rawBody, &payload)

		id := headers["I-Twilio-Idempotency-Token"]
		if id == "" && payload.MessageSid != "" {
			id = payload.MessageSid + ":" + payload.MessageStatus
		}
		return id, "sms." + payload.MessageStatus
	})
	gateway.RegisterHandler("twilio", func(_ context.Context, event *models.WebhookEvent) (string, error) {
		var payload struct {
			MessageSid    string `json:"MessageSid"`
			MessageStatus string `json:"MessageStatus"`
			ErrorCode     string `json:"ErrorCode"`
		}
		if err := json.Unmarshal([]byte(event.PayloadJSON), &payload); err != nil {
			return "", fmt.Errorf("decode twilio callback: %w", err)
		}
		if payload.ErrorCode != "" {
			return fmt.Sprintf("message %s %s (error %s)", payload.MessageSid, payload.MessageStatus, payload.ErrorCode), nil
		}
		return fmt.Sprintf("message %s %s", payload.MessageSid, payload.MessageStatus), nil
	})
}
