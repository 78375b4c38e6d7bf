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

const stripeBaseURL = "https://api.stripe.com/v1"

// StripeConfig holds the payment provider credentials.
type StripeConfig struct {
	APIKey        string `validate:"required,startswith=sk_"`
	WebhookSecret string
}

func (c StripeConfig) Validate() error {
	v := validator.New()
	return v.Struct(c)
}

func newStripeClient(deps integration.Deps) (*integration.Client, bool, error) {
	apiKey := env.GetEnv("STRIPE_API_KEY", "")
	if apiKey == "" {
		return nil, false, nil
	}
	cfg := StripeConfig{
		APIKey:        apiKey,
		WebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("stripe config: %w", err)
	}

	call := integration.NewHTTPCall(stripeBaseURL, map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	}, integration.NewDefaultHTTPClient())

	probe := integration.Request{Endpoint: "/balance", Method: "GET", Timeout: 10 * time.Second}
	client := integration.NewClient(baseConfig("stripe", "STRIPE"), call, probe, deps)
	return client, true, nil
}

func registerStripeWebhook(gateway *webhook.Gateway, secret string, recorder *integration.Recorder) {
	gateway.RegisterValidator("stripe", webhook.NewStripeValidator(secret))
	gateway.RegisterHandler("stripe", func(_ context.Context, event *models.WebhookEvent) (string, error) {
		var payload struct {
			Type string `json:"type"`
			Data struct {
				Object struct {
					ID       string `json:"id"`
					Amount   int64  `json:"amount"`
					Currency string `json:"currency"`
				} `json:"object"`
			} `json:"data"`
		}
		if err := json.Unmarshal([]byte(event.PayloadJSON), &payload); err != nil {
			return "", fmt.Errorf("decode stripe event: %w", err)
		}

		switch payload.Type {
		case "charge.succeeded", "payment_intent.succeeded":
			// Per-transaction processing fee, tracked against the monthly bill.
			if recorder != nil && payload.Data.Object.Amount > 0 {
				now := time.Now().UTC()
				recorder.RecordCost(&models.CostRecord{
					Integration:   "stripe",
					CostType:      "transaction_fee",
					AmountCents:   stripeFeeCents(payload.Data.Object.Amount),
					Currency:      payload.Data.Object.Currency,
					Quantity:      1,
					BillingPeriod: now.Format("2006-01"),
					PeriodStart:   time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
					PeriodEnd:     time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0).Add(-time.Second),
				})
			}
			return fmt.Sprintf("payment %s settled (%d %s)", payload.Data.Object.ID, payload.Data.Object.Amount, payload.Data.Object.Currency), nil
		case "charge.failed", "payment_intent.payment_failed":
			return fmt.Sprintf("payment %s failed", payload.Data.Object.ID), nil
		default:
			return "event acknowledged: " + payload.Type, nil
		}
	})
}

// stripeFeeCents approximates the 2.9% + 30ct card fee on an amount in cents.
func stripeFeeCents(amountCents int64) int64 {
	return amountCents*29/1000 + 30
}
