package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

func stripeSign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, body)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func twilioSign(authToken, requestURL string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(requestURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func resendSign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d", timestamp)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestStripeValidatorAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewStripeValidator("whsec_test")
	v.now = func() time.Time { return now }

	body := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	headers := map[string]string{
		"Stripe-Signature": stripeSign("whsec_test", now.Unix(), body),
	}
	if err := v.Validate(body, headers, ""); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestStripeValidatorHeaderCaseInsensitive(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewStripeValidator("whsec_test")
	v.now = func() time.Time { return now }

	body := []byte(`{}`)
	headers := map[string]string{
		"stripe-signature": stripeSign("whsec_test", now.Unix(), body),
	}
	if err := v.Validate(body, headers, ""); err != nil {
		t.Fatalf("expected valid signature with lowercase header, got %v", err)
	}
}

func TestStripeValidatorRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewStripeValidator("whsec_test")
	v.now = func() time.Time { return now }

	headers := map[string]string{
		"Stripe-Signature": stripeSign("whsec_test", now.Unix(), []byte(`{"amount":100}`)),
	}
	err := v.Validate([]byte(`{"amount":99999}`), headers, "")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestStripeValidatorRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewStripeValidator("whsec_test")
	v.now = func() time.Time { return now }

	body := []byte(`{}`)
	stale := now.Add(-10 * time.Minute).Unix()
	headers := map[string]string{
		"Stripe-Signature": stripeSign("whsec_test", stale, body),
	}
	err := v.Validate(body, headers, "")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for stale timestamp, got %v", err)
	}
}

func TestStripeValidatorRejectsMissingHeader(t *testing.T) {
	v := NewStripeValidator("whsec_test")
	err := v.Validate([]byte(`{}`), map[string]string{}, "")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestStripeValidatorAcceptsSecondCandidate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewStripeValidator("whsec_test")
	v.now = func() time.Time { return now }

	body := []byte(`{}`)
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	fmt.Fprintf(mac, "%d.%s", now.Unix(), body)
	valid := hex.EncodeToString(mac.Sum(nil))
	// Rotated-key candidate first, valid one second.
	headers := map[string]string{
		"Stripe-Signature": fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), hex.EncodeToString(make([]byte, 32)), valid),
	}
	if err := v.Validate(body, headers, ""); err != nil {
		t.Fatalf("expected valid signature via second candidate, got %v", err)
	}
}

func TestStripeValidatorRequiresSecret(t *testing.T) {
	v := NewStripeValidator("")
	err := v.Validate([]byte(`{}`), map[string]string{"Stripe-Signature": "t=1,v1=ab"}, "")
	if err == nil || errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected configuration error distinct from ErrSignatureInvalid, got %v", err)
	}
}

func TestTwilioValidatorAcceptsValidSignature(t *testing.T) {
	v := NewTwilioValidator("token123")
	body := []byte(`{"MessageSid":"SM1","MessageStatus":"delivered"}`)
	requestURL := "https://hooks.example.com/webhooks/twilio"
	headers := map[string]string{
		"X-Twilio-Signature": twilioSign("token123", requestURL, body),
	}
	if err := v.Validate(body, headers, requestURL); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestTwilioValidatorRejectsWrongURL(t *testing.T) {
	v := NewTwilioValidator("token123")
	body := []byte(`{"MessageSid":"SM1"}`)
	headers := map[string]string{
		"X-Twilio-Signature": twilioSign("token123", "https://hooks.example.com/webhooks/twilio", body),
	}
	err := v.Validate(body, headers, "https://evil.example.com/webhooks/twilio")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for wrong URL, got %v", err)
	}
}

func TestTwilioValidatorRejectsBadBase64(t *testing.T) {
	v := NewTwilioValidator("token123")
	headers := map[string]string{"X-Twilio-Signature": "not-base64!!!"}
	err := v.Validate([]byte(`{}`), headers, "https://hooks.example.com/x")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestResendValidatorAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewResendValidator("resend_secret")
	v.now = func() time.Time { return now }

	body := []byte(`{"type":"email.delivered","data":{"email_id":"em_1"}}`)
	headers := map[string]string{
		"Webhook-Signature": resendSign("resend_secret", now.Unix(), body),
		"Webhook-Timestamp": fmt.Sprintf("%d", now.Unix()),
	}
	if err := v.Validate(body, headers, ""); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestResendValidatorRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewResendValidator("resend_secret")
	v.now = func() time.Time { return now }

	body := []byte(`{}`)
	stale := now.Add(-time.Hour).Unix()
	headers := map[string]string{
		"Webhook-Signature": resendSign("resend_secret", stale, body),
		"Webhook-Timestamp": fmt.Sprintf("%d", stale),
	}
	err := v.Validate(body, headers, "")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for stale timestamp, got %v", err)
	}
}

func TestResendValidatorRejectsMissingTimestamp(t *testing.T) {
	v := NewResendValidator("resend_secret")
	headers := map[string]string{"Webhook-Signature": "aGVsbG8="}
	err := v.Validate([]byte(`{}`), headers, "")
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}
