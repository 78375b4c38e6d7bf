package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrSignatureInvalid is the security rejection for webhook deliveries whose
// signature does not verify. Such requests are never persisted.
var ErrSignatureInvalid = errors.New("invalid webhook signature")

// Validator verifies a provider signature over the raw, unparsed body bytes.
// requestURL is the full public URL of the webhook endpoint; only schemes
// that sign the URL use it.
type Validator interface {
	Validate(rawBody []byte, headers map[string]string, requestURL string) error
}

// DefaultSignatureTolerance bounds how old a signed timestamp may be before
// the delivery is treated as a replay.
const DefaultSignatureTolerance = 5 * time.Minute

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return strings.TrimSpace(v)
	}
	// Header maps from the HTTP layer may carry canonical or lowercase keys.
	lower := strings.ToLower(key)
	for k, v := range headers {
		if strings.ToLower(k) == lower {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// StripeValidator implements the payment provider's scheme: the signature
// header carries `t=<unix>,v1=<hex>` pairs and v1 is an HMAC-SHA256 hex
// digest over "{t}.{rawBody}".
type StripeValidator struct {
	Secret    string
	Header    string
	Tolerance time.Duration
	now       func() time.Time
}

// NewStripeValidator creates a scheme-A validator with the standard header.
func NewStripeValidator(secret string) *StripeValidator {
	return &StripeValidator{
		Secret:    secret,
		Header:    "Stripe-Signature",
		Tolerance: DefaultSignatureTolerance,
		now:       time.Now,
	}
}

func (v *StripeValidator) Validate(rawBody []byte, headers map[string]string, _ string) error {
	if strings.TrimSpace(v.Secret) == "" {
		return errors.New("webhook secret is not configured")
	}
	sigHeader := headerValue(headers, v.Header)
	if sigHeader == "" {
		return fmt.Errorf("%w: missing %s header", ErrSignatureInvalid, v.Header)
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return fmt.Errorf("%w: malformed signature header", ErrSignatureInvalid)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrSignatureInvalid)
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	nowFn := v.now
	if nowFn == nil {
		nowFn = time.Now
	}
	if age := nowFn().Sub(time.Unix(ts, 0)); age > tolerance || age < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, []byte(v.Secret))
	fmt.Fprintf(mac, "%s.%s", timestamp, rawBody)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		decoded, err := hex.DecodeString(strings.ToLower(candidate))
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

// TwilioValidator implements the SMS provider's scheme: HMAC-SHA1 over the
// request URL concatenated with the raw body, base64-encoded.
type TwilioValidator struct {
	AuthToken string
	Header    string
}

// NewTwilioValidator creates a scheme-B validator with the standard header.
func NewTwilioValidator(authToken string) *TwilioValidator {
	return &TwilioValidator{AuthToken: authToken, Header: "X-Twilio-Signature"}
}

func (v *TwilioValidator) Validate(rawBody []byte, headers map[string]string, requestURL string) error {
	if strings.TrimSpace(v.AuthToken) == "" {
		return errors.New("webhook auth token is not configured")
	}
	sig := headerValue(headers, v.Header)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ErrSignatureInvalid, v.Header)
	}
	decoded, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: signature is not valid base64", ErrSignatureInvalid)
	}

	mac := hmac.New(sha1.New, []byte(v.AuthToken))
	mac.Write([]byte(requestURL))
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), decoded) {
		return ErrSignatureInvalid
	}
	return nil
}

// ResendValidator implements the email provider's scheme: HMAC-SHA256 over
// the timestamp header concatenated with the raw body, base64-encoded.
type ResendValidator struct {
	Secret          string
	SignatureHeader string
	TimestampHeader string
	Tolerance       time.Duration
	now             func() time.Time
}

// NewResendValidator creates a scheme-C validator with the standard headers.
func NewResendValidator(secret string) *ResendValidator {
	return &ResendValidator{
		Secret:          secret,
		SignatureHeader: "Webhook-Signature",
		TimestampHeader: "Webhook-Timestamp",
		Tolerance:       DefaultSignatureTolerance,
		now:             time.Now,
	}
}

func (v *ResendValidator) Validate(rawBody []byte, headers map[string]string, _ string) error {
	if strings.TrimSpace(v.Secret) == "" {
		return errors.New("webhook secret is not configured")
	}
	sig := headerValue(headers, v.SignatureHeader)
	timestamp := headerValue(headers, v.TimestampHeader)
	if sig == "" || timestamp == "" {
		return fmt.Errorf("%w: missing signature headers", ErrSignatureInvalid)
	}

	if ts, err := strconv.ParseInt(timestamp, 10, 64); err == nil {
		tolerance := v.Tolerance
		if tolerance <= 0 {
			tolerance = DefaultSignatureTolerance
		}
		nowFn := v.now
		if nowFn == nil {
			nowFn = time.Now
		}
		if age := nowFn().Sub(time.Unix(ts, 0)); age > tolerance || age < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
		}
	} else {
		return fmt.Errorf("%w: malformed timestamp", ErrSignatureInvalid)
	}

	decoded, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: signature is not valid base64", ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write([]byte(timestamp))
	mac.Write(rawBody)
	if !hmac.Equal(mac.Sum(nil), decoded) {
		return ErrSignatureInvalid
	}
	return nil
}
