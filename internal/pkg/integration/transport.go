package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 2 << 20

// NewHTTPCall builds the standard HTTP CallFunc used by the provider
// constructors. baseURL is prepended to every request endpoint and
// defaultHeaders (auth, accept) are applied before per-request headers.
//
// JSON payloads are marshalled as application/json; url.Values payloads are
// form-encoded, which the SMS provider API expects.
func NewHTTPCall(baseURL string, defaultHeaders map[string]string, httpClient *http.Client) CallFunc {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultCallTimeout}
	}
	base := strings.TrimRight(baseURL, "/")

	return func(ctx context.Context, req Request) (*Response, error) {
		var body io.Reader
		contentType := ""
		switch payload := req.Payload.(type) {
		case nil:
		case url.Values:
			body = strings.NewReader(payload.Encode())
			contentType = "application/x-www-form-urlencoded"
		case []byte:
			body = bytes.NewReader(payload)
		default:
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(data)
			contentType = "application/json"
		}

		endpoint := req.Endpoint
		if !strings.HasPrefix(endpoint, "http") {
			endpoint = base + "/" + strings.TrimLeft(endpoint, "/")
		}

		method := req.Method
		if method == "" {
			method = http.MethodGet
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}
		httpReq.Header.Set("Accept", "application/json")
		for k, v := range defaultHeaders {
			httpReq.Header.Set(k, v)
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				// Execute classifies deadline errors; pass the cause through.
				return nil, err
			}
			return nil, &TransportError{Err: err}
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
		}
		return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
	}
}

// NewDefaultHTTPClient returns the http.Client used by providers unless they
// bring their own. The transport timeout is a safety net; per-call deadlines
// come from Execute.
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
