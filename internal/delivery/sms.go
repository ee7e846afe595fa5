package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

const defaultSMSTimeout = 10 * time.Second

// ProviderError is a non-2xx response from the SMS provider.
type ProviderError struct {
	// StatusCode is the HTTP status code returned.
	StatusCode int

	// Body is the (truncated) response body, kept for diagnostics.
	Body string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sms provider returned %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether retrying the same request is pointless.
// Client errors are permanent except 429 (rate limited).
func (e *ProviderError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// smsRequest is the JSON body sent to the provider's message endpoint.
type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

// SMSClient sends messages through an HTTP SMS provider.
//
// The provider contract is a single endpoint: POST {url}/messages with a
// JSON body {"to","from","body"} and a bearer token. Any 2xx response
// counts as accepted.
type SMSClient struct {
	url        string
	token      string
	from       string
	timeout    time.Duration
	httpClient *http.Client
}

// NewSMSClient creates an [SMSClient].
//
// url is the provider base URL, token its API credential, and from the
// sender number attached to every message. If timeout is zero, a 10 second
// per-request timeout is used.
func NewSMSClient(url, token, from string, timeout time.Duration) *SMSClient {
	if timeout <= 0 {
		timeout = defaultSMSTimeout
	}
	return &SMSClient{
		url:        url,
		token:      token,
		from:       from,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Send delivers one SMS. A nil return means the provider accepted the
// message. Non-2xx responses are returned as [*ProviderError].
func (c *SMSClient) Send(ctx context.Context, to, body string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(smsRequest{To: to, From: c.from, Body: body})
	if err != nil {
		return fmt.Errorf("failed to encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		const maxErrBody = 256
		b := string(respBody)
		if len(b) > maxErrBody {
			b = b[:maxErrBody]
		}
		return &ProviderError{StatusCode: resp.StatusCode, Body: b}
	}

	return nil
}
