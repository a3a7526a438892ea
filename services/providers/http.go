package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/upb/ai-racers/services"
)

// DefaultTimeout bounds a single provider call when the caller supplies no client
const DefaultTimeout = 120 * time.Second

// NewHTTPClient returns the client shared by all adapters
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// HTTPResponse is a provider response with its body fully read
type HTTPResponse struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status
func (r *HTTPResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do executes one HTTP request. A non-nil error means no response was
// received (connection refused, DNS, TLS, timeout, cancellation).
func Do(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body []byte) (*HTTPResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

func statusText(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" ")
	if text == "" || text == resp.Status {
		return http.StatusText(resp.StatusCode)
	}
	return text
}

// ParseErrorMessage extracts a human readable message from an error body. It
// accepts the shapes providers are known to use, in order: error.message,
// error.error, error (string), message, detail. Anything else falls back to
// "HTTP <status>: <statusText>".
func ParseErrorMessage(resp *HTTPResponse) string {
	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		if nested, ok := body["error"].(map[string]interface{}); ok {
			if msg := stringField(nested, "message"); msg != "" {
				return msg
			}
			if msg := stringField(nested, "error"); msg != "" {
				return msg
			}
		}
		for _, key := range []string{"error", "message", "detail"} {
			if msg := stringField(body, key); msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.StatusText)
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// TransportHint is the message reported when a request produced no HTTP response
func TransportHint(providerName string, err error) string {
	return fmt.Sprintf("Cannot access %s API: network request failed (possible CORS restriction or unreachable host): %v", providerName, err)
}

// MissingAPIKey is the configuration failure for adapters that need a key
func MissingAPIKey(providerName string) *SendResult {
	return Failed(services.ErrorTypeConfiguration, "API key is required for "+providerName)
}

// EmptyContent is the protocol failure for a 2xx response without content
func EmptyContent(providerName string) *SendResult {
	return Failed(services.ErrorTypeProtocol, "No response content received from "+providerName)
}

// RateLimitMessage honours a numeric Retry-After header when the provider sends one
func RateLimitMessage(resp *HTTPResponse) string {
	if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
		return fmt.Sprintf("Rate limit exceeded. Please wait %d seconds before retrying.", secs)
	}
	return fmt.Sprintf("Rate limit exceeded. %s Please wait before retrying.", ParseErrorMessage(resp))
}

// ConnectionFailure maps a non-2xx model listing response to a ConnectionResult
func ConnectionFailure(resp *HTTPResponse) *ConnectionResult {
	var msg string
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		msg = "Authentication failed. Please check your API key."
	case http.StatusTooManyRequests:
		msg = RateLimitMessage(resp)
	default:
		msg = ParseErrorMessage(resp)
	}
	return &ConnectionResult{Success: false, Error: msg}
}

// MaskAPIKey hides all but a short prefix of a key so it can be logged
func MaskAPIKey(key string) string {
	if len(key) <= 6 {
		return "****"
	}
	visible := len(key) / 4
	if visible > 6 {
		visible = 6
	}
	hidden := len(key) - visible
	if hidden < 12 {
		hidden = 12
	}
	return key[:visible] + strings.Repeat("*", hidden)
}

// TrimBaseURL picks the configured base URL, or the default, without a trailing slash
func TrimBaseURL(configured, fallback string) string {
	if strings.TrimSpace(configured) == "" {
		configured = fallback
	}
	return strings.TrimRight(strings.TrimSpace(configured), "/")
}
