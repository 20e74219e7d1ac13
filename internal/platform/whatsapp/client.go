// Package whatsapp is a client for the HTTP WhatsApp gateway used for billing notices.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cfgpkg "github.com/bayarinter/billing/pkg/config"
)

const (
	CountryCode    = "62"
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 10
)

// Client posts {number, message} to the gateway.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
}

// SendResult is what the gateway answered.
type SendResult struct {
	StatusCode int
	Body       string
}

func NewClient(cfg *cfgpkg.Config) *Client {
	timeout := cfg.WhatsApp.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:        strings.TrimSpace(cfg.WhatsApp.GatewayURL),
		token:      cfg.WhatsApp.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendPayload struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

// Send delivers text to phone, which must already be normalized.
// A non-2xx answer is returned as an error together with the result.
func (c *Client) Send(ctx context.Context, phone, text string) (*SendResult, error) {
	if c.url == "" {
		return nil, fmt.Errorf("whatsapp gateway url is not configured")
	}
	if phone == "" {
		return nil, fmt.Errorf("phone is empty")
	}

	body, err := json.Marshal(sendPayload{Number: phone, Message: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal whatsapp payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to whatsapp gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	res := &SendResult{StatusCode: resp.StatusCode, Body: string(raw)}
	if resp.StatusCode >= 300 {
		return res, fmt.Errorf("whatsapp gateway returned status %d", resp.StatusCode)
	}
	return res, nil
}

// NormalizePhone converts a local number to the gateway's international form:
// "+62812" -> "62812", "0812" -> "62812", "812" -> "62812".
func NormalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	p = strings.ReplaceAll(p, "+", "")
	p = strings.NewReplacer(" ", "", "-", "").Replace(p)
	if p == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(p, "0"):
		return CountryCode + p[1:]
	case strings.HasPrefix(p, CountryCode):
		return p
	default:
		return CountryCode + p
	}
}
