// Package sms is a client for HTTP bulk-SMS gateways that accept a
// url-encoded send request and report a per-recipient status.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	commonhttp "storefront-workers/internal/common/http"
)

// StatusSuccess is the only per-recipient status treated as accepted.
const StatusSuccess = "Success"

var ErrNoRecipients = errors.New("No recipients in response")

type GatewayConfig struct {
	URL      string
	Username string
	APIKey   string
	SenderID string
	Timeout  time.Duration
}

type Recipient struct {
	Number    string `json:"number"`
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
	Cost      string `json:"cost"`
}

type sendResponse struct {
	SMSMessageData struct {
		Message    string      `json:"Message"`
		Recipients []Recipient `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// Gateway sends single-recipient messages.
type Gateway struct {
	cfg    GatewayConfig
	client *commonhttp.Client
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{cfg: cfg, client: commonhttp.NewClient(cfg.Timeout)}
}

// Configured reports whether credentials are present.
func (g *Gateway) Configured() bool {
	return g != nil && g.cfg.URL != "" && g.cfg.Username != "" && g.cfg.APIKey != ""
}

// SendSMS submits one message. A recipient status other than "Success" is
// returned as an error whose text is that status.
func (g *Gateway) SendSMS(ctx context.Context, to, message string) (string, error) {
	form := url.Values{}
	form.Set("username", g.cfg.Username)
	form.Set("to", to)
	form.Set("message", message)
	if g.cfg.SenderID != "" {
		form.Set("from", g.cfg.SenderID)
	}

	body, err := g.client.PostForm(ctx, g.cfg.URL, form, map[string]string{"apiKey": g.cfg.APIKey})
	if err != nil {
		return "", fmt.Errorf("sms gateway: %w", err)
	}

	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("sms gateway: decode response: %w", err)
	}
	if len(resp.SMSMessageData.Recipients) == 0 {
		return "", ErrNoRecipients
	}

	r := resp.SMSMessageData.Recipients[0]
	if r.Status != StatusSuccess {
		status := r.Status
		if status == "" {
			status = "Unknown error"
		}
		return "", errors.New(status)
	}
	return r.MessageID, nil
}
