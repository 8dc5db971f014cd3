package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/simaogato/cryptokiosk-backend/internal/domain"
	"go.uber.org/zap"
)

// WebhookDispatcher posts verification messages to an SMS/WhatsApp gateway as JSON
type WebhookDispatcher struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookDispatcher creates a new WebhookDispatcher instance; token is sent as a bearer token when set
func NewWebhookDispatcher(url, token string, timeout time.Duration, logger *zap.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// webhookMessage is the body posted to the gateway
type webhookMessage struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Body    string `json:"body"`
}

// Dispatch implements domain.CodeDispatcher
func (d *WebhookDispatcher) Dispatch(ctx context.Context, method domain.CommunicationMethod, phone, message string) error {
	payload, err := json.Marshal(webhookMessage{
		Channel: channelFor(method),
		To:      phone,
		Body:    message,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, string(body))
	}

	d.logger.Debug("verification message accepted by gateway",
		zap.String("channel", channelFor(method)),
		zap.String("phone", maskPhone(phone)))

	return nil
}

func channelFor(method domain.CommunicationMethod) string {
	if method == domain.MethodWhatsApp {
		return "whatsapp"
	}
	return "sms"
}
