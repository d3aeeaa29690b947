// Package webhook はClerkからのユーザー同期Webhookを検証・処理する。
package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"
)

// Event はClerk Webhookのエンベロープ。
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ClerkVerifier はSvix署名（svix-id, svix-timestamp, svix-signature）を検証する。
type ClerkVerifier struct {
	wh *svix.Webhook
}

// NewClerkVerifier はwhsec_形式の署名シークレットからClerkVerifierを生成する。
func NewClerkVerifier(secret string) (*ClerkVerifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook secret: %w", err)
	}
	return &ClerkVerifier{wh: wh}, nil
}

// Verify は署名を検証し、ペイロードをEventとして返す。
func (v *ClerkVerifier) Verify(payload []byte, headers http.Header) (*Event, error) {
	if err := v.wh.Verify(payload, headers); err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if evt.Type == "" {
		return nil, fmt.Errorf("webhook payload has no type")
	}
	return &evt, nil
}
