// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSink POSTs events as JSON to a configured URL, HMAC-signing the
// body when a secret is configured (mirrors the chat-webhook integrations
// named in §1).
type WebhookSink struct {
	URL    string
	Secret string
	Client *http.Client
}

// NewWebhookSink returns a WebhookSink with a bounded request timeout.
func NewWebhookSink(url, secret string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Secret: secret,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookSink) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(struct {
		Kind    Kind           `json:"kind"`
		Payload map[string]any `json:"payload"`
	}{Kind: event.Kind, Payload: event.Payload})
	if err != nil {
		return fmt.Errorf("notifier: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set("X-Reelwatch-Signature", signBody(w.Secret, body))
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: webhook request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
