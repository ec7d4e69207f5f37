package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultWebhookTimeout bounds a webhook call when no client is configured.
const DefaultWebhookTimeout = 10 * time.Second

// WebhookHandler calls an HTTP endpoint.
type WebhookHandler struct {
	Client *http.Client
}

func (h *WebhookHandler) Metadata() Metadata {
	return Metadata{
		Type:               "Webhook",
		Description:        "Calls an HTTP endpoint. Without a Body the triggering content is sent as JSON. Headers is a JSON object.",
		RequiredParameters: []string{"Url"},
		OptionalParameters: []string{"Method", "Body", "Headers"},
		Example: map[string]string{
			"Url":     "https://hooks.example.com/content",
			"Method":  "POST",
			"Headers": `{"X-Source": "contentflow"}`,
		},
		Effect: EffectNotify,
	}
}

func (h *WebhookHandler) Execute(ctx context.Context, inv *Invocation) error {
	url := inv.Param("Url")
	if url == "" {
		return errors.New("webhook: no url")
	}
	method := strings.ToUpper(inv.Param("Method"))
	if method == "" {
		method = http.MethodPost
	}

	body, hasBody := inv.Lookup("Body")
	if !hasBody && method != http.MethodGet && inv.Content != nil {
		b, err := json.Marshal(inv.Content)
		if err != nil {
			return fmt.Errorf("webhook: encode content: %w", err)
		}
		body = string(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if raw := inv.Param("Headers"); raw != "" {
		var headers map[string]string
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return fmt.Errorf("webhook: parse headers: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s %s returned %s", method, url, resp.Status)
	}
	inv.SetMessage(fmt.Sprintf("%s %s: %d", method, url, resp.StatusCode))
	return nil
}
