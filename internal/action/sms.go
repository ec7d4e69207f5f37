package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// SMSSender delivers text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// HTTPSMSGateway posts messages as JSON to an HTTP gateway.
type HTTPSMSGateway struct {
	URL    string
	APIKey string
	Client *http.Client
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendSMS posts {"to": ..., "message": ...} to the gateway.
func (g *HTTPSMSGateway) SendSMS(ctx context.Context, to, message string) error {
	body, err := json.Marshal(smsRequest{To: to, Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sms gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms gateway returned %s", resp.Status)
	}
	return nil
}

// LogSMSSender writes messages to the log instead of sending them.
type LogSMSSender struct{}

// SendSMS logs the message.
func (LogSMSSender) SendSMS(_ context.Context, to, message string) error {
	slog.Info("sms not sent, no gateway configured", "to", to, "length", len(message))
	return nil
}

// SMSHandler sends a text message.
type SMSHandler struct {
	Sender SMSSender
}

func (h *SMSHandler) Metadata() Metadata {
	return Metadata{
		Type:               "SMS",
		Description:        "Sends a text message through the configured gateway.",
		RequiredParameters: []string{"To", "Message"},
		OptionalParameters: []string{},
		Example: map[string]string{
			"To":      "{{data.Phone}}",
			"Message": "Your registration {{id}} is {{status}}",
		},
		Effect: EffectNotify,
	}
}

func (h *SMSHandler) Execute(ctx context.Context, inv *Invocation) error {
	to := inv.Param("To")
	if to == "" {
		return errors.New("sms: no recipient")
	}
	if err := h.Sender.SendSMS(ctx, to, inv.Param("Message")); err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	inv.SetMessage("sent to " + to)
	return nil
}
