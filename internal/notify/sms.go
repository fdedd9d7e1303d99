package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/assessly/authcore/internal/observability/logger"
	"github.com/assessly/authcore/internal/util"
)

// LogSMS es el driver de desarrollo: escribe el mensaje al log en vez
// de enviarlo. Nunca loguea el cuerpo completo (puede llevar un código).
type LogSMS struct{}

func (LogSMS) Send(ctx context.Context, to, body string) error {
	logger.From(ctx).Info("sms (log driver)",
		logger.Component("LogSMS"),
		logger.String("to", util.MaskPhone(to)),
		logger.Int("body_len", len(body)),
	)
	return nil
}

// WebhookSMS postea el mensaje a un gateway HTTP externo.
type WebhookSMS struct {
	URL    string
	client *http.Client
}

func NewWebhookSMS(url string, timeout time.Duration) *WebhookSMS {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSMS{
		URL:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookSMS) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(map[string]string{"to": to, "body": body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook: status %d", resp.StatusCode)
	}
	return nil
}
