// Package notify posts cancellation notices to the clinic's n8n workflow,
// which handles the actual customer messaging. Delivery is best-effort: a
// failed notice is logged and dropped, it never blocks the cancellation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluna-estetica/backend/internal/xano"
)

type Webhook struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

func NewWebhook(url string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		http:   &http.Client{Timeout: 3 * time.Second},
		logger: logger,
	}
}

func (w *Webhook) CancellationNotice(ctx context.Context, appt xano.Appointment, reason string) {
	if w == nil || w.url == "" {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":            "appointment.cancelled",
		"appointment_id":   appt.ID,
		"appointment_date": appt.Date.UTC().Format(time.RFC3339),
		"service":          appt.Service,
		"reason":           reason,
	})
	if err != nil {
		w.logger.Error("cancellation notice payload", "err", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		w.logger.Error("cancellation notice request", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		w.logger.Warn("cancellation notice delivery failed", "appointment_id", appt.ID, "err", err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Warn("cancellation notice rejected", "appointment_id", appt.ID, "status", resp.StatusCode)
	}
}
