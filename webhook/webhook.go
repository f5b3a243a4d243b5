// Package webhook delivers fire-and-forget notifications of significant
// events (reply received, campaign finished) to registered endpoints.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"outreach/store"
)

type Dispatcher struct {
	webhooks store.WebhookStore
	client   *http.Client
}

func NewDispatcher(webhooks store.WebhookStore) *Dispatcher {
	return &Dispatcher{
		webhooks: webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type envelope struct {
	Event     string      `json:"event"`
	WebhookID uint        `json:"webhookId"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Fire posts the event to every enabled endpoint subscribed to it.
// Delivery failures are logged, never retried, and never returned to the
// caller: webhook delivery must not affect the sending loop.
func (d *Dispatcher) Fire(event string, data interface{}) {
	hooks, err := d.webhooks.EnabledWebhooks(event)
	if err != nil {
		logrus.WithError(err).Error("failed to load webhook endpoints")
		return
	}

	for _, hook := range hooks {
		if err := d.deliver(hook.URL, hook.ID, event, data); err != nil {
			logrus.WithFields(logrus.Fields{
				"webhook": hook.ID,
				"event":   event,
			}).WithError(err).Warn("webhook delivery failed")
			continue
		}
		logrus.WithFields(logrus.Fields{
			"webhook": hook.ID,
			"event":   event,
		}).Debug("webhook delivered")
	}
}

func (d *Dispatcher) deliver(url string, webhookID uint, event string, data interface{}) error {
	body, err := json.Marshal(envelope{
		Event:     event,
		WebhookID: webhookID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-ID", fmt.Sprintf("%d", webhookID))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
