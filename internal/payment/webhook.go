package payment

import (
	"encoding/json"
	"fmt"
)

const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentFailed     = "payment.failed"
)

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (e WebhookEvent) Payment() PaymentEntity {
	return e.Payload.Payment.Entity
}

// Succeeded reports whether the event means the money was taken.
func (e WebhookEvent) Succeeded() bool {
	return e.Event == EventPaymentCaptured || e.Event == EventPaymentAuthorized
}

// ParseWebhook decodes a webhook body. Payment events must name an order.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if ev.Event == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing event", ErrMalformedWebhook)
	}
	switch ev.Event {
	case EventPaymentCaptured, EventPaymentAuthorized, EventPaymentFailed:
		if ev.Payment().OrderID == "" {
			return WebhookEvent{}, fmt.Errorf("%w: missing order id", ErrMalformedWebhook)
		}
	}
	return ev, nil
}
