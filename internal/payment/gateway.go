package payment

import (
	"context"
	"errors"

	"github.com/hackgods/doctor-slot-booking/internal/config"
)

var (
	ErrGateway          = errors.New("payment gateway error")
	ErrGatewayRejected  = errors.New("payment gateway rejected request")
	ErrInvalidAmount    = errors.New("payment amount must be positive")
	ErrMalformedWebhook = errors.New("malformed payment webhook")
)

// Order is a gateway-side payment intent the client completes at checkout.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Status   string `json:"status"`
	KeyID    string `json:"key_id,omitempty"`
}

// Gateway is the external payment processor. Amounts are whole currency
// units; implementations convert to the processor's minor units.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency string, metadata map[string]string) (Order, error)
	// VerifySignature checks the checkout callback signature over orderID|paymentID.
	VerifySignature(orderID, paymentID, signature string) bool
	// VerifyWebhook checks the signature of a raw webhook body.
	VerifyWebhook(body []byte, signature string) bool
	Refund(ctx context.Context, gatewayPaymentID string, amount int64, reason string) (string, error)
}

// FromConfig builds the gateway selected by PAYMENT_GATEWAY.
func FromConfig(cfg config.PaymentConfig) Gateway {
	if cfg.Gateway == config.GatewayHTTP {
		return NewHTTPGateway(HTTPGatewayConfig{
			BaseURL:       cfg.BaseURL,
			KeyID:         cfg.KeyID,
			KeySecret:     cfg.KeySecret,
			WebhookSecret: cfg.WebhookSecret,
			Timeout:       cfg.Timeout,
		})
	}
	return NewFakeGateway(cfg.KeySecret, cfg.WebhookSecret)
}
