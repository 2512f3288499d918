package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FakeGateway issues orders locally and verifies signatures with real
// secrets. Used by PAYMENT_GATEWAY=fake and tests.
type FakeGateway struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string

	mu       sync.Mutex
	orderErr error
	orders   map[string]Order
	refunds  []string
}

func NewFakeGateway(keySecret, webhookSecret string) *FakeGateway {
	return &FakeGateway{
		KeyID:         "rzp_test_fake",
		KeySecret:     keySecret,
		WebhookSecret: webhookSecret,
		orders:        make(map[string]Order),
	}
}

// FailOrders makes CreateOrder return err until called again with nil.
func (g *FakeGateway) FailOrders(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orderErr = err
}

func (g *FakeGateway) CreateOrder(_ context.Context, amount int64, currency string, metadata map[string]string) (Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.orderErr != nil {
		return Order{}, g.orderErr
	}
	if amount <= 0 {
		return Order{}, ErrInvalidAmount
	}

	o := Order{
		ID:       "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		Amount:   amount,
		Currency: currency,
		Receipt:  metadata["receipt"],
		Status:   "created",
		KeyID:    g.KeyID,
	}
	g.orders[o.ID] = o
	return o, nil
}

func (g *FakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifyOrder(orderID, paymentID, signature, g.KeySecret)
}

func (g *FakeGateway) VerifyWebhook(body []byte, signature string) bool {
	return VerifyWebhook(body, signature, g.WebhookSecret)
}

func (g *FakeGateway) Refund(_ context.Context, gatewayPaymentID string, amount int64, _ string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, gatewayPaymentID)
	return "rfnd_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14], nil
}

// Orders returns the number of orders issued so far.
func (g *FakeGateway) Orders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

func (g *FakeGateway) Refunds() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.refunds...)
}
