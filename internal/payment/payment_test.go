package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/config"
)

func TestVerifyOrder(t *testing.T) {
	sig := SignOrder("order_1", "pay_1", "secret")

	assert.True(t, VerifyOrder("order_1", "pay_1", sig, "secret"))
	assert.False(t, VerifyOrder("order_1", "pay_2", sig, "secret"))
	assert.False(t, VerifyOrder("order_1", "pay_1", sig, "other"))
	assert.False(t, VerifyOrder("order_1", "pay_1", "", "secret"))
	assert.False(t, VerifyOrder("order_1", "pay_1", sig, ""))
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := Sign(body, "whsec")

	assert.True(t, VerifyWebhook(body, sig, "whsec"))
	assert.False(t, VerifyWebhook(append(body, ' '), sig, "whsec"))
	assert.False(t, VerifyWebhook(body, sig, ""))
}

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		success bool
	}{
		{
			name:    "captured",
			body:    `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"captured"}}}}`,
			success: true,
		},
		{
			name: "failed",
			body: `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"failed"}}}}`,
		},
		{name: "unrelated event", body: `{"event":"refund.processed","payload":{}}`},
		{name: "missing order", body: `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1"}}}}`, wantErr: true},
		{name: "missing event", body: `{"payload":{}}`, wantErr: true},
		{name: "not json", body: `nope`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseWebhook([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedWebhook)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.success, ev.Succeeded())
		})
	}
}

func TestHTTPGateway_CreateOrder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":50000,"currency":"INR","status":"created"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(HTTPGatewayConfig{BaseURL: srv.URL + "/", KeyID: "key_id", KeySecret: "key_secret"})

	order, err := g.CreateOrder(context.Background(), 500, "INR", map[string]string{"appointment_id": "a1"})
	require.NoError(t, err)

	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(500), order.Amount)
	assert.Equal(t, "key_id", order.KeyID)
	assert.Equal(t, float64(50000), got["amount"])
	assert.Equal(t, "a1", got["notes"].(map[string]any)["appointment_id"])
}

func TestHTTPGateway_Errors(t *testing.T) {
	status := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(HTTPGatewayConfig{BaseURL: srv.URL, KeyID: "k", KeySecret: "s"})

	_, err := g.CreateOrder(context.Background(), 1, "INR", nil)
	assert.ErrorIs(t, err, ErrGateway)
	assert.ErrorIs(t, err, ErrGatewayRejected)

	status = http.StatusBadGateway
	_, err = g.CreateOrder(context.Background(), 1, "INR", nil)
	assert.ErrorIs(t, err, ErrGateway)
	assert.False(t, errors.Is(err, ErrGatewayRejected))

	_, err = g.CreateOrder(context.Background(), 0, "INR", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestHTTPGateway_Refund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pay_9/refund", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"rfnd_1","status":"processed"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(HTTPGatewayConfig{BaseURL: srv.URL, KeyID: "k", KeySecret: "s"})

	id, err := g.Refund(context.Background(), "pay_9", 50, "doctor unavailable")
	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", id)
}

func TestHTTPGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewHTTPGateway(HTTPGatewayConfig{BaseURL: url, KeyID: "k", KeySecret: "s"})
	_, err := g.CreateOrder(context.Background(), 100, "INR", nil)
	assert.ErrorIs(t, err, ErrGateway)
}

func TestFakeGateway(t *testing.T) {
	g := NewFakeGateway("secret", "whsec")

	order, err := g.CreateOrder(context.Background(), 500, "INR", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Orders())
	assert.True(t, g.VerifySignature(order.ID, "pay_1", SignOrder(order.ID, "pay_1", "secret")))

	g.FailOrders(ErrGateway)
	_, err = g.CreateOrder(context.Background(), 500, "INR", nil)
	assert.ErrorIs(t, err, ErrGateway)
}

func TestFromConfig(t *testing.T) {
	g := FromConfig(config.PaymentConfig{Gateway: config.GatewayHTTP, BaseURL: "http://pay.local/", KeyID: "k", KeySecret: "s"})
	httpGw, ok := g.(*HTTPGateway)
	require.True(t, ok)
	assert.Equal(t, "http://pay.local", httpGw.cfg.BaseURL)

	g = FromConfig(config.PaymentConfig{Gateway: config.GatewayFake, KeySecret: "s", WebhookSecret: "w"})
	_, ok = g.(*FakeGateway)
	require.True(t, ok)
	assert.True(t, g.VerifySignature("order", "pay", SignOrder("order", "pay", "s")))
}
