package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type HTTPGatewayConfig struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

// HTTPGateway talks to a Razorpay-compatible REST API.
type HTTPGateway struct {
	cfg        HTTPGatewayConfig
	httpClient *http.Client
}

func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// minor converts whole units to paise.
func minor(amount int64) int64 { return amount * 100 }

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, amount int64, currency string, metadata map[string]string) (Order, error) {
	if amount <= 0 {
		return Order{}, ErrInvalidAmount
	}

	body := map[string]any{
		"amount":   minor(amount),
		"currency": currency,
		"notes":    metadata,
	}
	if r, ok := metadata["receipt"]; ok {
		body["receipt"] = r
	}

	var resp orderResponse
	if err := g.post(ctx, "/v1/orders", body, &resp); err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	if resp.ID == "" {
		return Order{}, fmt.Errorf("%w: order response without id", ErrGateway)
	}

	return Order{
		ID:       resp.ID,
		Amount:   resp.Amount / 100,
		Currency: resp.Currency,
		Receipt:  resp.Receipt,
		Status:   resp.Status,
		KeyID:    g.cfg.KeyID,
	}, nil
}

func (g *HTTPGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifyOrder(orderID, paymentID, signature, g.cfg.KeySecret)
}

func (g *HTTPGateway) VerifyWebhook(body []byte, signature string) bool {
	return VerifyWebhook(body, signature, g.cfg.WebhookSecret)
}

func (g *HTTPGateway) Refund(ctx context.Context, gatewayPaymentID string, amount int64, reason string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	body := map[string]any{
		"amount": minor(amount),
		"notes":  map[string]string{"reason": reason},
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	path := "/v1/payments/" + url.PathEscape(gatewayPaymentID) + "/refund"
	if err := g.post(ctx, path, body, &resp); err != nil {
		return "", fmt.Errorf("refund payment %s: %w", gatewayPaymentID, err)
	}
	return resp.ID, nil
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// post sends a JSON POST request to baseURL+path and decodes the JSON response into out.
func (g *HTTPGateway) post(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	if res.StatusCode >= 400 {
		var er errorResponse
		_ = json.Unmarshal(raw, &er)
		if res.StatusCode < 500 {
			return fmt.Errorf("%w: %w (status=%d, code=%s, msg=%s)", ErrGateway, ErrGatewayRejected, res.StatusCode, er.Error.Code, er.Error.Description)
		}
		return fmt.Errorf("%w (status=%d)", ErrGateway, res.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	return nil
}
