package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anjiru/duka-pos/internal/resilience"
)

// PesaPal collects card payments through the PesaPal v3 order API. The order
// submission returns a redirect the terminal drives; the charge therefore
// reports pending until the IPN settles it on the provider side.
type PesaPal struct {
	HTTP         resilience.HTTPClient
	BaseURL      string
	ClientID     string
	ClientSecret string
	TerminalSN   string
	Now          func() time.Time

	mu          sync.Mutex
	bearerToken string
	tokenExpiry time.Time
}

type pesapalTokenResponse struct {
	Token      string `json:"token"`
	ExpiryDate string `json:"expiryDate"`
}

type pesapalOrderResponse struct {
	OrderTrackingID string `json:"order_tracking_id"`
	RedirectURL     string `json:"redirect_url"`
	Status          string `json:"status"`
}

// Charge submits a card order for the given amount and reference.
func (p *PesaPal) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	token, err := p.token(ctx)
	if err != nil {
		return ChargeResult{Status: StatusFailed}, err
	}
	body, err := json.Marshal(map[string]any{
		"id":              uuid.NewString(),
		"currency":        "KES",
		"amount":          req.Amount,
		"description":     "POS sale " + req.Reference,
		"callback_url":    "",
		"notification_id": p.TerminalSN,
		"billing_address": map[string]any{
			"phone_number":  req.Phone,
			"email_address": req.Email,
		},
	})
	if err != nil {
		return ChargeResult{Status: StatusFailed}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/Transactions/SubmitOrderRequest", bytes.NewReader(body))
	if err != nil {
		return ChargeResult{Status: StatusFailed}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.HTTP.Do(ctx, httpReq)
	if err != nil {
		return ChargeResult{Status: StatusFailed}, fmt.Errorf("pesapal: submit order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return ChargeResult{Status: StatusFailed}, fmt.Errorf("pesapal: submit order status %d", resp.StatusCode)
	}
	var decoded pesapalOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChargeResult{Status: StatusFailed}, fmt.Errorf("pesapal: decode response: %w", err)
	}
	if decoded.OrderTrackingID == "" {
		return ChargeResult{Status: StatusFailed}, fmt.Errorf("pesapal: order rejected")
	}
	return ChargeResult{Status: StatusPending, ProviderID: decoded.OrderTrackingID}, nil
}

func (p *PesaPal) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bearerToken != "" && p.clock().Before(p.tokenExpiry.Add(-time.Minute)) {
		return p.bearerToken, nil
	}
	body, err := json.Marshal(map[string]string{
		"consumer_key":    p.ClientID,
		"consumer_secret": p.ClientSecret,
	})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/Auth/RequestToken", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.HTTP.Do(ctx, httpReq)
	if err != nil {
		return "", fmt.Errorf("pesapal: fetch token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pesapal: token status %d", resp.StatusCode)
	}
	var decoded pesapalTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("pesapal: decode token: %w", err)
	}
	if decoded.Token == "" {
		return "", fmt.Errorf("pesapal: empty token")
	}
	p.bearerToken = decoded.Token
	p.tokenExpiry = p.clock().Add(4 * time.Minute)
	return p.bearerToken, nil
}

func (p *PesaPal) clock() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
