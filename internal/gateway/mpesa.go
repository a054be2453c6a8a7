package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anjiru/duka-pos/internal/resilience"
)

// Mpesa collects payments through Safaricom's Daraja STK push. An access token
// is cached until shortly before expiry; the push itself is fire-and-forget
// from the till's point of view, so an accepted push reports pending.
type Mpesa struct {
	HTTP           resilience.HTTPClient
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	Now            func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type mpesaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushResponse struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
}

// Charge initiates an STK push for the given amount and phone number.
func (m *Mpesa) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	phone := normalizePhone(req.Phone)
	if phone == "" {
		return ChargeResult{Status: StatusFailed}, fmt.Errorf("mpesa: a phone number is required for an stk push")
	}
	token, err := m.token(ctx)
	if err != nil {
		return ChargeResult{Status: StatusFailed}, err
	}
	now := m.clock()
	timestamp := now.Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(m.ShortCode + m.Passkey + timestamp))

	body, err := json.Marshal(map[string]any{
		"BusinessShortCode": m.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount,
		"PartyA":            phone,
		"PartyB":            m.ShortCode,
		"PhoneNumber":       phone,
		"AccountReference":  req.Reference,
		"TransactionDesc":   "POS sale " + req.Reference,
	})
	if err != nil {
		return ChargeResult{Status: StatusFailed}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return ChargeResult{Status: StatusFailed}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.HTTP.Do(ctx, httpReq)
	if err != nil {
		return ChargeResult{Status: StatusFailed}, fmt.Errorf("mpesa: stk push: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return ChargeResult{Status: StatusFailed}, fmt.Errorf("mpesa: stk push status %d", resp.StatusCode)
	}
	var decoded stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChargeResult{Status: StatusFailed}, fmt.Errorf("mpesa: decode response: %w", err)
	}
	if decoded.ResponseCode != "0" {
		return ChargeResult{Status: StatusFailed, ProviderID: decoded.CheckoutRequestID},
			fmt.Errorf("mpesa: push rejected: %s", decoded.ResponseDesc)
	}
	return ChargeResult{Status: StatusPending, ProviderID: decoded.CheckoutRequestID}, nil
}

// token returns a cached OAuth token, refreshing when within a minute of
// expiry.
func (m *Mpesa) token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accessToken != "" && m.clock().Before(m.tokenExpiry.Add(-time.Minute)) {
		return m.accessToken, nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, m.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(m.ConsumerKey, m.ConsumerSecret)
	resp, err := m.HTTP.Do(ctx, httpReq)
	if err != nil {
		return "", fmt.Errorf("mpesa: fetch token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mpesa: token status %d", resp.StatusCode)
	}
	var decoded mpesaTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("mpesa: decode token: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", fmt.Errorf("mpesa: empty access token")
	}
	m.accessToken = decoded.AccessToken
	m.tokenExpiry = m.clock().Add(time.Hour)
	return m.accessToken, nil
}

func (m *Mpesa) clock() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// normalizePhone converts local 07xx/01xx numbers to the 254 format Daraja
// expects.
func normalizePhone(phone string) string {
	phone = strings.TrimSpace(strings.TrimPrefix(phone, "+"))
	if phone == "" {
		return ""
	}
	if strings.HasPrefix(phone, "0") {
		return "254" + phone[1:]
	}
	return phone
}
