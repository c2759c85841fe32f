package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout is the HTTP client timeout for gateway calls
	DefaultTimeout = 30 * time.Second
)

// Outcome is the gateway's verdict carried by the return/callback parameters.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
	OutcomeFailed    Outcome = "failed"
)

// OutcomeFromCode maps a provider response code to an outcome.
// "00"/"000" is approval; "17" is customer cancellation; "54" is session
// expiry; everything else is a decline.
func OutcomeFromCode(code string) Outcome {
	switch strings.TrimSpace(code) {
	case "00", "000":
		return OutcomeSucceeded
	case "17":
		return OutcomeCancelled
	case "54":
		return OutcomeExpired
	default:
		return OutcomeFailed
	}
}

// Client handles hosted-payment gateway interactions. With an empty BaseURL
// the client runs in sandbox mode: sessions are fabricated locally so the
// rest of the flow can run without a provider account.
type Client struct {
	baseURL    string
	merchantID string
	apiKey     string
	returnURL  string
	httpClient *http.Client
}

// Config holds configuration for the gateway client
type Config struct {
	BaseURL    string
	MerchantID string
	APIKey     string
	ReturnURL  string
	Timeout    time.Duration
}

// NewClient creates a new gateway client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		merchantID: config.MerchantID,
		apiKey:     config.APIKey,
		returnURL:  config.ReturnURL,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// SessionRequest describes the checkout session to open
type SessionRequest struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Label         string `json:"label"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	Channel       string `json:"channel"`
}

// Session is the provider's answer: the reference it assigned to the payment
// and the hosted page the customer must be redirected to.
type Session struct {
	Reference string `json:"reference"`
	SessionID string `json:"session_id"`
	ActionURL string `json:"action_url"`
}

type sessionPayload struct {
	MerchantID string `json:"merchant_id"`
	ReturnURL  string `json:"return_url"`
	SessionRequest
}

// CreateSession opens a checkout session with the gateway.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if c.baseURL == "" {
		return c.sandboxSession(), nil
	}

	payload := sessionPayload{
		MerchantID:     c.merchantID,
		ReturnURL:      c.returnURL,
		SessionRequest: req,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway session request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var session Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("failed to decode gateway session: %w", err)
	}

	return &session, nil
}

// sandboxSession fabricates a local session for development and tests.
func (c *Client) sandboxSession() *Session {
	id := uuid.New().String()
	return &Session{
		Reference: "PAY-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:12]),
		SessionID: id,
		ActionURL: "/sandbox/checkout/" + id,
	}
}

// VerifySignature checks the hashcode sent with the gateway return against an
// HMAC-SHA256 of the identifying parameters. An empty API key (sandbox mode)
// accepts everything.
func (c *Client) VerifySignature(reference, sessionID, responseCode, hash string) bool {
	if c.apiKey == "" {
		return true
	}

	mac := hmac.New(sha256.New, []byte(c.apiKey))
	mac.Write([]byte(reference + "|" + sessionID + "|" + responseCode))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(hash)), []byte(expected))
}
