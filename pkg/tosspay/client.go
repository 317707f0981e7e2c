package tosspay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.tosspayments.com"
	responseBodyReadLimit int64 = 64 * 1024
)

var errSecretKeyRequired = errors.New("tosspay secret key is required")

// Client talks to the Toss Payments API. Requests are JSON and authenticated
// with HTTP basic auth over the secret key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout bounds every outbound call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds the Toss Payments client from the merchant secret key.
func NewClient(secretKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(secretKey)
	if trimmed == "" {
		return nil, errSecretKeyRequired
	}

	client := &Client{
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(trimmed+":")),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CreatePaymentRequest registers an intended charge.
type CreatePaymentRequest struct {
	Method     string `json:"method"`
	Amount     int64  `json:"amount"`
	OrderID    string `json:"orderId"`
	OrderName  string `json:"orderName"`
	SuccessURL string `json:"successUrl"`
	FailURL    string `json:"failUrl"`
}

// CreatePaymentResponse carries the payment key and the buyer redirect URL.
type CreatePaymentResponse struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
	Checkout   struct {
		URL string `json:"url"`
	} `json:"checkout"`

	Raw json.RawMessage `json:"-"`
}

// ConfirmRequest finalizes a charge the buyer authorized.
type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// ConfirmResponse is the settled receipt.
type ConfirmResponse struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	ApprovedAt  string `json:"approvedAt"`

	Raw json.RawMessage `json:"-"`
}

// CancelRequest asks for a full or partial refund.
type CancelRequest struct {
	PaymentKey   string
	CancelReason string
	CancelAmount int64
	// IdempotencyKey must be fresh per distinct attempt so a retried call
	// after a timeout cannot double-refund.
	IdempotencyKey string
}

// CancelResponse is the refund receipt.
type CancelResponse struct {
	PaymentKey string `json:"paymentKey"`
	Status     string `json:"status"`
	Cancels    []struct {
		CancelAmount int64  `json:"cancelAmount"`
		CancelReason string `json:"cancelReason"`
		CanceledAt   string `json:"canceledAt"`
	} `json:"cancels"`

	Raw json.RawMessage `json:"-"`
}

// CreatePayment registers the charge and returns the checkout redirect.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tosspay client not configured")
	}

	var out CreatePaymentResponse
	raw, err := c.postJSON(ctx, "/v1/payments", req, "", &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// Confirm finalizes the charge identified by paymentKey. Toss deduplicates
// confirm calls on its side, so a repeat with the same key is safe.
func (c *Client) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tosspay client not configured")
	}

	var out ConfirmResponse
	raw, err := c.postJSON(ctx, "/v1/payments/confirm", req, "", &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// Cancel refunds the charge identified by paymentKey.
func (c *Client) Cancel(ctx context.Context, req CancelRequest) (*CancelResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tosspay client not configured")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel idempotency key is required")
	}

	body := map[string]any{"cancelReason": req.CancelReason}
	if req.CancelAmount > 0 {
		body["cancelAmount"] = req.CancelAmount
	}

	path := fmt.Sprintf("/v1/payments/%s/cancel", url.PathEscape(req.PaymentKey))
	var out CancelResponse
	raw, err := c.postJSON(ctx, path, body, req.IdempotencyKey, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, idempotencyKey string, out any) (json.RawMessage, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal tosspay request")
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build tosspay request")
	}
	httpReq.Header.Set("Authorization", c.authHeader)
	httpReq.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "tosspay unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "read tosspay response")
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, "tosspay server error").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": strings.TrimSpace(string(body))})
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, pkgerrors.New(pkgerrors.CodeProviderRejected, "tosspay rejected the request").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": strings.TrimSpace(string(body))})
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, fmt.Errorf("decode response: %w", err), "tosspay returned malformed payload")
	}
	return json.RawMessage(body), nil
}
