package naverpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://apis.naver.com"
	successCode                 = "Success"
	responseBodyReadLimit int64 = 64 * 1024
)

var errCredentialsRequired = errors.New("naverpay client id and secret are required")

// Client talks to the Naver Pay partner API. Requests are JSON with
// client-id/secret headers, and every response arrives wrapped in a
// {code, message, body} envelope.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	chainID      string
	partnerID    string
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

// NewClient builds the Naver Pay client from the partner credentials.
func NewClient(clientID, clientSecret, chainID, partnerID string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, errCredentialsRequired
	}
	if strings.TrimSpace(partnerID) == "" {
		return nil, errors.New("naverpay partner id is required")
	}

	client := &Client{
		clientID:     strings.TrimSpace(clientID),
		clientSecret: strings.TrimSpace(clientSecret),
		chainID:      strings.TrimSpace(chainID),
		partnerID:    strings.TrimSpace(partnerID),
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body"`
}

// ReserveRequest registers an intended charge.
type ReserveRequest struct {
	MerchantPayKey string `json:"merchantPayKey"`
	ProductName    string `json:"productName"`
	TotalPayAmount int64  `json:"totalPayAmount"`
	TaxScopeAmount int64  `json:"taxScopeAmount"`
	ReturnURL      string `json:"returnUrl"`
}

// ReserveResponse carries the provider reserve reference.
type ReserveResponse struct {
	ReserveID string `json:"reserveId"`

	Raw json.RawMessage `json:"-"`
}

// ApplyResponse is the settled receipt.
type ApplyResponse struct {
	PaymentID      string `json:"paymentId"`
	MerchantPayKey string `json:"merchantPayKey"`
	TotalPayAmount int64  `json:"totalPayAmount"`
	AdmissionState string `json:"admissionState"`

	Raw json.RawMessage `json:"-"`
}

// CancelRequest asks for a full or partial refund.
type CancelRequest struct {
	PaymentID      string `json:"paymentId"`
	CancelAmount   int64  `json:"cancelAmount"`
	CancelReason   string `json:"cancelReason"`
	TaxScopeAmount int64  `json:"taxScopeAmount"`
	// CancelRequestID deduplicates retried cancels on the provider side.
	CancelRequestID string `json:"merchantCancelKey"`
}

// CancelResponse is the refund receipt.
type CancelResponse struct {
	PaymentID          string `json:"paymentId"`
	TotalRestoreAmount int64  `json:"totalRestoreAmount"`

	Raw json.RawMessage `json:"-"`
}

// Reserve registers the charge and returns the reserve reference.
func (c *Client) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "naverpay client not configured")
	}

	path := fmt.Sprintf("/%s/naverpay/payments/v2/reserve", c.partnerID)
	var out ReserveResponse
	raw, err := c.postJSON(ctx, path, req, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// Apply finalizes the payment the buyer authorized. Naver keys the call on
// paymentId and rejects repeats, so a duplicate apply cannot double-charge.
func (c *Client) Apply(ctx context.Context, paymentID string) (*ApplyResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "naverpay client not configured")
	}

	path := fmt.Sprintf("/%s/naverpay/payments/v2/apply/payment", c.partnerID)
	payload := map[string]string{"paymentId": paymentID}
	var out ApplyResponse
	raw, err := c.postJSON(ctx, path, payload, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// Cancel refunds the payment.
func (c *Client) Cancel(ctx context.Context, req CancelRequest) (*CancelResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "naverpay client not configured")
	}
	if strings.TrimSpace(req.CancelRequestID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel request id is required")
	}

	path := fmt.Sprintf("/%s/naverpay/payments/v1/cancel", c.partnerID)
	var out CancelResponse
	raw, err := c.postJSON(ctx, path, req, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) (json.RawMessage, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal naverpay request")
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build naverpay request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Naver-Client-Id", c.clientID)
	httpReq.Header.Set("X-Naver-Client-Secret", c.clientSecret)
	if c.chainID != "" {
		httpReq.Header.Set("X-NaverPay-Chain-Id", c.chainID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "naverpay unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "read naverpay response")
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, "naverpay server error").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": strings.TrimSpace(string(body))})
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, pkgerrors.New(pkgerrors.CodeProviderRejected, "naverpay rejected the request").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": strings.TrimSpace(string(body))})
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, fmt.Errorf("decode envelope: %w", err), "naverpay returned malformed payload")
	}
	// Naver reports declines through the envelope code even on HTTP 200.
	if env.Code != successCode {
		return nil, pkgerrors.New(pkgerrors.CodeProviderRejected, "naverpay declined the request").
			WithDetails(map[string]any{"code": env.Code, "message": env.Message})
	}

	if len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, out); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, fmt.Errorf("decode body: %w", err), "naverpay returned malformed payload")
		}
	}
	return json.RawMessage(body), nil
}
