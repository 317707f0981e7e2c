package kakaopay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://kapi.kakao.com"
	responseBodyReadLimit int64 = 64 * 1024
)

var errAdminKeyRequired = errors.New("kakaopay admin key is required")

// Client talks to the KakaoPay one-time payment API. Requests are
// form-encoded and authenticated with the KakaoAK admin key scheme.
type Client struct {
	httpClient *http.Client
	baseURL    string
	adminKey   string
	cid        string
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

// NewClient builds the KakaoPay client from the admin key and merchant cid.
func NewClient(adminKey, cid string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(adminKey)
	if trimmedKey == "" {
		return nil, errAdminKeyRequired
	}
	if strings.TrimSpace(cid) == "" {
		return nil, errors.New("kakaopay cid is required")
	}

	client := &Client{
		adminKey:   trimmedKey,
		cid:        strings.TrimSpace(cid),
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

// ReadyRequest registers an intended charge.
type ReadyRequest struct {
	PartnerOrderID string
	PartnerUserID  string
	ItemName       string
	Quantity       int
	TotalAmount    int64
	ApprovalURL    string
	CancelURL      string
	FailURL        string
}

// ReadyResponse carries the provider session reference and redirect targets.
type ReadyResponse struct {
	TID             string `json:"tid"`
	RedirectPCURL   string `json:"next_redirect_pc_url"`
	RedirectAppURL  string `json:"next_redirect_app_url"`
	RedirectWebURL  string `json:"next_redirect_mobile_url"`
	CreatedAtString string `json:"created_at"`

	Raw json.RawMessage `json:"-"`
}

// ApproveRequest finalizes a charge after the buyer authorized it.
type ApproveRequest struct {
	TID            string
	PartnerOrderID string
	PartnerUserID  string
	PGToken        string
}

// ApproveResponse is the receipt returned by the approve endpoint.
type ApproveResponse struct {
	AID    string `json:"aid"`
	TID    string `json:"tid"`
	Amount struct {
		Total   int64 `json:"total"`
		TaxFree int64 `json:"tax_free"`
		VAT     int64 `json:"vat"`
	} `json:"amount"`
	ApprovedAtString string `json:"approved_at"`

	Raw json.RawMessage `json:"-"`
}

// CancelRequest requests a full or partial refund.
type CancelRequest struct {
	TID          string
	CancelAmount int64
}

// CancelResponse is the refund receipt.
type CancelResponse struct {
	AID    string `json:"aid"`
	TID    string `json:"tid"`
	Status string `json:"status"`
	Amount struct {
		Total int64 `json:"total"`
		VAT   int64 `json:"vat"`
	} `json:"canceled_amount"`
	CanceledAtString string `json:"canceled_at"`

	Raw json.RawMessage `json:"-"`
}

// Ready registers the charge and returns the provider session reference.
func (c *Client) Ready(ctx context.Context, req ReadyRequest) (*ReadyResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "kakaopay client not configured")
	}

	form := url.Values{}
	form.Set("cid", c.cid)
	form.Set("partner_order_id", req.PartnerOrderID)
	form.Set("partner_user_id", req.PartnerUserID)
	form.Set("item_name", req.ItemName)
	form.Set("quantity", strconv.Itoa(req.Quantity))
	form.Set("total_amount", strconv.FormatInt(req.TotalAmount, 10))
	form.Set("vat_amount", strconv.FormatInt(VATPortion(req.TotalAmount), 10))
	form.Set("tax_free_amount", "0")
	form.Set("approval_url", req.ApprovalURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("fail_url", req.FailURL)

	var out ReadyResponse
	raw, err := c.postForm(ctx, "/v1/payment/ready", form, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// Approve finalizes the charge identified by tid.
func (c *Client) Approve(ctx context.Context, req ApproveRequest) (*ApproveResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "kakaopay client not configured")
	}

	form := url.Values{}
	form.Set("cid", c.cid)
	form.Set("tid", req.TID)
	form.Set("partner_order_id", req.PartnerOrderID)
	form.Set("partner_user_id", req.PartnerUserID)
	form.Set("pg_token", req.PGToken)

	var out ApproveResponse
	raw, err := c.postForm(ctx, "/v1/payment/approve", form, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// Cancel refunds the charge identified by tid. KakaoPay offers no request
// deduplication here, so callers must guard against repeat refunds themselves.
func (c *Client) Cancel(ctx context.Context, req CancelRequest) (*CancelResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "kakaopay client not configured")
	}

	form := url.Values{}
	form.Set("cid", c.cid)
	form.Set("tid", req.TID)
	form.Set("cancel_amount", strconv.FormatInt(req.CancelAmount, 10))
	form.Set("cancel_vat_amount", strconv.FormatInt(VATPortion(req.CancelAmount), 10))
	form.Set("cancel_tax_free_amount", "0")

	var out CancelResponse
	raw, err := c.postForm(ctx, "/v1/payment/cancel", form, &out)
	if err != nil {
		return nil, err
	}
	out.Raw = raw
	return &out, nil
}

// VATPortion extracts the 10% VAT share baked into a gross amount,
// rounded down to whole currency units.
func VATPortion(grossAmount int64) int64 {
	gross := decimal.NewFromInt(grossAmount)
	vat := gross.Mul(decimal.NewFromInt(10)).Div(decimal.NewFromInt(110))
	return vat.Floor().IntPart()
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) (json.RawMessage, error) {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build kakaopay request")
	}
	httpReq.Header.Set("Authorization", "KakaoAK "+c.adminKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "kakaopay unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "read kakaopay response")
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, "kakaopay server error").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": strings.TrimSpace(string(body))})
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, pkgerrors.New(pkgerrors.CodeProviderRejected, "kakaopay rejected the request").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": strings.TrimSpace(string(body))})
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, fmt.Errorf("decode response: %w", err), "kakaopay returned malformed payload")
	}
	return json.RawMessage(body), nil
}
