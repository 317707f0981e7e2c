package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://info.sweettracker.co.kr"
	responseBodyReadLimit int64 = 256 * 1024
)

var errAPIKeyRequired = errors.New("tracking api key is required")

// Client queries the carrier tracking aggregator for parcel status.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
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

// NewClient builds the tracking client from the aggregator API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(apiKey)
	if trimmed == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmed,
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

// Info is the normalized tracking result.
type Info struct {
	CarrierID      string
	TrackingNumber string
	// Level is the aggregator's 1-6 progress code: 1-2 preparing,
	// 3-5 in transit, 6 delivered.
	Level      int
	StatusText string
	Complete   bool

	Raw json.RawMessage
}

// Status maps the aggregator level onto the internal delivery vocabulary.
func (i Info) Status() (enums.DeliveryStatus, error) {
	switch {
	case i.Level >= 1 && i.Level <= 2:
		return enums.DeliveryStatusPreparing, nil
	case i.Level >= 3 && i.Level <= 5:
		return enums.DeliveryStatusShipping, nil
	case i.Level == 6:
		return enums.DeliveryStatusDelivered, nil
	}
	return "", fmt.Errorf("unknown tracking level %d", i.Level)
}

// Query fetches the current tracking state for a parcel.
func (c *Client) Query(ctx context.Context, carrierID, trackingNumber string) (*Info, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tracking client not configured")
	}
	if strings.TrimSpace(carrierID) == "" || strings.TrimSpace(trackingNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier id and tracking number are required")
	}

	query := url.Values{}
	query.Set("t_key", c.apiKey)
	query.Set("t_code", carrierID)
	query.Set("t_invoice", trackingNumber)
	endpoint := fmt.Sprintf("%s/api/v1/trackingInfo?%s", strings.TrimRight(c.baseURL, "/"), query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build tracking request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "tracking service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "read tracking response")
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, "tracking service error").
			WithDetails(map[string]any{"status": resp.StatusCode})
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, pkgerrors.New(pkgerrors.CodeProviderRejected, "tracking service rejected the request").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": strings.TrimSpace(string(body))})
	}

	var apiResp struct {
		Level          int    `json:"level"`
		Complete       bool   `json:"complete"`
		InvoiceNo      string `json:"invoiceNo"`
		LastStatusText string `json:"lastStateDetail"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, fmt.Errorf("decode response: %w", err), "tracking service returned malformed payload")
	}

	return &Info{
		CarrierID:      carrierID,
		TrackingNumber: trackingNumber,
		Level:          apiResp.Level,
		StatusText:     apiResp.LastStatusText,
		Complete:       apiResp.Complete,
		Raw:            json.RawMessage(body),
	}, nil
}
