package tracking

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
)

func TestClientQuery(t *testing.T) {
	respBody := `{"level":6,"complete":true,"invoiceNo":"1234567890","lastStateDetail":"배송완료"}`

	var capturedURL string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("t-key", WithBaseURL("http://track.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	info, err := client.Query(context.Background(), "04", "1234567890")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(capturedURL, "t_code=04") || !strings.Contains(capturedURL, "t_invoice=1234567890") {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if info.Level != 6 || !info.Complete {
		t.Fatalf("unexpected info %+v", info)
	}

	status, err := info.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != enums.DeliveryStatusDelivered {
		t.Fatalf("expected delivered, got %s", status)
	}
}

func TestInfoStatusMapping(t *testing.T) {
	tests := []struct {
		level int
		want  enums.DeliveryStatus
	}{
		{level: 1, want: enums.DeliveryStatusPreparing},
		{level: 2, want: enums.DeliveryStatusPreparing},
		{level: 3, want: enums.DeliveryStatusShipping},
		{level: 4, want: enums.DeliveryStatusShipping},
		{level: 5, want: enums.DeliveryStatusShipping},
		{level: 6, want: enums.DeliveryStatusDelivered},
	}
	for _, tc := range tests {
		status, err := Info{Level: tc.level}.Status()
		if err != nil {
			t.Fatalf("level %d: %v", tc.level, err)
		}
		if status != tc.want {
			t.Errorf("level %d = %s, want %s", tc.level, status, tc.want)
		}
	}

	if _, err := (Info{Level: 0}).Status(); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := (Info{Level: 7}).Status(); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestClientQueryValidation(t *testing.T) {
	client, err := NewClient("t-key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Query(context.Background(), "", "123")
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClientQueryServerError(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(strings.NewReader("boom")),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("t-key", WithBaseURL("http://track.test"), WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Query(context.Background(), "04", "123")
	if !pkgerrors.HasCode(err, pkgerrors.CodeProviderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
