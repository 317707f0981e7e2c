package payments

import (
	"context"

	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/naverpay"
)

type naverAPI interface {
	Reserve(ctx context.Context, req naverpay.ReserveRequest) (*naverpay.ReserveResponse, error)
	Apply(ctx context.Context, paymentID string) (*naverpay.ApplyResponse, error)
	Cancel(ctx context.Context, req naverpay.CancelRequest) (*naverpay.CancelResponse, error)
}

// NaverAdapter maps the uniform provider surface onto the NaverPay API.
type NaverAdapter struct {
	api naverAPI
}

// NewNaverAdapter wraps a configured NaverPay client.
func NewNaverAdapter(client *naverpay.Client) *NaverAdapter {
	return &NaverAdapter{api: client}
}

func (a *NaverAdapter) Name() enums.PaymentProvider {
	return enums.PaymentProviderNaverpay
}

// Prepare reserves the charge. NaverPay has no hosted redirect URL in the
// reserve response; the storefront opens its payment window with the reserve
// reference instead.
func (a *NaverAdapter) Prepare(ctx context.Context, req PrepareRequest) (*PrepareResult, error) {
	resp, err := a.api.Reserve(ctx, naverpay.ReserveRequest{
		MerchantPayKey: req.OrderID.String(),
		ProductName:    req.OrderName,
		TotalPayAmount: req.AmountCents,
		TaxScopeAmount: req.AmountCents,
		ReturnURL:      req.ReturnURLs.Approve,
	})
	if err != nil {
		return nil, err
	}
	return &PrepareResult{
		ProviderTID: resp.ReserveID,
		Raw:         resp.Raw,
	}, nil
}

// Approve applies the payment the buyer authorized. The payment reference on
// the return leg supersedes the reserve reference and is persisted in its
// place.
func (a *NaverAdapter) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	if req.CallbackRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	resp, err := a.api.Apply(ctx, req.CallbackRef)
	if err != nil {
		return nil, err
	}
	return &ApproveResult{
		ProviderTID: resp.PaymentID,
		AmountCents: resp.TotalPayAmount,
		Raw:         resp.Raw,
	}, nil
}

func (a *NaverAdapter) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	if req.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel request id required for naver cancel")
	}
	resp, err := a.api.Cancel(ctx, naverpay.CancelRequest{
		PaymentID:       req.ProviderTID,
		CancelAmount:    req.AmountCents,
		CancelReason:    req.Reason,
		TaxScopeAmount:  req.AmountCents,
		CancelRequestID: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return &CancelResult{Raw: resp.Raw}, nil
}
