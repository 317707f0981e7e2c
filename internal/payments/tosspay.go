package payments

import (
	"context"

	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
	"github.com/farmcart/farmcart-backend/pkg/tosspay"
)

type tossAPI interface {
	CreatePayment(ctx context.Context, req tosspay.CreatePaymentRequest) (*tosspay.CreatePaymentResponse, error)
	Confirm(ctx context.Context, req tosspay.ConfirmRequest) (*tosspay.ConfirmResponse, error)
	Cancel(ctx context.Context, req tosspay.CancelRequest) (*tosspay.CancelResponse, error)
}

// TossAdapter maps the uniform provider surface onto the Toss Payments API.
type TossAdapter struct {
	api tossAPI
}

// NewTossAdapter wraps a configured Toss client.
func NewTossAdapter(client *tosspay.Client) *TossAdapter {
	return &TossAdapter{api: client}
}

func (a *TossAdapter) Name() enums.PaymentProvider {
	return enums.PaymentProviderTosspay
}

func (a *TossAdapter) Prepare(ctx context.Context, req PrepareRequest) (*PrepareResult, error) {
	resp, err := a.api.CreatePayment(ctx, tosspay.CreatePaymentRequest{
		Method:     "CARD",
		Amount:     req.AmountCents,
		OrderID:    req.OrderID.String(),
		OrderName:  req.OrderName,
		SuccessURL: req.ReturnURLs.Approve,
		FailURL:    req.ReturnURLs.Fail,
	})
	if err != nil {
		return nil, err
	}
	return &PrepareResult{
		ProviderTID: resp.PaymentKey,
		RedirectURL: resp.Checkout.URL,
		Raw:         resp.Raw,
	}, nil
}

func (a *TossAdapter) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	paymentKey := req.CallbackRef
	if paymentKey == "" {
		paymentKey = req.ProviderTID
	}
	resp, err := a.api.Confirm(ctx, tosspay.ConfirmRequest{
		PaymentKey: paymentKey,
		OrderID:    req.OrderID.String(),
		Amount:     req.AmountCents,
	})
	if err != nil {
		return nil, err
	}
	return &ApproveResult{
		ProviderTID: resp.PaymentKey,
		AmountCents: resp.TotalAmount,
		Raw:         resp.Raw,
	}, nil
}

func (a *TossAdapter) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	if req.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required for toss cancel")
	}
	resp, err := a.api.Cancel(ctx, tosspay.CancelRequest{
		PaymentKey:     req.ProviderTID,
		CancelReason:   req.Reason,
		CancelAmount:   req.AmountCents,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return &CancelResult{Raw: resp.Raw}, nil
}
