package payments

import (
	"context"

	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"

	"github.com/farmcart/farmcart-backend/pkg/enums"
	"github.com/farmcart/farmcart-backend/pkg/kakaopay"
)

type kakaoAPI interface {
	Ready(ctx context.Context, req kakaopay.ReadyRequest) (*kakaopay.ReadyResponse, error)
	Approve(ctx context.Context, req kakaopay.ApproveRequest) (*kakaopay.ApproveResponse, error)
	Cancel(ctx context.Context, req kakaopay.CancelRequest) (*kakaopay.CancelResponse, error)
}

// KakaoAdapter maps the uniform provider surface onto the KakaoPay wire API.
type KakaoAdapter struct {
	api kakaoAPI
}

// NewKakaoAdapter wraps a configured KakaoPay client.
func NewKakaoAdapter(client *kakaopay.Client) *KakaoAdapter {
	return &KakaoAdapter{api: client}
}

func (a *KakaoAdapter) Name() enums.PaymentProvider {
	return enums.PaymentProviderKakaopay
}

func (a *KakaoAdapter) Prepare(ctx context.Context, req PrepareRequest) (*PrepareResult, error) {
	resp, err := a.api.Ready(ctx, kakaopay.ReadyRequest{
		PartnerOrderID: req.OrderID.String(),
		PartnerUserID:  req.UserID.String(),
		ItemName:       req.OrderName,
		Quantity:       req.ItemCount,
		TotalAmount:    req.AmountCents,
		ApprovalURL:    req.ReturnURLs.Approve,
		CancelURL:      req.ReturnURLs.Cancel,
		FailURL:        req.ReturnURLs.Fail,
	})
	if err != nil {
		return nil, err
	}
	return &PrepareResult{
		ProviderTID: resp.TID,
		RedirectURL: resp.RedirectPCURL,
		Raw:         resp.Raw,
	}, nil
}

func (a *KakaoAdapter) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	if req.CallbackRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pg_token required")
	}
	resp, err := a.api.Approve(ctx, kakaopay.ApproveRequest{
		TID:            req.ProviderTID,
		PartnerOrderID: req.OrderID.String(),
		PartnerUserID:  req.UserID.String(),
		PGToken:        req.CallbackRef,
	})
	if err != nil {
		return nil, err
	}
	return &ApproveResult{
		ProviderTID: resp.TID,
		AmountCents: resp.Amount.Total,
		Raw:         resp.Raw,
	}, nil
}

// Cancel has no provider-side idempotency on this gateway; callers guard
// against double refunds with the session claim before reaching here.
func (a *KakaoAdapter) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	resp, err := a.api.Cancel(ctx, kakaopay.CancelRequest{
		TID:          req.ProviderTID,
		CancelAmount: req.AmountCents,
	})
	if err != nil {
		return nil, err
	}
	return &CancelResult{Raw: resp.Raw}, nil
}
