package payments

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/farmcart/farmcart-backend/pkg/enums"
)

// ReturnURLs are where the gateway sends the buyer after the hosted page.
type ReturnURLs struct {
	Approve string
	Cancel  string
	Fail    string
}

// PrepareRequest registers an intended charge with a gateway.
type PrepareRequest struct {
	OrderID     uuid.UUID
	UserID      uuid.UUID
	OrderName   string
	AmountCents int64
	ItemCount   int
	ReturnURLs  ReturnURLs
}

// PrepareResult carries the provider transaction reference and the redirect
// target for the buyer. Raw is the untouched provider payload.
type PrepareResult struct {
	ProviderTID string
	RedirectURL string
	Raw         json.RawMessage
}

// ApproveRequest finalizes a charge after the buyer authorized it.
// CallbackRef is the provider-specific token delivered on the return leg:
// pg_token for kakaopay, paymentKey for tosspay, paymentId for naverpay.
type ApproveRequest struct {
	OrderID     uuid.UUID
	UserID      uuid.UUID
	ProviderTID string
	CallbackRef string
	AmountCents int64
}

// ApproveResult is the settled receipt. ProviderTID may differ from the
// prepare reference when the gateway issues a new one at approval.
type ApproveResult struct {
	ProviderTID string
	AmountCents int64
	Raw         json.RawMessage
}

// CancelRequest refunds a charge. IdempotencyKey must be fresh per distinct
// cancel attempt; gateways that support it dedupe retries on their side.
type CancelRequest struct {
	ProviderTID    string
	AmountCents    int64
	Reason         string
	IdempotencyKey string
}

// CancelResult is the refund receipt.
type CancelResult struct {
	Raw json.RawMessage
}

// Provider is the uniform surface the settlement and refund flows talk to.
// Each gateway adapter translates these calls onto its own wire protocol and
// maps failures to the shared error codes.
type Provider interface {
	Name() enums.PaymentProvider
	Prepare(ctx context.Context, req PrepareRequest) (*PrepareResult, error)
	Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error)
	Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error)
}
