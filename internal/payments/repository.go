package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmcart/farmcart-backend/pkg/db/models"
	"github.com/farmcart/farmcart-backend/pkg/enums"
)

// Repository persists payment sessions. Status moves ready -> completed ->
// canceled (or ready -> canceled) only through the guarded Claim write, which
// is the system's mutex against double settlement and double refund.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a payment session repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, session *models.PaymentSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindReadyByOrder returns the open session for the order and provider, if
// any. The partial unique index keeps it to at most one.
func (r *Repository) FindReadyByOrder(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND provider = ? AND status = ?", orderID, provider, enums.PaymentSessionStatusReady).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindAnyReadyByOrder returns an open session for the order regardless of
// provider, newest first.
func (r *Repository) FindAnyReadyByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentSessionStatusReady).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *Repository) FindCompletedByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentSessionStatusCompleted).
		Order("completed_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *Repository) FindByProviderTID(ctx context.Context, provider enums.PaymentProvider, tid string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_tid = ?", provider, tid).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ClaimCompleted atomically moves a single session from ready to completed
// and stores the approve receipt. A false return means another caller won
// the claim, or the session was already canceled.
func (r *Repository) ClaimCompleted(ctx context.Context, sessionID uuid.UUID, providerTID string, receipt json.RawMessage) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ? AND status = ?", sessionID, enums.PaymentSessionStatusReady).
		Updates(map[string]any{
			"status":           enums.PaymentSessionStatusCompleted,
			"provider_tid":     providerTID,
			"approve_response": receipt,
			"completed_at":     now,
			"updated_at":       now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClaimCanceled atomically moves a session from the expected status to
// canceled. Refund flows claim from completed; superseded prepares claim
// from ready.
func (r *Repository) ClaimCanceled(ctx context.Context, sessionID uuid.UUID, expected enums.PaymentSessionStatus, receipt json.RawMessage) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":      enums.PaymentSessionStatusCanceled,
		"canceled_at": now,
		"updated_at":  now,
	}
	if receipt != nil {
		updates["cancel_response"] = receipt
	}
	result := r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ? AND status = ?", sessionID, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetApproveReceipt stores the provider reference and receipt returned by a
// successful approve, after the session was already claimed completed.
func (r *Repository) SetApproveReceipt(ctx context.Context, sessionID uuid.UUID, providerTID string, receipt json.RawMessage) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"provider_tid":     providerTID,
			"approve_response": receipt,
			"updated_at":       time.Now().UTC(),
		}).Error
}

// SetCancelResponse stores the refund receipt after a successful provider
// cancel, for sessions already claimed canceled.
func (r *Repository) SetCancelResponse(ctx context.Context, sessionID uuid.UUID, receipt json.RawMessage) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"cancel_response": receipt,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// HasCompleted satisfies the order state machine's paid guard.
func (r *Repository) HasCompleted(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	var count int64
	err := db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("order_id = ? AND status = ?", orderID, enums.PaymentSessionStatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
