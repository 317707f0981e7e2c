package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
)

// Adjustment names one stock line to decrement or restore. When OptionID is
// set the option row carries the stock; otherwise the product row does.
type Adjustment struct {
	ProductID uuid.UUID
	OptionID  *uuid.UUID
	Quantity  int
}

// Service mutates catalog stock. Both operations run inside the caller's
// transaction; Decrement is all-or-nothing, Restore is best-effort.
type Service interface {
	Decrement(ctx context.Context, tx *gorm.DB, adjustments []Adjustment) error
	Restore(ctx context.Context, tx *gorm.DB, adjustments []Adjustment) error
}

type engine struct{}

// NewService exposes the default stock mutation implementation.
func NewService() Service {
	return engine{}
}

// Decrement subtracts stock for every adjustment, or for none of them. Each
// write is guarded on the remaining stock, so an oversell surfaces as zero
// rows changed rather than a negative count. The first shortfall aborts with
// an error and the caller's transaction takes every prior write back.
func (engine) Decrement(ctx context.Context, tx *gorm.DB, adjustments []Adjustment) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for stock decrement")
	}
	for _, adj := range adjustments {
		if adj.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "stock adjustment quantity must be positive")
		}
		res := applyDelta(ctx, tx, adj, -adj.Quantity, true)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for product %s", adj.ProductID))
		}
	}
	return nil
}

// Restore adds stock back after a cancellation. Failures are collected and
// reported together; a missing row is skipped because the catalog may have
// removed the product since the sale.
func (engine) Restore(ctx context.Context, tx *gorm.DB, adjustments []Adjustment) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required for stock restore")
	}
	var errs []error
	for _, adj := range adjustments {
		if adj.Quantity <= 0 {
			continue
		}
		res := applyDelta(ctx, tx, adj, adj.Quantity, false)
		if res.Error != nil {
			errs = append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore stock"))
		}
	}
	return multierr.Combine(errs...)
}

func applyDelta(ctx context.Context, tx *gorm.DB, adj Adjustment, delta int, guarded bool) *gorm.DB {
	table := "products"
	rowID := adj.ProductID
	if adj.OptionID != nil {
		table = "product_options"
		rowID = *adj.OptionID
	}
	query := fmt.Sprintf(`UPDATE %s SET stock = stock + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, table)
	args := []any{delta, rowID}
	if guarded {
		query += " AND stock >= ?"
		args = append(args, -delta)
	}
	return tx.WithContext(ctx).Exec(query, args...)
}
