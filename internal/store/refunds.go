package store

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

func (t *pgTx) CreateRefund(ctx context.Context, refund *models.Refund) error {
	query := `
		INSERT INTO refunds (order_item_id, user_id, requested_quantity, reason, status, refund_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return t.tx.GetContext(ctx, &refund.ID, query,
		refund.OrderItemID, refund.UserID, refund.RequestedQuantity, refund.Reason,
		refund.Status, refund.RefundAmount, refund.CreatedAt)
}

func (t *pgTx) GetRefund(ctx context.Context, id int64) (*models.Refund, error) {
	var refund models.Refund
	err := t.tx.GetContext(ctx, &refund, "SELECT * FROM refunds WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "store.GetRefund", "refund", id)
	}
	return &refund, nil
}

func (t *pgTx) LockRefund(ctx context.Context, id int64) (*models.Refund, error) {
	var refund models.Refund
	err := t.tx.GetContext(ctx, &refund, "SELECT * FROM refunds WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "store.LockRefund", "refund", id)
	}
	return &refund, nil
}

func (t *pgTx) UpdateRefund(ctx context.Context, refund *models.Refund) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE refunds SET status = $1, refund_amount = $2, resolved_at = $3 WHERE id = $4",
		refund.Status, refund.RefundAmount, refund.ResolvedAt, refund.ID)
	if err != nil {
		return fmt.Errorf("failed to update refund: %w", err)
	}
	return mustAffect(res, "store.UpdateRefund", "refund", refund.ID)
}

// ListRefunds returns all refunds, or only those in status when it is set.
func (t *pgTx) ListRefunds(ctx context.Context, status models.RefundStatus) ([]models.Refund, error) {
	refunds := []models.Refund{}
	if status == "" {
		err := t.tx.SelectContext(ctx, &refunds, "SELECT * FROM refunds ORDER BY id")
		return refunds, err
	}
	err := t.tx.SelectContext(ctx, &refunds,
		"SELECT * FROM refunds WHERE status = $1 ORDER BY id", status)
	return refunds, err
}

func (t *pgTx) CreateCard(ctx context.Context, card *models.SavedCard) error {
	query := `
		INSERT INTO saved_cards (user_id, card_name, last4, encrypted_number, encrypted_expiry, encrypted_cvv)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return t.tx.QueryRowxContext(ctx, query,
		card.UserID, card.CardName, card.Last4,
		card.EncryptedNumber, card.EncryptedExpiry, card.EncryptedCVV,
	).Scan(&card.ID, &card.CreatedAt)
}

func (t *pgTx) GetCard(ctx context.Context, userID, cardID int64) (*models.SavedCard, error) {
	var card models.SavedCard
	err := t.tx.GetContext(ctx, &card,
		"SELECT * FROM saved_cards WHERE id = $1 AND user_id = $2", cardID, userID)
	if err != nil {
		return nil, notFound(err, "store.GetCard", "saved card", cardID)
	}
	return &card, nil
}

func (t *pgTx) ListCards(ctx context.Context, userID int64) ([]models.SavedCard, error) {
	cards := []models.SavedCard{}
	err := t.tx.SelectContext(ctx, &cards,
		"SELECT * FROM saved_cards WHERE user_id = $1 ORDER BY id", userID)
	return cards, err
}
