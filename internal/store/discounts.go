package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-service/internal/models"
)

// GetDiscountCode retrieves a discount code by its normalized code string.
// Returns nil without error when the code does not exist.
func (s *Store) GetDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := s.db.GetContext(ctx, &dc, "SELECT * FROM discount_codes WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// CreateDiscountCode inserts a new discount code
func (s *Store) CreateDiscountCode(ctx context.Context, dc *models.DiscountCode) error {
	query := `
		INSERT INTO discount_codes
			(code, type, value, minimum_purchase, usage_limit, per_user_limit,
			 expires_at, is_active, included_categories, excluded_tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, usage_count, created_at, updated_at`

	return s.db.GetContext(ctx, dc, query,
		dc.Code, dc.Type, dc.Value, dc.MinimumPurchase, dc.UsageLimit, dc.PerUserLimit,
		dc.ExpiresAt, dc.IsActive, dc.IncludedCategories, dc.ExcludedTags)
}

// UpdateDiscountCode updates the mutable fields of a code. usage_count is
// never written here; it only moves through ConsumeDiscountUsage.
func (s *Store) UpdateDiscountCode(ctx context.Context, dc *models.DiscountCode) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE discount_codes SET
			type = $1, value = $2, minimum_purchase = $3, usage_limit = $4,
			per_user_limit = $5, expires_at = $6, is_active = $7,
			included_categories = $8, excluded_tags = $9, updated_at = NOW()
		WHERE id = $10`,
		dc.Type, dc.Value, dc.MinimumPurchase, dc.UsageLimit,
		dc.PerUserLimit, dc.ExpiresAt, dc.IsActive,
		dc.IncludedCategories, dc.ExcludedTags, dc.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("discount code not found: %d", dc.ID)
	}
	return nil
}

// DeleteDiscountCode removes a code
func (s *Store) DeleteDiscountCode(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM discount_codes WHERE id = $1", id)
	return err
}

// ListDiscountCodes retrieves all codes for the admin surface
func (s *Store) ListDiscountCodes(ctx context.Context) ([]models.DiscountCode, error) {
	var codes []models.DiscountCode
	err := s.db.SelectContext(ctx, &codes, "SELECT * FROM discount_codes ORDER BY created_at DESC")
	return codes, err
}

// ConsumeDiscountUsage atomically increments usage_count, bounded by
// usage_limit in the WHERE clause. Returns false when the cap has been
// reached by a concurrent redemption.
func (s *Store) ConsumeDiscountUsage(ctx context.Context, codeID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE discount_codes
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		codeID)
	if err != nil {
		return false, fmt.Errorf("consume discount usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountRedemptionsByUser returns how many times a user has redeemed a code.
func (s *Store) CountRedemptionsByUser(ctx context.Context, codeID int64, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM discount_redemptions WHERE code_id = $1 AND user_id = $2",
		codeID, userID)
	return count, err
}

// RecordRedemption records a successful redemption for per-user limit
// enforcement.
func (s *Store) RecordRedemption(ctx context.Context, codeID int64, userID string, orderID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discount_redemptions (code_id, user_id, order_id)
		VALUES ($1, $2, $3)`,
		codeID, userID, orderID)
	return err
}
