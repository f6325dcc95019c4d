package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-service/internal/models"
)

// GetCartByToken retrieves a cart and its items by session token. Returns
// nil without error when no cart exists for the token.
func (s *Store) GetCartByToken(ctx context.Context, token string) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE session_token = $1", token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.SelectContext(ctx, &cart.Items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cart.ID); err != nil {
		return nil, err
	}
	return &cart, nil
}

// CreateCart inserts a new cart for a session token
func (s *Store) CreateCart(ctx context.Context, cart *models.Cart) error {
	return s.db.GetContext(ctx, cart, `
		INSERT INTO carts (user_id, session_token, total_amount)
		VALUES ($1, $2, 0)
		RETURNING id, total_amount, converted_to_order, last_updated, created_at`,
		cart.UserID, cart.SessionToken)
}

// UpsertCartItem adds a line to a cart or bumps its quantity, capturing the
// product price at add time on first insert.
func (s *Store) UpsertCartItem(ctx context.Context, item *models.CartItem) error {
	return s.db.GetContext(ctx, &item.ID, `
		INSERT INTO cart_items (cart_id, product_id, quantity, price_at_add)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id`,
		item.CartID, item.ProductID, item.Quantity, item.PriceAtAdd)
}

// UpdateCartItemQuantity sets the quantity of a cart line
func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2", quantity, itemID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("cart item not found: %d", itemID)
	}
	return nil
}

// DeleteCartItem removes a cart line
func (s *Store) DeleteCartItem(ctx context.Context, itemID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", itemID)
	return err
}

// TouchCart refreshes the cart total and staleness clock after a mutation.
func (s *Store) TouchCart(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE carts SET
			total_amount = COALESCE(
				(SELECT SUM(price_at_add * quantity) FROM cart_items WHERE cart_id = $1), 0),
			last_updated = NOW()
		WHERE id = $1`,
		cartID)
	return err
}

// FreezeCart marks a cart as converted to an order. The guard makes
// conversion one-shot: a cart already converted affects zero rows.
func (s *Store) FreezeCart(ctx context.Context, cartID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE carts SET converted_to_order = TRUE, last_updated = NOW()
		WHERE id = $1 AND converted_to_order = FALSE`,
		cartID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
