package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// CartStore is the cart persistence surface.
type CartStore interface {
	GetCartByToken(ctx context.Context, token string) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) error
	UpsertCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteCartItem(ctx context.Context, itemID int64) error
	TouchCart(ctx context.Context, cartID int64) error
}

var ErrCartItemNotFound = errors.New("cart item not found")

// CartService manages guest and authenticated carts. Prices are captured
// on the line at add time; later catalog edits do not reprice the cart.
type CartService struct {
	carts   CartStore
	catalog ProductCatalog
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartStore, catalog ProductCatalog) *CartService {
	return &CartService{
		carts:   carts,
		catalog: catalog,
		logger:  util.NamedLogger("cart"),
	}
}

// GetOrCreate loads the cart for a session token, creating one on first
// touch.
func (s *CartService) GetOrCreate(ctx context.Context, token string, userID *string) (*models.Cart, error) {
	cart, err := s.carts.GetCartByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart != nil {
		return cart, nil
	}

	cart = &models.Cart{SessionToken: token, UserID: userID}
	if err := s.carts.CreateCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

// AddItem adds a product line, snapshotting the current catalog price.
func (s *CartService) AddItem(ctx context.Context, token string, userID *string, productID int64, quantity int) (*models.Cart, error) {
	cart, err := s.GetOrCreate(ctx, token, userID)
	if err != nil {
		return nil, err
	}
	if cart.ConvertedToOrder {
		return nil, ErrCartConverted
	}

	products, err := s.catalog.GetProductsByIDs(ctx, []int64{productID})
	if err != nil {
		return nil, fmt.Errorf("resolve product: %w", err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}

	item := &models.CartItem{
		CartID:     cart.ID,
		ProductID:  productID,
		Quantity:   quantity,
		PriceAtAdd: products[0].Price,
	}
	if err := s.carts.UpsertCartItem(ctx, item); err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}
	if err := s.carts.TouchCart(ctx, cart.ID); err != nil {
		return nil, fmt.Errorf("refresh cart: %w", err)
	}

	s.logger.Debug("cart item added",
		zap.Int64("cart_id", cart.ID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))

	return s.carts.GetCartByToken(ctx, token)
}

// UpdateItem sets the quantity of an existing line.
func (s *CartService) UpdateItem(ctx context.Context, token string, itemID int64, quantity int) (*models.Cart, error) {
	cart, err := s.ownedMutableCart(ctx, token, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.carts.UpdateCartItemQuantity(ctx, itemID, quantity); err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	if err := s.carts.TouchCart(ctx, cart.ID); err != nil {
		return nil, fmt.Errorf("refresh cart: %w", err)
	}
	return s.carts.GetCartByToken(ctx, token)
}

// RemoveItem deletes a line from the cart.
func (s *CartService) RemoveItem(ctx context.Context, token string, itemID int64) (*models.Cart, error) {
	cart, err := s.ownedMutableCart(ctx, token, itemID)
	if err != nil {
		return nil, err
	}

	if err := s.carts.DeleteCartItem(ctx, itemID); err != nil {
		return nil, fmt.Errorf("delete cart item: %w", err)
	}
	if err := s.carts.TouchCart(ctx, cart.ID); err != nil {
		return nil, fmt.Errorf("refresh cart: %w", err)
	}
	return s.carts.GetCartByToken(ctx, token)
}

// ownedMutableCart loads the cart, verifies the item belongs to it, and
// rejects mutation of frozen carts.
func (s *CartService) ownedMutableCart(ctx context.Context, token string, itemID int64) (*models.Cart, error) {
	cart, err := s.carts.GetCartByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil {
		return nil, ErrCartNotFound
	}
	if cart.ConvertedToOrder {
		return nil, ErrCartConverted
	}
	for _, item := range cart.Items {
		if item.ID == itemID {
			return cart, nil
		}
	}
	return nil, ErrCartItemNotFound
}
