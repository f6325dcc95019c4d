package service

import (
	"context"
	"testing"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCartService(products ...*models.Product) (*CartService, *memCartStore) {
	carts := newMemCartStore()
	return NewCartService(carts, newMemCatalog(products...)), carts
}

func TestGetOrCreateCart(t *testing.T) {
	svc, _ := newTestCartService()

	cart, err := svc.GetOrCreate(context.Background(), "tok-1", nil)
	require.NoError(t, err)
	require.NotNil(t, cart)
	assert.Equal(t, "tok-1", cart.SessionToken)

	again, err := svc.GetOrCreate(context.Background(), "tok-1", nil)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)
}

func TestAddItemSnapshotsPrice(t *testing.T) {
	product := &models.Product{ID: 1, Name: "Whey Protein", Price: dec("59.99")}
	svc, carts := newTestCartService(product)

	cart, err := svc.AddItem(context.Background(), "tok-1", nil, 1, 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Items[0].PriceAtAdd.Equal(dec("59.99")))
	assert.True(t, cart.TotalAmount.Equal(dec("119.98")), "total %s", cart.TotalAmount)

	// Catalog price change does not reprice the line.
	product.Price = dec("75.00")
	cart, err = carts.GetCartByToken(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.True(t, cart.Items[0].PriceAtAdd.Equal(dec("59.99")))
}

func TestAddItemMergesDuplicateLines(t *testing.T) {
	svc, _ := newTestCartService(&models.Product{ID: 1, Price: dec("10.00")})

	_, err := svc.AddItem(context.Background(), "tok-1", nil, 1, 1)
	require.NoError(t, err)
	cart, err := svc.AddItem(context.Background(), "tok-1", nil, 1, 2)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
}

func TestAddItemUnknownProduct(t *testing.T) {
	svc, _ := newTestCartService()

	_, err := svc.AddItem(context.Background(), "tok-1", nil, 404, 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	svc, _ := newTestCartService(&models.Product{ID: 1, Price: dec("10.00")})

	cart, err := svc.AddItem(context.Background(), "tok-1", nil, 1, 1)
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	cart, err = svc.UpdateItem(context.Background(), "tok-1", itemID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.True(t, cart.TotalAmount.Equal(dec("50.00")))

	cart, err = svc.RemoveItem(context.Background(), "tok-1", itemID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.TotalAmount.IsZero())
}

func TestUpdateItemNotInCart(t *testing.T) {
	svc, _ := newTestCartService(&models.Product{ID: 1, Price: dec("10.00")})

	_, err := svc.AddItem(context.Background(), "tok-1", nil, 1, 1)
	require.NoError(t, err)

	_, err = svc.UpdateItem(context.Background(), "tok-1", 999, 2)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
}

func TestFrozenCartRejectsMutation(t *testing.T) {
	svc, carts := newTestCartService(&models.Product{ID: 1, Price: dec("10.00")})

	cart, err := svc.AddItem(context.Background(), "tok-1", nil, 1, 1)
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	frozen, err := carts.FreezeCart(context.Background(), cart.ID)
	require.NoError(t, err)
	require.True(t, frozen)

	_, err = svc.AddItem(context.Background(), "tok-1", nil, 1, 1)
	assert.ErrorIs(t, err, ErrCartConverted)
	_, err = svc.UpdateItem(context.Background(), "tok-1", itemID, 3)
	assert.ErrorIs(t, err, ErrCartConverted)
	_, err = svc.RemoveItem(context.Background(), "tok-1", itemID)
	assert.ErrorIs(t, err, ErrCartConverted)
}

func TestFreezeCartOnlyOnce(t *testing.T) {
	svc, carts := newTestCartService(&models.Product{ID: 1, Price: dec("10.00")})

	cart, err := svc.AddItem(context.Background(), "tok-1", nil, 1, 1)
	require.NoError(t, err)

	frozen, err := carts.FreezeCart(context.Background(), cart.ID)
	require.NoError(t, err)
	assert.True(t, frozen)

	frozen, err = carts.FreezeCart(context.Background(), cart.ID)
	require.NoError(t, err)
	assert.False(t, frozen)
}
