package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storefront-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitMovesStock(t *testing.T) {
	catalog := newMemCatalog(
		&models.Product{ID: 1, StockQuantity: 10},
		&models.Product{ID: 2, StockQuantity: 5},
	)
	svc := NewInventoryService(catalog, nil)

	err := svc.Commit(context.Background(), 1, []models.CommitLine{
		{ProductID: 1, Quantity: 3},
		{ProductID: 2, Quantity: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, 7, catalog.products[1].StockQuantity)
	assert.Equal(t, 0, catalog.products[2].StockQuantity)
}

func TestCommitAllOrNothing(t *testing.T) {
	catalog := newMemCatalog(
		&models.Product{ID: 1, StockQuantity: 10},
		&models.Product{ID: 2, StockQuantity: 1},
	)
	svc := NewInventoryService(catalog, nil)

	err := svc.Commit(context.Background(), 7, []models.CommitLine{
		{ProductID: 1, Quantity: 3},
		{ProductID: 2, Quantity: 2}, // only 1 available
	})

	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, int64(7), commitErr.OrderID)
	require.Len(t, commitErr.Failures, 1)
	assert.Equal(t, int64(2), commitErr.Failures[0].ProductID)
	assert.Equal(t, models.ReasonOutOfStock, commitErr.Failures[0].Reason)

	// The fulfillable line must not have moved either.
	assert.Equal(t, 10, catalog.products[1].StockQuantity)
	assert.Equal(t, 1, catalog.products[2].StockQuantity)
}

func TestCommitPreorderCap(t *testing.T) {
	catalog := newMemCatalog(
		&models.Product{ID: 1, AllowPreorder: true, PreorderCap: intptr(5), PreorderCount: 4},
	)
	svc := NewInventoryService(catalog, nil)

	require.NoError(t, svc.Commit(context.Background(), 1, []models.CommitLine{{ProductID: 1, Quantity: 1}}))
	assert.Equal(t, 5, catalog.products[1].PreorderCount)

	err := svc.Commit(context.Background(), 2, []models.CommitLine{{ProductID: 1, Quantity: 1}})
	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, models.ReasonPreorderCapReached, commitErr.Failures[0].Reason)
	assert.Equal(t, 5, catalog.products[1].PreorderCount)
}

func TestCommitPreorderUnlimited(t *testing.T) {
	catalog := newMemCatalog(
		&models.Product{ID: 1, AllowPreorder: true, PreorderCap: nil},
	)
	svc := NewInventoryService(catalog, nil)

	for i := 0; i < 50; i++ {
		require.NoError(t, svc.Commit(context.Background(), int64(i+1), []models.CommitLine{{ProductID: 1, Quantity: 10}}))
	}
	assert.Equal(t, 500, catalog.products[1].PreorderCount)
}

func TestConcurrentCommitsNeverOversell(t *testing.T) {
	const (
		workers  = 20
		capLimit = 3
	)
	catalog := newMemCatalog(
		&models.Product{ID: 1, AllowPreorder: true, PreorderCap: intptr(capLimit), PreorderCount: 0},
	)
	svc := NewInventoryService(catalog, nil)

	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Commit(context.Background(), int64(i+1), []models.CommitLine{{ProductID: 1, Quantity: 1}})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var commitErr *CommitError
		require.True(t, errors.As(err, &commitErr))
		assert.Equal(t, models.ReasonPreorderCapReached, commitErr.Failures[0].Reason)
	}
	assert.Equal(t, capLimit, succeeded, "exactly the allocation may be won")
	assert.Equal(t, capLimit, catalog.products[1].PreorderCount)
}

func TestReleaseRestoresStock(t *testing.T) {
	catalog := newMemCatalog(&models.Product{ID: 1, StockQuantity: 10})
	svc := NewInventoryService(catalog, nil)

	lines := []models.CommitLine{{ProductID: 1, Quantity: 4}}
	require.NoError(t, svc.Commit(context.Background(), 1, lines))
	require.Equal(t, 6, catalog.products[1].StockQuantity)

	require.NoError(t, svc.Release(context.Background(), 1, lines))
	assert.Equal(t, 10, catalog.products[1].StockQuantity)
}

func TestReleasePreorderFloorsAtZero(t *testing.T) {
	catalog := newMemCatalog(&models.Product{ID: 1, AllowPreorder: true, PreorderCount: 1})
	svc := NewInventoryService(catalog, nil)

	require.NoError(t, svc.Release(context.Background(), 1, []models.CommitLine{{ProductID: 1, Quantity: 3}}))
	assert.Equal(t, 0, catalog.products[1].PreorderCount)
}

func TestAvailabilityFallsBackToStore(t *testing.T) {
	catalog := newMemCatalog(
		&models.Product{ID: 1, StockQuantity: 12},
		&models.Product{ID: 2, AllowPreorder: true, PreorderCap: intptr(10), PreorderCount: 4},
		&models.Product{ID: 3, AllowPreorder: true},
	)
	svc := NewInventoryService(catalog, nil)

	stock, remaining, err := svc.Availability(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 12, stock)
	assert.Equal(t, 0, remaining)

	_, remaining, err = svc.Availability(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 6, remaining)

	_, remaining, err = svc.Availability(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, -1, remaining, "uncapped pre-order reports unlimited")

	_, _, err = svc.Availability(context.Background(), 99)
	assert.Error(t, err)
}
