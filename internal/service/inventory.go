package service

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// InventoryStore is the persistence surface of the ledger. Implemented by
// the SQL store; the conditional-update semantics live there.
type InventoryStore interface {
	CommitInventory(ctx context.Context, lines []models.CommitLine) ([]models.LineFailure, error)
	ReleaseInventory(ctx context.Context, lines []models.CommitLine) error
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// AvailabilityCache mirrors committed counters for cheap reads. Cache
// errors never fail a commit.
type AvailabilityCache interface {
	InitAvailability(ctx context.Context, productID int64, stock, preorderRemaining int) error
	ConsumeAvailability(ctx context.Context, productID int64, quantity int, mode string) (bool, error)
	RestoreAvailability(ctx context.Context, productID int64, quantity int, mode string) error
	GetAvailability(ctx context.Context, productID int64) (stock, preorderRemaining int, err error)
}

// CommitError reports an all-or-nothing commit that could not fulfill the
// order, with per-line reasons for support tooling.
type CommitError struct {
	OrderID  int64                `json:"order_id"`
	Failures []models.LineFailure `json:"failures"`
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("inventory commit failed for order %d: %d line(s) unfulfillable", e.OrderID, len(e.Failures))
}

// InventoryService is the inventory ledger: it commits stock/pre-order
// movements on confirmed payment and releases them on refund. Nothing is
// reserved at order creation, so pending or abandoned orders never hold
// stock.
type InventoryService struct {
	store  InventoryStore
	cache  AvailabilityCache
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store InventoryStore, cache AvailabilityCache) *InventoryService {
	return &InventoryService{
		store:  store,
		cache:  cache,
		logger: util.NamedLogger("inventory"),
	}
}

// Commit applies the order's stock/pre-order movements atomically. Any
// unfulfillable line rolls back the whole commit and returns a
// *CommitError carrying every failing line.
func (s *InventoryService) Commit(ctx context.Context, orderID int64, lines []models.CommitLine) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Commit")
	defer span.End()

	start := time.Now()
	defer func() {
		util.InventoryCommitLatency.Observe(time.Since(start).Seconds())
	}()

	failures, err := s.store.CommitInventory(ctx, lines)
	if err != nil {
		return fmt.Errorf("commit inventory for order %d: %w", orderID, err)
	}
	if len(failures) > 0 {
		for _, f := range failures {
			util.InventoryCommitFailures.WithLabelValues(string(f.Reason)).Inc()
		}
		return &CommitError{OrderID: orderID, Failures: failures}
	}

	util.InventoryCommitsTotal.Inc()
	s.syncCacheAfterCommit(ctx, lines)
	return nil
}

// Release reverses a committed order's movements (refund path).
func (s *InventoryService) Release(ctx context.Context, orderID int64, lines []models.CommitLine) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Release")
	defer span.End()

	if err := s.store.ReleaseInventory(ctx, lines); err != nil {
		return fmt.Errorf("release inventory for order %d: %w", orderID, err)
	}

	if s.cache == nil {
		return nil
	}
	modes, err := s.lineModes(ctx, lines)
	if err != nil {
		s.logger.Warn("skipping cache restore", zap.Error(err))
		return nil
	}
	for _, line := range lines {
		if err := s.cache.RestoreAvailability(ctx, line.ProductID, line.Quantity, modes[line.ProductID]); err != nil {
			s.logger.Warn("failed to restore cached availability",
				zap.Int64("product_id", line.ProductID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *InventoryService) syncCacheAfterCommit(ctx context.Context, lines []models.CommitLine) {
	if s.cache == nil {
		return
	}
	modes, err := s.lineModes(ctx, lines)
	if err != nil {
		s.logger.Warn("skipping cache sync", zap.Error(err))
		return
	}
	for _, line := range lines {
		ok, err := s.cache.ConsumeAvailability(ctx, line.ProductID, line.Quantity, modes[line.ProductID])
		if err != nil {
			s.logger.Warn("failed to update cached availability",
				zap.Int64("product_id", line.ProductID),
				zap.Error(err))
			continue
		}
		if !ok {
			// Cache drifted from the ledger; reseed from the database.
			s.reseedProduct(ctx, line.ProductID)
		}
	}
}

func (s *InventoryService) lineModes(ctx context.Context, lines []models.CommitLine) (map[int64]string, error) {
	ids := make([]int64, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve products for cache sync: %w", err)
	}
	modes := make(map[int64]string, len(products))
	for _, p := range products {
		if p.AllowPreorder {
			modes[p.ID] = redisclient.ModePreorder
		} else {
			modes[p.ID] = redisclient.ModeStock
		}
	}
	return modes, nil
}

func (s *InventoryService) reseedProduct(ctx context.Context, productID int64) {
	products, err := s.store.GetProductsByIDs(ctx, []int64{productID})
	if err != nil || len(products) == 0 {
		s.logger.Warn("failed to reseed availability cache", zap.Int64("product_id", productID), zap.Error(err))
		return
	}
	p := products[0]
	if err := s.cache.InitAvailability(ctx, p.ID, p.StockQuantity, preorderRemaining(&p)); err != nil {
		s.logger.Warn("failed to reseed availability cache", zap.Int64("product_id", p.ID), zap.Error(err))
	}
}

// SyncAvailability seeds the Redis availability view from the database at
// startup.
func (s *InventoryService) SyncAvailability(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	s.logger.Info("syncing availability cache")

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	for i := range products {
		p := &products[i]
		if err := s.cache.InitAvailability(ctx, p.ID, p.StockQuantity, preorderRemaining(p)); err != nil {
			s.logger.Error("failed to seed availability",
				zap.Int64("product_id", p.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("availability cache synced", zap.Int("count", len(products)))
	return nil
}

// Availability returns the cached stock and remaining pre-order counters
// for a product, falling back to the database when the cache misses.
func (s *InventoryService) Availability(ctx context.Context, productID int64) (int, int, error) {
	if s.cache != nil {
		stock, remaining, err := s.cache.GetAvailability(ctx, productID)
		if err == nil {
			return stock, remaining, nil
		}
	}

	products, err := s.store.GetProductsByIDs(ctx, []int64{productID})
	if err != nil {
		return 0, 0, err
	}
	if len(products) == 0 {
		return 0, 0, fmt.Errorf("product not found: %d", productID)
	}
	p := products[0]
	return p.StockQuantity, preorderRemaining(&p), nil
}

func preorderRemaining(p *models.Product) int {
	if !p.AllowPreorder {
		return 0
	}
	if p.PreorderCap == nil {
		return -1 // unlimited allocation
	}
	remaining := *p.PreorderCap - p.PreorderCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
