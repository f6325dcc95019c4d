package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// CommitInventory applies the stock/pre-order movements for an order in a
// single transaction. Each movement is a conditional UPDATE, never a
// read-then-write: concurrent commits race on the WHERE clause, not on
// stale reads. Any line failing rolls back the whole commit and the
// returned failures list every line that could not be fulfilled.
func (s *Store) CommitInventory(ctx context.Context, lines []models.CommitLine) ([]models.LineFailure, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin inventory commit: %w", err)
	}
	defer tx.Rollback()

	for _, line := range lines {
		ok, err := commitLineTx(ctx, tx, line)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Rolled back below via defer. Collect every failing line
			// outside the transaction for support visibility.
			_ = tx.Rollback()
			return s.collectFailures(ctx, lines)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit inventory: %w", err)
	}
	return nil, nil
}

func commitLineTx(ctx context.Context, tx *sqlx.Tx, line models.CommitLine) (bool, error) {
	// Pre-order products consume the pre-order allocation, everything
	// else decrements physical stock. Both guards live in the WHERE
	// clause so the check and the update are one atomic statement.
	res, err := tx.ExecContext(ctx, `
		UPDATE products SET
			stock_quantity = CASE WHEN allow_preorder THEN stock_quantity ELSE stock_quantity - $1 END,
			preorder_count = CASE WHEN allow_preorder THEN preorder_count + $1 ELSE preorder_count END,
			updated_at = NOW()
		WHERE id = $2
		  AND ((NOT allow_preorder AND stock_quantity >= $1)
		   OR (allow_preorder AND (preorder_cap IS NULL OR preorder_count + $1 <= preorder_cap)))`,
		line.Quantity, line.ProductID)
	if err != nil {
		return false, fmt.Errorf("commit line for product %d: %w", line.ProductID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// collectFailures re-reads each line's product and reports every line the
// commit could not have fulfilled.
func (s *Store) collectFailures(ctx context.Context, lines []models.CommitLine) ([]models.LineFailure, error) {
	var failures []models.LineFailure
	for _, line := range lines {
		product, err := s.GetProductByID(ctx, line.ProductID)
		if err != nil {
			failures = append(failures, models.LineFailure{ProductID: line.ProductID, Reason: models.ReasonOutOfStock})
			continue
		}
		if product.AllowPreorder {
			if product.PreorderCap != nil && product.PreorderCount+line.Quantity > *product.PreorderCap {
				failures = append(failures, models.LineFailure{ProductID: line.ProductID, Reason: models.ReasonPreorderCapReached})
			}
		} else if product.StockQuantity < line.Quantity {
			failures = append(failures, models.LineFailure{ProductID: line.ProductID, Reason: models.ReasonOutOfStock})
		}
	}
	if len(failures) == 0 {
		// Lost the race to a concurrent commit that has since been
		// refunded or released. Report the first line as out of stock.
		failures = append(failures, models.LineFailure{ProductID: lines[0].ProductID, Reason: models.ReasonOutOfStock})
	}
	return failures, nil
}

// ReleaseInventory reverses a previous commit (refund path). Counters are
// floor-guarded so a double release cannot go negative.
func (s *Store) ReleaseInventory(ctx context.Context, lines []models.CommitLine) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin inventory release: %w", err)
	}
	defer tx.Rollback()

	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			UPDATE products SET
				stock_quantity = CASE WHEN allow_preorder THEN stock_quantity ELSE stock_quantity + $1 END,
				preorder_count = CASE WHEN allow_preorder THEN GREATEST(preorder_count - $1, 0) ELSE preorder_count END,
				updated_at = NOW()
			WHERE id = $2`,
			line.Quantity, line.ProductID)
		if err != nil {
			return fmt.Errorf("release line for product %d: %w", line.ProductID, err)
		}
	}

	return tx.Commit()
}
