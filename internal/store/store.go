package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storefront-orders/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/schema.sql
var schemaSQL string

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicate         = errors.New("duplicate record")
)

const productColumns = "id, name, price, stock, category, active, created_at, updated_at"

// Querier is the set of checkout operations that can run either directly against the
// pool or inside a transaction obtained from InTx.
type Querier interface {
	LockProduct(ctx context.Context, id int64) (*models.Product, error)
	DecrementStock(ctx context.Context, id int64, quantity int) error
	InsertOrder(ctx context.Context, order *models.Order) error
}

type queries struct {
	ext       sqlx.ExtContext
	forUpdate bool
}

type Store struct {
	db *sqlx.DB
	*queries
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

	return &Store{db: db, queries: &queries{ext: db}}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction. Product reads inside fn take row locks
// (SELECT ... FOR UPDATE) that are held until commit or rollback.
func (s *Store) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx, forUpdate: true}); err != nil {
		return err
	}

	return tx.Commit()
}

// InsertOrder writes the order and its lines in one transaction.
func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	return s.InTx(ctx, func(q Querier) error {
		return q.InsertOrder(ctx, order)
	})
}

// LockProduct reads a product, locking its row when running inside InTx
func (q *queries) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	query := "SELECT " + productColumns + " FROM products WHERE id = $1"
	if q.forUpdate {
		query += " FOR UPDATE"
	}

	var product models.Product
	err := sqlx.GetContext(ctx, q.ext, &product, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DecrementStock removes quantity units from stock. The update is conditional on
// enough stock remaining, so stock never goes below zero.
func (q *queries) DecrementStock(ctx context.Context, id int64, quantity int) error {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		quantity, id)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %d: %w", id, ErrInsufficientStock)
	}
	return nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return s.queries.LockProduct(ctx, id)
}

// GetProductSummaries returns the live catalog summary for each requested product.
// Products that no longer exist are absent from the map.
func (s *Store) GetProductSummaries(ctx context.Context, ids []int64) (map[int64]models.ProductSummary, error) {
	out := make(map[int64]models.ProductSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In("SELECT id, name, category FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var rows []models.ProductSummary
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r
	}
	return out, nil
}

// GetCustomerSummary retrieves the display fields of a user
func (s *Store) GetCustomerSummary(ctx context.Context, id int64) (*models.CustomerSummary, error) {
	var c models.CustomerSummary
	err := s.db.GetContext(ctx, &c, "SELECT id, name, email FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
