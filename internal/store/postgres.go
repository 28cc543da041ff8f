package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is the sqlx-backed Repository.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to the database
func NewPostgres(databaseURL string) (*Postgres, error) {
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

	return &Postgres{db: db}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Postgres) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Postgres) GetDB() *sqlx.DB {
	return s.db
}

// WithTx runs fn in a read-committed transaction and commits if it returns nil.
func (s *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, nil, fn)
}

// View runs fn in a read-only transaction.
func (s *Postgres) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *Postgres) run(ctx context.Context, opts *sql.TxOptions, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sqlx.Tx
}

var _ Tx = (*pgTx)(nil)

// notFound translates sql.ErrNoRows; other errors pass through.
func notFound(err error, op, entity string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(op, entity, id)
	}
	return err
}

// conflict translates unique violations into apperr.ErrConflict.
func conflict(err error, op, message string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &apperr.Error{Op: op, Kind: apperr.ErrConflict, Message: message, Err: err}
	}
	return err
}

func mustAffect(res sql.Result, op, entity string, id interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(op, entity, id)
	}
	return nil
}

// GetProduct retrieves a product by ID
func (t *pgTx) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := t.tx.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "store.GetProduct", "product", id)
	}
	return &product, nil
}

// LockProduct reads a product with FOR UPDATE so stock mutations on it serialize.
func (t *pgTx) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := t.tx.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "store.LockProduct", "product", id)
	}
	return &product, nil
}

func (t *pgTx) UpdateProductStock(ctx context.Context, id int64, quantityInStock, totalSold int) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE products SET quantity_in_stock = $1, total_sold = $2 WHERE id = $3",
		quantityInStock, totalSold, id)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return mustAffect(res, "store.UpdateProductStock", "product", id)
}

func (t *pgTx) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	var profile models.Profile
	err := t.tx.GetContext(ctx, &profile, "SELECT * FROM profiles WHERE user_id = $1", userID)
	if err != nil {
		return nil, notFound(err, "store.GetProfile", "profile", userID)
	}
	return &profile, nil
}

func (t *pgTx) GetSessionUser(ctx context.Context, token string, now time.Time) (int64, error) {
	var userID int64
	err := t.tx.GetContext(ctx, &userID,
		"SELECT user_id FROM sessions WHERE token = $1 AND expires_at > $2", token, now)
	if err != nil {
		return 0, notFound(err, "store.GetSessionUser", "session", "")
	}
	return userID, nil
}

// MarkEventProcessed marks an event as processed
func (t *pgTx) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
