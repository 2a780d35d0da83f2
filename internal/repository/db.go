// Package repository is the PostgreSQL persistence layer. Repos share
// one pgx pool; write paths that need a transaction propagate it
// through the context so a repo method works the same inside and
// outside a transaction.
package repository

import (
	_ "embed"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensehub/internal/config"
	"licensehub/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the connection pool and owns transaction plumbing.
type DB struct {
	pool *pgxpool.Pool
}

// Connect builds a pgx pool from configuration and verifies it with a
// ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Ping checks database reachability.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// EnsureSchema applies the embedded schema. All statements are
// idempotent (CREATE ... IF NOT EXISTS).
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// q returns the transaction bound to ctx, or the pool.
func (db *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db.pool
}

// WithTx runs fn inside a transaction. The transaction rides the
// context, so repo calls made with the derived context join it.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		// Already inside a transaction; join it.
		return fn(ctx)
	}
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// WithLicenseLock runs fn inside a transaction holding a row lock on
// the license. Seat accounting serializes on this lock so concurrent
// activations of one license never oversubscribe it.
func (db *DB) WithLicenseLock(ctx context.Context, licenseID uuid.UUID, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, func(ctx context.Context) error {
		var id uuid.UUID
		err := db.q(ctx).QueryRow(ctx,
			`SELECT id FROM licenses WHERE id = $1 FOR UPDATE`, licenseID,
		).Scan(&id)
		if err != nil {
			return notFound(err, domain.ErrLicenseNotFound)
		}
		return fn(ctx)
	})
}

// notFound converts pgx.ErrNoRows into the given domain error.
func notFound(err error, sentinel *domain.Error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

// isUniqueViolation reports whether err is a unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
