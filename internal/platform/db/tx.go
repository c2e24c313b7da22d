package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	// TxKey carries an open transaction so repositories join it instead of
	// using the pool directly.
	TxKey contextKey = "db_tx"
	// ConnKey carries a request-scoped connection acquired by middleware.
	ConnKey contextKey = "db_conn"
)

// WithTx begins a transaction on the pool and returns a derived context that
// carries it. Repositories that resolve their connection through
// TxFromContext will participate in the transaction. The caller owns commit
// and rollback.
func WithTx(ctx context.Context, pool *pgxpool.Pool) (context.Context, pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, TxKey, tx), tx, nil
}

// TxRunner runs a function inside a transaction carried on the context.
// Services depend on this instead of the pool so tests can substitute an
// in-memory implementation.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolTxRunner implements TxRunner on a pgx pool.
type PoolTxRunner struct {
	Pool *pgxpool.Pool
}

func (r *PoolTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, tx, err := WithTx(ctx, r.Pool)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// TxFromContext retrieves an in-flight transaction from the context, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(TxKey).(pgx.Tx)
	return tx
}

// ConnFromContext retrieves a request-scoped connection from the context, or nil.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(ConnKey).(*pgxpool.Conn)
	return conn
}
