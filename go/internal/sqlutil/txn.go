package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Beginner is satisfied by *sql.DB and by *sql.Conn.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Run executes fn inside a transaction with default options.
func Run[T any](ctx context.Context, db Beginner, bind func(*sql.Tx) *T, fn func(q *T) error) error {
	return RunWith(ctx, db, nil, bind, fn)
}

// RunWith executes fn against queries bound to a new transaction. The
// transaction commits when fn returns nil and rolls back otherwise; a
// failed rollback is joined to fn's error.
func RunWith[T any](
	ctx context.Context,
	db Beginner,
	opts *sql.TxOptions,
	bind func(*sql.Tx) *T,
	fn func(q *T) error,
) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(bind(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
