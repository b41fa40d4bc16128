package db

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	// ErrNestedTransaction is returned when a transaction is begun on a
	// context that already carries an open one.
	ErrNestedTransaction = errors.New("db: transaction already open on context")
	// ErrNoTransaction is returned by Commit and Rollback without an open transaction.
	ErrNoTransaction = errors.New("db: no transaction on context")
)

type txKey struct{}

type txState struct {
	tx   Tx
	done atomic.Bool
}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txKey{}, &txState{tx: tx})
}

// TxFromContext returns the open transaction carried by ctx, or nil.
func TxFromContext(ctx context.Context) Tx {
	st, ok := ctx.Value(txKey{}).(*txState)
	if !ok || st.done.Load() {
		return nil
	}
	return st.tx
}

// Begin opens a transaction on conn and returns a context carrying it.
func Begin(ctx context.Context, conn Conn) (context.Context, error) {
	if TxFromContext(ctx) != nil {
		return ctx, ErrNestedTransaction
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return ctx, Classify("begin", err)
	}
	return WithTx(ctx, tx), nil
}

// Commit commits the transaction carried by ctx.
func Commit(ctx context.Context) error {
	st, err := openState(ctx)
	if err != nil {
		return err
	}
	st.done.Store(true)
	return Classify("commit", st.tx.Commit(ctx))
}

// Rollback aborts the transaction carried by ctx.
func Rollback(ctx context.Context) error {
	st, err := openState(ctx)
	if err != nil {
		return err
	}
	st.done.Store(true)
	return Classify("rollback", st.tx.Rollback(ctx))
}

func openState(ctx context.Context) (*txState, error) {
	st, ok := ctx.Value(txKey{}).(*txState)
	if !ok || st.done.Load() {
		return nil, ErrNoTransaction
	}
	return st, nil
}

// Use returns the transaction carried by ctx, falling back to conn.
func Use(ctx context.Context, conn Conn) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return conn
}
