package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

// WithTx stores the open SQL transaction so repositories called inside a
// RunInTx callback join it instead of using the pool.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From extracts the SQL transaction from ctx if one is open.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}
