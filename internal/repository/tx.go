package repository

import (
	"context"
	"database/sql"
)

// WithTx begins a transaction, runs fn with it, and commits when fn returns
// nil.  Any error or panic from fn rolls the transaction back; panics are
// rethrown.  The transaction is always finished before WithTx returns.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}
