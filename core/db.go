package core

import (
	"context"
	"database/sql"
)

type (
	// DBExecutor runs queries against the database. Both *sqlx.DB and
	// *sqlx.Tx satisfy it, so repositories can run inside or outside a
	// transaction without knowing which.
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	// DB is a database handle that can open transactions.
	DB interface {
		DBExecutor
		BeginTx(ctx context.Context, opts *sql.TxOptions) (DBTransactor, error)
	}

	// DBTransactor is an open transaction.
	DBTransactor interface {
		DBExecutor
		Commit() error
		Rollback() error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
