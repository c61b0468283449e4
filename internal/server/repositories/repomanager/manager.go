// Package repomanager vends repositories bound to a database handle and
// owns the unit-of-work boundary around them.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/starauth/internal/dbx"
	"github.com/dmitrijs2005/starauth/internal/server/repositories/accounts"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Conn is the handle for work outside a transaction.
	Conn() dbx.DBTX

	// InTx runs fn inside one unit of work; fn must use the tx it is given.
	InTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error

	Accounts(db dbx.DBTX) accounts.Repository
}
