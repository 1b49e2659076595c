package unitofwork

import (
	"context"

	"discussion-companion-be/internal/repository/contract"
)

// UnitOfWork scopes account repositories to one optional transaction.
// Without Begin, repositories run directly on the pool.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() contract.UserRepository
}
