package contract

import (
	"context"
	"errors"

	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/repository/specification"

	"github.com/google/uuid"
)

var (
	ErrEmailTaken   = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository stores accounts. FindOne returns nil, nil when nothing
// matches; the targeted updates report ErrUserNotFound instead.
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	Update(ctx context.Context, user *entity.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.User, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.User, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.UserStatus) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}
