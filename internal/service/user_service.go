package service

import (
	"context"
	"fmt"

	"discussion-companion-be/internal/dto"
	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/pkg/apperror"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/internal/repository/specification"
	"discussion-companion-be/internal/repository/unitofwork"
	"discussion-companion-be/pkg/events"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const userModule = "UserService"

type IUserService interface {
	GetProfile(ctx context.Context, identity entity.Identity) (*dto.UserProfileResponse, error)
	ChangePassword(ctx context.Context, identity entity.Identity, req *dto.ChangePasswordRequest) error
	// DisableAccount blocks future sign-ins; stored discussions are kept.
	DisableAccount(ctx context.Context, identity entity.Identity) error
}

type userService struct {
	uowFactory unitofwork.RepositoryFactory
	publisher  events.Publisher
	logger     logger.ILogger
}

func NewUserService(uowFactory unitofwork.RepositoryFactory, publisher events.Publisher, log logger.ILogger) IUserService {
	return &userService{
		uowFactory: uowFactory,
		publisher:  publisher,
		logger:     log,
	}
}

func (s *userService) find(ctx context.Context, uow unitofwork.UnitOfWork, identity entity.Identity) (*entity.User, error) {
	id, err := uuid.Parse(identity.UserId)
	if err != nil {
		return nil, fmt.Errorf("user id %q: %w", identity.UserId, apperror.ErrInvalidInput)
	}
	user, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", id, apperror.ErrNotFound)
	}
	return user, nil
}

func (s *userService) GetProfile(ctx context.Context, identity entity.Identity) (*dto.UserProfileResponse, error) {
	user, err := s.find(ctx, s.uowFactory.NewUnitOfWork(ctx), identity)
	if err != nil {
		return nil, err
	}
	return &dto.UserProfileResponse{
		Id:        user.Id,
		Email:     user.Email,
		Status:    string(user.Status),
		CreatedAt: user.CreatedAt,
	}, nil
}

func (s *userService) ChangePassword(ctx context.Context, identity entity.Identity, req *dto.ChangePasswordRequest) error {
	if len(req.NewPassword) < minPasswordLength {
		return apperror.NewCredentialError(apperror.CodeWeakPassword)
	}

	err := s.uowFactory.WithinTx(ctx, func(uow unitofwork.UnitOfWork) error {
		user, err := s.find(ctx, uow, identity)
		if err != nil {
			return err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			return apperror.NewCredentialError(apperror.CodeWrongPassword)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		return uow.UserRepository().UpdatePassword(ctx, user.Id, string(hash))
	})
	if err != nil {
		return err
	}
	s.logger.Info(userModule, "Password changed", map[string]interface{}{"user_id": identity.UserId})
	return nil
}

func (s *userService) DisableAccount(ctx context.Context, identity entity.Identity) error {
	err := s.uowFactory.WithinTx(ctx, func(uow unitofwork.UnitOfWork) error {
		user, err := s.find(ctx, uow, identity)
		if err != nil {
			return err
		}
		return uow.UserRepository().UpdateStatus(ctx, user.Id, entity.UserStatusDisabled)
	})
	if err != nil {
		return err
	}

	s.logger.Info(userModule, "Account disabled", map[string]interface{}{"user_id": identity.UserId})
	if s.publisher != nil {
		ev := events.New(events.UserDisabled, map[string]interface{}{"user_id": identity.UserId})
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn(userModule, "Failed to publish event", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}
