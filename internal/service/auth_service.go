package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"discussion-companion-be/internal/config"
	"discussion-companion-be/internal/dto"
	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/pkg/apperror"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/internal/repository/contract"
	"discussion-companion-be/internal/repository/specification"
	"discussion-companion-be/internal/repository/unitofwork"
	"discussion-companion-be/pkg/events"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
)

const (
	authModule = "Auth"

	minPasswordLength = 6
	maxLoginFailures  = 5
	lockoutWindow     = 15 * time.Minute
)

// AuthListener is told about every sign-in and sign-out. identity is nil on
// sign-out.
type AuthListener func(userID string, identity *entity.Identity)

type IAuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error)
	Logout(ctx context.Context, token string) error
	// SignInWithProvider signs in the account for an email an identity
	// provider has verified, creating it on first use.
	SignInWithProvider(ctx context.Context, email string) (*dto.AuthResponse, error)
	// VerifyToken accepts a signed, unrevoked token whose account is still
	// active, so disabling an account ends every session it holds.
	VerifyToken(ctx context.Context, token string) (*entity.Identity, error)
	// OnAuthStateChanged registers listener and returns its removal.
	OnAuthStateChanged(listener AuthListener) func()
}

type authService struct {
	uowFactory unitofwork.RepositoryFactory
	cfg        config.AuthConfig
	publisher  events.Publisher
	logger     logger.ILogger
	validate   *validator.Validate

	// failures counts consecutive failed logins per email; revoked holds
	// logged-out token ids until they would have expired anyway.
	failures *cache.Cache
	revoked  *cache.Cache

	mu        sync.RWMutex
	listeners map[uint64]AuthListener
	nextID    uint64
}

func NewAuthService(uowFactory unitofwork.RepositoryFactory, cfg config.AuthConfig, publisher events.Publisher, log logger.ILogger) IAuthService {
	return &authService{
		uowFactory: uowFactory,
		cfg:        cfg,
		publisher:  publisher,
		logger:     log,
		validate:   validator.New(),
		failures:   cache.New(lockoutWindow, time.Minute),
		revoked:    cache.New(cfg.JwtTTL, 10*time.Minute),
		listeners:  make(map[uint64]AuthListener),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, apperror.NewCredentialError(apperror.CodeInvalidEmail)
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperror.NewCredentialError(apperror.CodeWeakPassword)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	existing, err := uow.UserRepository().FindOne(ctx, specification.ByEmail{Email: email})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.NewCredentialError(apperror.CodeEmailAlreadyInUse)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &entity.User{
		Id:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		Status:       entity.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uow.UserRepository().Create(ctx, user); err != nil {
		if errors.Is(err, contract.ErrEmailTaken) {
			return nil, apperror.NewCredentialError(apperror.CodeEmailAlreadyInUse)
		}
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info(authModule, "User registered", map[string]interface{}{"user_id": user.Id.String()})
	return s.signIn(ctx, user)
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, apperror.NewCredentialError(apperror.CodeInvalidEmail)
	}
	if count, found := s.failures.Get(email); found && count.(int) >= maxLoginFailures {
		return nil, apperror.NewCredentialError(apperror.CodeTooManyRequests)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	user, err := uow.UserRepository().FindOne(ctx, specification.ByEmail{Email: email})
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.recordFailure(email)
		return nil, apperror.NewCredentialError(apperror.CodeUserNotFound)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordFailure(email)
		s.logger.Warn(authModule, "Wrong password", map[string]interface{}{"user_id": user.Id.String()})
		return nil, apperror.NewCredentialError(apperror.CodeWrongPassword)
	}
	if user.Status != entity.UserStatusActive {
		return nil, apperror.NewCredentialError(apperror.CodeOperationNotAllowed)
	}

	s.failures.Delete(email)
	return s.signIn(ctx, user)
}

func (s *authService) SignInWithProvider(ctx context.Context, email string) (*dto.AuthResponse, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, apperror.NewCredentialError(apperror.CodeInvalidEmail)
	}

	var user *entity.User
	err := s.uowFactory.WithinTx(ctx, func(uow unitofwork.UnitOfWork) error {
		existing, err := uow.UserRepository().FindOne(ctx, specification.ByEmail{Email: email})
		if err != nil {
			return err
		}
		if existing != nil {
			user = existing
			return nil
		}

		// No password: the account signs in through the provider until one is set.
		now := time.Now()
		user = &entity.User{
			Id:        uuid.New(),
			Email:     email,
			Status:    entity.UserStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return uow.UserRepository().Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	if user.Status != entity.UserStatusActive {
		return nil, apperror.NewCredentialError(apperror.CodeOperationNotAllowed)
	}

	s.failures.Delete(email)
	return s.signIn(ctx, user)
}

func (s *authService) recordFailure(email string) {
	if err := s.failures.Add(email, 1, cache.DefaultExpiration); err == nil {
		return
	}
	if _, err := s.failures.IncrementInt(email, 1); err != nil {
		// Expired between Add and Increment.
		s.failures.Set(email, 1, cache.DefaultExpiration)
	}
}

func (s *authService) signIn(ctx context.Context, user *entity.User) (*dto.AuthResponse, error) {
	token, expiresAt, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}

	identity := &entity.Identity{UserId: user.Id.String(), Email: user.Email}
	s.notify(identity.UserId, identity)
	s.publish(ctx, events.AuthSignedIn, identity.UserId)

	return &dto.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      dto.UserResponse{Id: user.Id, Email: user.Email},
	}, nil
}

func (s *authService) issueToken(user *entity.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.JwtTTL)
	claims := jwt.MapClaims{
		"user_id": user.Id.String(),
		"email":   user.Email,
		"jti":     uuid.NewString(),
		"iat":     now.Unix(),
		"exp":     expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *authService) parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, apperror.ErrUnauthenticated
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperror.ErrUnauthenticated
	}
	return claims, nil
}

func (s *authService) VerifyToken(ctx context.Context, tokenStr string) (*entity.Identity, error) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if jti, _ := claims["jti"].(string); jti != "" {
		if _, revoked := s.revoked.Get(jti); revoked {
			return nil, apperror.ErrUnauthenticated
		}
	}
	userID, _ := claims["user_id"].(string)
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, apperror.ErrUnauthenticated
	}

	user, err := s.uowFactory.NewUnitOfWork(ctx).UserRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if user == nil || user.Status != entity.UserStatusActive {
		return nil, apperror.ErrUnauthenticated
	}
	return &entity.Identity{UserId: userID, Email: user.Email}, nil
}

func (s *authService) Logout(ctx context.Context, tokenStr string) error {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return err
	}
	if jti, _ := claims["jti"].(string); jti != "" {
		ttl := s.cfg.JwtTTL
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			ttl = time.Until(exp.Time)
		}
		s.revoked.Set(jti, struct{}{}, ttl)
	}

	userID, _ := claims["user_id"].(string)
	s.notify(userID, nil)
	s.publish(ctx, events.AuthSignedOut, userID)
	return nil
}

func (s *authService) OnAuthStateChanged(listener AuthListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *authService) notify(userID string, identity *entity.Identity) {
	s.mu.RLock()
	listeners := make([]AuthListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(userID, identity)
	}
}

func (s *authService) publish(ctx context.Context, eventType, userID string) {
	if s.publisher == nil {
		return
	}
	ev := events.New(eventType, map[string]interface{}{"user_id": userID})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn(authModule, "Failed to publish event", map[string]interface{}{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}

// IsCredentialError reports whether err carries one of the credential codes.
func IsCredentialError(err error, code apperror.CredentialCode) bool {
	var credErr *apperror.CredentialError
	return errors.As(err, &credErr) && credErr.Code == code
}
