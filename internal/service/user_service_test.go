package service

import (
	"context"
	"testing"

	"discussion-companion-be/internal/dto"
	"discussion-companion-be/internal/entity"
	"discussion-companion-be/internal/pkg/apperror"
	"discussion-companion-be/internal/pkg/logger"
	"discussion-companion-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserFixture(t *testing.T) (IAuthService, IUserService, *recordingPublisher, entity.Identity) {
	t.Helper()
	auth, _, factory := newAuthService(t)
	pub := &recordingPublisher{}
	users := NewUserService(factory, pub, logger.NewNopLogger())

	reg, err := auth.Register(context.Background(), &dto.RegisterRequest{Email: "reader@example.com", Password: "secret1"})
	require.NoError(t, err)
	return auth, users, pub, entity.Identity{UserId: reg.User.Id.String(), Email: reg.User.Email}
}

func TestGetProfile(t *testing.T) {
	_, users, _, identity := newUserFixture(t)
	ctx := context.Background()

	profile, err := users.GetProfile(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "reader@example.com", profile.Email)
	assert.Equal(t, string(entity.UserStatusActive), profile.Status)

	_, err = users.GetProfile(ctx, entity.Identity{UserId: uuid.NewString()})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = users.GetProfile(ctx, entity.Identity{UserId: "nope"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestChangePassword(t *testing.T) {
	auth, users, _, identity := newUserFixture(t)
	ctx := context.Background()

	err := users.ChangePassword(ctx, identity, &dto.ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "123"})
	assert.True(t, IsCredentialError(err, apperror.CodeWeakPassword))

	err = users.ChangePassword(ctx, identity, &dto.ChangePasswordRequest{CurrentPassword: "wrong-one", NewPassword: "secret2"})
	assert.True(t, IsCredentialError(err, apperror.CodeWrongPassword))

	require.NoError(t, users.ChangePassword(ctx, identity, &dto.ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "secret2"}))

	_, err = auth.Login(ctx, &dto.LoginRequest{Email: identity.Email, Password: "secret1"})
	assert.True(t, IsCredentialError(err, apperror.CodeWrongPassword))
	_, err = auth.Login(ctx, &dto.LoginRequest{Email: identity.Email, Password: "secret2"})
	assert.NoError(t, err)
}

func TestDisableAccount(t *testing.T) {
	auth, users, pub, identity := newUserFixture(t)
	ctx := context.Background()

	laptop, err := auth.Login(ctx, &dto.LoginRequest{Email: identity.Email, Password: "secret1"})
	require.NoError(t, err)
	phone, err := auth.Login(ctx, &dto.LoginRequest{Email: identity.Email, Password: "secret1"})
	require.NoError(t, err)
	_, err = auth.VerifyToken(ctx, phone.Token)
	require.NoError(t, err)

	require.NoError(t, users.DisableAccount(ctx, identity))
	assert.Equal(t, []string{events.UserDisabled}, pub.types())

	for _, token := range []string{laptop.Token, phone.Token} {
		_, err = auth.VerifyToken(ctx, token)
		assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
	}

	profile, err := users.GetProfile(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, string(entity.UserStatusDisabled), profile.Status)

	_, err = auth.Login(ctx, &dto.LoginRequest{Email: identity.Email, Password: "secret1"})
	assert.True(t, IsCredentialError(err, apperror.CodeOperationNotAllowed))
}
