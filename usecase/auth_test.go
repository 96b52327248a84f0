package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domainAuth "github.com/AzielCF/az-grouppost/domains/auth"
	"github.com/AzielCF/az-grouppost/infrastructure/storage"
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	"github.com/AzielCF/az-grouppost/repository"
)

type mockAuthAPI struct {
	mock.Mock
}

func (m *mockAuthAPI) Login(ctx context.Context, username, password string) (domainAuth.LoginResult, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(domainAuth.LoginResult), args.Error(1)
}

func (m *mockAuthAPI) VerifyTwoFactor(ctx context.Context, method, code string) error {
	return m.Called(ctx, method, code).Error(0)
}

func (m *mockAuthAPI) CurrentUser(ctx context.Context) (*domainAuth.CurrentUser, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*domainAuth.CurrentUser)
	return user, args.Error(1)
}

func (m *mockAuthAPI) Logout(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestAuth_LoginValidates(t *testing.T) {
	api := &mockAuthAPI{}
	svc := NewAuthService(api, repository.NewMemoryCacheStore(nil))

	_, err := svc.Login(context.Background(), domainAuth.LoginRequest{Username: "me"})
	var ve pkgError.ValidationError
	assert.True(t, errors.As(err, &ve))
	api.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuth_TwoFactorReturnsUser(t *testing.T) {
	api := &mockAuthAPI{}
	api.On("VerifyTwoFactor", mock.Anything, "", "123456").Return(nil)
	api.On("CurrentUser", mock.Anything).Return(&domainAuth.CurrentUser{ID: "usr_1", DisplayName: "Me"}, nil)
	svc := NewAuthService(api, repository.NewMemoryCacheStore(nil))

	user, err := svc.SubmitTwoFactor(context.Background(), domainAuth.TwoFactorRequest{Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "usr_1", user.ID)
	api.AssertExpectations(t)
}

func TestAuth_TwoFactorWithoutSessionIsUnauthorized(t *testing.T) {
	api := &mockAuthAPI{}
	api.On("VerifyTwoFactor", mock.Anything, "totp", "123456").Return(nil)
	api.On("CurrentUser", mock.Anything).Return(nil, nil)
	svc := NewAuthService(api, repository.NewMemoryCacheStore(nil))

	_, err := svc.SubmitTwoFactor(context.Background(), domainAuth.TwoFactorRequest{Code: "123456", Method: "totp"})
	var ue pkgError.UnauthorizedError
	assert.True(t, errors.As(err, &ue))
}

func TestAuth_LogoutClearsEphemeralCache(t *testing.T) {
	ctx := context.Background()
	api := &mockAuthAPI{}
	api.On("Logout", mock.Anything).Return(nil)
	ephemeral := repository.NewMemoryCacheStore(nil)
	require.NoError(t, ephemeral.Set(ctx, "roles:grp_1", []string{"x"}, time.Minute))

	svc := NewAuthService(api, ephemeral)
	require.NoError(t, svc.Logout(ctx))
	assert.Equal(t, 0, ephemeral.Len(ctx))
	api.AssertExpectations(t)
}

func TestCache_StatsAndClear(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, "posts", []string{"a", "b"}))
	ephemeral := repository.NewMemoryCacheStore(nil)
	require.NoError(t, ephemeral.Set(ctx, "group:grp_1", map[string]string{"id": "grp_1"}, time.Minute))

	svc := NewCacheService(store, ephemeral)
	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Positive(t, stats.TotalSize)
	assert.NotEmpty(t, stats.HumanSize)
	assert.Equal(t, 1, stats.EphemeralEntries)

	require.NoError(t, svc.ClearEphemeral(ctx))
	stats, err = svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.EphemeralEntries)
	assert.Equal(t, 1, stats.Documents)
}
