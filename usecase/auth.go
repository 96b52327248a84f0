package usecase

import (
	"context"

	"github.com/sirupsen/logrus"

	domainAuth "github.com/AzielCF/az-grouppost/domains/auth"
	domainCache "github.com/AzielCF/az-grouppost/domains/cache"
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	"github.com/AzielCF/az-grouppost/validations"
)

type serviceAuth struct {
	api       domainAuth.AuthAPI
	ephemeral domainCache.EphemeralStore
}

func NewAuthService(api domainAuth.AuthAPI, ephemeral domainCache.EphemeralStore) domainAuth.IAuthUsecase {
	return &serviceAuth{api: api, ephemeral: ephemeral}
}

func (service *serviceAuth) Login(ctx context.Context, request domainAuth.LoginRequest) (domainAuth.LoginResult, error) {
	if err := validations.ValidateLogin(ctx, request); err != nil {
		return domainAuth.LoginResult{}, err
	}
	return service.api.Login(ctx, request.Username, request.Password)
}

func (service *serviceAuth) SubmitTwoFactor(ctx context.Context, request domainAuth.TwoFactorRequest) (domainAuth.CurrentUser, error) {
	if err := validations.ValidateTwoFactor(ctx, request); err != nil {
		return domainAuth.CurrentUser{}, err
	}
	if err := service.api.VerifyTwoFactor(ctx, request.Method, request.Code); err != nil {
		return domainAuth.CurrentUser{}, err
	}
	user, err := service.api.CurrentUser(ctx)
	if err != nil {
		return domainAuth.CurrentUser{}, err
	}
	if user == nil {
		return domainAuth.CurrentUser{}, pkgError.UnauthorizedError("session was not established after two-factor verification")
	}
	return *user, nil
}

func (service *serviceAuth) CurrentUser(ctx context.Context) (*domainAuth.CurrentUser, error) {
	return service.api.CurrentUser(ctx)
}

// Logout drops the stored session and every ephemeral lookup.
func (service *serviceAuth) Logout(ctx context.Context) error {
	if err := service.api.Logout(ctx); err != nil {
		return err
	}
	if err := service.ephemeral.Clear(ctx); err != nil {
		logrus.WithError(err).Warn("[AUTH] failed to clear ephemeral cache on logout")
	}
	logrus.Info("[AUTH] logged out")
	return nil
}
