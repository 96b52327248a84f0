package validations

import (
	"context"
	"regexp"

	domainAuth "github.com/AzielCF/az-grouppost/domains/auth"
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var otpCode = regexp.MustCompile(`^[0-9a-zA-Z-]{6,9}$`)

func ValidateLogin(ctx context.Context, request domainAuth.LoginRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Username, validation.Required),
		validation.Field(&request.Password, validation.Required),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateTwoFactor(ctx context.Context, request domainAuth.TwoFactorRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Code, validation.Required, validation.Match(otpCode)),
		validation.Field(&request.Method, validation.In("totp", "emailotp", "otp")),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}
