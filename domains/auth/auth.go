package auth

import "context"

type CurrentUser struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TwoFactorRequest struct {
	Code   string `json:"code"`
	Method string `json:"method,omitempty"` // totp (default), emailotp, otp
}

// LoginResult carries either the user or the second-factor methods still required.
type LoginResult struct {
	User              *CurrentUser `json:"user,omitempty"`
	RequiresTwoFactor bool         `json:"requiresTwoFactor"`
	TwoFactorMethods  []string     `json:"twoFactorMethods,omitempty"`
}

type AuthAPI interface {
	Login(ctx context.Context, username, password string) (LoginResult, error)
	VerifyTwoFactor(ctx context.Context, method, code string) error
	// CurrentUser returns nil without a network call when no session is stored.
	CurrentUser(ctx context.Context) (*CurrentUser, error)
	Logout(ctx context.Context) error
}

type IAuthUsecase interface {
	Login(ctx context.Context, request LoginRequest) (LoginResult, error)
	SubmitTwoFactor(ctx context.Context, request TwoFactorRequest) (CurrentUser, error)
	CurrentUser(ctx context.Context) (*CurrentUser, error)
	Logout(ctx context.Context) error
}
