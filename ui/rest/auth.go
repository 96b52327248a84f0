package rest

import (
	domainAuth "github.com/AzielCF/az-grouppost/domains/auth"
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	"github.com/AzielCF/az-grouppost/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Auth struct {
	Service domainAuth.IAuthUsecase
}

func InitRestAuth(app fiber.Router, service domainAuth.IAuthUsecase) Auth {
	rest := Auth{Service: service}
	app.Post("/auth/login", rest.Login)
	app.Post("/auth/2fa", rest.SubmitTwoFactor)
	app.Get("/auth/me", rest.CurrentUser)
	app.Post("/auth/logout", rest.Logout)

	return rest
}

func (handler *Auth) Login(c *fiber.Ctx) error {
	var request domainAuth.LoginRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid request body"))
	}

	result, err := handler.Service.Login(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	message := "Logged in"
	if result.RequiresTwoFactor {
		message = "Second factor required"
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: result,
	})
}

func (handler *Auth) SubmitTwoFactor(c *fiber.Ctx) error {
	var request domainAuth.TwoFactorRequest
	if err := c.BodyParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError("invalid request body"))
	}

	user, err := handler.Service.SubmitTwoFactor(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Second factor verified",
		Results: user,
	})
}

func (handler *Auth) CurrentUser(c *fiber.Ctx) error {
	user, err := handler.Service.CurrentUser(c.UserContext())
	utils.PanicIfNeeded(err)
	if user == nil {
		utils.PanicIfNeeded(pkgError.UnauthorizedError("not logged in"))
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Current user",
		Results: user,
	})
}

func (handler *Auth) Logout(c *fiber.Ctx) error {
	err := handler.Service.Logout(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Logged out",
	})
}
