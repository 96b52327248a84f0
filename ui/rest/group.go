package rest

import (
	domainGroup "github.com/AzielCF/az-grouppost/domains/group"
	"github.com/AzielCF/az-grouppost/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Group struct {
	Service domainGroup.IGroupUsecase
}

func InitRestGroup(app fiber.Router, service domainGroup.IGroupUsecase) Group {
	rest := Group{Service: service}
	app.Get("/groups/:user_id", rest.GetUserGroups)
	app.Post("/groups/:user_id/refresh", rest.RefreshUserGroups)

	return rest
}

func (handler *Group) GetUserGroups(c *fiber.Ctx) error {
	response, err := handler.Service.GetUserGroups(c.UserContext(), c.Params("user_id"))
	utils.PanicIfNeeded(err)

	message := "Postable groups retrieved"
	if response.NeedsScan {
		message = "No permission scan yet, refresh to scan"
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: response,
	})
}

func (handler *Group) RefreshUserGroups(c *fiber.Ctx) error {
	response, err := handler.Service.RefreshUserGroups(c.UserContext(), c.Params("user_id"))
	utils.PanicIfNeeded(err)

	message := "Groups refreshed"
	if !response.Refreshed {
		message = "Refresh on cooldown"
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: response,
	})
}
