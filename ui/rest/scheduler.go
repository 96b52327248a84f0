package rest

import (
	domainPost "github.com/AzielCF/az-grouppost/domains/post"
	"github.com/AzielCF/az-grouppost/pkg/postmonitor"
	"github.com/AzielCF/az-grouppost/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Scheduler struct {
	Service  domainPost.IPostUsecase
	Activity *postmonitor.Monitor
}

func InitRestScheduler(app fiber.Router, service domainPost.IPostUsecase, activity *postmonitor.Monitor) Scheduler {
	rest := Scheduler{Service: service, Activity: activity}
	app.Get("/scheduler/stats", rest.GetStats)
	app.Get("/scheduler/activity", rest.GetActivity)

	return rest
}

func (handler *Scheduler) GetStats(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduler stats retrieved",
		Results: handler.Service.Stats(),
	})
}

func (handler *Scheduler) GetActivity(c *fiber.Ctx) error {
	if handler.Activity == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
			Status:  fiber.StatusServiceUnavailable,
			Code:    "SERVICE_UNAVAILABLE",
			Message: "Activity feed is not enabled",
		})
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Recent publish activity",
		Results: handler.Activity.GetStats(),
	})
}
