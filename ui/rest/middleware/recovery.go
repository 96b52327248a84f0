package middleware

import (
	"errors"
	"fmt"

	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	"github.com/AzielCF/az-grouppost/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Recovery turns a panic raised by utils.PanicIfNeeded into the response envelope.
func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			res := utils.ResponseData{
				Status:  fiber.StatusInternalServerError,
				Code:    "INTERNAL_SERVER_ERROR",
				Message: fmt.Sprintf("%v", rec),
			}

			var generic pkgError.GenericError
			if err, ok := rec.(error); ok && errors.As(err, &generic) {
				res.Status = generic.StatusCode()
				res.Code = generic.ErrCode()
				res.Message = err.Error()
			}

			if res.Status >= fiber.StatusInternalServerError {
				logrus.Errorf("[REST] %s %s: %s", ctx.Method(), ctx.Path(), res.Message)
			} else {
				logrus.Debugf("[REST] %s %s: %s", ctx.Method(), ctx.Path(), res.Message)
			}

			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
