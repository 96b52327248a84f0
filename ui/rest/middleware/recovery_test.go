package middleware

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	"github.com/AzielCF/az-grouppost/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecovery(t *testing.T) {
	app := fiber.New()
	app.Use(Recovery())
	app.Get("/validation", func(c *fiber.Ctx) error {
		utils.PanicIfNeeded(pkgError.ValidationError("title: cannot be blank."))
		return nil
	})
	app.Get("/wrapped", func(c *fiber.Ctx) error {
		utils.PanicIfNeeded(fmt.Errorf("delete: %w", pkgError.NotFoundError("post not found")))
		return nil
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		panic("boom")
	})

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/validation", 400, "VALIDATION_ERROR"},
		{"/wrapped", 404, "NOT_FOUND_ERROR"},
		{"/plain", 500, "INTERNAL_SERVER_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.status, resp.StatusCode)
			var body utils.ResponseData
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.code, body.Code)
		})
	}
}
