package handlers

import (
	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/config"
)

// Version advertises the latest device app build so agents can prompt
// for updates. Public endpoint, polled occasionally by devices.
func Version(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": config.AppConfig.LatestAppVersion,
		"apk_url": config.AppConfig.ServerURL + "/downloads/securefinance-agent.apk",
	})
}
