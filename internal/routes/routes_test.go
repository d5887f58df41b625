package routes

import (
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/internal/services"
)

func TestSetupRoutes_RegistersDeviceAndOperatorEndpoints(t *testing.T) {
	app := fiber.New()
	jwtService := services.NewJWTService("test-secret", 1)
	cryptoService := services.NewCryptoService("test-secret")
	authService := services.NewAuthService(jwtService)

	SetupRoutes(app, jwtService, cryptoService, authService)

	registered := make(map[string]bool)
	for _, route := range app.GetRoutes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"POST /api/customers/heartbeat",
		"POST /api/customers/:id/heartbeat",
		"POST /api/customers/:id/verify",
		"POST /api/customers/:id/security-event",
		"GET /api/customers/:id/status",
		"POST /api/customers/:id/fcm-token",
		"POST /api/provisioning/validate",
		"POST /api/devices/register",
		"GET /api/version",
		"PATCH /api/admins/:id/active",
		"POST /api/customers/:id/command",
		"POST /api/payments/pay-emi",
	} {
		if !registered[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}
