package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/internal/handlers"
	"github.com/securefinance/emilock/internal/middleware"
	"github.com/securefinance/emilock/internal/services"
)

func SetupRoutes(app *fiber.App, jwtService *services.JWTService, cryptoService *services.CryptoService, authService *services.AuthService) {
	// Initialize services
	registry := services.NewRegistryService()
	auditService := services.NewAuditService()
	securityService := services.NewSecurityService(auditService)
	mailboxService := services.NewMailboxService(registry)
	heartbeatService := services.NewHeartbeatService(registry, mailboxService, securityService)
	provisioningService := services.NewProvisioningService(registry)
	exportService := services.NewExportService()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, jwtService, auditService)
	customerHandler := handlers.NewCustomerHandler(registry, cryptoService, auditService)
	heartbeatHandler := handlers.NewHeartbeatHandler(heartbeatService, registry, securityService)
	commandHandler := handlers.NewCommandHandler(mailboxService, auditService)
	deviceHandler := handlers.NewDeviceHandler(registry, exportService, auditService)
	provisioningHandler := handlers.NewProvisioningHandler(provisioningService, registry, auditService)
	paymentHandler := handlers.NewPaymentHandler(registry, mailboxService, auditService)
	auditHandler := handlers.NewAuditHandler(auditService)

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "EMILock API is running",
		})
	})

	// API group
	api := app.Group("/api")

	api.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "EMILock API is running",
		})
	})

	// ==================
	// Public Auth Routes
	// Rate limited: brute-force protection
	// ==================
	api.Post("/auth/login", authHandler.Login, middleware.RateLimitMiddleware())

	// ==================
	// Public Device Routes (No Auth Required)
	// The device agent authenticates by identity resolution, not JWT.
	// ==================
	device := api.Group("", middleware.DeviceRateLimitMiddleware())

	device.Post("/customers/heartbeat", heartbeatHandler.Heartbeat)
	device.Post("/customers/:id/heartbeat", heartbeatHandler.Heartbeat)
	device.Post("/customers/:id/verify", heartbeatHandler.Verify)
	device.Post("/customers/:id/security-event", heartbeatHandler.SecurityEvent)
	device.Get("/customers/:id/status", customerHandler.Status)
	device.Post("/customers/:id/fcm-token", customerHandler.RegisterFCMToken)

	device.Post("/provisioning/validate", provisioningHandler.Validate)
	device.Post("/provisioning/status/:id", provisioningHandler.ReportStage)

	device.Post("/devices/register", deviceHandler.Register)

	device.Get("/version", handlers.Version)

	// ==================
	// Protected Operator Routes (JWT)
	// ==================
	protected := api.Group("", middleware.AuthMiddleware(jwtService))

	// Auth routes
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/auth/me", authHandler.Me)

	// Operator account management (super admin only)
	admins := protected.Group("/admins", middleware.RequireSuperAdmin())
	admins.Get("", authHandler.ListAdmins)
	admins.Post("", authHandler.CreateAdmin)
	admins.Patch("/:id/active", authHandler.SetAdminActive)

	// Customer routes
	protected.Get("/customers", customerHandler.List)
	protected.Post("/customers", customerHandler.Create)
	protected.Get("/customers/:id", customerHandler.Get)
	protected.Patch("/customers/:id", customerHandler.Update)
	protected.Delete("/customers/:id", customerHandler.Delete)
	protected.Get("/customers/:id/offline-tokens", customerHandler.OfflineTokens)

	// Command routes
	protected.Post("/customers/:id/command", commandHandler.Send)
	protected.Post("/customers/:id/lock", commandHandler.Lock)
	protected.Post("/customers/:id/unlock", commandHandler.Unlock)

	// Device fleet routes
	protected.Get("/devices", deviceHandler.List)
	protected.Get("/devices/stats", deviceHandler.Stats)
	protected.Get("/devices/export", deviceHandler.Export)
	protected.Get("/devices/:id", deviceHandler.Get)
	protected.Post("/devices/:id/assign", deviceHandler.Assign)
	protected.Post("/devices/:id/remove", deviceHandler.Remove)
	protected.Delete("/devices/:id", deviceHandler.Delete)
	protected.Post("/devices/cleanup", deviceHandler.Cleanup)

	// Provisioning routes
	protected.Post("/provisioning/token", provisioningHandler.IssueToken)
	protected.Get("/provisioning/payload/:id", provisioningHandler.Payload)

	// Payment routes
	protected.Post("/payments/pay-emi", paymentHandler.PayEMI)

	// Audit trail
	protected.Get("/audit", auditHandler.List)
}
