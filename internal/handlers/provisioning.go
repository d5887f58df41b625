package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/config"
	"github.com/securefinance/emilock/internal/models"
	"github.com/securefinance/emilock/internal/services"
)

type ProvisioningHandler struct {
	provisioningService *services.ProvisioningService
	registry            *services.RegistryService
	auditService        *services.AuditService
}

func NewProvisioningHandler(provisioningService *services.ProvisioningService, registry *services.RegistryService, auditService *services.AuditService) *ProvisioningHandler {
	return &ProvisioningHandler{
		provisioningService: provisioningService,
		registry:            registry,
		auditService:        auditService,
	}
}

// IssueTokenRequest represents the enrollment issuance payload
type IssueTokenRequest struct {
	CustomerID     string `json:"customer_id"`
	EnrollmentType string `json:"enrollment_type"`
	Platform       string `json:"platform"`
}

// IssueToken generates an enrollment token + QR payload (operator only)
func (h *ProvisioningHandler) IssueToken(c fiber.Ctx) error {
	var req IssueTokenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}
	if req.EnrollmentType == "" {
		req.EnrollmentType = models.EnrollmentAndroidNew
	}

	ctx := context.Background()

	if req.CustomerID != "" {
		if _, err := h.registry.GetCustomer(ctx, req.CustomerID); err != nil {
			return notFoundOrInternal(c, err, "Customer not found")
		}
	}

	enrollment, err := h.provisioningService.IssueToken(ctx, req.CustomerID, req.EnrollmentType, req.Platform)
	if err != nil {
		var invalid *services.InvalidCommandError
		if errors.As(err, &invalid) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":       "Bad Request",
				"message":     "Unknown enrollment type: " + invalid.Command,
				"valid_types": invalid.ValidCommands,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to issue token",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"enrollment": enrollment})
}

// ValidateRequest is the device-side token redemption payload
type ValidateRequest struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
}

// Validate consumes an enrollment token (device endpoint, unauthenticated)
func (h *ProvisioningHandler) Validate(c fiber.Ctx) error {
	var req ValidateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}

	ctx := context.Background()

	device, err := h.provisioningService.ValidateToken(ctx, req.Token, req.DeviceID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenExpired):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{
				"error":   "Token Expired",
				"message": "Enrollment token has expired; request a new QR code",
			})
		case errors.Is(err, services.ErrTokenInvalid):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Token Invalid",
				"message": "Enrollment token is invalid or already used",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "Internal Server Error",
				"message": "Validation failed",
			})
		}
	}

	resp := fiber.Map{
		"ok":     true,
		"device": device,
	}
	if device.AssignedCustomerID != nil {
		resp["customer_id"] = *device.AssignedCustomerID
	}
	return c.JSON(resp)
}

// Payload returns the Android Enterprise extras bundle for a customer's
// pending enrollment (consumed by the QR rendering on the dealer side).
func (h *ProvisioningHandler) Payload(c fiber.Ctx) error {
	ctx := context.Background()
	customerID := c.Params("id")

	if _, err := h.registry.GetCustomer(ctx, customerID); err != nil {
		return notFoundOrInternal(c, err, "Customer not found")
	}

	payload := services.BuildQRPayload(models.EnrollmentAndroidNew, customerID, config.AppConfig.ServerURL, "")
	return c.JSON(payload)
}

// StageRequest is the provisioning progress report from the device agent
type StageRequest struct {
	Stage   string `json:"stage"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ReportStage records a provisioning progress stage (device endpoint)
func (h *ProvisioningHandler) ReportStage(c fiber.Ctx) error {
	var req StageRequest
	if err := c.Bind().JSON(&req); err != nil || req.Stage == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Stage is required",
		})
	}
	if req.Status == "" {
		req.Status = "success"
	}

	ctx := context.Background()

	if err := h.provisioningService.RecordStage(ctx, c.Params("id"), req.Stage, req.Status, req.Message); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   "Not Found",
				"message": "Customer not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to record stage",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}
