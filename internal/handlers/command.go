package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/internal/middleware"
	"github.com/securefinance/emilock/internal/models"
	"github.com/securefinance/emilock/internal/services"
)

type CommandHandler struct {
	mailboxService *services.MailboxService
	auditService   *services.AuditService
}

func NewCommandHandler(mailboxService *services.MailboxService, auditService *services.AuditService) *CommandHandler {
	return &CommandHandler{
		mailboxService: mailboxService,
		auditService:   auditService,
	}
}

// CommandRequest represents the command payload
type CommandRequest struct {
	Command string               `json:"command"`
	Params  models.CommandParams `json:"params"`
}

// Send queues a command for the device. The response carries a delivery
// advisory: "online" means the device should pick it up within its
// heartbeat interval, "offline" means delivery waits for the device to
// come back.
func (h *CommandHandler) Send(c fiber.Ctx) error {
	var req CommandRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}
	if req.Command == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Command is required",
		})
	}

	return h.dispatch(c, c.Params("id"), req.Command, req.Params)
}

// Lock is the dedicated lock shortcut
func (h *CommandHandler) Lock(c fiber.Ctx) error {
	var req struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
		Phone   string `json:"phone"`
	}
	_ = c.Bind().JSON(&req) // Body optional

	return h.dispatch(c, c.Params("id"), models.CommandLock, models.CommandParams{
		Reason:  req.Reason,
		Message: req.Message,
		Phone:   req.Phone,
	})
}

// Unlock is the dedicated unlock shortcut
func (h *CommandHandler) Unlock(c fiber.Ctx) error {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind().JSON(&req) // Body optional

	return h.dispatch(c, c.Params("id"), models.CommandUnlock, models.CommandParams{
		Reason: req.Reason,
	})
}

func (h *CommandHandler) dispatch(c fiber.Ctx, customerID, command string, params models.CommandParams) error {
	ctx := context.Background()

	result, err := h.mailboxService.Set(ctx, customerID, command, params, middleware.GetAdminEmail(c))
	if err != nil {
		var invalid *services.InvalidCommandError
		if errors.As(err, &invalid) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":          "Bad Request",
				"message":        "Unknown command: " + invalid.Command,
				"valid_commands": invalid.ValidCommands,
			})
		}
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   "Not Found",
				"message": "Customer not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to queue command",
		})
	}

	customer := result.Customer
	online := services.IsOnline(customer.LastSeen, time.Now(), services.OfflineThreshold())

	h.auditService.LogOperatorAction(ctx,
		middleware.GetAdminID(c), middleware.GetAdminEmail(c), middleware.GetAdminRole(c),
		auditActionFor(command), models.TargetCustomer,
		customer.CustomerID, customer.Name,
		map[string]any{"command": command, "online": online})

	resp := fiber.Map{
		"ok":        true,
		"command":   command,
		"is_locked": customer.IsLocked,
		"delivery":  deliveryAdvisory(online),
	}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}
	return c.JSON(resp)
}

func deliveryAdvisory(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

func auditActionFor(command string) string {
	switch command {
	case models.CommandLock:
		return models.AuditLockDevice
	case models.CommandUnlock:
		return models.AuditUnlockDevice
	case models.CommandRemove:
		return models.AuditRemoveDevice
	default:
		return models.AuditSendCommand
	}
}
