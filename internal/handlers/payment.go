package handlers

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/middleware"
	"github.com/securefinance/emilock/internal/models"
	"github.com/securefinance/emilock/internal/services"
)

type PaymentHandler struct {
	registry       *services.RegistryService
	mailboxService *services.MailboxService
	auditService   *services.AuditService
}

func NewPaymentHandler(registry *services.RegistryService, mailboxService *services.MailboxService, auditService *services.AuditService) *PaymentHandler {
	return &PaymentHandler{
		registry:       registry,
		mailboxService: mailboxService,
		auditService:   auditService,
	}
}

// PayEMIRequest represents the EMI payment payload
type PayEMIRequest struct {
	CustomerID string  `json:"customer_id"`
	Amount     float64 `json:"amount"`
}

// PayEMI marks the next pending installment paid and auto-unlocks a
// device that was locked for overdue payments.
func (h *PaymentHandler) PayEMI(c fiber.Ctx) error {
	var req PayEMIRequest
	if err := c.Bind().JSON(&req); err != nil || req.CustomerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "customer_id is required",
		})
	}

	ctx := context.Background()

	customer, err := h.registry.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return notFoundOrInternal(c, err, "Customer not found")
	}

	if customer.TotalEMIs > 0 && customer.PaidEMIs >= customer.TotalEMIs {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "Conflict",
			"message": "All installments already paid",
		})
	}

	// Guarded increment: never exceeds total_emis even on double submit
	res, err := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("paid_emis = paid_emis + 1").
		Set("updated_at = now()").
		Where("customer_id = ?", req.CustomerID).
		Where("total_emis = 0 OR paid_emis < total_emis").
		Exec(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to record payment",
		})
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "Conflict",
			"message": "All installments already paid",
		})
	}

	unlocked := false
	if customer.IsLocked {
		if _, err := h.mailboxService.Set(ctx, req.CustomerID, models.CommandUnlock, models.CommandParams{
			Reason: "EMI payment received",
		}, middleware.GetAdminEmail(c)); err != nil {
			log.Printf("Auto-unlock after payment failed for %s: %v", req.CustomerID, err)
		} else {
			unlocked = true
		}
	}

	h.auditService.LogOperatorAction(ctx,
		middleware.GetAdminID(c), middleware.GetAdminEmail(c), middleware.GetAdminRole(c),
		models.AuditPaymentReceived, models.TargetCustomer,
		customer.CustomerID, customer.Name,
		map[string]any{"amount": req.Amount, "auto_unlocked": unlocked})

	updated, err := h.registry.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return notFoundOrInternal(c, err, "Customer not found")
	}

	return c.JSON(fiber.Map{
		"ok":            true,
		"paid_emis":     updated.PaidEMIs,
		"total_emis":    updated.TotalEMIs,
		"auto_unlocked": unlocked,
	})
}
