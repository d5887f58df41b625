package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/middleware"
	"github.com/securefinance/emilock/internal/models"
	"github.com/securefinance/emilock/internal/services"
)

type HeartbeatHandler struct {
	heartbeatService *services.HeartbeatService
	registry         *services.RegistryService
	securityService  *services.SecurityService
}

func NewHeartbeatHandler(heartbeatService *services.HeartbeatService, registry *services.RegistryService, securityService *services.SecurityService) *HeartbeatHandler {
	return &HeartbeatHandler{
		heartbeatService: heartbeatService,
		registry:         registry,
		securityService:  securityService,
	}
}

// heartbeatBody is the report plus the identity fields carried in the
// body variant of the endpoint.
type heartbeatBody struct {
	CustomerID string `json:"customerId"`
	DeviceID   string `json:"deviceId"`
	services.HeartbeatReport
}

// Heartbeat ingests a device report. Identity comes from the path param
// when present, otherwise from the body (customerId / deviceId).
func (h *HeartbeatHandler) Heartbeat(c fiber.Ctx) error {
	var body heartbeatBody
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}

	customerID := c.Params("id")
	if customerID == "" {
		customerID = body.CustomerID
	}
	if customerID == "" && body.DeviceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "customerId or deviceId is required",
		})
	}

	ctx := context.Background()
	resp, err := h.heartbeatService.Process(ctx, customerID, body.DeviceID, middleware.GetRealIP(c), &body.HeartbeatReport)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			// Unknown identity: agent must re-provision
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   "Not Found",
				"message": "Device not registered",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Heartbeat processing failed",
		})
	}

	return c.JSON(resp)
}

// SecurityEventRequest is a standalone tamper report from the device agent.
type SecurityEventRequest struct {
	Event     string `json:"event"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp int64  `json:"timestamp"`
}

// SecurityEvent ingests a device-initiated security report outside the
// heartbeat cycle. Fire-and-forget for the agent: the event is recorded,
// the auto-lock policy applies, and the agent learns the lock outcome on
// its next heartbeat.
func (h *HeartbeatHandler) SecurityEvent(c fiber.Ctx) error {
	var req SecurityEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}
	if req.Event == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "event is required",
		})
	}

	ctx := context.Background()
	customer, err := h.registry.ResolveCustomer(ctx, c.Params("id"), "")
	if err != nil {
		return notFoundOrInternal(c, err, "Device not registered")
	}

	at := time.Now()
	if req.Timestamp > 0 {
		at = time.UnixMilli(req.Timestamp)
	}
	entry := models.SecurityEventEntry{
		Event:     req.Event,
		Action:    req.Action,
		Details:   req.Details,
		IPAddress: middleware.GetRealIP(c),
		Timestamp: at,
	}
	if err := h.securityService.HandleSecurityEvent(ctx, customer, entry); err != nil {
		log.Printf("Security event handling failed for %s: %v", customer.CustomerID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to record security event",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ok":       true,
		"isLocked": customer.IsLocked || services.ShouldAutoLock(req.Event),
	})
}

// VerifyRequest is the dedicated device verification payload
type VerifyRequest struct {
	ActualIMEI string              `json:"actualIMEI"`
	SIMDetails *services.SIMReport `json:"simDetails"`
}

// Verify handles the device's identity verification call: flexible
// IMEI/Android-ID matching (Android 10+ agents cannot read their IMEI),
// SIM change detection, and offline lock token issuance.
func (h *HeartbeatHandler) Verify(c fiber.Ctx) error {
	var req VerifyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}

	ctx := context.Background()
	customer, err := h.registry.GetCustomer(ctx, c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "Customer not found")
	}

	status := "VERIFIED"
	message := "Device Verified"

	if req.SIMDetails != nil && services.SIMChanged(customer.SIMDetails, req.SIMDetails.ICCID) {
		if err := h.securityService.HandleSimChange(ctx, customer, req.SIMDetails.ICCID, req.SIMDetails.Operator, middleware.GetRealIP(c)); err != nil {
			log.Printf("SIM change handling failed for %s: %v", customer.CustomerID, err)
		}
		status = "SIM_MISMATCH"
		message = "Unauthorized SIM Card Detected"
	}

	if req.ActualIMEI != "" {
		matched := imeiMatches(customer, req.ActualIMEI)
		if err := h.recordReportedHardwareID(ctx, customer, req.ActualIMEI, matched); err != nil {
			log.Printf("Failed to record hardware id for %s: %v", customer.CustomerID, err)
		}
		if !matched && customer.IMEI1 != "" && status == "VERIFIED" {
			status = "MISMATCH"
			message = fmt.Sprintf("Device ID Mismatch! Expected IMEI: %s, Device Reports: %s", customer.IMEI1, req.ActualIMEI)
		}
	}

	if customer.OfflineLockToken == nil {
		tok := generateOfflineToken()
		if _, err := database.DB.NewUpdate().
			Model((*models.Customer)(nil)).
			Set("offline_lock_token = COALESCE(offline_lock_token, ?)", tok).
			Set("updated_at = now()").
			Where("customer_id = ?", customer.CustomerID).
			Exec(ctx); err != nil {
			log.Printf("Failed to issue offline lock token for %s: %v", customer.CustomerID, err)
		} else {
			customer.OfflineLockToken = &tok
		}
	}

	if err := h.registry.TouchLastSeen(ctx, customer.CustomerID, time.Now()); err != nil {
		log.Printf("Failed to touch lastSeen for %s: %v", customer.CustomerID, err)
	}

	return c.JSON(fiber.Map{
		"status":           status,
		"message":          message,
		"isLocked":         customer.IsLocked || status == "SIM_MISMATCH",
		"offlineLockToken": customer.OfflineLockToken,
	})
}

// imeiMatches accepts the reported id against imei1, imei2, or a
// previously observed Android ID.
func imeiMatches(customer *models.Customer, reported string) bool {
	return reported == customer.IMEI1 ||
		(customer.IMEI2 != "" && reported == customer.IMEI2) ||
		(customer.AndroidID() != "" && reported == customer.AndroidID())
}

// recordReportedHardwareID stores the reported id as the device's Android
// ID so later heartbeats can resolve by it, and reflects the verification
// outcome on the status field.
func (h *HeartbeatHandler) recordReportedHardwareID(ctx context.Context, customer *models.Customer, reported string, matched bool) error {
	technical := models.TechnicalInfo{}
	if customer.Technical != nil {
		technical = *customer.Technical
	}
	technical.AndroidID = reported

	b, err := json.Marshal(&technical)
	if err != nil {
		return err
	}

	query := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("technical = ?::jsonb", string(b)).
		Set("updated_at = now()").
		Where("customer_id = ?", customer.CustomerID)

	if matched || customer.IMEI1 == "" {
		query = query.
			Set("status = ?", models.DeviceStatusConnected).
			Set("error_message = NULL")
	} else {
		query = query.
			Set("status = ?", models.DeviceStatusWarning).
			Set("error_message = ?", "Device ID mismatch")
	}

	_, err = query.Exec(ctx)
	return err
}
