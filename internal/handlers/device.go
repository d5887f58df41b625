package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/uptrace/bun"

	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/middleware"
	"github.com/securefinance/emilock/internal/models"
	"github.com/securefinance/emilock/internal/services"
)

type DeviceHandler struct {
	registry      *services.RegistryService
	exportService *services.ExportService
	auditService  *services.AuditService
}

func NewDeviceHandler(registry *services.RegistryService, exportService *services.ExportService, auditService *services.AuditService) *DeviceHandler {
	return &DeviceHandler{
		registry:      registry,
		exportService: exportService,
		auditService:  auditService,
	}
}

// RegisterDeviceRequest is the self-registration payload sent by a device
// agent that was installed without an enrollment token.
type RegisterDeviceRequest struct {
	DeviceID   string `json:"device_id"`
	Platform   string `json:"platform"`
	Brand      string `json:"brand"`
	Model      string `json:"model"`
	DeviceName string `json:"device_name"`
	OSVersion  string `json:"os_version"`
	SDKLevel   string `json:"sdk_level"`
	IMEI1      string `json:"imei1"`
	IMEI2      string `json:"imei2"`
	AndroidID  string `json:"android_id"`
	CustomerID string `json:"customer_id"`
}

// List returns the device fleet, optionally filtered by state, with
// assigned customer records joined in.
func (h *DeviceHandler) List(c fiber.Ctx) error {
	ctx := context.Background()

	var devices []models.Device
	query := database.DB.NewSelect().
		Model(&devices).
		Order("created_at DESC")

	if state := c.Query("state"); state != "" {
		query = query.Where("state = ?", state)
	}
	if assigned := c.Query("assigned"); assigned == "true" {
		query = query.Where("assigned_customer_id IS NOT NULL")
	} else if assigned == "false" {
		query = query.Where("assigned_customer_id IS NULL")
	}

	if err := query.Scan(ctx); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to fetch devices",
		})
	}

	// Enrich with customer records in one query
	ids := make([]string, 0, len(devices))
	for i := range devices {
		if devices[i].AssignedCustomerID != nil {
			ids = append(ids, *devices[i].AssignedCustomerID)
		}
	}
	if len(ids) > 0 {
		var customers []models.Customer
		err := database.DB.NewSelect().
			Model(&customers).
			Where("customer_id IN (?)", bun.In(ids)).
			Scan(ctx)
		if err == nil {
			byID := make(map[string]*models.Customer, len(customers))
			for i := range customers {
				byID[customers[i].CustomerID] = &customers[i]
			}
			for i := range devices {
				if devices[i].AssignedCustomerID != nil {
					devices[i].Customer = byID[*devices[i].AssignedCustomerID]
				}
			}
		}
	}

	return c.JSON(fiber.Map{
		"devices": devices,
		"count":   len(devices),
	})
}

// Get returns a single device record
func (h *DeviceHandler) Get(c fiber.Ctx) error {
	ctx := context.Background()

	device, err := h.registry.GetDevice(ctx, c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "Device not found")
	}

	if device.AssignedCustomerID != nil {
		if customer, err := h.registry.GetCustomer(ctx, *device.AssignedCustomerID); err == nil {
			device.Customer = customer
		}
	}

	return c.JSON(fiber.Map{"device": device})
}

// Stats returns fleet counts per lifecycle state
func (h *DeviceHandler) Stats(c fiber.Ctx) error {
	ctx := context.Background()

	stats, err := h.registry.DeviceStats(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to compute stats",
		})
	}

	return c.JSON(fiber.Map{"stats": stats})
}

// Register handles device self-registration: hardware that installs the
// agent before any customer binding exists enters the fleet UNASSIGNED
// (or ACTIVE when a customer id is already known).
func (h *DeviceHandler) Register(c fiber.Ctx) error {
	var req RegisterDeviceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}
	if req.DeviceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "device_id is required",
		})
	}

	ctx := context.Background()

	if existing, err := h.registry.GetDevice(ctx, req.DeviceID); err == nil {
		return c.JSON(fiber.Map{"device": existing, "registered": false})
	}

	state := models.StateUnassigned
	var assignedTo *string
	if req.CustomerID != "" {
		state = models.StateActive
		assignedTo = &req.CustomerID
	}
	if req.Platform == "" {
		req.Platform = "android"
	}

	device := &models.Device{
		DeviceID:           req.DeviceID,
		Platform:           req.Platform,
		State:              state,
		AssignedCustomerID: assignedTo,
		Brand:              req.Brand,
		Model:              req.Model,
		DeviceName:         req.DeviceName,
		OSVersion:          req.OSVersion,
		SDKLevel:           req.SDKLevel,
		IMEI1:              req.IMEI1,
		IMEI2:              req.IMEI2,
		AndroidID:          req.AndroidID,
		StateHistory: []models.StateHistoryEntry{{
			State:     state,
			Reason:    "Self-registered",
			ChangedBy: "device",
			ChangedAt: time.Now(),
		}},
	}

	if _, err := database.DB.NewInsert().Model(device).Exec(ctx); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "Conflict",
			"message": "Device already registered",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"device": device, "registered": true})
}

// Assign binds a device to a customer
func (h *DeviceHandler) Assign(c fiber.Ctx) error {
	var req struct {
		CustomerID string `json:"customer_id"`
	}
	if err := c.Bind().JSON(&req); err != nil || req.CustomerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "customer_id is required",
		})
	}

	ctx := context.Background()

	if _, err := h.registry.GetCustomer(ctx, req.CustomerID); err != nil {
		return notFoundOrInternal(c, err, "Customer not found")
	}

	device, err := h.registry.AssignDevice(ctx, c.Params("id"), req.CustomerID, middleware.GetAdminEmail(c))
	if err != nil {
		if errors.Is(err, services.ErrAlreadyRemoved) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   "Conflict",
				"message": "Device binding was removed; issue a new enrollment token",
			})
		}
		return notFoundOrInternal(c, err, "Device not found")
	}

	return c.JSON(fiber.Map{"device": device})
}

// Remove severs the device binding (terminal state)
func (h *DeviceHandler) Remove(c fiber.Ctx) error {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind().JSON(&req) // Body optional
	if req.Reason == "" {
		req.Reason = "Removed by admin"
	}

	ctx := context.Background()

	device, err := h.registry.GetDevice(ctx, c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "Device not found")
	}

	if err := h.registry.ChangeDeviceState(ctx, device, models.StateRemoved, req.Reason, middleware.GetAdminEmail(c)); err != nil {
		if errors.Is(err, services.ErrAlreadyRemoved) {
			return c.JSON(fiber.Map{
				"device":  device,
				"warning": "Device binding already removed",
			})
		}
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "Conflict",
			"message": err.Error(),
		})
	}

	// The bound customer record must reflect the removal too, or its next
	// heartbeat keeps getting full processing instead of the remove
	// directive.
	if device.AssignedCustomerID != nil {
		if err := h.registry.SeverCustomerBinding(ctx, *device.AssignedCustomerID, req.Reason); err != nil {
			log.Printf("Failed to sever customer binding for %s: %v", *device.AssignedCustomerID, err)
		}
	}

	h.auditService.LogOperatorAction(ctx,
		middleware.GetAdminID(c), middleware.GetAdminEmail(c), middleware.GetAdminRole(c),
		models.AuditRemoveDevice, models.TargetDevice,
		device.DeviceID, device.DeviceName,
		map[string]any{"reason": req.Reason})

	return c.JSON(fiber.Map{"device": device})
}

// Delete hard-deletes a device row (maintenance)
func (h *DeviceHandler) Delete(c fiber.Ctx) error {
	ctx := context.Background()

	res, err := database.DB.NewDelete().
		Model((*models.Device)(nil)).
		Where("device_id = ?", c.Params("id")).
		Exec(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to delete device",
		})
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "Device not found",
		})
	}

	return c.JSON(fiber.Map{"message": "Device deleted"})
}

// Cleanup purges removed and orphaned device rows
func (h *DeviceHandler) Cleanup(c fiber.Ctx) error {
	ctx := context.Background()

	removed, orphans, err := h.registry.CleanupOrphans(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Cleanup failed",
		})
	}

	h.auditService.LogOperatorAction(ctx,
		middleware.GetAdminID(c), middleware.GetAdminEmail(c), middleware.GetAdminRole(c),
		models.AuditCleanupDevices, models.TargetSystem,
		"devices", "",
		map[string]any{"removed_deleted": removed, "orphans_deleted": orphans})

	return c.JSON(fiber.Map{
		"removed_deleted": removed,
		"orphans_deleted": orphans,
	})
}

// Export streams the fleet XLSX report
func (h *DeviceHandler) Export(c fiber.Ctx) error {
	ctx := context.Background()

	var dealerID int64
	if middleware.GetAdminRole(c) != models.RoleSuperAdmin {
		dealerID = middleware.GetAdminID(c)
	}

	report, err := h.exportService.FleetReport(ctx, dealerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to build report",
		})
	}

	filename := fmt.Sprintf("fleet-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(report)
}
