package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/middleware"
	"github.com/securefinance/emilock/internal/models"
	"github.com/securefinance/emilock/internal/services"
)

type CustomerHandler struct {
	registry      *services.RegistryService
	cryptoService *services.CryptoService
	auditService  *services.AuditService
}

func NewCustomerHandler(registry *services.RegistryService, cryptoService *services.CryptoService, auditService *services.AuditService) *CustomerHandler {
	return &CustomerHandler{
		registry:      registry,
		cryptoService: cryptoService,
		auditService:  auditService,
	}
}

// CustomerRequest represents the create/update payload
type CustomerRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	PhoneNo string `json:"phone_no"`
	Address string `json:"address"`
	Aadhar  string `json:"aadhar_no"`

	IMEI1      string `json:"imei1"`
	IMEI2      string `json:"imei2"`
	Brand      string `json:"brand"`
	ModelName  string `json:"model_name"`
	DeviceName string `json:"device_name"`

	FinanceName string  `json:"finance_name"`
	TotalAmount float64 `json:"total_amount"`
	EMIAmount   float64 `json:"emi_amount"`
	EMIDate     int     `json:"emi_date"`
	TotalEMIs   int     `json:"total_emis"`
	PaidEMIs    int     `json:"paid_emis"`
}

// List returns all customers visible to the operator. Admin accounts see
// only their own fleet; super admins see everything.
func (h *CustomerHandler) List(c fiber.Ctx) error {
	ctx := context.Background()

	var customers []models.Customer
	query := database.DB.NewSelect().
		Model(&customers).
		Where("deleted_at IS NULL").
		Order("created_at DESC")

	if middleware.GetAdminRole(c) != models.RoleSuperAdmin {
		query = query.Where("dealer_id = ?", middleware.GetAdminID(c))
	}

	if err := query.Scan(ctx); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to fetch customers",
		})
	}

	now := time.Now()
	items := make([]fiber.Map, 0, len(customers))
	for i := range customers {
		cust := &customers[i]
		items = append(items, fiber.Map{
			"customer": cust,
			"online":   services.IsOnline(cust.LastSeen, now, services.OfflineThreshold()),
		})
	}

	return c.JSON(fiber.Map{
		"customers": items,
		"count":     len(items),
	})
}

// Get returns a customer record for the dashboard
func (h *CustomerHandler) Get(c fiber.Ctx) error {
	ctx := context.Background()

	customer, err := h.registry.GetCustomer(ctx, c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "Customer not found")
	}

	if decrypted, err := h.cryptoService.DecryptPtr(customer.AadharEncrypted); err == nil {
		customer.AadharNo = decrypted
	}

	return c.JSON(fiber.Map{
		"customer": customer,
		"online":   services.IsOnline(customer.LastSeen, time.Now(), services.OfflineThreshold()),
	})
}

// Status is the public, minimal state view polled by devices that only
// need the lock flag (legacy agents without the heartbeat protocol).
func (h *CustomerHandler) Status(c fiber.Ctx) error {
	ctx := context.Background()

	customer, err := h.registry.GetCustomer(ctx, c.Params("id"))
	if err != nil {
		return notFoundOrInternal(c, err, "Customer not found")
	}

	info := customer.LockInfo()
	return c.JSON(fiber.Map{
		"id":           customer.CustomerID,
		"isLocked":     customer.IsLocked,
		"lockMessage":  info.Message,
		"supportPhone": info.Phone,
		"deviceStatus": customer.Status,
	})
}

// Create registers a customer-device binding. A payload whose imei1 is
// already on file updates the existing record instead of conflicting, so
// dealer-side retries are harmless.
func (h *CustomerHandler) Create(c fiber.Ctx) error {
	var req CustomerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}

	if req.Name == "" || req.PhoneNo == "" || req.IMEI1 == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Name, phone number, and IMEI are required",
		})
	}

	ctx := context.Background()
	adminID := middleware.GetAdminID(c)

	existing := new(models.Customer)
	err := database.DB.NewSelect().
		Model(existing).
		Where("imei1 = ?", req.IMEI1).
		Where("deleted_at IS NULL").
		Scan(ctx)
	if err == nil {
		// Upsert path: refresh the existing binding
		updated, err := h.applyCustomerUpdate(ctx, existing.CustomerID, &req)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "Internal Server Error",
				"message": "Failed to update customer",
			})
		}
		return c.JSON(fiber.Map{"customer": updated, "updated": true})
	}

	customerID := req.ID
	if customerID == "" {
		customerID = generateCustomerID()
	}

	customer := &models.Customer{
		CustomerID:  customerID,
		DealerID:    &adminID,
		Name:        req.Name,
		PhoneNo:     req.PhoneNo,
		Address:     req.Address,
		IMEI1:       req.IMEI1,
		IMEI2:       req.IMEI2,
		Brand:       req.Brand,
		ModelName:   req.ModelName,
		DeviceName:  req.DeviceName,
		FinanceName: req.FinanceName,
		TotalAmount: req.TotalAmount,
		EMIAmount:   req.EMIAmount,
		EMIDate:     req.EMIDate,
		TotalEMIs:   req.TotalEMIs,
		PaidEMIs:    req.PaidEMIs,
		Status:      models.DeviceStatusPending,
	}

	if req.Aadhar != "" {
		encrypted, err := h.cryptoService.Encrypt(req.Aadhar)
		if err != nil {
			log.Printf("Aadhaar encryption failed for %s: %v", customerID, err)
		} else {
			customer.AadharEncrypted = &encrypted
		}
	}

	if _, err := database.DB.NewInsert().Model(customer).Exec(ctx); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "Conflict",
			"message": "A device with this IMEI or ID already exists",
		})
	}

	h.auditService.LogOperatorAction(ctx,
		adminID, middleware.GetAdminEmail(c), middleware.GetAdminRole(c),
		models.AuditCreateCustomer, models.TargetCustomer,
		customer.CustomerID, customer.Name, nil)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"customer": customer})
}

// Update patches a customer record
func (h *CustomerHandler) Update(c fiber.Ctx) error {
	var req CustomerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}

	ctx := context.Background()
	customerID := c.Params("id")

	if _, err := h.registry.GetCustomer(ctx, customerID); err != nil {
		return notFoundOrInternal(c, err, "Customer not found")
	}

	updated, err := h.applyCustomerUpdate(ctx, customerID, &req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to update customer",
		})
	}

	h.auditService.LogOperatorAction(ctx,
		middleware.GetAdminID(c), middleware.GetAdminEmail(c), middleware.GetAdminRole(c),
		models.AuditUpdateCustomer, models.TargetCustomer,
		customerID, updated.Name, nil)

	return c.JSON(fiber.Map{"customer": updated})
}

// Delete soft-deletes a customer and severs any device bindings
func (h *CustomerHandler) Delete(c fiber.Ctx) error {
	ctx := context.Background()
	customerID := c.Params("id")

	customer, err := h.registry.GetCustomer(ctx, customerID)
	if err != nil {
		return notFoundOrInternal(c, err, "Customer not found")
	}

	if _, err := database.DB.NewDelete().
		Model((*models.Customer)(nil)).
		Where("customer_id = ?", customerID).
		Exec(ctx); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to delete customer",
		})
	}

	// Cascade: any device still bound to this customer moves to REMOVED
	var devices []models.Device
	if err := database.DB.NewSelect().
		Model(&devices).
		Where("assigned_customer_id = ?", customerID).
		Where("state != ?", models.StateRemoved).
		Scan(ctx); err == nil {
		for i := range devices {
			if err := h.registry.ChangeDeviceState(ctx, &devices[i], models.StateRemoved, "Customer deleted", middleware.GetAdminEmail(c)); err != nil {
				log.Printf("Failed to remove device %s on customer delete: %v", devices[i].DeviceID, err)
			}
		}
	}

	h.auditService.LogOperatorAction(ctx,
		middleware.GetAdminID(c), middleware.GetAdminEmail(c), middleware.GetAdminRole(c),
		models.AuditDeleteCustomer, models.TargetCustomer,
		customerID, customer.Name, nil)

	return c.JSON(fiber.Map{"message": "Customer deleted"})
}

// RegisterFCMToken stores the device's current push token
func (h *CustomerHandler) RegisterFCMToken(c fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind().JSON(&req); err != nil || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Token is required",
		})
	}

	ctx := context.Background()
	customerID := c.Params("id")

	res, err := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("fcm_token = ?", req.Token).
		Set("fcm_token_updated_at = now()").
		Set("updated_at = now()").
		Where("customer_id = ?", customerID).
		Exec(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to register token",
		})
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "Customer not found",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}

// OfflineTokens returns (issuing on first read) the SMS-fallback lock codes
func (h *CustomerHandler) OfflineTokens(c fiber.Ctx) error {
	ctx := context.Background()
	customerID := c.Params("id")

	customer, err := h.registry.GetCustomer(ctx, customerID)
	if err != nil {
		return notFoundOrInternal(c, err, "Customer not found")
	}

	if customer.OfflineLockToken == nil || customer.OfflineUnlockToken == nil {
		lockTok := generateOfflineToken()
		unlockTok := generateOfflineToken()
		_, err := database.DB.NewUpdate().
			Model((*models.Customer)(nil)).
			Set("offline_lock_token = COALESCE(offline_lock_token, ?)", lockTok).
			Set("offline_unlock_token = COALESCE(offline_unlock_token, ?)", unlockTok).
			Set("updated_at = now()").
			Where("customer_id = ?", customerID).
			Exec(ctx)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "Internal Server Error",
				"message": "Failed to issue offline tokens",
			})
		}
		customer, err = h.registry.GetCustomer(ctx, customerID)
		if err != nil {
			return notFoundOrInternal(c, err, "Customer not found")
		}
	}

	return c.JSON(fiber.Map{
		"offline_lock_token":   customer.OfflineLockToken,
		"offline_unlock_token": customer.OfflineUnlockToken,
	})
}

func (h *CustomerHandler) applyCustomerUpdate(ctx context.Context, customerID string, req *CustomerRequest) (*models.Customer, error) {
	query := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("updated_at = now()").
		Where("customer_id = ?", customerID)

	if req.Name != "" {
		query = query.Set("name = ?", req.Name)
	}
	if req.PhoneNo != "" {
		query = query.Set("phone_no = ?", req.PhoneNo)
	}
	if req.Address != "" {
		query = query.Set("address = ?", req.Address)
	}
	if req.IMEI2 != "" {
		query = query.Set("imei2 = ?", req.IMEI2)
	}
	if req.Brand != "" {
		query = query.Set("brand = ?", req.Brand)
	}
	if req.ModelName != "" {
		query = query.Set("model_name = ?", req.ModelName)
	}
	if req.DeviceName != "" {
		query = query.Set("device_name = ?", req.DeviceName)
	}
	if req.FinanceName != "" {
		query = query.Set("finance_name = ?", req.FinanceName)
	}
	if req.TotalAmount != 0 {
		query = query.Set("total_amount = ?", req.TotalAmount)
	}
	if req.EMIAmount != 0 {
		query = query.Set("emi_amount = ?", req.EMIAmount)
	}
	if req.EMIDate != 0 {
		query = query.Set("emi_date = ?", req.EMIDate)
	}
	if req.TotalEMIs != 0 {
		query = query.Set("total_emis = ?", req.TotalEMIs)
	}
	if req.PaidEMIs != 0 {
		query = query.Set("paid_emis = ?", req.PaidEMIs)
	}
	if req.Aadhar != "" {
		if encrypted, err := h.cryptoService.Encrypt(req.Aadhar); err == nil {
			query = query.Set("aadhar_encrypted = ?", encrypted)
		}
	}

	if _, err := query.Exec(ctx); err != nil {
		return nil, err
	}
	return h.registry.GetCustomer(ctx, customerID)
}

func notFoundOrInternal(c fiber.Ctx, err error, msg string) error {
	if errors.Is(err, services.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": msg,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "Internal Server Error",
		"message": "Database error",
	})
}

func generateCustomerID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "EMI-" + time.Now().Format("20060102150405")
	}
	return "EMI-" + hex.EncodeToString(b)
}

// generateOfflineToken returns a 6-digit numeric code for the SMS
// fallback path.
func generateOfflineToken() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "000000"
	}
	n := (uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])) % 1000000
	digits := []byte{'0', '0', '0', '0', '0', '0'}
	for i := 5; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}
