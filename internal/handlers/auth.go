package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/config"
	"github.com/securefinance/emilock/internal/middleware"
	"github.com/securefinance/emilock/internal/models"
	"github.com/securefinance/emilock/internal/services"
)

type AuthHandler struct {
	authService  *services.AuthService
	jwtService   *services.JWTService
	auditService *services.AuditService
}

func NewAuthHandler(authService *services.AuthService, jwtService *services.JWTService, auditService *services.AuditService) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		jwtService:   jwtService,
		auditService: auditService,
	}
}

// LoginRequest represents the login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateAdminRequest represents the operator-creation payload
type CreateAdminRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DeviceLimit int    `json:"device_limit"`
}

// Login handles operator authentication
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req LoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}

	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Email and password are required",
		})
	}

	ctx := context.Background()

	admin, err := h.authService.GetAdminByEmail(ctx, req.Email)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "Unauthorized",
			"message": "Invalid email or password",
		})
	}

	if !h.authService.CheckPassword(req.Password, admin.PasswordHash) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "Unauthorized",
			"message": "Invalid email or password",
		})
	}

	if !admin.IsActive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "Forbidden",
			"message": "Account is deactivated",
		})
	}

	_ = h.authService.UpdateLastLogin(ctx, admin.ID)

	token, err := h.authService.GenerateToken(admin)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to generate token",
		})
	}

	h.setAuthCookie(c, token)

	return c.JSON(fiber.Map{
		"user":  admin.ToResponse(),
		"token": token,
	})
}

// Logout handles operator logout
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   config.AppConfig.IsProduction(),
		SameSite: "Lax",
	})

	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

// Me returns the current operator's information
func (h *AuthHandler) Me(c fiber.Ctx) error {
	adminID := middleware.GetAdminID(c)
	if adminID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "Unauthorized",
			"message": "Not authenticated",
		})
	}

	ctx := context.Background()
	admin, err := h.authService.GetAdminByID(ctx, adminID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "Account not found",
		})
	}

	return c.JSON(fiber.Map{
		"user": admin.ToResponse(),
	})
}

// CreateAdmin creates a new operator account (super admin only)
func (h *AuthHandler) CreateAdmin(c fiber.Ctx) error {
	var req CreateAdminRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Name, email, and password are required",
		})
	}
	if len(req.Password) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Password must be at least 8 characters",
		})
	}
	if req.Role == "" {
		req.Role = models.RoleAdmin
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleSuperAdmin {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Role must be ADMIN or SUPER_ADMIN",
		})
	}

	ctx := context.Background()

	existing, _ := h.authService.GetAdminByEmail(ctx, req.Email)
	if existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "Conflict",
			"message": "Email already registered",
		})
	}

	admin, err := h.authService.CreateAdmin(ctx, req.Name, req.Email, req.Password, req.Role, req.DeviceLimit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to create account",
		})
	}

	h.auditService.LogOperatorAction(ctx,
		middleware.GetAdminID(c), middleware.GetAdminEmail(c), middleware.GetAdminRole(c),
		models.AuditCreateAdmin, models.TargetAdmin,
		admin.Email, admin.Name, nil)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user": admin.ToResponse(),
	})
}

// SetAdminActive enables or disables an operator account (super admin only)
func (h *AuthHandler) SetAdminActive(c fiber.Ctx) error {
	adminID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid account id",
		})
	}
	if adminID == middleware.GetAdminID(c) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Cannot change your own active state",
		})
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if err := c.Bind().JSON(&req); err != nil || req.Active == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "active is required",
		})
	}

	ctx := context.Background()

	admin, err := h.authService.GetAdminByID(ctx, adminID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "Account not found",
		})
	}

	if err := h.authService.SetActive(ctx, adminID, *req.Active); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to update account",
		})
	}
	admin.IsActive = *req.Active

	h.auditService.LogOperatorAction(ctx,
		middleware.GetAdminID(c), middleware.GetAdminEmail(c), middleware.GetAdminRole(c),
		models.AuditUpdateAdmin, models.TargetAdmin,
		admin.Email, admin.Name,
		map[string]any{"active": *req.Active})

	return c.JSON(fiber.Map{
		"user": admin.ToResponse(),
	})
}

// ListAdmins lists all operator accounts (super admin only)
func (h *AuthHandler) ListAdmins(c fiber.Ctx) error {
	ctx := context.Background()
	admins, err := h.authService.ListAdmins(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to list accounts",
		})
	}

	responses := make([]*models.AdminUserResponse, 0, len(admins))
	for i := range admins {
		responses = append(responses, admins[i].ToResponse())
	}

	return c.JSON(fiber.Map{
		"users": responses,
		"count": len(responses),
	})
}

func (h *AuthHandler) setAuthCookie(c fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.jwtService.GetExpiry()),
		HTTPOnly: true,
		Secure:   config.AppConfig.IsProduction(),
		SameSite: "Lax",
	})
}
