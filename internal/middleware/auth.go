package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/internal/models"
	"github.com/securefinance/emilock/internal/services"
)

const (
	// ContextKeyAdminID is the key for the operator account ID in context
	ContextKeyAdminID = "admin_id"
	// ContextKeyAdminEmail is the key for the operator email in context
	ContextKeyAdminEmail = "admin_email"
	// ContextKeyAdminRole is the key for the operator role in context
	ContextKeyAdminRole = "admin_role"
)

// AuthMiddleware creates a middleware that validates JWT tokens
func AuthMiddleware(jwtService *services.JWTService) fiber.Handler {
	return func(c fiber.Ctx) error {
		// Try to get token from Authorization header first
		authHeader := c.Get("Authorization")
		var token string

		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}

		// If no token in header, try to get from cookie
		if token == "" {
			token = c.Cookies("token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Unauthorized",
				"message": "Authentication required",
			})
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Unauthorized",
				"message": "Invalid or expired token",
			})
		}

		c.Locals(ContextKeyAdminID, claims.AdminID)
		c.Locals(ContextKeyAdminEmail, claims.Email)
		c.Locals(ContextKeyAdminRole, claims.Role)

		return c.Next()
	}
}

// RequireSuperAdmin restricts a route to SUPER_ADMIN accounts. Must run
// after AuthMiddleware.
func RequireSuperAdmin() fiber.Handler {
	return func(c fiber.Ctx) error {
		if GetAdminRole(c) != models.RoleSuperAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "Forbidden",
				"message": "Super admin access required",
			})
		}
		return c.Next()
	}
}

// GetAdminID gets the operator account ID from context
func GetAdminID(c fiber.Ctx) int64 {
	if id, ok := c.Locals(ContextKeyAdminID).(int64); ok {
		return id
	}
	return 0
}

// GetAdminEmail gets the operator email from context
func GetAdminEmail(c fiber.Ctx) string {
	if email, ok := c.Locals(ContextKeyAdminEmail).(string); ok {
		return email
	}
	return ""
}

// GetAdminRole gets the operator role from context
func GetAdminRole(c fiber.Ctx) string {
	if role, ok := c.Locals(ContextKeyAdminRole).(string); ok {
		return role
	}
	return ""
}
