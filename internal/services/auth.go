package services

import (
	"context"

	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	jwtService *JWTService
}

func NewAuthService(jwtService *JWTService) *AuthService {
	return &AuthService{jwtService: jwtService}
}

// HashPassword hashes a password using bcrypt
func (a *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a password with a hash
func (a *AuthService) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateAdmin creates a new operator account with hashed password
func (a *AuthService) CreateAdmin(ctx context.Context, name, email, password, role string, deviceLimit int) (*models.AdminUser, error) {
	hash, err := a.HashPassword(password)
	if err != nil {
		return nil, err
	}

	admin := &models.AdminUser{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		DeviceLimit:  deviceLimit,
		IsActive:     true,
	}

	_, err = database.DB.NewInsert().Model(admin).Exec(ctx)
	if err != nil {
		return nil, err
	}

	return admin, nil
}

// GetAdminByEmail retrieves an operator account by email (case-insensitive)
func (a *AuthService) GetAdminByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	admin := new(models.AdminUser)
	err := database.DB.NewSelect().
		Model(admin).
		Where("LOWER(email) = LOWER(?)", email).
		Where("deleted_at IS NULL").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// GetAdminByID retrieves an operator account by ID
func (a *AuthService) GetAdminByID(ctx context.Context, id int64) (*models.AdminUser, error) {
	admin := new(models.AdminUser)
	err := database.DB.NewSelect().
		Model(admin).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return admin, nil
}

// ListAdmins returns all operator accounts
func (a *AuthService) ListAdmins(ctx context.Context) ([]models.AdminUser, error) {
	var admins []models.AdminUser
	err := database.DB.NewSelect().
		Model(&admins).
		Where("deleted_at IS NULL").
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return admins, nil
}

// UpdateLastLogin updates the last_login_at timestamp
func (a *AuthService) UpdateLastLogin(ctx context.Context, adminID int64) error {
	_, err := database.DB.NewUpdate().
		Model((*models.AdminUser)(nil)).
		Set("last_login_at = NOW()").
		Where("id = ?", adminID).
		Exec(ctx)
	return err
}

// SetActive enables or disables an operator account
func (a *AuthService) SetActive(ctx context.Context, adminID int64, active bool) error {
	_, err := database.DB.NewUpdate().
		Model((*models.AdminUser)(nil)).
		Set("is_active = ?", active).
		Where("id = ?", adminID).
		Exec(ctx)
	return err
}

// GenerateToken generates a JWT token for an operator account
func (a *AuthService) GenerateToken(admin *models.AdminUser) (string, error) {
	return a.jwtService.GenerateToken(admin.ID, admin.Email, admin.Role)
}

// ValidateToken validates a JWT token and returns claims
func (a *AuthService) ValidateToken(token string) (*JWTClaims, error) {
	return a.jwtService.ValidateToken(token)
}
