package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/securefinance/emilock/config"
	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/models"
)

// EnrollmentTokenTTL bounds how long an issued token stays valid.
const EnrollmentTokenTTL = 24 * time.Hour

const (
	adminPackageName   = "com.securefinance.emilock.admin"
	adminComponentName = "com.securefinance.emilock.admin/com.securefinance.emilock.admin.AdminReceiver"
)

// ProvisioningService issues and consumes the single-use enrollment tokens
// that bind a physical device to a customer record exactly once.
type ProvisioningService struct {
	registry *RegistryService
}

func NewProvisioningService(registry *RegistryService) *ProvisioningService {
	return &ProvisioningService{registry: registry}
}

// Enrollment is the result of issuing a token: the pending device record
// plus the QR payload the operator shows to the device.
type Enrollment struct {
	DeviceID       string         `json:"device_id"`
	Token          string         `json:"enrollment_token"`
	EnrollmentType string         `json:"enrollment_type"`
	ExpiresAt      time.Time      `json:"expires_at"`
	QRPayload      map[string]any `json:"qr_payload"`
	QRString       string         `json:"qr_string"`
}

// IssueToken generates a new single-use enrollment token with a 24h TTL
// and creates the PENDING device record it authorizes. The placeholder
// device id is replaced by the real hardware id on validation.
func (s *ProvisioningService) IssueToken(ctx context.Context, customerID, enrollmentType, platform string) (*Enrollment, error) {
	if !models.IsValidEnrollmentType(enrollmentType) {
		return nil, &InvalidCommandError{Command: enrollmentType, ValidCommands: models.ValidEnrollmentTypes}
	}

	token, err := generateEnrollmentToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(EnrollmentTokenTTL)

	if platform == "" {
		platform = "android"
		if enrollmentType == models.EnrollmentIOS {
			platform = "ios"
		}
	}

	device := &models.Device{
		DeviceID:                 "PENDING_" + token[:8],
		Platform:                 platform,
		State:                    models.StatePending,
		EnrollmentType:           enrollmentType,
		EnrollmentToken:          &token,
		EnrollmentTokenExpiresAt: &expiresAt,
		StateHistory: []models.StateHistoryEntry{{
			State:     models.StatePending,
			Reason:    "QR generated for enrollment",
			ChangedAt: time.Now(),
		}},
	}
	if customerID != "" {
		device.AssignedCustomerID = &customerID
	}

	if _, err := database.DB.NewInsert().Model(device).Exec(ctx); err != nil {
		return nil, err
	}

	serverURL := ""
	if config.AppConfig != nil {
		serverURL = config.AppConfig.ServerURL
	}
	payload := BuildQRPayload(enrollmentType, customerID, serverURL, token)
	qrString, _ := json.Marshal(payload)

	return &Enrollment{
		DeviceID:       device.DeviceID,
		Token:          token,
		EnrollmentType: enrollmentType,
		ExpiresAt:      expiresAt,
		QRPayload:      payload,
		QRString:       string(qrString),
	}, nil
}

// ValidateToken consumes an enrollment token: binds the reported hardware
// id, transitions PENDING -> ACTIVE and clears the token so a duplicate
// submission fails closed instead of re-activating. On any failure no
// state is mutated and the caller must re-issue.
func (s *ProvisioningService) ValidateToken(ctx context.Context, token, reportedHardwareID string) (*models.Device, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	device := new(models.Device)
	err := database.DB.NewSelect().
		Model(device).
		Where("enrollment_token = ?", token).
		Where("state = ?", models.StatePending).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if TokenExpired(device.EnrollmentTokenExpiresAt, time.Now()) {
		return nil, ErrTokenExpired
	}

	entry := models.StateHistoryEntry{
		State:     models.StateActive,
		Reason:    "Token validated and device enrolled",
		ChangedAt: time.Now(),
	}
	histJSON, err := json.Marshal([]models.StateHistoryEntry{entry})
	if err != nil {
		return nil, err
	}

	query := database.DB.NewUpdate().
		Model((*models.Device)(nil)).
		Set("state = ?", models.StateActive).
		Set("enrollment_token = NULL").
		Set("enrollment_token_expires_at = NULL").
		Set("state_history = state_history || ?::jsonb", string(histJSON)).
		Set("updated_at = now()").
		// The token guards the transition: if a concurrent validation
		// already consumed it, this matches zero rows.
		Where("enrollment_token = ?", token).
		Where("state = ?", models.StatePending)

	if reportedHardwareID != "" {
		query = query.Set("device_id = ?", reportedHardwareID)
	}

	res, err := query.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrTokenInvalid
	}

	if reportedHardwareID != "" {
		device.DeviceID = reportedHardwareID
	}
	device.State = models.StateActive
	device.EnrollmentToken = nil
	device.EnrollmentTokenExpiresAt = nil
	device.StateHistory = append(device.StateHistory, entry)
	return device, nil
}

// RecordStage appends a provisioning progress stage to the customer record
// and advances the coarse device status for the milestone stages.
func (s *ProvisioningService) RecordStage(ctx context.Context, customerID, stage, status, message string) error {
	entry := models.ProvisioningStage{
		Stage:     stage,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	b, err := json.Marshal([]models.ProvisioningStage{entry})
	if err != nil {
		return err
	}

	query := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("provisioning_stages = provisioning_stages || ?::jsonb", string(b)).
		Set("updated_at = now()").
		Where("customer_id = ?", customerID)

	switch stage {
	case "DPC_INSTALLED":
		query = query.Set("status = ?", models.DeviceStatusInstalling)
	case "PROVISIONING_COMPLETE":
		query = query.Set("status = ?", models.DeviceStatusConnected)
	}

	res, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// TokenExpired reports whether an enrollment token's TTL has elapsed. A
// token without an expiry never validates.
func TokenExpired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return !now.Before(*expiresAt)
}

// BuildQRPayload builds the enrollment QR content per type. ANDROID_NEW
// carries full Device Owner provisioning extras; the other types use the
// lightweight app-enrollment shape.
func BuildQRPayload(enrollmentType, customerID, serverURL, token string) map[string]any {
	switch enrollmentType {
	case models.EnrollmentAndroidNew:
		return map[string]any{
			"android.app.extra.PROVISIONING_DEVICE_ADMIN_COMPONENT_NAME":            adminComponentName,
			"android.app.extra.PROVISIONING_DEVICE_ADMIN_PACKAGE_NAME":              adminPackageName,
			"android.app.extra.PROVISIONING_DEVICE_ADMIN_PACKAGE_DOWNLOAD_LOCATION": serverURL + "/downloads/securefinance-admin.apk",
			"android.app.extra.PROVISIONING_SKIP_ENCRYPTION":                        true,
			"android.app.extra.PROVISIONING_ADMIN_EXTRAS_BUNDLE": map[string]any{
				"customerId":      customerID,
				"serverUrl":       serverURL,
				"enrollmentToken": token,
			},
		}
	case models.EnrollmentAndroidExisting:
		return map[string]any{
			"type":            models.EnrollmentAndroidExisting,
			"customerId":      customerID,
			"serverUrl":       serverURL,
			"enrollmentToken": token,
			"apkUrl":          serverURL + "/downloads/securefinance-admin.apk",
		}
	case models.EnrollmentIOS:
		return map[string]any{
			"type":            models.EnrollmentIOS,
			"customerId":      customerID,
			"serverUrl":       serverURL,
			"enrollmentToken": token,
			"appStoreUrl":     "https://apps.apple.com/app/securefinance-emilock",
		}
	default:
		return map[string]any{}
	}
}

// generateEnrollmentToken returns a cryptographically random 32-hex-char
// token.
func generateEnrollmentToken() (string, error) {
	b := make([]byte, 16)
	if _, err := cryptorand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
