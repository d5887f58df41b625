package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Device status values reported on the customer record. These track the
// onboarding/monitoring view; the lifecycle state machine lives on Device.
const (
	DeviceStatusPending    = "pending"
	DeviceStatusInstalling = "installing"
	DeviceStatusConnected  = "connected"
	DeviceStatusOnline     = "online"
	DeviceStatusOffline    = "offline"
	DeviceStatusError      = "error"
	DeviceStatusWarning    = "warning"
	DeviceStatusRemoved    = "removed"
)

const (
	DefaultLockMessage  = "This device has been locked due to payment overdue."
	DefaultSupportPhone = "8876655444"
)

// SIMDetails is the authorized SIM fingerprint for a device. SerialNumber
// is the ICCID used for change detection.
type SIMDetails struct {
	Operator     string     `json:"operator,omitempty"`
	SerialNumber string     `json:"serial_number,omitempty"`
	PhoneNumber  string     `json:"phone_number,omitempty"`
	IMSI         string     `json:"imsi,omitempty"`
	IsAuthorized bool       `json:"is_authorized"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
}

type SIMChangeEntry struct {
	SerialNumber string    `json:"serial_number"`
	Operator     string    `json:"operator,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
}

type LockHistoryEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"` // locked, unlocked, device_removed
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type SecurityEventEntry struct {
	Event     string    `json:"event"` // SAFE_MODE_ATTEMPT, SIM_CHANGE, ROOT_DETECTED, TAMPERING
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action,omitempty"` // Action taken (e.g. LOCKED, ALARMED)
	Details   string    `json:"details,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}

// TechnicalInfo holds descriptors reported by the device agent.
type TechnicalInfo struct {
	Brand            string `json:"brand,omitempty"`
	Model            string `json:"model,omitempty"`
	OSVersion        string `json:"os_version,omitempty"`
	AndroidID        string `json:"android_id,omitempty"`
	Serial           string `json:"serial,omitempty"`
	SDKLevel         int    `json:"sdk_level,omitempty"`
	DeviceName       string `json:"device_name,omitempty"`
	TotalStorage     string `json:"total_storage,omitempty"`
	AvailableStorage string `json:"available_storage,omitempty"`
	TotalMemory      string `json:"total_memory,omitempty"`
}

type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ProvisioningStage struct {
	Stage     string    `json:"stage"`
	Status    string    `json:"status"` // pending, in_progress, success, failed
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Customer is the primary device-customer record: one financed device plus
// the customer it is bound to. The mailbox, history logs and security
// posture all live here so a single row update keeps them consistent.
type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID         int64  `bun:"id,pk,autoincrement" json:"-"`
	CustomerID string `bun:"customer_id,notnull,unique" json:"id"`

	// Ownership (dealer/operator account)
	DealerID *int64     `bun:"dealer_id" json:"dealer_id,omitempty"`
	Dealer   *AdminUser `bun:"rel:belongs-to,join:dealer_id=id" json:"dealer,omitempty"`

	Name    string `bun:"name,notnull" json:"name"`
	PhoneNo string `bun:"phone_no,notnull" json:"phone_no"`
	Address string `bun:"address" json:"address,omitempty"`

	// Aadhaar number is stored encrypted, decrypted on read
	AadharEncrypted *string `bun:"aadhar_encrypted" json:"-"`
	AadharNo        *string `bun:"-" json:"aadhar_no,omitempty"`

	// Hardware identity. IMEI1 is the confirmed identifier; AndroidID (in
	// Technical) covers Android 10+ devices that cannot read their IMEI.
	IMEI1        string `bun:"imei1,notnull,unique" json:"imei1"`
	IMEI2        string `bun:"imei2" json:"imei2,omitempty"`
	ExpectedIMEI string `bun:"expected_imei" json:"expected_imei,omitempty"`

	Brand      string `bun:"brand" json:"brand,omitempty"`
	ModelName  string `bun:"model_name" json:"model_name,omitempty"`
	DeviceName string `bun:"device_name" json:"device_name,omitempty"`

	// Financing (stored for the dashboard; no scheduling math here)
	FinanceName string  `bun:"finance_name" json:"finance_name,omitempty"`
	TotalAmount float64 `bun:"total_amount" json:"total_amount,omitempty"`
	EMIAmount   float64 `bun:"emi_amount" json:"emi_amount,omitempty"`
	EMIDate     int     `bun:"emi_date" json:"emi_date,omitempty"`
	TotalEMIs   int     `bun:"total_emis" json:"total_emis,omitempty"`
	PaidEMIs    int     `bun:"paid_emis" json:"paid_emis,omitempty"`

	// Lock state. Reflects administrative intent; device-side enforcement is
	// asynchronous and reconciled on the next heartbeat.
	IsLocked     bool               `bun:"is_locked,default:false" json:"is_locked"`
	LockMessage  string             `bun:"lock_message" json:"lock_message,omitempty"`
	SupportPhone string             `bun:"support_phone" json:"support_phone,omitempty"`
	WallpaperURL *string            `bun:"wallpaper_url" json:"wallpaper_url,omitempty"`
	LockHistory  []LockHistoryEntry `bun:"lock_history,type:jsonb,default:'[]'" json:"lock_history"`

	// Command mailbox: at most one pending entry, nil means nothing pending
	RemoteCommand *RemoteCommand `bun:"remote_command,type:jsonb" json:"remote_command,omitempty"`

	// Security posture
	SIMDetails       *SIMDetails          `bun:"sim_details,type:jsonb" json:"sim_details,omitempty"`
	SIMChangeHistory []SIMChangeEntry     `bun:"sim_change_history,type:jsonb,default:'[]'" json:"sim_change_history"`
	SecurityEvents   []SecurityEventEntry `bun:"security_events,type:jsonb,default:'[]'" json:"security_events"`

	// Offline lock tokens (SMS fallback path)
	OfflineLockToken   *string `bun:"offline_lock_token" json:"-"`
	OfflineUnlockToken *string `bun:"offline_unlock_token" json:"-"`

	// Device status / liveness
	Status          string     `bun:"status,default:'pending'" json:"status"`
	LastSeen        *time.Time `bun:"last_seen" json:"last_seen,omitempty"`
	InstallProgress int        `bun:"install_progress,default:0" json:"install_progress"`
	ErrorMessage    *string    `bun:"error_message" json:"error_message,omitempty"`
	AppVersion      *string    `bun:"app_version" json:"app_version,omitempty"`
	IsEnrolled      bool       `bun:"is_enrolled,default:false" json:"is_enrolled"`

	// Push channel
	FCMToken          *string    `bun:"fcm_token" json:"-"`
	FCMTokenUpdatedAt *time.Time `bun:"fcm_token_updated_at" json:"-"`

	// Telemetry
	Technical    *TechnicalInfo `bun:"technical,type:jsonb" json:"technical,omitempty"`
	BatteryLevel *int           `bun:"battery_level" json:"battery_level,omitempty"`
	IsCharging   bool           `bun:"is_charging,default:false" json:"is_charging"`
	Location     *Location      `bun:"location,type:jsonb" json:"location,omitempty"`

	// Provisioning progress reported by the device agent
	ProvisioningStages []ProvisioningStage `bun:"provisioning_stages,type:jsonb,default:'[]'" json:"provisioning_stages"`

	CreatedAt time.Time  `bun:"created_at,nullzero,default:now()" json:"created_at"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero,default:now()" json:"updated_at"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete" json:"-"`
}

// LockInfo is the lock-screen content returned on every heartbeat so the
// device stays consistent with server intent even without a fresh command.
type LockInfo struct {
	Message string `json:"message"`
	Phone   string `json:"phone"`
}

func (c *Customer) LockInfo() LockInfo {
	info := LockInfo{
		Message: c.LockMessage,
		Phone:   c.SupportPhone,
	}
	if info.Message == "" {
		info.Message = DefaultLockMessage
	}
	if info.Phone == "" {
		info.Phone = DefaultSupportPhone
	}
	return info
}

// AndroidID returns the previously-observed hardware id, if any.
func (c *Customer) AndroidID() string {
	if c.Technical == nil {
		return ""
	}
	return c.Technical.AndroidID
}

// BeforeInsert hook
var _ bun.BeforeInsertHook = (*Customer)(nil)

func (c *Customer) BeforeInsert(ctx context.Context, query *bun.InsertQuery) error {
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate hook
var _ bun.BeforeUpdateHook = (*Customer)(nil)

func (c *Customer) BeforeUpdate(ctx context.Context, query *bun.UpdateQuery) error {
	c.UpdatedAt = time.Now()
	return nil
}
