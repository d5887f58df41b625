package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Device lifecycle states.
//
//	PENDING    — enrollment token issued, waiting for the device
//	ACTIVE     — enrolled and reporting
//	LOCKED     — locked by operator or security trigger
//	REMOVED    — binding severed; terminal, needs a fresh token to reuse
//	UNASSIGNED — self-registered hardware with no customer yet
const (
	StatePending    = "PENDING"
	StateActive     = "ACTIVE"
	StateLocked     = "LOCKED"
	StateRemoved    = "REMOVED"
	StateUnassigned = "UNASSIGNED"
)

// Enrollment types select the provisioning payload shape.
const (
	EnrollmentAndroidNew      = "ANDROID_NEW"
	EnrollmentAndroidExisting = "ANDROID_EXISTING"
	EnrollmentIOS             = "IOS"
)

var ValidEnrollmentTypes = []string{
	EnrollmentAndroidNew, EnrollmentAndroidExisting, EnrollmentIOS,
}

func IsValidEnrollmentType(t string) bool {
	for _, v := range ValidEnrollmentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ValidTransition reports whether the lifecycle state machine allows
// moving from one state to another. REMOVED is terminal: re-entering
// service requires a newly issued enrollment token, which creates a fresh
// PENDING record rather than transitioning the old one.
func ValidTransition(from, to string) bool {
	switch from {
	case StatePending:
		return to == StateActive
	case StateActive:
		return to == StateLocked || to == StateRemoved
	case StateLocked:
		return to == StateActive || to == StateRemoved
	case StateUnassigned:
		return to == StateActive
	default:
		return false
	}
}

type SIMInfo struct {
	Operator    string `json:"operator,omitempty"`
	ICCID       string `json:"iccid,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	IsActive    bool   `json:"is_active"`
}

type StateHistoryEntry struct {
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	ChangedBy string    `json:"changed_by,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// Device is the fleet-wide technical record keyed by a hardware-derived
// identifier, tracked separately from the customer binding.
type Device struct {
	bun.BaseModel `bun:"table:devices,alias:d"`

	ID       int64  `bun:"id,pk,autoincrement" json:"-"`
	DeviceID string `bun:"device_id,notnull,unique" json:"device_id"`

	DealerID *int64 `bun:"dealer_id" json:"dealer_id,omitempty"`

	Platform string `bun:"platform,default:'android'" json:"platform"`
	State    string `bun:"state,default:'PENDING'" json:"state"`

	AssignedCustomerID *string `bun:"assigned_customer_id" json:"assigned_customer_id,omitempty"`

	Brand        string `bun:"brand" json:"brand,omitempty"`
	Model        string `bun:"model" json:"model,omitempty"`
	DeviceName   string `bun:"device_name" json:"device_name,omitempty"`
	OSVersion    string `bun:"os_version" json:"os_version,omitempty"`
	SDKLevel     string `bun:"sdk_level" json:"sdk_level,omitempty"`
	SerialNumber string `bun:"serial_number" json:"serial_number,omitempty"`
	TotalMemory  string `bun:"total_memory" json:"total_memory,omitempty"`

	IMEI1     string `bun:"imei1" json:"imei1,omitempty"`
	IMEI2     string `bun:"imei2" json:"imei2,omitempty"`
	AndroidID string `bun:"android_id" json:"android_id,omitempty"`

	SIM1      *SIMInfo `bun:"sim1,type:jsonb" json:"sim1,omitempty"`
	SIM2      *SIMInfo `bun:"sim2,type:jsonb" json:"sim2,omitempty"`
	IsDualSim bool     `bun:"is_dual_sim,default:false" json:"is_dual_sim"`

	NetworkType     string `bun:"network_type" json:"network_type,omitempty"`
	NetworkOperator string `bun:"network_operator" json:"network_operator,omitempty"`
	IsConnected     bool   `bun:"is_connected,default:false" json:"is_connected"`

	BatteryLevel *int `bun:"battery_level" json:"battery_level,omitempty"`
	IsCharging   bool `bun:"is_charging,default:false" json:"is_charging"`

	TotalStorage     string `bun:"total_storage" json:"total_storage,omitempty"`
	AvailableStorage string `bun:"available_storage" json:"available_storage,omitempty"`

	LastSeenAt   *time.Time `bun:"last_seen_at" json:"last_seen_at,omitempty"`
	LastLocation *Location  `bun:"last_location,type:jsonb" json:"last_location,omitempty"`

	EnrollmentType           string     `bun:"enrollment_type,default:'ANDROID_NEW'" json:"enrollment_type"`
	EnrollmentToken          *string    `bun:"enrollment_token" json:"-"`
	EnrollmentTokenExpiresAt *time.Time `bun:"enrollment_token_expires_at" json:"-"`

	StateHistory []StateHistoryEntry `bun:"state_history,type:jsonb,default:'[]'" json:"state_history"`

	RemovedAt     *time.Time `bun:"removed_at" json:"removed_at,omitempty"`
	RemovalReason *string    `bun:"removal_reason" json:"removal_reason,omitempty"`

	CreatedAt time.Time `bun:"created_at,nullzero,default:now()" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,default:now()" json:"updated_at"`

	// Joined fields
	Customer *Customer `bun:"-" json:"customer,omitempty"`
}

// BeforeInsert hook
var _ bun.BeforeInsertHook = (*Device)(nil)

func (d *Device) BeforeInsert(ctx context.Context, query *bun.InsertQuery) error {
	d.CreatedAt = time.Now()
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate hook
var _ bun.BeforeUpdateHook = (*Device)(nil)

func (d *Device) BeforeUpdate(ctx context.Context, query *bun.UpdateQuery) error {
	d.UpdatedAt = time.Now()
	return nil
}
