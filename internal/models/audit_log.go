package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Audit actions
const (
	AuditLockDevice        = "LOCK_DEVICE"
	AuditUnlockDevice      = "UNLOCK_DEVICE"
	AuditRemoveDevice      = "REMOVE_DEVICE"
	AuditCreateCustomer    = "CREATE_CUSTOMER"
	AuditUpdateCustomer    = "UPDATE_CUSTOMER"
	AuditDeleteCustomer    = "DELETE_CUSTOMER"
	AuditSimChangeDetected = "SIM_CHANGE_DETECTED"
	AuditSecurityAutoLock  = "SECURITY_AUTO_LOCK"
	AuditPaymentReceived   = "PAYMENT_RECEIVED"
	AuditLoginSuccess      = "LOGIN_SUCCESS"
	AuditLoginFailed       = "LOGIN_FAILED"
	AuditCreateAdmin       = "CREATE_ADMIN"
	AuditUpdateAdmin       = "UPDATE_ADMIN"
	AuditSendCommand       = "SEND_COMMAND"
	AuditCleanupDevices    = "CLEANUP_DEVICES"
)

// Audit target types
const (
	TargetDevice   = "DEVICE"
	TargetCustomer = "CUSTOMER"
	TargetAdmin    = "ADMIN"
	TargetSystem   = "SYSTEM"
)

type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID int64 `bun:"id,pk,autoincrement" json:"id"`

	// Actor (who performed the action); nil for system-initiated events
	ActorID   *int64 `bun:"actor_id" json:"actor_id,omitempty"`
	ActorName string `bun:"actor_name" json:"actor_name,omitempty"`
	ActorRole string `bun:"actor_role" json:"actor_role,omitempty"`

	Action string `bun:"action,notnull" json:"action"`

	TargetType string `bun:"target_type,notnull" json:"target_type"`
	TargetID   string `bun:"target_id,notnull" json:"target_id"`
	TargetName string `bun:"target_name" json:"target_name,omitempty"`

	Details json.RawMessage `bun:"details,type:jsonb,default:'{}'" json:"details"`

	IPAddress *string `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent *string `bun:"user_agent" json:"user_agent,omitempty"`

	Status       string  `bun:"status,default:'SUCCESS'" json:"status"`
	ErrorMessage *string `bun:"error_message" json:"error_message,omitempty"`

	CreatedAt time.Time `bun:"created_at,nullzero,default:now()" json:"created_at"`
}

// BeforeInsert hook
var _ bun.BeforeInsertHook = (*AuditLog)(nil)

func (a *AuditLog) BeforeInsert(ctx context.Context, query *bun.InsertQuery) error {
	a.CreatedAt = time.Now()
	return nil
}
