package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/models"
)

// Security event kinds reported by the device agent.
const (
	EventSafeModeAttempt = "SAFE_MODE_ATTEMPT"
	EventRootDetected    = "ROOT_DETECTED"
	EventTampering       = "TAMPERING"
	EventSimChange       = "SIM_CHANGE"
)

// ShouldAutoLock reports whether an event kind forces an unconditional
// lock. There is no confidence threshold or allowlist: any of these locks.
func ShouldAutoLock(event string) bool {
	switch event {
	case EventSafeModeAttempt, EventRootDetected, EventTampering, EventSimChange:
		return true
	default:
		return false
	}
}

// SIMChanged compares the authorized SIM fingerprint against a newly
// observed ICCID. No authorized fingerprint yet means nothing to mismatch.
func SIMChanged(authorized *models.SIMDetails, reportedICCID string) bool {
	if authorized == nil || authorized.SerialNumber == "" || reportedICCID == "" {
		return false
	}
	return authorized.SerialNumber != reportedICCID
}

// SecurityService applies the automatic lock policy for SIM changes and
// tamper reports. Its failures are durably logged but never surfaced to
// the reporting device.
type SecurityService struct {
	audit *AuditService
}

func NewSecurityService(audit *AuditService) *SecurityService {
	return &SecurityService{audit: audit}
}

// HandleSimChange records an unauthorized SIM swap and force-locks the
// record: history append, is_locked, mailbox lock and warning status all
// land in one statement so a concurrent heartbeat cannot observe a
// half-applied policy.
func (s *SecurityService) HandleSimChange(ctx context.Context, customer *models.Customer, newICCID, newOperator, ipAddress string) error {
	now := time.Now()
	log.Printf("SIM change detected for %s: %s -> %s", customer.CustomerID, authorizedICCID(customer), newICCID)

	simEntry := models.SIMChangeEntry{
		SerialNumber: newICCID,
		Operator:     newOperator,
		DetectedAt:   now,
		IPAddress:    ipAddress,
	}
	lockEntry := models.LockHistoryEntry{
		ID:        uuid.NewString(),
		Action:    "locked",
		Reason:    fmt.Sprintf("SIM change detected: %s", orUnknown(newOperator)),
		Timestamp: now,
	}
	mailbox := models.RemoteCommand{
		Command:  models.CommandLock,
		Params:   models.CommandParams{Reason: "SIM change detected"},
		IssuedAt: now,
	}

	newDetails := models.SIMDetails{
		Operator:     newOperator,
		SerialNumber: newICCID,
		IsAuthorized: false,
		LastUpdated:  &now,
	}
	if customer.SIMDetails != nil {
		newDetails.PhoneNumber = customer.SIMDetails.PhoneNumber
		newDetails.IMSI = customer.SIMDetails.IMSI
	}

	simJSON, err := json.Marshal([]models.SIMChangeEntry{simEntry})
	if err != nil {
		return err
	}
	lockJSON, err := json.Marshal([]models.LockHistoryEntry{lockEntry})
	if err != nil {
		return err
	}
	mailboxJSON, err := json.Marshal(mailbox)
	if err != nil {
		return err
	}
	detailsJSON, err := json.Marshal(newDetails)
	if err != nil {
		return err
	}

	_, err = database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("is_locked = TRUE").
		Set("status = ?", models.DeviceStatusWarning).
		Set("error_message = ?", fmt.Sprintf("Unauthorized SIM change detected at %s", now.Format(time.RFC3339))).
		Set("sim_change_history = sim_change_history || ?::jsonb", string(simJSON)).
		Set("lock_history = lock_history || ?::jsonb", string(lockJSON)).
		Set("remote_command = ?::jsonb", string(mailboxJSON)).
		Set("sim_details = ?::jsonb", string(detailsJSON)).
		Set("updated_at = now()").
		Where("customer_id = ?", customer.CustomerID).
		Exec(ctx)
	if err != nil {
		return err
	}

	s.audit.LogSystemEvent(ctx, models.AuditSimChangeDetected, models.TargetCustomer, customer.CustomerID, customer.Name, map[string]any{
		"previous_iccid": authorizedICCID(customer),
		"new_iccid":      newICCID,
		"new_operator":   newOperator,
	})

	log.Printf("Device %s auto-locked due to SIM change", customer.CustomerID)
	return nil
}

// HandleSecurityEvent records a tamper/security event and, for the
// designated kinds, force-locks the record regardless of its prior lock
// state.
func (s *SecurityService) HandleSecurityEvent(ctx context.Context, customer *models.Customer, event models.SecurityEventEntry) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	log.Printf("Security event for %s: %s", customer.CustomerID, event.Event)

	eventJSON, err := json.Marshal([]models.SecurityEventEntry{event})
	if err != nil {
		return err
	}

	query := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("security_events = security_events || ?::jsonb", string(eventJSON)).
		Set("updated_at = now()").
		Where("customer_id = ?", customer.CustomerID)

	if ShouldAutoLock(event.Event) {
		lockEntry := models.LockHistoryEntry{
			ID:        uuid.NewString(),
			Action:    "locked",
			Reason:    fmt.Sprintf("Security event: %s", event.Event),
			Timestamp: time.Now(),
		}
		lockJSON, err := json.Marshal([]models.LockHistoryEntry{lockEntry})
		if err != nil {
			return err
		}
		mailbox := models.RemoteCommand{
			Command:  models.CommandLock,
			Params:   models.CommandParams{Reason: fmt.Sprintf("Security event: %s", event.Event)},
			IssuedAt: time.Now(),
		}
		mailboxJSON, err := json.Marshal(mailbox)
		if err != nil {
			return err
		}

		query = query.
			Set("is_locked = TRUE").
			Set("status = ?", models.DeviceStatusWarning).
			Set("error_message = ?", fmt.Sprintf("Security event: %s", event.Event)).
			Set("lock_history = lock_history || ?::jsonb", string(lockJSON)).
			Set("remote_command = ?::jsonb", string(mailboxJSON))
	}

	if _, err := query.Exec(ctx); err != nil {
		return err
	}

	if ShouldAutoLock(event.Event) {
		s.audit.LogSystemEvent(ctx, models.AuditSecurityAutoLock, models.TargetCustomer, customer.CustomerID, customer.Name, map[string]any{
			"event":  event.Event,
			"action": event.Action,
		})
		log.Printf("Device %s auto-locked due to security event %s", customer.CustomerID, event.Event)
	}
	return nil
}

func authorizedICCID(customer *models.Customer) string {
	if customer.SIMDetails == nil {
		return ""
	}
	return customer.SIMDetails.SerialNumber
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
