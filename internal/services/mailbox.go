package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/models"
	"github.com/securefinance/emilock/internal/rabbitmq"
)

// MailboxService owns the single-slot command mailbox on the customer
// record. A new operator command overwrites any undelivered one; the
// domain only ever needs the latest administrative intent, never a queue.
type MailboxService struct {
	registry *RegistryService
}

func NewMailboxService(registry *RegistryService) *MailboxService {
	return &MailboxService{registry: registry}
}

// commandIntent describes the record-level side effects a command carries
// beyond the mailbox write itself.
type commandIntent struct {
	LockChange    *bool  // nil = no change to is_locked
	HistoryAction string // lock_history entry, empty = none
	SetLockInfo   bool   // update lock_message / support_phone from params
	RemoveDevice  bool   // sever the hardware binding
	PushAction    string // best-effort FCM nudge, empty = none
}

func intentFor(command string) commandIntent {
	switch command {
	case models.CommandLock:
		locked := true
		return commandIntent{LockChange: &locked, HistoryAction: "locked", PushAction: rabbitmq.PushActionLock}
	case models.CommandUnlock:
		locked := false
		return commandIntent{LockChange: &locked, HistoryAction: "unlocked", PushAction: rabbitmq.PushActionUnlock}
	case models.CommandRemove:
		return commandIntent{HistoryAction: "device_removed", RemoveDevice: true}
	case models.CommandSetLockInfo:
		return commandIntent{SetLockInfo: true}
	default:
		return commandIntent{}
	}
}

// SetResult reports what happened alongside the mailbox write.
type SetResult struct {
	Customer *models.Customer
	// Warning is set when the command was accepted but cannot be delivered
	// (device binding already removed). Not an error: the write is harmless.
	Warning string
}

// Set queues a command for the device, overwriting any pending entry.
// Side effects of lock/unlock/remove/setLockInfo are applied in the same
// statement as the mailbox write, so state and mailbox never diverge.
func (s *MailboxService) Set(ctx context.Context, customerID, command string, params models.CommandParams, issuedBy string) (*SetResult, error) {
	if !models.IsValidCommand(command) {
		return nil, &InvalidCommandError{Command: command, ValidCommands: models.ValidCommands}
	}

	customer, err := s.registry.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	entry := models.RemoteCommand{
		Command:  command,
		Params:   params,
		IssuedAt: time.Now(),
	}
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	intent := intentFor(command)

	query := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("remote_command = ?::jsonb", string(entryJSON)).
		Set("updated_at = now()").
		Where("customer_id = ?", customerID)

	if intent.LockChange != nil {
		query = query.Set("is_locked = ?", *intent.LockChange)
	}
	if intent.HistoryAction != "" {
		reason := params.Reason
		if reason == "" {
			reason = fmt.Sprintf("Remote %s by admin", intent.HistoryAction)
		}
		histEntry := models.LockHistoryEntry{
			ID:        uuid.NewString(),
			Action:    intent.HistoryAction,
			Reason:    reason,
			Timestamp: time.Now(),
		}
		b, err := json.Marshal([]models.LockHistoryEntry{histEntry})
		if err != nil {
			return nil, err
		}
		query = query.Set("lock_history = lock_history || ?::jsonb", string(b))
	}
	if intent.SetLockInfo {
		if params.Message != "" {
			query = query.Set("lock_message = ?", params.Message)
		}
		if params.Phone != "" {
			query = query.Set("support_phone = ?", params.Phone)
		}
	}
	if intent.RemoveDevice {
		query = query.
			Set("status = ?", models.DeviceStatusRemoved).
			Set("error_message = ?", "Device removed by admin")
	}

	if _, err := query.Exec(ctx); err != nil {
		return nil, err
	}

	result := &SetResult{}

	if intent.RemoveDevice {
		if err := s.severDeviceBinding(ctx, customer, params.Reason, issuedBy); err != nil {
			// Customer side already reflects removal; device sync failure is
			// logged and the command stays delivered.
			log.Printf("Failed to sync device removal for %s: %v", customerID, err)
		}
	} else if customer.Status == models.DeviceStatusRemoved {
		result.Warning = "Device binding already removed. Command queued but will never be delivered."
	}

	if intent.PushAction != "" && customer.FCMToken != nil && *customer.FCMToken != "" {
		// Best-effort latency optimization. The mailbox remains the source
		// of truth; a lost push is repaired by the next heartbeat.
		if err := rabbitmq.PublishPushJob(customerID, intent.PushAction); err != nil {
			log.Printf("Push dispatch for %s skipped: %v", customerID, err)
		}
	}

	updated, err := s.registry.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	result.Customer = updated
	return result, nil
}

// Drain reads and clears the pending mailbox entry. The clear is guarded
// on the exact entry that was read, so of any number of concurrent drains
// exactly one delivers it; a racing overwrite keeps the newer command in
// the slot for the next heartbeat.
func (s *MailboxService) Drain(ctx context.Context, customerID string) (*models.RemoteCommand, error) {
	var raw []byte
	err := database.DB.NewSelect().
		Model((*models.Customer)(nil)).
		Column("remote_command").
		Where("customer_id = ?", customerID).
		Scan(ctx, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil // Empty mailbox
	}

	res, err := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("remote_command = NULL").
		Set("updated_at = ?", time.Now()).
		Where("customer_id = ?", customerID).
		Where("remote_command = ?", string(raw)).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil // Lost the race; someone else delivers
	}

	command := new(models.RemoteCommand)
	if err := json.Unmarshal(raw, command); err != nil {
		return nil, fmt.Errorf("corrupt mailbox entry for %s: %w", customerID, err)
	}
	return command, nil
}

// severDeviceBinding marks the device rows bound to a customer as REMOVED
// while preserving the customer record (soft-delete of the binding only).
func (s *MailboxService) severDeviceBinding(ctx context.Context, customer *models.Customer, reason, issuedBy string) error {
	if reason == "" {
		reason = "Removed by admin"
	}

	var devices []models.Device
	err := database.DB.NewSelect().
		Model(&devices).
		Where("assigned_customer_id = ?", customer.CustomerID).
		Where("state != ?", models.StateRemoved).
		Scan(ctx)
	if err != nil {
		return err
	}

	for i := range devices {
		if err := s.registry.ChangeDeviceState(ctx, &devices[i], models.StateRemoved, reason, issuedBy); err != nil {
			return err
		}
	}
	return nil
}
