package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/models"
)

// RegistryService is the durable record store for customers and devices.
// All mutations go through single-statement updates so concurrent requests
// for the same identity never lose writes.
type RegistryService struct{}

func NewRegistryService() *RegistryService {
	return &RegistryService{}
}

// ResolveCustomer looks up a record by any known identity alias. Lookup
// order is significant: exact customer id first, then imei1, imei2, then a
// previously-observed hardware id (Android ID). First match wins. A device
// may not know its logical id on first contact, so every alias must work.
func (s *RegistryService) ResolveCustomer(ctx context.Context, customerID, hardwareID string) (*models.Customer, error) {
	if customerID != "" {
		customer, err := s.GetCustomer(ctx, customerID)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if hardwareID == "" {
		return nil, ErrNotFound
	}

	for _, column := range []string{"imei1", "imei2"} {
		customer := new(models.Customer)
		err := database.DB.NewSelect().
			Model(customer).
			Where(column+" = ?", hardwareID).
			Limit(1).
			Scan(ctx)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	customer := new(models.Customer)
	err := database.DB.NewSelect().
		Model(customer).
		Where("technical->>'android_id' = ?", hardwareID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}

// GetCustomer retrieves a customer by its external id.
func (s *RegistryService) GetCustomer(ctx context.Context, customerID string) (*models.Customer, error) {
	customer := new(models.Customer)
	err := database.DB.NewSelect().
		Model(customer).
		Where("customer_id = ?", customerID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}

// GetDevice retrieves a device by its hardware-derived id.
func (s *RegistryService) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	device := new(models.Device)
	err := database.DB.NewSelect().
		Model(device).
		Where("device_id = ?", deviceID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return device, nil
}

// TouchLastSeen stamps the liveness timestamp. Only successful heartbeat
// and verification calls may do this.
func (s *RegistryService) TouchLastSeen(ctx context.Context, customerID string, at time.Time) error {
	_, err := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("last_seen = ?", at).
		Set("updated_at = now()").
		Where("customer_id = ?", customerID).
		Exec(ctx)
	return err
}

// AppendLockHistory appends an entry to the customer's lock history using a
// jsonb concatenation so concurrent appends never overwrite each other.
func (s *RegistryService) AppendLockHistory(ctx context.Context, customerID string, entry models.LockHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	b, err := json.Marshal([]models.LockHistoryEntry{entry})
	if err != nil {
		return err
	}
	_, err = database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("lock_history = lock_history || ?::jsonb", string(b)).
		Set("updated_at = now()").
		Where("customer_id = ?", customerID).
		Exec(ctx)
	return err
}

// ChangeDeviceState transitions a device's lifecycle state and appends the
// history entry in the same statement. Illegal transitions are rejected
// before touching the store.
func (s *RegistryService) ChangeDeviceState(ctx context.Context, device *models.Device, to, reason, changedBy string) error {
	if device.State == models.StateRemoved {
		return ErrAlreadyRemoved
	}
	if !models.ValidTransition(device.State, to) {
		return fmt.Errorf("illegal state transition %s -> %s for device %s", device.State, to, device.DeviceID)
	}

	entry := models.StateHistoryEntry{
		State:     to,
		Reason:    reason,
		ChangedBy: changedBy,
		ChangedAt: time.Now(),
	}
	b, err := json.Marshal([]models.StateHistoryEntry{entry})
	if err != nil {
		return err
	}

	query := database.DB.NewUpdate().
		Model((*models.Device)(nil)).
		Set("state = ?", to).
		Set("state_history = state_history || ?::jsonb", string(b)).
		Set("updated_at = now()").
		Where("device_id = ?", device.DeviceID)

	if to == models.StateRemoved {
		query = query.
			Set("removed_at = now()").
			Set("removal_reason = ?", reason)
	}

	if _, err := query.Exec(ctx); err != nil {
		return err
	}
	device.State = to
	device.StateHistory = append(device.StateHistory, entry)
	return nil
}

// SeverCustomerBinding marks a customer's device binding as removed so the
// next heartbeat answers with the self-uninstall directive. The customer
// record itself survives.
func (s *RegistryService) SeverCustomerBinding(ctx context.Context, customerID, reason string) error {
	if reason == "" {
		reason = "Device removed by admin"
	}
	_, err := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("status = ?", models.DeviceStatusRemoved).
		Set("error_message = ?", reason).
		Set("updated_at = ?", time.Now()).
		Where("customer_id = ?", customerID).
		Exec(ctx)
	return err
}

// AssignDevice binds an unassigned or enrolled device to a customer.
func (s *RegistryService) AssignDevice(ctx context.Context, deviceID, customerID, changedBy string) (*models.Device, error) {
	device, err := s.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.State == models.StateRemoved {
		return nil, ErrAlreadyRemoved
	}

	_, err = database.DB.NewUpdate().
		Model((*models.Device)(nil)).
		Set("assigned_customer_id = ?", customerID).
		Set("updated_at = now()").
		Where("device_id = ?", deviceID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	device.AssignedCustomerID = &customerID

	if device.State != models.StateActive {
		if err := s.ChangeDeviceState(ctx, device, models.StateActive, fmt.Sprintf("Assigned to customer %s", customerID), changedBy); err != nil {
			return nil, err
		}
	}
	return device, nil
}

// DeviceStats counts devices per lifecycle state.
func (s *RegistryService) DeviceStats(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		State string `bun:"state"`
		Count int    `bun:"count"`
	}
	err := database.DB.NewSelect().
		Model((*models.Device)(nil)).
		Column("state").
		ColumnExpr("count(*) AS count").
		Group("state").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	stats := map[string]int{
		"total":                0,
		models.StatePending:    0,
		models.StateActive:     0,
		models.StateLocked:     0,
		models.StateRemoved:    0,
		models.StateUnassigned: 0,
	}
	for _, r := range rows {
		stats[r.State] = r.Count
		stats["total"] += r.Count
	}
	return stats, nil
}

// CleanupOrphans purges REMOVED devices and devices whose assigned
// customer no longer exists. Administrative maintenance only.
func (s *RegistryService) CleanupOrphans(ctx context.Context) (removedDeleted, orphansDeleted int, err error) {
	res, err := database.DB.NewDelete().
		Model((*models.Device)(nil)).
		Where("state = ?", models.StateRemoved).
		Exec(ctx)
	if err != nil {
		return 0, 0, err
	}
	if n, err := res.RowsAffected(); err == nil {
		removedDeleted = int(n)
	}

	res, err = database.DB.NewDelete().
		Model((*models.Device)(nil)).
		Where("assigned_customer_id IS NOT NULL").
		Where("assigned_customer_id NOT IN (SELECT customer_id FROM customers WHERE deleted_at IS NULL)").
		Exec(ctx)
	if err != nil {
		return removedDeleted, 0, err
	}
	if n, err := res.RowsAffected(); err == nil {
		orphansDeleted = int(n)
	}
	return removedDeleted, orphansDeleted, nil
}
