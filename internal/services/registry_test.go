package services

import (
	"context"
	"testing"

	"github.com/securefinance/emilock/internal/models"
)

func TestSeverCustomerBinding(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistryService()
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		"INSERT INTO customers (customer_id, status) VALUES (?, ?)",
		"EMI-1001", models.DeviceStatusConnected)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := registry.SeverCustomerBinding(ctx, "EMI-1001", "Contract ended"); err != nil {
		t.Fatalf("SeverCustomerBinding: %v", err)
	}

	var status, errMsg string
	err = db.NewSelect().
		Model((*models.Customer)(nil)).
		Column("status", "error_message").
		Where("customer_id = ?", "EMI-1001").
		Scan(ctx, &status, &errMsg)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if status != models.DeviceStatusRemoved {
		t.Errorf("status = %q, want %q", status, models.DeviceStatusRemoved)
	}
	if errMsg != "Contract ended" {
		t.Errorf("error_message = %q, want the removal reason", errMsg)
	}
}

func TestSeverCustomerBinding_DefaultReason(t *testing.T) {
	db := newTestDB(t)
	registry := NewRegistryService()
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		"INSERT INTO customers (customer_id, status) VALUES (?, ?)",
		"EMI-1002", models.DeviceStatusConnected)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := registry.SeverCustomerBinding(ctx, "EMI-1002", ""); err != nil {
		t.Fatalf("SeverCustomerBinding: %v", err)
	}

	var errMsg string
	err = db.NewSelect().
		Model((*models.Customer)(nil)).
		Column("error_message").
		Where("customer_id = ?", "EMI-1002").
		Scan(ctx, &errMsg)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if errMsg == "" {
		t.Error("empty reason must fall back to a default message")
	}
}
