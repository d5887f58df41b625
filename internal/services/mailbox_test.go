package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"github.com/securefinance/emilock/internal/models"
	"github.com/securefinance/emilock/internal/rabbitmq"
)

func TestIntentFor_Lock(t *testing.T) {
	intent := intentFor(models.CommandLock)
	if intent.LockChange == nil || !*intent.LockChange {
		t.Error("lock must set is_locked")
	}
	if intent.HistoryAction != "locked" {
		t.Errorf("HistoryAction = %q, want locked", intent.HistoryAction)
	}
	if intent.PushAction != rabbitmq.PushActionLock {
		t.Errorf("PushAction = %q, want %q", intent.PushAction, rabbitmq.PushActionLock)
	}
	if intent.RemoveDevice {
		t.Error("lock must not sever the device binding")
	}
}

func TestIntentFor_Unlock(t *testing.T) {
	intent := intentFor(models.CommandUnlock)
	if intent.LockChange == nil || *intent.LockChange {
		t.Error("unlock must clear is_locked")
	}
	if intent.HistoryAction != "unlocked" {
		t.Errorf("HistoryAction = %q, want unlocked", intent.HistoryAction)
	}
	if intent.PushAction != rabbitmq.PushActionUnlock {
		t.Errorf("PushAction = %q, want %q", intent.PushAction, rabbitmq.PushActionUnlock)
	}
}

func TestIntentFor_Remove(t *testing.T) {
	intent := intentFor(models.CommandRemove)
	if !intent.RemoveDevice {
		t.Error("remove must sever the device binding")
	}
	if intent.HistoryAction != "device_removed" {
		t.Errorf("HistoryAction = %q, want device_removed", intent.HistoryAction)
	}
	if intent.LockChange != nil {
		t.Error("remove must not change is_locked")
	}
	if intent.PushAction != "" {
		t.Error("remove must not trigger a push")
	}
}

func TestIntentFor_SetLockInfo(t *testing.T) {
	intent := intentFor(models.CommandSetLockInfo)
	if !intent.SetLockInfo {
		t.Error("setLockInfo must update the lock screen content")
	}
	if intent.LockChange != nil || intent.RemoveDevice || intent.PushAction != "" {
		t.Error("setLockInfo must carry no other side effects")
	}
}

func TestIntentFor_PlainCommands(t *testing.T) {
	// Everything else rides the mailbox untouched
	for _, command := range []string{
		models.CommandWipe, models.CommandReset, models.CommandSetWallpaper,
		models.CommandSetPin, models.CommandAlarm, models.CommandStopAlarm,
		models.CommandGrantPermissions, models.CommandApplyRestrictions,
	} {
		intent := intentFor(command)
		if intent.LockChange != nil || intent.HistoryAction != "" ||
			intent.SetLockInfo || intent.RemoveDevice || intent.PushAction != "" {
			t.Errorf("intentFor(%q) carries unexpected side effects", command)
		}
	}
}

func seedMailbox(t *testing.T, db *bun.DB, customerID string, command *models.RemoteCommand) {
	t.Helper()
	var raw any
	if command != nil {
		b, err := json.Marshal(command)
		if err != nil {
			t.Fatalf("marshal command: %v", err)
		}
		raw = string(b)
	}
	_, err := db.ExecContext(context.Background(),
		"INSERT INTO customers (customer_id, remote_command) VALUES (?, ?) "+
			"ON CONFLICT (customer_id) DO UPDATE SET remote_command = excluded.remote_command",
		customerID, raw)
	if err != nil {
		t.Fatalf("seed mailbox: %v", err)
	}
}

func TestDrainDeliversAndClears(t *testing.T) {
	db := newTestDB(t)
	svc := NewMailboxService(NewRegistryService())
	ctx := context.Background()

	seedMailbox(t, db, "EMI-1001", &models.RemoteCommand{
		Command:  models.CommandUnlock,
		Params:   models.CommandParams{Reason: "EMI payment received"},
		IssuedAt: time.Now().UTC(),
	})

	got, err := svc.Drain(ctx, "EMI-1001")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got == nil {
		t.Fatal("Drain returned nil, want the pending unlock")
	}
	if got.Command != models.CommandUnlock {
		t.Errorf("Command = %q, want %q", got.Command, models.CommandUnlock)
	}
	if got.Params.Reason != "EMI payment received" {
		t.Errorf("Reason = %q, want the issued reason", got.Params.Reason)
	}

	again, err := svc.Drain(ctx, "EMI-1001")
	if err != nil || again != nil {
		t.Errorf("second Drain = (%v, %v), want empty mailbox", again, err)
	}
}

func TestDrainEmptyMailbox(t *testing.T) {
	db := newTestDB(t)
	svc := NewMailboxService(NewRegistryService())
	ctx := context.Background()

	seedMailbox(t, db, "EMI-1001", nil)
	if got, err := svc.Drain(ctx, "EMI-1001"); err != nil || got != nil {
		t.Errorf("Drain of empty slot = (%v, %v), want (nil, nil)", got, err)
	}

	// Unknown identities behave the same
	if got, err := svc.Drain(ctx, "EMI-9999"); err != nil || got != nil {
		t.Errorf("Drain of unknown customer = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestDrainLastWriteWins(t *testing.T) {
	db := newTestDB(t)
	svc := NewMailboxService(NewRegistryService())
	ctx := context.Background()

	seedMailbox(t, db, "EMI-1001", &models.RemoteCommand{
		Command:  models.CommandLock,
		IssuedAt: time.Now().UTC(),
	})
	seedMailbox(t, db, "EMI-1001", &models.RemoteCommand{
		Command:  models.CommandUnlock,
		IssuedAt: time.Now().UTC(),
	})

	got, err := svc.Drain(ctx, "EMI-1001")
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got == nil || got.Command != models.CommandUnlock {
		t.Fatalf("Drain = %+v, want only the later unlock", got)
	}
	if again, err := svc.Drain(ctx, "EMI-1001"); err != nil || again != nil {
		t.Errorf("second Drain = (%v, %v), want empty mailbox", again, err)
	}
}

func TestDrainCorruptEntry(t *testing.T) {
	db := newTestDB(t)
	svc := NewMailboxService(NewRegistryService())
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		"INSERT INTO customers (customer_id, remote_command) VALUES (?, ?)",
		"EMI-1001", "{not json")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.Drain(ctx, "EMI-1001"); err == nil {
		t.Error("Drain of a corrupt entry must return an error")
	}
	// The poison entry must not survive to fail every later heartbeat
	if got, err := svc.Drain(ctx, "EMI-1001"); err != nil || got != nil {
		t.Errorf("Drain after corrupt entry = (%v, %v), want cleared slot", got, err)
	}
}
