package services

import (
	"testing"
	"time"

	"github.com/securefinance/emilock/internal/models"
)

func intptr(v int) *int       { return &v }
func boolptr(v bool) *bool    { return &v }
func strptr(v string) *string { return &v }

func TestBuildTelemetryUpdate_AbsentFieldsNeverClobber(t *testing.T) {
	now := time.Now()
	customer := &models.Customer{
		CustomerID: "EMI-1",
		Status:     models.DeviceStatusConnected,
		Technical: &models.TechnicalInfo{
			Brand:     "Samsung",
			Model:     "Galaxy A14",
			AndroidID: "abc123",
		},
	}

	updates := BuildTelemetryUpdate(customer, &HeartbeatReport{}, now)

	if _, ok := updates["battery_level"]; ok {
		t.Error("empty report must not touch battery_level")
	}
	if _, ok := updates["is_charging"]; ok {
		t.Error("empty report must not touch is_charging")
	}
	if _, ok := updates["technical"]; ok {
		t.Error("empty report must not touch technical")
	}
	if _, ok := updates["status"]; ok {
		t.Error("empty report must not change a connected status")
	}
	if _, ok := updates["last_seen"]; !ok {
		t.Error("every heartbeat must stamp last_seen")
	}
}

func TestBuildTelemetryUpdate_TechnicalMergeKeepsKnownFields(t *testing.T) {
	customer := &models.Customer{
		Technical: &models.TechnicalInfo{
			Brand:     "Samsung",
			Model:     "Galaxy A14",
			AndroidID: "abc123",
			OSVersion: "13",
		},
	}

	report := &HeartbeatReport{
		Technical: &TechnicalReport{OSVersion: "14"},
	}

	updates := BuildTelemetryUpdate(customer, report, time.Now())

	merged, ok := updates["technical"].(*models.TechnicalInfo)
	if !ok {
		t.Fatal("technical update missing")
	}
	if merged.OSVersion != "14" {
		t.Errorf("OSVersion = %q, want 14", merged.OSVersion)
	}
	if merged.Brand != "Samsung" {
		t.Errorf("Brand = %q, want Samsung (kept)", merged.Brand)
	}
	if merged.AndroidID != "abc123" {
		t.Errorf("AndroidID = %q, want abc123 (kept)", merged.AndroidID)
	}
}

func TestBuildTelemetryUpdate_BatteryAliases(t *testing.T) {
	customer := &models.Customer{}

	updates := BuildTelemetryUpdate(customer, &HeartbeatReport{Battery: intptr(80)}, time.Now())
	if updates["battery_level"] != 80 {
		t.Errorf("battery_level = %v, want 80", updates["battery_level"])
	}

	updates = BuildTelemetryUpdate(customer, &HeartbeatReport{BatteryLevel: intptr(55)}, time.Now())
	if updates["battery_level"] != 55 {
		t.Errorf("legacy batteryLevel alias: battery_level = %v, want 55", updates["battery_level"])
	}

	// battery wins over the legacy alias when both are present
	updates = BuildTelemetryUpdate(customer, &HeartbeatReport{Battery: intptr(70), BatteryLevel: intptr(10)}, time.Now())
	if updates["battery_level"] != 70 {
		t.Errorf("battery_level = %v, want 70", updates["battery_level"])
	}
}

func TestBuildTelemetryUpdate_OnboardingCompletesOnFirstContact(t *testing.T) {
	customer := &models.Customer{Status: models.DeviceStatusPending}
	updates := BuildTelemetryUpdate(customer, &HeartbeatReport{}, time.Now())
	if updates["status"] != models.DeviceStatusConnected {
		t.Errorf("status = %v, want connected", updates["status"])
	}

	customer.Status = models.DeviceStatusInstalling
	updates = BuildTelemetryUpdate(customer, &HeartbeatReport{}, time.Now())
	if updates["status"] != models.DeviceStatusConnected {
		t.Errorf("status = %v, want connected", updates["status"])
	}
}

func TestBuildTelemetryUpdate_ReportedStatusAndFlags(t *testing.T) {
	customer := &models.Customer{Status: models.DeviceStatusConnected}
	report := &HeartbeatReport{
		Status:       models.DeviceStatusOnline,
		IsCharging:   boolptr(true),
		Version:      strptr("2.1.0"),
		AppInstalled: boolptr(true),
	}

	updates := BuildTelemetryUpdate(customer, report, time.Now())
	if updates["status"] != models.DeviceStatusOnline {
		t.Errorf("status = %v, want online", updates["status"])
	}
	if updates["is_charging"] != true {
		t.Errorf("is_charging = %v, want true", updates["is_charging"])
	}
	if updates["app_version"] != "2.1.0" {
		t.Errorf("app_version = %v, want 2.1.0", updates["app_version"])
	}
	if updates["is_enrolled"] != true {
		t.Errorf("is_enrolled = %v, want true", updates["is_enrolled"])
	}
}

func TestBuildTelemetryUpdate_SIMMergePreservesAuthorization(t *testing.T) {
	now := time.Now()
	customer := &models.Customer{
		SIMDetails: &models.SIMDetails{
			SerialNumber: "8991000012345678",
			Operator:     "Airtel",
			IsAuthorized: true,
		},
	}

	report := &HeartbeatReport{SIM: &SIMReport{PhoneNumber: "9876543210"}}
	updates := BuildTelemetryUpdate(customer, report, now)

	merged, ok := updates["sim_details"].(*models.SIMDetails)
	if !ok {
		t.Fatal("sim_details update missing")
	}
	if merged.SerialNumber != "8991000012345678" {
		t.Errorf("SerialNumber = %q, want kept fingerprint", merged.SerialNumber)
	}
	if !merged.IsAuthorized {
		t.Error("merge must not clear IsAuthorized")
	}
	if merged.PhoneNumber != "9876543210" {
		t.Errorf("PhoneNumber = %q, want 9876543210", merged.PhoneNumber)
	}
}

func TestBuildTelemetryUpdate_UnauthorizedSIMUntouched(t *testing.T) {
	// After a SIM change the intruder card sits on record flagged
	// unauthorized. The intruder's own reports must not rewrite that
	// fingerprint back to an authorized one.
	customer := &models.Customer{
		SIMDetails: &models.SIMDetails{
			SerialNumber: "8991000099999999",
			Operator:     "Intruder Telecom",
			IsAuthorized: false,
		},
	}

	report := &HeartbeatReport{
		SIM: &SIMReport{ICCID: "8991000099999999", Operator: "Intruder Telecom"},
	}
	updates := BuildTelemetryUpdate(customer, report, time.Now())

	if _, ok := updates["sim_details"]; ok {
		t.Error("device report must not touch an unauthorized SIM fingerprint")
	}
	if _, ok := updates["last_seen"]; !ok {
		t.Error("the rest of the telemetry still applies")
	}
}

func TestBuildHeartbeatResponse_NoCommand(t *testing.T) {
	customer := &models.Customer{
		CustomerID: "EMI-1",
		Status:     models.DeviceStatusConnected,
		IsLocked:   true,
	}

	resp := buildHeartbeatResponse(customer, nil)

	if !resp.OK {
		t.Error("OK = false, want true")
	}
	if resp.Command != nil {
		t.Errorf("Command = %v, want nil", *resp.Command)
	}
	if !resp.IsLocked {
		t.Error("IsLocked must reflect the record")
	}
	if resp.LockMessage == nil || *resp.LockMessage != models.DefaultLockMessage {
		t.Error("default lock message must always be present")
	}
	if resp.SupportPhone == nil || *resp.SupportPhone != models.DefaultSupportPhone {
		t.Error("default support phone must always be present")
	}
}

func TestBuildHeartbeatResponse_CommandParams(t *testing.T) {
	customer := &models.Customer{CustomerID: "EMI-1", Status: models.DeviceStatusConnected}
	command := &models.RemoteCommand{
		Command: models.CommandLock,
		Params: models.CommandParams{
			Message:      "Overdue",
			Phone:        "12345",
			WallpaperURL: "https://example.com/w.png",
			Pin:          "4321",
		},
		IssuedAt: time.Now(),
	}

	resp := buildHeartbeatResponse(customer, command)

	if resp.Command == nil || *resp.Command != models.CommandLock {
		t.Fatal("drained command must be delivered")
	}
	if resp.LockMessage == nil || *resp.LockMessage != "Overdue" {
		t.Error("command message must override the default lock message")
	}
	if resp.SupportPhone == nil || *resp.SupportPhone != "12345" {
		t.Error("command phone must override the default support phone")
	}
	if resp.WallpaperURL == nil || *resp.WallpaperURL != "https://example.com/w.png" {
		t.Error("wallpaper url must pass through")
	}
	if resp.Pin == nil || *resp.Pin != "4321" {
		t.Error("pin must pass through")
	}
}
