package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/securefinance/emilock/internal/models"
)

func TestImeiMatches(t *testing.T) {
	customer := &models.Customer{
		IMEI1:     "111111111111111",
		IMEI2:     "222222222222222",
		Technical: &models.TechnicalInfo{AndroidID: "androidid123"},
	}

	tests := []struct {
		reported string
		want     bool
	}{
		{"111111111111111", true},
		{"222222222222222", true},
		{"androidid123", true},
		{"333333333333333", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := imeiMatches(customer, tt.reported); got != tt.want {
			t.Errorf("imeiMatches(%q) = %v, want %v", tt.reported, got, tt.want)
		}
	}
}

func TestImeiMatches_NoSecondaryIdentities(t *testing.T) {
	customer := &models.Customer{IMEI1: "111111111111111"}
	// Empty imei2 / android id must not match an empty report
	if imeiMatches(customer, "") {
		t.Error("empty reported id must never match")
	}
}

func TestGenerateOfflineToken(t *testing.T) {
	for i := 0; i < 50; i++ {
		token := generateOfflineToken()
		if len(token) != 6 {
			t.Fatalf("token length = %d, want 6", len(token))
		}
		if strings.Trim(token, "0123456789") != "" {
			t.Fatalf("token %q contains non-digit characters", token)
		}
	}
}

func TestGenerateCustomerID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := generateCustomerID()
		if !strings.HasPrefix(id, "EMI-") {
			t.Fatalf("id %q missing EMI- prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate customer id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestAuditActionFor(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{models.CommandLock, models.AuditLockDevice},
		{models.CommandUnlock, models.AuditUnlockDevice},
		{models.CommandRemove, models.AuditRemoveDevice},
		{models.CommandWipe, models.AuditSendCommand},
		{models.CommandSetPin, models.AuditSendCommand},
	}
	for _, tt := range tests {
		if got := auditActionFor(tt.command); got != tt.want {
			t.Errorf("auditActionFor(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}

func TestDeliveryAdvisory(t *testing.T) {
	if deliveryAdvisory(true) != "online" {
		t.Error("online advisory expected")
	}
	if deliveryAdvisory(false) != "offline" {
		t.Error("offline advisory expected")
	}
}

func TestSecurityEventRequiresEvent(t *testing.T) {
	app := fiber.New()
	h := NewHeartbeatHandler(nil, nil, nil)
	app.Post("/customers/:id/security-event", h.SecurityEvent)

	req := httptest.NewRequest("POST", "/customers/EMI-1/security-event", strings.NewReader(`{"action":"LOCK"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a report without an event", resp.StatusCode)
	}
}

func TestSetAdminActiveValidation(t *testing.T) {
	app := fiber.New()
	h := NewAuthHandler(nil, nil, nil)
	app.Patch("/admins/:id/active", h.SetAdminActive)

	// Non-numeric account id
	req := httptest.NewRequest("PATCH", "/admins/abc/active", strings.NewReader(`{"active":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a non-numeric id", resp.StatusCode)
	}

	// Missing active flag
	req = httptest.NewRequest("PATCH", "/admins/7/active", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400 without the active flag", resp.StatusCode)
	}
}
