package services

import (
	"testing"
	"time"

	"github.com/securefinance/emilock/internal/models"
)

func TestShouldAutoLock(t *testing.T) {
	locking := []string{
		EventSafeModeAttempt, EventRootDetected, EventTampering, EventSimChange,
	}
	for _, event := range locking {
		if !ShouldAutoLock(event) {
			t.Errorf("ShouldAutoLock(%q) = false, want true", event)
		}
	}

	for _, event := range []string{"", "BATTERY_LOW", "safe_mode_attempt", "UNKNOWN"} {
		if ShouldAutoLock(event) {
			t.Errorf("ShouldAutoLock(%q) = true, want false", event)
		}
	}
}

func TestSIMChanged(t *testing.T) {
	authorized := &models.SIMDetails{SerialNumber: "8991000012345678", IsAuthorized: true}

	tests := []struct {
		name       string
		authorized *models.SIMDetails
		reported   string
		want       bool
	}{
		{"same ICCID", authorized, "8991000012345678", false},
		{"different ICCID", authorized, "8991000099999999", true},
		{"no fingerprint on record", nil, "8991000099999999", false},
		{"empty fingerprint", &models.SIMDetails{}, "8991000099999999", false},
		{"report omits ICCID", authorized, "", false},
	}

	for _, tt := range tests {
		if got := SIMChanged(tt.authorized, tt.reported); got != tt.want {
			t.Errorf("%s: SIMChanged = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSIMChanged_FirstReportNeverLocks(t *testing.T) {
	// A fresh record observes its first SIM without triggering policy; the
	// fingerprint is only armed once stored.
	now := time.Now()
	fresh := &models.SIMDetails{Operator: "Airtel", LastUpdated: &now}
	if SIMChanged(fresh, "8991000012345678") {
		t.Error("first SIM observation must not count as a change")
	}
}
