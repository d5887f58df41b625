package services

import (
	"testing"
	"time"

	"github.com/securefinance/emilock/internal/models"
)

func TestTokenExpired(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry never validates", nil, true},
		{"one hour left", at(time.Hour), false},
		{"one second left", at(time.Second), false},
		{"exactly now", at(0), true},
		{"one second past", at(-time.Second), true},
		{"long expired", at(-48 * time.Hour), true},
	}

	for _, tt := range tests {
		if got := TokenExpired(tt.expiresAt, now); got != tt.want {
			t.Errorf("%s: TokenExpired = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGenerateEnrollmentToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := generateEnrollmentToken()
		if err != nil {
			t.Fatalf("generateEnrollmentToken: %v", err)
		}
		if len(token) != 32 {
			t.Fatalf("token length = %d, want 32", len(token))
		}
		for _, r := range token {
			if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
				t.Fatalf("token %q contains non-hex character %q", token, r)
			}
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestBuildQRPayload_AndroidNew(t *testing.T) {
	payload := BuildQRPayload(models.EnrollmentAndroidNew, "EMI-1234", "https://example.com", "abcd")

	if _, ok := payload["android.app.extra.PROVISIONING_DEVICE_ADMIN_COMPONENT_NAME"]; !ok {
		t.Error("ANDROID_NEW payload missing device admin component name")
	}
	if _, ok := payload["android.app.extra.PROVISIONING_DEVICE_ADMIN_PACKAGE_DOWNLOAD_LOCATION"]; !ok {
		t.Error("ANDROID_NEW payload missing download location")
	}

	extras, ok := payload["android.app.extra.PROVISIONING_ADMIN_EXTRAS_BUNDLE"].(map[string]any)
	if !ok {
		t.Fatal("ANDROID_NEW payload missing admin extras bundle")
	}
	if extras["customerId"] != "EMI-1234" {
		t.Errorf("extras customerId = %v, want EMI-1234", extras["customerId"])
	}
	if extras["enrollmentToken"] != "abcd" {
		t.Errorf("extras enrollmentToken = %v, want abcd", extras["enrollmentToken"])
	}
	if extras["serverUrl"] != "https://example.com" {
		t.Errorf("extras serverUrl = %v, want https://example.com", extras["serverUrl"])
	}
}

func TestBuildQRPayload_AndroidExisting(t *testing.T) {
	payload := BuildQRPayload(models.EnrollmentAndroidExisting, "EMI-1234", "https://example.com", "abcd")

	if payload["type"] != models.EnrollmentAndroidExisting {
		t.Errorf("type = %v, want %s", payload["type"], models.EnrollmentAndroidExisting)
	}
	if payload["enrollmentToken"] != "abcd" {
		t.Errorf("enrollmentToken = %v, want abcd", payload["enrollmentToken"])
	}
	if _, ok := payload["apkUrl"]; !ok {
		t.Error("ANDROID_EXISTING payload missing apkUrl")
	}
	if _, ok := payload["android.app.extra.PROVISIONING_DEVICE_ADMIN_COMPONENT_NAME"]; ok {
		t.Error("ANDROID_EXISTING payload must not carry Device Owner extras")
	}
}

func TestBuildQRPayload_IOS(t *testing.T) {
	payload := BuildQRPayload(models.EnrollmentIOS, "EMI-1234", "https://example.com", "abcd")

	if payload["type"] != models.EnrollmentIOS {
		t.Errorf("type = %v, want %s", payload["type"], models.EnrollmentIOS)
	}
	if _, ok := payload["appStoreUrl"]; !ok {
		t.Error("IOS payload missing appStoreUrl")
	}
}

func TestBuildQRPayload_UnknownType(t *testing.T) {
	payload := BuildQRPayload("WINDOWS", "EMI-1234", "https://example.com", "abcd")
	if len(payload) != 0 {
		t.Errorf("unknown type payload = %v, want empty", payload)
	}
}
