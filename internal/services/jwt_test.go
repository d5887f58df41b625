package services

import (
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 1)

	token, err := svc.GenerateToken(42, "admin@example.com", "ADMIN")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.AdminID != 42 {
		t.Errorf("AdminID = %d, want 42", claims.AdminID)
	}
	if claims.Email != "admin@example.com" {
		t.Errorf("Email = %q, want admin@example.com", claims.Email)
	}
	if claims.Role != "ADMIN" {
		t.Errorf("Role = %q, want ADMIN", claims.Role)
	}
	if claims.Issuer != "emilock" {
		t.Errorf("Issuer = %q, want emilock", claims.Issuer)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", 1).GenerateToken(1, "a@b.c", "ADMIN")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := NewJWTService("secret-b", 1).ValidateToken(token); err == nil {
		t.Error("token signed with a different secret must not validate")
	}
}

func TestJWTTampered(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	token, err := svc.GenerateToken(1, "a@b.c", "ADMIN")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := svc.ValidateToken(tampered); err == nil {
		t.Error("tampered token must not validate")
	}

	if _, err := svc.ValidateToken("not-a-jwt"); err == nil {
		t.Error("garbage must not validate")
	}
}

func TestJWTExpiry(t *testing.T) {
	svc := NewJWTService("test-secret", 168)
	if svc.GetExpiry() != 168*time.Hour {
		t.Errorf("GetExpiry = %v, want 168h", svc.GetExpiry())
	}
}
