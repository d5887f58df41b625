package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testPushService(endpoint string) *PushService {
	return &PushService{
		endpoint:  endpoint,
		serverKey: "test-key",
		client:    &http.Client{Timeout: time.Second},
	}
}

func TestSendAction_PayloadShape(t *testing.T) {
	var captured fcmMessageRequest
	var authHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Write([]byte(`{"success":1,"failure":0}`))
	}))
	defer srv.Close()

	svc := testPushService(srv.URL)
	if err := svc.SendAction("device-token", "EMI-1", "LOCK_NOW"); err != nil {
		t.Fatalf("SendAction: %v", err)
	}

	if authHeader != "key=test-key" {
		t.Errorf("Authorization = %q, want key=test-key", authHeader)
	}
	if captured.To != "device-token" {
		t.Errorf("To = %q, want device-token", captured.To)
	}
	if captured.Priority != "high" {
		t.Errorf("Priority = %q, want high", captured.Priority)
	}
	if captured.Data["action"] != "LOCK_NOW" {
		t.Errorf("action = %q, want LOCK_NOW", captured.Data["action"])
	}
	if captured.Data["customerId"] != "EMI-1" {
		t.Errorf("customerId = %q, want EMI-1", captured.Data["customerId"])
	}

	// The wake-up ping must never leak lock-screen content; that travels
	// over the heartbeat channel only.
	for key := range captured.Data {
		switch key {
		case "action", "customerId", "timestamp":
		default:
			t.Errorf("push payload carries unexpected key %q", key)
		}
	}
}

func TestSendAction_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if err := testPushService(srv.URL).SendAction("tok", "EMI-1", "LOCK_NOW"); err == nil {
		t.Error("non-2xx response must surface an error")
	}
}

func TestSendAction_FCMRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":0,"failure":1}`))
	}))
	defer srv.Close()

	if err := testPushService(srv.URL).SendAction("tok", "EMI-1", "LOCK_NOW"); err == nil {
		t.Error("FCM-level failure must surface an error")
	}
}

func TestSendAction_Unconfigured(t *testing.T) {
	svc := &PushService{client: &http.Client{Timeout: time.Second}}
	if svc.Configured() {
		t.Error("Configured = true without a server key")
	}
	if err := svc.SendAction("tok", "EMI-1", "LOCK_NOW"); err == nil {
		t.Error("unconfigured service must refuse to send")
	}
	if err := testPushService("http://localhost:1").SendAction("", "EMI-1", "LOCK_NOW"); err == nil {
		t.Error("missing device token must refuse to send")
	}
}
