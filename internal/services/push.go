package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/securefinance/emilock/config"
)

// PushService delivers data-only FCM messages that wake the device agent
// for an immediate heartbeat. The payload carries the action and customer
// id only; lock-screen content travels over the heartbeat channel, never
// through the push broker.
type PushService struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

func NewPushService() *PushService {
	return &PushService{
		endpoint:  config.AppConfig.FCMEndpoint,
		serverKey: config.AppConfig.FCMServerKey,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

type fcmMessageRequest struct {
	To       string            `json:"to"`
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// Configured reports whether push delivery is enabled. Deployments
// without FCM credentials still work; devices pick commands up on their
// next heartbeat.
func (s *PushService) Configured() bool {
	return s.serverKey != ""
}

// SendAction pushes a high-priority data message to a device token.
// action is LOCK_NOW or UNLOCK_NOW.
func (s *PushService) SendAction(fcmToken, customerID, action string) error {
	if !s.Configured() {
		return fmt.Errorf("FCM_SERVER_KEY not configured")
	}
	if fcmToken == "" {
		return fmt.Errorf("no FCM token registered for %s", customerID)
	}

	payload := fcmMessageRequest{
		To:       fcmToken,
		Priority: "high",
		Data: map[string]string{
			"action":     action,
			"customerId": customerID,
			"timestamp":  fmt.Sprintf("%d", time.Now().UnixMilli()),
		},
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", s.endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.serverKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("FCM error (status %d)", resp.StatusCode)
	}

	var result fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Failure > 0 {
		return fmt.Errorf("FCM rejected message for %s", customerID)
	}

	return nil
}
