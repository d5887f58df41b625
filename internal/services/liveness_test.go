package services

import (
	"testing"
	"time"

	"github.com/securefinance/emilock/config"
)

func TestIsOnline(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name     string
		lastSeen *time.Time
		want     bool
	}{
		{"never reported", nil, false},
		{"just now", ago(0), true},
		{"one second ago", ago(time.Second), true},
		{"at threshold", ago(5 * time.Minute), true},
		{"just past threshold", ago(5*time.Minute + time.Second), false},
		{"hours silent", ago(3 * time.Hour), false},
	}

	for _, tt := range tests {
		if got := IsOnline(tt.lastSeen, now, DefaultOfflineThreshold); got != tt.want {
			t.Errorf("%s: IsOnline = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsOnline_ZeroThresholdFallsBack(t *testing.T) {
	now := time.Now()
	recent := now.Add(-time.Minute)
	if !IsOnline(&recent, now, 0) {
		t.Error("IsOnline with zero threshold should use the default")
	}
}

func TestOfflineThreshold_HonorsConfig(t *testing.T) {
	prev := config.AppConfig
	defer func() { config.AppConfig = prev }()

	config.AppConfig = &config.Config{OfflineThreshold: 10 * time.Minute}
	if got := OfflineThreshold(); got != 10*time.Minute {
		t.Errorf("OfflineThreshold = %v, want the configured 10m", got)
	}

	now := time.Now()
	sevenAgo := now.Add(-7 * time.Minute)
	if !IsOnline(&sevenAgo, now, OfflineThreshold()) {
		t.Error("7m silence must count as online under a 10m threshold")
	}

	config.AppConfig = nil
	if got := OfflineThreshold(); got != DefaultOfflineThreshold {
		t.Errorf("OfflineThreshold without config = %v, want default", got)
	}
}
