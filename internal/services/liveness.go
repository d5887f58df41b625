package services

import (
	"time"

	"github.com/securefinance/emilock/config"
)

// DefaultOfflineThreshold is how long a device may stay silent before the
// dashboard reports it offline.
const DefaultOfflineThreshold = 5 * time.Minute

// OfflineThreshold returns the operator-configured silence threshold,
// falling back to the default when config has not been loaded.
func OfflineThreshold() time.Duration {
	if config.AppConfig != nil && config.AppConfig.OfflineThreshold > 0 {
		return config.AppConfig.OfflineThreshold
	}
	return DefaultOfflineThreshold
}

// IsOnline classifies a device as online from its last-contact timestamp.
// A device that has never reported is offline.
func IsOnline(lastSeen *time.Time, now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultOfflineThreshold
	}
	if lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) <= threshold
}
