package models

import "time"

// Remote command vocabulary. The device side only understands these, so
// anything else is rejected before it reaches the mailbox.
const (
	CommandLock              = "lock"
	CommandUnlock            = "unlock"
	CommandWipe              = "wipe"
	CommandReset             = "reset"
	CommandSetWallpaper      = "setWallpaper"
	CommandSetPin            = "setPin"
	CommandAlarm             = "alarm"
	CommandStopAlarm         = "stopAlarm"
	CommandSetLockInfo       = "setLockInfo"
	CommandGrantPermissions  = "grantPermissions"
	CommandApplyRestrictions = "applyRestrictions"
	CommandRemove            = "remove" // Marks device as removed, preserves customer data
)

// ValidCommands is the closed set accepted by the command endpoint.
var ValidCommands = []string{
	CommandLock, CommandUnlock, CommandWipe, CommandReset,
	CommandSetWallpaper, CommandSetPin, CommandAlarm, CommandStopAlarm,
	CommandSetLockInfo, CommandGrantPermissions, CommandApplyRestrictions,
	CommandRemove,
}

func IsValidCommand(command string) bool {
	for _, c := range ValidCommands {
		if c == command {
			return true
		}
	}
	return false
}

// CommandParams carries the optional arguments of a remote command.
type CommandParams struct {
	Reason       string `json:"reason,omitempty"`
	Message      string `json:"message,omitempty"`
	Phone        string `json:"phone,omitempty"`
	WallpaperURL string `json:"wallpaperUrl,omitempty"`
	Pin          string `json:"pin,omitempty"`
}

// RemoteCommand is the single-slot mailbox entry for a device. A new
// operator command overwrites an undelivered one (last write wins); the
// heartbeat drain clears it atomically.
type RemoteCommand struct {
	Command  string        `json:"command"`
	Params   CommandParams `json:"params"`
	IssuedAt time.Time     `json:"issued_at"`
}
