package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/models"
)

// HeartbeatReport is what a device sends every few seconds. Every field
// besides identity is optional: partial reports are normal and absent
// fields must never clobber previously known values.
type HeartbeatReport struct {
	Status       string  `json:"status"`
	Battery      *int    `json:"battery"`
	BatteryLevel *int    `json:"batteryLevel"` // Legacy alias for battery
	IsCharging   *bool   `json:"isCharging"`
	Version      *string `json:"version"`
	AppInstalled *bool   `json:"appInstalled"`

	Technical *TechnicalReport `json:"technical"`
	SIM       *SIMReport       `json:"sim"`
	Location  *LocationReport  `json:"location"`

	SecurityEvent *SecurityEventReport `json:"securityEvent"`
}

type TechnicalReport struct {
	Brand            string `json:"brand"`
	Model            string `json:"model"`
	DeviceName       string `json:"deviceName"`
	OSVersion        string `json:"osVersion"`
	SDKLevel         int    `json:"sdkLevel"`
	AndroidID        string `json:"androidId"`
	Serial           string `json:"serial"`
	TotalMemory      string `json:"totalMemory"`
	TotalStorage     string `json:"totalStorage"`
	AvailableStorage string `json:"availableStorage"`
}

type SIMReport struct {
	Operator    string `json:"operator"`
	ICCID       string `json:"iccid"`
	PhoneNumber string `json:"phoneNumber"`
}

type LocationReport struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

type SecurityEventReport struct {
	Event     string `json:"event"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp int64  `json:"timestamp"`
}

// HeartbeatResponse carries the one-shot drained command plus the
// authoritative lock state, so a device that missed a delivery reconciles
// on its very next heartbeat.
type HeartbeatResponse struct {
	OK           bool            `json:"ok"`
	Status       string          `json:"status"`
	IsLocked     bool            `json:"isLocked"`
	Command      *string         `json:"command"`
	WallpaperURL *string         `json:"wallpaperUrl"`
	Pin          *string         `json:"pin"`
	LockMessage  *string         `json:"lockMessage"`
	SupportPhone *string         `json:"supportPhone"`
	LockInfo     models.LockInfo `json:"lockInfo"`
}

// HeartbeatService is the protocol's critical path: ingest a report,
// update the registry, drain the mailbox, answer with the authoritative
// state. Each processing step is best-effort; a per-field failure is
// logged and skipped, never aborting the response.
type HeartbeatService struct {
	registry *RegistryService
	mailbox  *MailboxService
	security *SecurityService
}

func NewHeartbeatService(registry *RegistryService, mailbox *MailboxService, security *SecurityService) *HeartbeatService {
	return &HeartbeatService{registry: registry, mailbox: mailbox, security: security}
}

// Process handles one heartbeat. customerID and hardwareID are whatever
// identity the device knows; resolution follows the registry's alias
// chain.
func (s *HeartbeatService) Process(ctx context.Context, customerID, hardwareID, ipAddress string, report *HeartbeatReport) (*HeartbeatResponse, error) {
	customer, err := s.registry.ResolveCustomer(ctx, customerID, hardwareID)
	if err != nil {
		return nil, err
	}

	// Removed bindings get the self-uninstall directive and nothing else.
	if customer.Status == models.DeviceStatusRemoved {
		remove := models.CommandRemove
		return &HeartbeatResponse{
			OK:       true,
			Status:   "REMOVE",
			IsLocked: false,
			Command:  &remove,
			LockInfo: customer.LockInfo(),
		}, nil
	}

	// SIM mismatch check runs against the fingerprint on record before the
	// report is merged over it.
	if report.SIM != nil && SIMChanged(customer.SIMDetails, report.SIM.ICCID) {
		if err := s.security.HandleSimChange(ctx, customer, report.SIM.ICCID, report.SIM.Operator, ipAddress); err != nil {
			log.Printf("SIM change handling failed for %s: %v", customer.CustomerID, err)
		} else {
			customer.IsLocked = true
			customer.Status = models.DeviceStatusWarning
			// Reflect the stored record: the intruder card is now on file,
			// flagged unauthorized, and the telemetry merge below must not
			// rewrite it.
			now := time.Now()
			customer.SIMDetails = &models.SIMDetails{
				Operator:     report.SIM.Operator,
				SerialNumber: report.SIM.ICCID,
				IsAuthorized: false,
				LastUpdated:  &now,
			}
		}
	}

	if report.SecurityEvent != nil && report.SecurityEvent.Event != "" {
		entry := models.SecurityEventEntry{
			Event:     report.SecurityEvent.Event,
			Action:    report.SecurityEvent.Action,
			Details:   report.SecurityEvent.Details,
			IPAddress: ipAddress,
			Timestamp: timestampOrNow(report.SecurityEvent.Timestamp),
		}
		if err := s.security.HandleSecurityEvent(ctx, customer, entry); err != nil {
			log.Printf("Security event handling failed for %s: %v", customer.CustomerID, err)
		} else if ShouldAutoLock(entry.Event) {
			customer.IsLocked = true
			customer.Status = models.DeviceStatusWarning
		}
	}

	updates := BuildTelemetryUpdate(customer, report, time.Now())
	if err := s.applyUpdates(ctx, customer.CustomerID, updates); err != nil {
		log.Printf("Telemetry merge failed for %s: %v", customer.CustomerID, err)
	}

	command, err := s.mailbox.Drain(ctx, customer.CustomerID)
	if err != nil {
		log.Printf("Mailbox drain failed for %s: %v", customer.CustomerID, err)
		command = nil
	}
	if command != nil {
		log.Printf("Delivering command to %s: %s", customer.CustomerID, command.Command)
	}

	return buildHeartbeatResponse(customer, command), nil
}

// BuildTelemetryUpdate computes the column set a report justifies.
// Fields absent from the report do not appear in the result, preserving
// prior values. Merging of the jsonb technical snapshot keeps known
// sub-fields that the report omits.
func BuildTelemetryUpdate(customer *models.Customer, report *HeartbeatReport, now time.Time) map[string]any {
	updates := map[string]any{
		"last_seen": now,
	}

	if report.Status != "" {
		updates["status"] = report.Status
	} else if customer.Status == models.DeviceStatusPending || customer.Status == models.DeviceStatusInstalling {
		// First successful heartbeat completes onboarding.
		updates["status"] = models.DeviceStatusConnected
	}

	if report.AppInstalled != nil {
		updates["is_enrolled"] = *report.AppInstalled
	}

	battery := report.Battery
	if battery == nil {
		battery = report.BatteryLevel
	}
	if battery != nil {
		updates["battery_level"] = *battery
	}
	if report.IsCharging != nil {
		updates["is_charging"] = *report.IsCharging
	}
	if report.Version != nil && *report.Version != "" {
		updates["app_version"] = *report.Version
	}

	if report.Technical != nil {
		merged := mergeTechnical(customer.Technical, report.Technical)
		updates["technical"] = merged
		if merged.Brand != "" {
			updates["brand"] = merged.Brand
		}
		if merged.Model != "" {
			updates["model_name"] = merged.Model
		}
		if merged.DeviceName != "" {
			updates["device_name"] = merged.DeviceName
		}
	}

	// An unauthorized fingerprint is owned by the security monitor; device
	// reports cannot touch it until an operator re-authorizes the card.
	if report.SIM != nil && (customer.SIMDetails == nil || customer.SIMDetails.IsAuthorized) {
		updates["sim_details"] = mergeSIMDetails(customer.SIMDetails, report.SIM, now)
	}

	if report.Location != nil {
		updates["location"] = &models.Location{
			Lat:       report.Location.Latitude,
			Lng:       report.Location.Longitude,
			Accuracy:  report.Location.Accuracy,
			Timestamp: now,
		}
	}

	return updates
}

func mergeTechnical(current *models.TechnicalInfo, report *TechnicalReport) *models.TechnicalInfo {
	merged := models.TechnicalInfo{}
	if current != nil {
		merged = *current
	}
	if report.Brand != "" {
		merged.Brand = report.Brand
	}
	if report.Model != "" {
		merged.Model = report.Model
	}
	if report.DeviceName != "" {
		merged.DeviceName = report.DeviceName
	}
	if report.OSVersion != "" {
		merged.OSVersion = report.OSVersion
	}
	if report.SDKLevel != 0 {
		merged.SDKLevel = report.SDKLevel
	}
	if report.AndroidID != "" {
		merged.AndroidID = report.AndroidID
	}
	if report.Serial != "" {
		merged.Serial = report.Serial
	}
	if report.TotalMemory != "" {
		merged.TotalMemory = report.TotalMemory
	}
	if report.TotalStorage != "" {
		merged.TotalStorage = report.TotalStorage
	}
	if report.AvailableStorage != "" {
		merged.AvailableStorage = report.AvailableStorage
	}
	return &merged
}

func mergeSIMDetails(current *models.SIMDetails, report *SIMReport, now time.Time) *models.SIMDetails {
	merged := models.SIMDetails{IsAuthorized: true}
	if current != nil {
		merged = *current
	}
	if report.Operator != "" {
		merged.Operator = report.Operator
	}
	if report.ICCID != "" {
		merged.SerialNumber = report.ICCID
	}
	if report.PhoneNumber != "" {
		merged.PhoneNumber = report.PhoneNumber
	}
	merged.LastUpdated = &now
	return &merged
}

func (s *HeartbeatService) applyUpdates(ctx context.Context, customerID string, updates map[string]any) error {
	query := database.DB.NewUpdate().
		Model((*models.Customer)(nil)).
		Set("updated_at = now()").
		Where("customer_id = ?", customerID)

	for column, value := range updates {
		switch v := value.(type) {
		case *models.TechnicalInfo, *models.SIMDetails, *models.Location:
			b, err := json.Marshal(v)
			if err != nil {
				log.Printf("Skipping malformed %s for %s: %v", column, customerID, err)
				continue
			}
			query = query.Set(column+" = ?::jsonb", string(b))
		default:
			query = query.Set(column+" = ?", value)
		}
	}

	_, err := query.Exec(ctx)
	return err
}

func buildHeartbeatResponse(customer *models.Customer, command *models.RemoteCommand) *HeartbeatResponse {
	resp := &HeartbeatResponse{
		OK:       true,
		Status:   customer.Status,
		IsLocked: customer.IsLocked,
		LockInfo: customer.LockInfo(),
	}

	if command != nil {
		resp.Command = &command.Command
		if command.Params.WallpaperURL != "" {
			resp.WallpaperURL = &command.Params.WallpaperURL
		}
		if command.Params.Pin != "" {
			resp.Pin = &command.Params.Pin
		}
		if command.Params.Message != "" {
			resp.LockMessage = &command.Params.Message
		}
		if command.Params.Phone != "" {
			resp.SupportPhone = &command.Params.Phone
		}
	}

	if resp.LockMessage == nil {
		msg := resp.LockInfo.Message
		resp.LockMessage = &msg
	}
	if resp.SupportPhone == nil {
		phone := resp.LockInfo.Phone
		resp.SupportPhone = &phone
	}

	return resp
}

func timestampOrNow(millis int64) time.Time {
	if millis <= 0 {
		return time.Now()
	}
	return time.UnixMilli(millis)
}
