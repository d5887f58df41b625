package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/models"
)

// AuditService writes the append-only operator/system action log. Audit
// failures are logged, never propagated: auditing must not break the flow
// it observes.
type AuditService struct{}

func NewAuditService() *AuditService {
	return &AuditService{}
}

func (s *AuditService) Log(ctx context.Context, entry *models.AuditLog) {
	if entry.Status == "" {
		entry.Status = "SUCCESS"
	}
	if len(entry.Details) == 0 {
		entry.Details = json.RawMessage("{}")
	}
	if _, err := database.DB.NewInsert().Model(entry).Exec(ctx); err != nil {
		log.Printf("Failed to write audit log (%s on %s/%s): %v", entry.Action, entry.TargetType, entry.TargetID, err)
	}
}

// LogOperatorAction records an action performed by an authenticated admin.
func (s *AuditService) LogOperatorAction(ctx context.Context, actorID int64, actorName, actorRole, action, targetType, targetID, targetName string, details map[string]any) {
	raw, _ := json.Marshal(details)
	s.Log(ctx, &models.AuditLog{
		ActorID:    &actorID,
		ActorName:  actorName,
		ActorRole:  actorRole,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		TargetName: targetName,
		Details:    raw,
	})
}

// LogSystemEvent records an action with no human actor (security monitor,
// schedulers).
func (s *AuditService) LogSystemEvent(ctx context.Context, action, targetType, targetID, targetName string, details map[string]any) {
	raw, _ := json.Marshal(details)
	s.Log(ctx, &models.AuditLog{
		ActorName:  "system",
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		TargetName: targetName,
		Details:    raw,
	})
}

// List returns recent audit entries, newest first.
func (s *AuditService) List(ctx context.Context, limit, offset int) ([]models.AuditLog, int, error) {
	var logs []models.AuditLog
	query := database.DB.NewSelect().
		Model(&logs).
		Order("created_at DESC")

	if limit > 0 {
		query.Limit(limit)
	}
	if offset > 0 {
		query.Offset(offset)
	}

	count, err := query.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return logs, count, nil
}
