package store

import (
	"context"
	"fmt"

	"booking-engine/internal/model"
)

func (s *gormStore) AppendAudit(ctx context.Context, a *model.AuditLog) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to append audit record for %s %s: %w", a.SubjectType, a.SubjectID, err)
	}
	return nil
}

func (s *gormStore) ListAudit(ctx context.Context, subjectID string) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	if err := s.db.WithContext(ctx).Where("subject_id = ?", subjectID).Order("id ASC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit trail for %s: %w", subjectID, err)
	}
	return logs, nil
}
