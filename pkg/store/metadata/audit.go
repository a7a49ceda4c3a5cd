package metadata

import (
	"context"
	"time"

	"github.com/lodehq/lode/pkg/asset"
)

// cleanupBatchSize bounds one DELETE so log pruning never holds a long
// transaction on a busy table.
const cleanupBatchSize = 10000

func (s *GORMStore) RecordAudit(ctx context.Context, event *asset.AuditEvent) error {
	record := &auditRecord{
		Username:  event.Username,
		AssetPath: event.AssetPath,
		VersionID: event.VersionID,
		Branch:    event.Branch,
		Operation: event.Operation,
		Timestamp: event.Timestamp,
		Success:   event.Success,
		Details:   event.Details,
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return asset.Wrap(asset.KindStorage, err, "record audit event for %s", event.Username)
	}
	event.ID = record.ID
	return nil
}

func (s *GORMStore) ListAudit(ctx context.Context, branch string, limit int) ([]*asset.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var records []auditRecord
	err := s.db.WithContext(ctx).
		Where("branch = ?", branch).
		Order("timestamp DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, asset.Wrap(asset.KindStorage, err, "list audit events on branch %s", branch)
	}

	events := make([]*asset.AuditEvent, 0, len(records))
	for i := range records {
		events = append(events, records[i].toEvent())
	}
	return events, nil
}

func (s *GORMStore) CleanupLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		result := s.db.WithContext(ctx).
			Where("id IN (?)", s.db.
				Model(&auditRecord{}).
				Select("id").
				Where("timestamp < ?", cutoff).
				Limit(cleanupBatchSize)).
			Delete(&auditRecord{})
		if result.Error != nil {
			return total, asset.Wrap(asset.KindStorage, result.Error, "cleanup audit log")
		}

		total += result.RowsAffected
		if result.RowsAffected < cleanupBatchSize {
			return total, nil
		}
	}
}
