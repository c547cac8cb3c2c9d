package scheduler

import (
	"context"

	"github.com/windparklabs/windbill/internal/events"
	"go.uber.org/zap"
)

// PurgeDeliveredEvents deletes published outbox rows older than the retention
// window. Unpublished events are kept regardless of age so a long webhook
// outage never loses deliveries.
func (s *Scheduler) PurgeDeliveredEvents(ctx context.Context) (int64, error) {
	retentionDays := s.cfg.EventRetentionDays
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.clock.Now().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).
		Where("published AND created_at < ?", cutoff).
		Delete(&events.BillingEvent{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("purged delivered events",
			zap.Int64("deleted", result.RowsAffected),
			zap.Time("cutoff", cutoff))
	}
	return result.RowsAffected, nil
}
