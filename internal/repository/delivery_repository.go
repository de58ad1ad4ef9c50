package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bluevlad/HealthPulse/internal/model"
)

// DeliveryRepository records per-subscriber delivery outcomes.
type DeliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// TerminalByDate returns the subscribers that already hold a terminal
// (sent or skipped) record for the date. These must never be mailed
// again for that digest.
func (r *DeliveryRepository) TerminalByDate(ctx context.Context, date string) (map[uint]model.DeliveryOutcome, error) {
	var records []model.DeliveryRecord
	err := r.db.WithContext(ctx).
		Where("run_date = ? AND outcome IN ?", date, []model.DeliveryOutcome{model.DeliverySent, model.DeliverySkipped}).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery records for %s: %w", date, err)
	}

	terminal := make(map[uint]model.DeliveryOutcome, len(records))
	for _, rec := range records {
		terminal[rec.SubscriberID] = rec.Outcome
	}
	return terminal, nil
}

// Record upserts the delivery outcome for one (date, subscriber) pair.
// A retried failure supersedes the previous failed row in place; the
// composite unique index keeps the table at one row per pair.
func (r *DeliveryRepository) Record(ctx context.Context, record *model.DeliveryRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_date"}, {Name: "subscriber_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"outcome", "error_msg", "attempts", "attempted_at"}),
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to record delivery for %s/%d: %w", record.RunDate, record.SubscriberID, err)
	}
	return nil
}

// ListByDate returns all delivery records for a date, for the API.
func (r *DeliveryRepository) ListByDate(ctx context.Context, date string) ([]model.DeliveryRecord, error) {
	var records []model.DeliveryRecord
	err := r.db.WithContext(ctx).
		Where("run_date = ?", date).
		Order("subscriber_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery records for %s: %w", date, err)
	}
	return records, nil
}
