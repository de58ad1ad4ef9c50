package model

import "time"

// DeliveryOutcome is the result of one digest delivery attempt.
type DeliveryOutcome string

const (
	DeliverySent    DeliveryOutcome = "sent"
	DeliveryFailed  DeliveryOutcome = "failed"
	DeliverySkipped DeliveryOutcome = "skipped"
)

// Terminal reports whether the outcome blocks further send attempts for
// the same (date, subscriber) pair. Failed attempts may be superseded.
func (o DeliveryOutcome) Terminal() bool {
	return o == DeliverySent || o == DeliverySkipped
}

// DeliveryRecord holds the delivery outcome for one (run date, subscriber)
// pair. The composite unique index guarantees a single row per pair;
// retried failures are upserted in place.
type DeliveryRecord struct {
	ID           uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	RunDate      string          `json:"run_date" gorm:"type:varchar(10);not null;uniqueIndex:idx_delivery_run_subscriber,priority:1"`
	SubscriberID uint            `json:"subscriber_id" gorm:"not null;uniqueIndex:idx_delivery_run_subscriber,priority:2"`
	Email        string          `json:"email" gorm:"type:varchar(255);not null"`
	Outcome      DeliveryOutcome `json:"outcome" gorm:"type:varchar(20);not null"`
	ErrorMsg     string          `json:"error_msg,omitempty" gorm:"type:text"`
	Attempts     int             `json:"attempts"`
	AttemptedAt  time.Time       `json:"attempted_at"`
}

// TableName specifies the table name for DeliveryRecord
func (DeliveryRecord) TableName() string {
	return "delivery_records"
}
