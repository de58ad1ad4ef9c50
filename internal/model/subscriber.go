package model

import "time"

// Subscriber represents a newsletter recipient. The mailer consumes
// subscribers read-only; management happens through the HTTP API.
type Subscriber struct {
	ID               uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Email            string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Name             string    `json:"name,omitempty" gorm:"type:varchar(100)"`
	Active           bool      `json:"active" gorm:"not null;default:true"`
	UnsubscribeToken string    `json:"-" gorm:"type:varchar(64);uniqueIndex"`
	SubscribedAt     time.Time `json:"subscribed_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for Subscriber
func (Subscriber) TableName() string {
	return "subscribers"
}
