package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bluevlad/HealthPulse/internal/model"
)

// SubscriberRepository manages newsletter recipients.
type SubscriberRepository struct {
	db *gorm.DB
}

func NewSubscriberRepository(db *gorm.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// Active returns every subscriber eligible to receive the digest.
func (r *SubscriberRepository) Active(ctx context.Context) ([]model.Subscriber, error) {
	var subscribers []model.Subscriber
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&subscribers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active subscribers: %w", err)
	}
	return subscribers, nil
}

// List returns all subscribers.
func (r *SubscriberRepository) List(ctx context.Context) ([]model.Subscriber, error) {
	var subscribers []model.Subscriber
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&subscribers).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return subscribers, nil
}

// Get returns a subscriber by id, or nil when not found.
func (r *SubscriberRepository) Get(ctx context.Context, id uint) (*model.Subscriber, error) {
	var subscriber model.Subscriber
	err := r.db.WithContext(ctx).First(&subscriber, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriber %d: %w", id, err)
	}
	return &subscriber, nil
}

// Create registers a new subscriber with a fresh unsubscribe token.
func (r *SubscriberRepository) Create(ctx context.Context, subscriber *model.Subscriber) error {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return fmt.Errorf("failed to generate unsubscribe token: %w", err)
	}
	subscriber.UnsubscribeToken = hex.EncodeToString(token)
	subscriber.SubscribedAt = time.Now()

	if err := r.db.WithContext(ctx).Create(subscriber).Error; err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	return nil
}

// SetActive flips the active flag.
func (r *SubscriberRepository) SetActive(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.Subscriber{}).
		Where("id = ?", id).
		Update("active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update subscriber %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeactivateByToken deactivates the subscriber holding the unsubscribe
// token, returning false when the token is unknown.
func (r *SubscriberRepository) DeactivateByToken(ctx context.Context, token string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscriber{}).
		Where("unsubscribe_token = ?", token).
		Update("active", false)
	if result.Error != nil {
		return false, fmt.Errorf("failed to unsubscribe by token: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete removes a subscriber.
func (r *SubscriberRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&model.Subscriber{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete subscriber %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
