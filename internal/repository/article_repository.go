package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bluevlad/HealthPulse/internal/model"
)

// ArticleRepository persists collected articles and their processing state.
type ArticleRepository struct {
	db *gorm.DB
}

func NewArticleRepository(db *gorm.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// ExistingKeys returns the dedup key set (normalized links and content
// hashes) of every article collected since the given time.
func (r *ArticleRepository) ExistingKeys(ctx context.Context, since time.Time) (map[string]struct{}, error) {
	var rows []struct {
		Link        string
		ContentHash string
	}
	err := r.db.WithContext(ctx).
		Model(&model.Article{}).
		Select("link", "content_hash").
		Where("collected_at >= ?", since).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load existing article keys: %w", err)
	}

	keys := make(map[string]struct{}, len(rows)*2)
	for _, row := range rows {
		if row.Link != "" {
			keys[row.Link] = struct{}{}
		}
		if row.ContentHash != "" {
			keys[row.ContentHash] = struct{}{}
		}
	}
	return keys, nil
}

// Create inserts a new article. Concurrent re-collection of the same
// link is absorbed by the unique index: the insert becomes a no-op
// instead of a duplicate row.
func (r *ArticleRepository) Create(ctx context.Context, article *model.Article) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "link"}}, DoNothing: true}).
		Create(article)
	if result.Error != nil {
		return fmt.Errorf("failed to create article: %w", result.Error)
	}
	return nil
}

// Unprocessed returns the summarization backlog: every article still in
// the collected state, regardless of run date. The backlog scan is what
// makes retries safe across day boundaries.
func (r *ArticleRepository) Unprocessed(ctx context.Context, limit int) ([]model.Article, error) {
	var articles []model.Article
	q := r.db.WithContext(ctx).
		Where("status = ?", model.ArticleStatusCollected).
		Order("collected_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to load unprocessed articles: %w", err)
	}
	return articles, nil
}

// ReviveFailed flips permanently failed articles back to collected and
// resets their retry budget. Only called when retry_failed_articles is
// enabled in config.
func (r *ArticleRepository) ReviveFailed(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Article{}).
		Where("status = ?", model.ArticleStatusFailed).
		Updates(map[string]interface{}{
			"status":      model.ArticleStatusCollected,
			"retry_count": 0,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to revive failed articles: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// MarkSummarized stores the summary, category, and processed timestamp,
// and advances the article to summarized. Guarded on the collected
// status so a concurrent re-process cannot overwrite an existing summary.
func (r *ArticleRepository) MarkSummarized(ctx context.Context, id uint, summary string, category model.Category) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.Article{}).
		Where("id = ? AND status = ?", id, model.ArticleStatusCollected).
		Updates(map[string]interface{}{
			"status":       model.ArticleStatusSummarized,
			"summary":      summary,
			"category":     category,
			"processed_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark article %d summarized: %w", id, result.Error)
	}
	return nil
}

// RecordFailure increments an article's retry count and demotes it to
// failed once the count reaches maxRetries. Returns the resulting status.
func (r *ArticleRepository) RecordFailure(ctx context.Context, id uint, maxRetries int) (model.ArticleStatus, error) {
	status := model.ArticleStatusCollected
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var article model.Article
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&article, id).Error; err != nil {
			return err
		}

		article.RetryCount++
		if article.RetryCount >= maxRetries {
			article.Status = model.ArticleStatusFailed
		}
		status = article.Status

		return tx.Model(&model.Article{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"retry_count": article.RetryCount,
				"status":      article.Status,
			}).Error
	})
	if err != nil {
		return status, fmt.Errorf("failed to record article %d failure: %w", id, err)
	}
	return status, nil
}

// SummarizedBetween returns summarized articles collected inside the
// half-open window [from, to).
func (r *ArticleRepository) SummarizedBetween(ctx context.Context, from, to time.Time) ([]model.Article, error) {
	var articles []model.Article
	err := r.db.WithContext(ctx).
		Where("status = ? AND collected_at >= ? AND collected_at < ?", model.ArticleStatusSummarized, from, to).
		Order("collected_at ASC").
		Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load summarized articles: %w", err)
	}
	return articles, nil
}

// CountSummarizedBetween counts already-summarized articles inside the
// window, reported as the process stage's skipped count.
func (r *ArticleRepository) CountSummarizedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Article{}).
		Where("status = ? AND collected_at >= ? AND collected_at < ?", model.ArticleStatusSummarized, from, to).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count summarized articles: %w", err)
	}
	return count, nil
}

// List returns articles for the HTTP API, optionally filtered by status
// and collection date.
func (r *ArticleRepository) List(ctx context.Context, date string, status model.ArticleStatus, limit int) ([]model.Article, error) {
	q := r.db.WithContext(ctx).Model(&model.Article{}).Order("collected_at DESC")

	if status != "" {
		q = q.Where("status = ?", status)
	}
	if date != "" {
		day, err := time.ParseInLocation(model.DateLayout, date, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", date, err)
		}
		q = q.Where("collected_at >= ? AND collected_at < ?", day, day.AddDate(0, 0, 1))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var articles []model.Article
	if err := q.Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}
