package model

import "time"

// ArticleStatus is the processing state of a collected article.
type ArticleStatus string

const (
	ArticleStatusCollected  ArticleStatus = "collected"
	ArticleStatusSummarized ArticleStatus = "summarized"
	ArticleStatusFailed     ArticleStatus = "failed"
)

// Valid reports whether s is one of the known article statuses.
func (s ArticleStatus) Valid() bool {
	switch s {
	case ArticleStatusCollected, ArticleStatusSummarized, ArticleStatusFailed:
		return true
	}
	return false
}

// Category is the editorial bucket an article is classified into.
type Category string

const (
	CategoryRegulatory Category = "regulatory"
	CategoryMarket     Category = "market"
	CategoryTechnology Category = "technology"
	CategoryCompetitor Category = "competitor"
	CategoryProduct    Category = "product"
	CategoryGeneral    Category = "general"
)

// Article represents one collected news item. Rows are created by the
// collector, mutated only by the processor, and never deleted.
type Article struct {
	ID           uint          `json:"id" gorm:"primaryKey;autoIncrement"`
	Title        string        `json:"title" gorm:"type:varchar(500);not null"`
	Description  string        `json:"description" gorm:"type:text"`
	Content      string        `json:"content,omitempty" gorm:"type:text"`
	Link         string        `json:"link" gorm:"type:varchar(750);not null;uniqueIndex"`
	OriginalLink string        `json:"original_link,omitempty" gorm:"type:varchar(1000)"`
	Source       string        `json:"source,omitempty" gorm:"type:varchar(100)"`
	Keyword      string        `json:"keyword,omitempty" gorm:"type:varchar(100);index"`
	Category     Category      `json:"category" gorm:"type:varchar(20);not null;default:'general';index"`
	ContentHash  string        `json:"-" gorm:"type:varchar(64);index"`
	PubDate      *time.Time    `json:"pub_date,omitempty"`
	Status       ArticleStatus `json:"status" gorm:"type:varchar(20);not null;default:'collected';index"`
	Summary      string        `json:"summary,omitempty" gorm:"type:text"`
	RetryCount   int           `json:"retry_count"`
	CollectedAt  time.Time     `json:"collected_at" gorm:"index"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty"`
}

// TableName specifies the table name for Article
func (Article) TableName() string {
	return "articles"
}
