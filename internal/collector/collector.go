// Package collector implements the collect stage: it pulls candidate
// articles from the search API, runs them through deduplication, and
// persists the new ones.
package collector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bluevlad/HealthPulse/internal/config"
	"github.com/bluevlad/HealthPulse/internal/dedup"
	"github.com/bluevlad/HealthPulse/internal/model"
	"github.com/bluevlad/HealthPulse/internal/search"
)

// SearchClient is the external search collaborator.
type SearchClient interface {
	Search(ctx context.Context, query string, page int) (search.Result, error)
}

// ArticleStore is the slice of article persistence the collector needs.
type ArticleStore interface {
	ExistingKeys(ctx context.Context, since time.Time) (map[string]struct{}, error)
	Create(ctx context.Context, article *model.Article) error
}

// Collector fetches, deduplicates, and stores candidate articles. It
// never touches DailyRun state; that bookkeeping belongs to the
// orchestrator.
type Collector struct {
	client      SearchClient
	store       ArticleStore
	queries     []string
	maxPages    int
	dedupWindow time.Duration
}

// New creates a collector.
func New(client SearchClient, store ArticleStore, naverCfg config.NaverConfig, pipelineCfg config.PipelineConfig) *Collector {
	maxPages := naverCfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	windowDays := pipelineCfg.DedupWindowDays
	if windowDays <= 0 {
		windowDays = 7
	}
	return &Collector{
		client:      client,
		store:       store,
		queries:     naverCfg.Queries,
		maxPages:    maxPages,
		dedupWindow: time.Duration(windowDays) * 24 * time.Hour,
	}
}

// Collect queries every configured topic, deduplicates each candidate
// against the rolling-window key set, and persists new articles with
// status collected. A source failure aborts the stage; the next attempt
// restarts from page 1 and the dedup keys absorb the overlap.
func (c *Collector) Collect(ctx context.Context, day time.Time) (model.CollectCounts, error) {
	var counts model.CollectCounts

	now := time.Now()
	existing, err := c.store.ExistingKeys(ctx, now.Add(-c.dedupWindow))
	if err != nil {
		return counts, err
	}

	for _, query := range c.queries {
		logrus.Infof("Collecting query %q", query)

		for page := 1; page <= c.maxPages; page++ {
			result, err := c.client.Search(ctx, query, page)
			if err != nil {
				return counts, err
			}

			for _, item := range result.Items {
				counts.Fetched++

				candidate := dedup.Candidate{
					URL:         item.Link,
					Title:       item.Title,
					Description: item.Description,
				}
				if dedup.IsDuplicate(candidate, existing) {
					counts.Duplicate++
					continue
				}

				article := &model.Article{
					Title:        item.Title,
					Description:  item.Description,
					Link:         dedup.NormalizeURL(item.Link),
					OriginalLink: item.OriginalLink,
					Source:       item.Source,
					Keyword:      query,
					Category:     model.CategoryGeneral,
					ContentHash:  dedup.ContentHash(item.Title, item.Description),
					PubDate:      item.PubDate,
					Status:       model.ArticleStatusCollected,
					CollectedAt:  now,
				}
				if err := c.store.Create(ctx, article); err != nil {
					logrus.Errorf("Failed to store article %q: %v", item.Title, err)
					continue
				}

				counts.New++
				for _, key := range candidate.Keys() {
					existing[key] = struct{}{}
				}
			}

			if !result.HasMore {
				break
			}
		}
	}

	logrus.Infof("Collect for %s done: fetched=%d new=%d duplicate=%d",
		model.DateOf(day), counts.Fetched, counts.New, counts.Duplicate)
	return counts, nil
}
