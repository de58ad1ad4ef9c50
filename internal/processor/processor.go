// Package processor implements the process stage: summarizing and
// classifying the backlog of collected articles.
package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"

	"github.com/bluevlad/HealthPulse/internal/classify"
	"github.com/bluevlad/HealthPulse/internal/config"
	"github.com/bluevlad/HealthPulse/internal/model"
	"github.com/bluevlad/HealthPulse/internal/summarize"
)

// ArticleStore is the slice of article persistence the processor needs.
type ArticleStore interface {
	Unprocessed(ctx context.Context, limit int) ([]model.Article, error)
	ReviveFailed(ctx context.Context) (int64, error)
	MarkSummarized(ctx context.Context, id uint, summary string, category model.Category) error
	RecordFailure(ctx context.Context, id uint, maxRetries int) (model.ArticleStatus, error)
	CountSummarizedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// Summarizer is the language-model collaborator.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxLen int) (string, error)
}

// Processor summarizes every article still in the collected state. The
// backlog is deliberately not scoped to the run date: whatever is
// pending gets caught up, which is what makes retries safe across day
// boundaries.
type Processor struct {
	store      ArticleStore
	summarizer Summarizer
	classifier *classify.Classifier
	cfg        config.PipelineConfig
	maxChars   int
	httpClient *http.Client
}

// New creates a processor.
func New(store ArticleStore, summarizer Summarizer, classifier *classify.Classifier, pipelineCfg config.PipelineConfig, openaiCfg config.OpenAIConfig) *Processor {
	return &Processor{
		store:      store,
		summarizer: summarizer,
		classifier: classifier,
		cfg:        pipelineCfg,
		maxChars:   openaiCfg.MaxSummaryChars,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Process summarizes the backlog under a bounded worker pool. One
// article's failure never aborts the batch; only an unreachable model
// endpoint is stage-fatal. The skipped count reports articles in the
// day's window that a previous attempt already summarized.
func (p *Processor) Process(ctx context.Context, day time.Time) (model.ProcessCounts, error) {
	var counts model.ProcessCounts

	if p.cfg.RetryFailedArticles {
		revived, err := p.store.ReviveFailed(ctx)
		if err != nil {
			return counts, err
		}
		if revived > 0 {
			logrus.Infof("Revived %d failed articles for a fresh retry cycle", revived)
		}
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	skipped, err := p.store.CountSummarizedBetween(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return counts, err
	}
	counts.Skipped = int(skipped)

	articles, err := p.store.Unprocessed(ctx, p.cfg.BatchLimit)
	if err != nil {
		return counts, err
	}
	if len(articles) == 0 {
		logrus.Warn("No articles pending summarization")
		return counts, nil
	}

	logrus.Infof("Summarizing %d articles", len(articles))

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	concurrency := p.cfg.SummarizeConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		fatalErr error
	)
	sem := make(chan struct{}, concurrency)

	for _, article := range articles {
		if poolCtx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(a model.Article) {
			defer wg.Done()
			defer func() { <-sem }()

			err := p.processOne(poolCtx, a)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				counts.Summarized++
			case errors.Is(err, summarize.ErrModelUnavailable):
				if fatalErr == nil {
					fatalErr = err
					cancel()
				}
			default:
				counts.Failed++
			}
		}(article)
	}

	wg.Wait()

	if fatalErr != nil {
		return counts, fatalErr
	}

	logrus.Infof("Process for %s done: summarized=%d failed=%d skipped=%d",
		model.DateOf(day), counts.Summarized, counts.Failed, counts.Skipped)
	return counts, nil
}

func (p *Processor) processOne(ctx context.Context, article model.Article) error {
	body := article.Content
	if body == "" {
		body = article.Description
	}
	if p.cfg.ExtractContent && article.Content == "" {
		if extracted := p.extractContent(ctx, article.Link); extracted != "" {
			body = extracted
		}
	}

	input := fmt.Sprintf("Title: %s\n\n%s", article.Title, body)
	summary, err := p.summarizer.Summarize(ctx, input, p.maxChars)
	if err != nil {
		if errors.Is(err, summarize.ErrModelUnavailable) {
			return err
		}

		status, recordErr := p.store.RecordFailure(ctx, article.ID, p.cfg.MaxSummarizeRetries)
		if recordErr != nil {
			logrus.Errorf("Failed to record summarization failure for article %d: %v", article.ID, recordErr)
		} else if status == model.ArticleStatusFailed {
			logrus.Warnf("Article %d exhausted its retry budget, marked failed", article.ID)
		}
		return err
	}

	category := p.classifier.Classify(article.Title, article.Description)
	return p.store.MarkSummarized(ctx, article.ID, summary, category)
}

// extractContent fetches the article page and pulls readable full text.
// Best effort only: any failure falls back to the API snippet.
func (p *Processor) extractContent(ctx context.Context, link string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return ""
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		logrus.Debugf("Content fetch failed for %s: %v", link, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	doc, err := readability.FromReader(resp.Body, resp.Request.URL)
	if err != nil {
		logrus.Debugf("Content extraction failed for %s: %v", link, err)
		return ""
	}
	return strings.TrimSpace(doc.TextContent)
}
