// Package digest assembles the daily email body from the day's
// summarized articles.
package digest

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/bluevlad/HealthPulse/internal/classify"
	"github.com/bluevlad/HealthPulse/internal/model"
)

// ArticleStore is the slice of article persistence the builder needs.
type ArticleStore interface {
	SummarizedBetween(ctx context.Context, from, to time.Time) ([]model.Article, error)
}

// Entry is one article in the digest.
type Entry struct {
	Title    string
	Summary  string
	Link     string
	Source   string
	Category model.Category
}

// Digest is the assembled daily briefing.
type Digest struct {
	Date    string
	Subject string
	Entries []Entry
}

// Empty reports whether the digest has nothing to send.
func (d Digest) Empty() bool {
	return len(d.Entries) == 0
}

// Builder reads the day's summarized articles and orders them for the
// email body.
type Builder struct {
	store ArticleStore
}

// NewBuilder creates a digest builder.
func NewBuilder(store ArticleStore) *Builder {
	return &Builder{store: store}
}

// Build assembles the digest for one calendar day. Entries are ordered
// by category priority, then by collection time within a category, so
// regulatory news always leads the email.
func (b *Builder) Build(ctx context.Context, day time.Time) (Digest, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	articles, err := b.store.SummarizedBetween(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return Digest{}, err
	}

	sort.SliceStable(articles, func(i, j int) bool {
		pi, pj := classify.Priority(articles[i].Category), classify.Priority(articles[j].Category)
		if pi != pj {
			return pi < pj
		}
		return articles[i].CollectedAt.Before(articles[j].CollectedAt)
	})

	date := model.DateOf(day)
	digest := Digest{
		Date:    date,
		Subject: fmt.Sprintf("[HealthPulse] %s Daily Healthcare News Briefing", date),
		Entries: make([]Entry, 0, len(articles)),
	}
	for _, a := range articles {
		digest.Entries = append(digest.Entries, Entry{
			Title:    a.Title,
			Summary:  a.Summary,
			Link:     a.Link,
			Source:   a.Source,
			Category: a.Category,
		})
	}
	return digest, nil
}

var categoryLabels = map[model.Category]string{
	model.CategoryRegulatory: "Regulatory",
	model.CategoryMarket:     "Market",
	model.CategoryTechnology: "Technology",
	model.CategoryCompetitor: "Competitor",
	model.CategoryProduct:    "Product",
	model.CategoryGeneral:    "General",
}

var bodyTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"label": func(c model.Category) string {
		if label, ok := categoryLabels[c]; ok {
			return label
		}
		return string(c)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: Arial, sans-serif; color: #222; max-width: 680px; margin: 0 auto;">
  <h1 style="font-size: 20px; border-bottom: 2px solid #2c7be5; padding-bottom: 8px;">HealthPulse Daily Briefing &middot; {{.Date}}</h1>
  {{range .Entries}}
  <div style="margin: 18px 0; padding: 12px; border-left: 3px solid #2c7be5; background: #f8f9fb;">
    <span style="font-size: 11px; color: #2c7be5; text-transform: uppercase; letter-spacing: 1px;">{{label .Category}}</span>
    <h2 style="font-size: 16px; margin: 4px 0;"><a href="{{.Link}}" style="color: #222; text-decoration: none;">{{.Title}}</a></h2>
    <p style="font-size: 14px; line-height: 1.5; margin: 6px 0;">{{.Summary}}</p>
    {{if .Source}}<span style="font-size: 12px; color: #888;">{{.Source}}</span>{{end}}
  </div>
  {{end}}
  <p style="font-size: 12px; color: #888; margin-top: 24px;">You receive this briefing because you subscribed to HealthPulse.</p>
</body>
</html>
`))

// HTML renders the digest email body.
func (d Digest) HTML() (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("failed to render digest body: %w", err)
	}
	return buf.String(), nil
}
