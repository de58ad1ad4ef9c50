// Package search implements the client for the external news search API.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bluevlad/HealthPulse/internal/config"
)

var (
	// ErrSourceUnavailable covers network failures and non-success
	// responses after the client's own retry budget is exhausted.
	ErrSourceUnavailable = errors.New("news source unavailable")
	// ErrSourceRateLimited is surfaced separately so the orchestrator
	// can apply a longer backoff before the next scheduled attempt.
	ErrSourceRateLimited = errors.New("news source rate limited")
)

// RawArticle is one candidate item from the search API.
type RawArticle struct {
	Title        string
	Description  string
	Link         string
	OriginalLink string
	Source       string
	PubDate      *time.Time
}

// Result is one page of search results.
type Result struct {
	Items   []RawArticle
	HasMore bool
}

// The API caps paging at the first 1000 results.
const maxStart = 1000

// Client queries the news search API with header credentials. Pages are
// fetched one at a time and a retry restarts from page 1; there is no
// mid-page resume.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	pageSize     int
	retryCount   int
	httpClient   *http.Client
}

// NewClient creates a search client from configuration.
func NewClient(cfg config.NaverConfig) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		pageSize:     pageSize,
		retryCount:   retryCount,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

type searchResponse struct {
	Total   int `json:"total"`
	Start   int `json:"start"`
	Display int `json:"display"`
	Items   []struct {
		Title        string `json:"title"`
		OriginalLink string `json:"originallink"`
		Link         string `json:"link"`
		Description  string `json:"description"`
		PubDate      string `json:"pubDate"`
	} `json:"items"`
}

// Search fetches one page (1-based) of results for a query, with an
// internal retry budget for transient failures.
func (c *Client) Search(ctx context.Context, query string, page int) (Result, error) {
	if page < 1 {
		page = 1
	}
	start := (page-1)*c.pageSize + 1
	if start > maxStart {
		return Result{}, nil
	}

	var lastErr error
	for attempt := 0; attempt < c.retryCount; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt*attempt) * time.Second
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return Result{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, ctx.Err())
			}
		}

		result, retryable, err := c.searchOnce(ctx, query, start)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return Result{}, err
		}
		lastErr = err
		logrus.Warnf("Search %q attempt %d/%d failed: %v", query, attempt+1, c.retryCount, err)
	}

	return Result{}, lastErr
}

func (c *Client) searchOnce(ctx context.Context, query string, start int) (Result, bool, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(c.pageSize))
	params.Set("start", strconv.Itoa(start))
	params.Set("sort", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, false, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("X-Naver-Client-Id", c.clientID)
	req.Header.Set("X-Naver-Client-Secret", c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, true, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, false, fmt.Errorf("%w: status %d", ErrSourceRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return Result{}, true, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		// 4xx other than 429 will not heal on retry.
		return Result{}, false, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, true, fmt.Errorf("%w: decode response: %v", ErrSourceUnavailable, err)
	}

	items := make([]RawArticle, 0, len(body.Items))
	for _, item := range body.Items {
		items = append(items, RawArticle{
			Title:        cleanHTML(item.Title),
			Description:  cleanHTML(item.Description),
			Link:         item.Link,
			OriginalLink: item.OriginalLink,
			Source:       extractSource(item.OriginalLink),
			PubDate:      parsePubDate(item.PubDate),
		})
	}

	next := start + body.Display
	hasMore := body.Display > 0 && next <= body.Total && next <= maxStart

	return Result{Items: items, HasMore: hasMore}, false, nil
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

var entityReplacer = strings.NewReplacer(
	"&quot;", `"`,
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&apos;", "'",
	"&nbsp;", " ",
)

// cleanHTML strips markup tags and common entities from API text fields.
func cleanHTML(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(entityReplacer.Replace(tagPattern.ReplaceAllString(text, "")))
}

// extractSource derives the publisher from the original article domain.
func extractSource(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// parsePubDate parses the RFC 2822 style timestamp the API emits,
// e.g. "Mon, 06 Jan 2025 09:00:00 +0900".
func parsePubDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC1123Z, raw)
	if err != nil {
		logrus.Debugf("Failed to parse pubDate %q: %v", raw, err)
		return nil
	}
	return &t
}
