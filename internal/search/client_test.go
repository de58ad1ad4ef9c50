package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluevlad/HealthPulse/internal/config"
)

func testClient(baseURL string) *Client {
	return NewClient(config.NaverConfig{
		BaseURL:      baseURL,
		ClientID:     "id",
		ClientSecret: "secret",
		PageSize:     10,
		RetryCount:   3,
		Timeout:      5 * time.Second,
	})
}

func TestSearchParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id", r.Header.Get("X-Naver-Client-Id"))
		assert.Equal(t, "secret", r.Header.Get("X-Naver-Client-Secret"))
		assert.Equal(t, "health", r.URL.Query().Get("query"))
		assert.Equal(t, "10", r.URL.Query().Get("display"))
		assert.Equal(t, "1", r.URL.Query().Get("start"))
		assert.Equal(t, "date", r.URL.Query().Get("sort"))

		fmt.Fprint(w, `{
			"total": 25, "start": 1, "display": 10,
			"items": [{
				"title": "<b>Diagnostic</b> kit &quot;approved&quot;",
				"originallink": "https://www.publisher.com/story/1",
				"link": "https://news.example.com/1",
				"description": "A new <b>kit</b> was cleared.",
				"pubDate": "Mon, 06 Jan 2025 09:00:00 +0900"
			}]
		}`)
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).Search(context.Background(), "health", 1)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	item := result.Items[0]
	assert.Equal(t, `Diagnostic kit "approved"`, item.Title)
	assert.Equal(t, "A new kit was cleared.", item.Description)
	assert.Equal(t, "https://news.example.com/1", item.Link)
	assert.Equal(t, "publisher.com", item.Source)
	require.NotNil(t, item.PubDate)
	assert.Equal(t, 2025, item.PubDate.Year())
	assert.True(t, result.HasMore)
}

func TestSearchLastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total": 12, "start": 11, "display": 2, "items": [
			{"title": "a", "link": "https://x/1", "description": ""},
			{"title": "b", "link": "https://x/2", "description": ""}
		]}`)
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).Search(context.Background(), "health", 2)
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
	assert.False(t, result.HasMore)
}

func TestSearchRateLimitedNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Search(context.Background(), "health", 1)
	assert.ErrorIs(t, err, ErrSourceRateLimited)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"total": 0, "start": 1, "display": 0, "items": []}`)
	}))
	defer srv.Close()

	result, err := testClient(srv.URL).Search(context.Background(), "health", 1)
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.False(t, result.HasMore)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(config.NaverConfig{
		BaseURL:      srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		PageSize:     10,
		RetryCount:   2,
		Timeout:      5 * time.Second,
	})
	_, err := client.Search(context.Background(), "health", 1)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestSearchClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Search(context.Background(), "health", 1)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.False(t, errors.Is(err, ErrSourceRateLimited))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSearchBeyondPagingCap(t *testing.T) {
	result, err := testClient("http://unused").Search(context.Background(), "health", 200)
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.False(t, result.HasMore)
}

func TestCleanHTML(t *testing.T) {
	assert.Equal(t, `say "hi" & <bye>`, cleanHTML(`<b>say</b> &quot;hi&quot; &amp; &lt;bye&gt;`))
	assert.Equal(t, "", cleanHTML(""))
}

func TestExtractSource(t *testing.T) {
	assert.Equal(t, "publisher.com", extractSource("https://WWW.Publisher.com/a/b"))
	assert.Equal(t, "news.site.org", extractSource("http://news.site.org/x"))
	assert.Equal(t, "", extractSource(""))
	assert.Equal(t, "", extractSource("not a url"))
}
