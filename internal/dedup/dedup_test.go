package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	// Tracking parameters and fragments never identify a different article
	assert.Equal(t,
		"https://news.example.com/articles/123",
		NormalizeURL("https://News.Example.com/articles/123/?utm_source=feed&utm_medium=rss#comments"))

	// Remaining query parameters are kept and sorted
	assert.Equal(t,
		"https://news.example.com/view?aid=9&sid=3",
		NormalizeURL("https://news.example.com/view?sid=3&aid=9&fbclid=xyz"))

	// Default ports collapse
	assert.Equal(t,
		"https://example.com/a",
		NormalizeURL("https://example.com:443/a"))
	assert.Equal(t,
		"http://example.com/a",
		NormalizeURL("http://example.com:80/a"))

	// Non-default port is preserved
	assert.Equal(t,
		"http://example.com:8080/a",
		NormalizeURL("http://example.com:8080/a/"))

	// Unparseable input falls back to the trimmed raw string
	assert.Equal(t, "not a url", NormalizeURL("  not a url "))
	assert.Equal(t, "", NormalizeURL("   "))
}

func TestNormalizeURLEquivalence(t *testing.T) {
	variants := []string{
		"https://news.example.com/story/42",
		"https://news.example.com/story/42/",
		"https://NEWS.example.com/story/42?utm_campaign=daily",
		"https://news.example.com/story/42#top",
	}
	for _, v := range variants {
		assert.Equal(t, "https://news.example.com/story/42", NormalizeURL(v), v)
	}
}

func TestContentHash(t *testing.T) {
	// Case and surrounding whitespace do not change the hash
	a := ContentHash("New Diagnostic Kit Approved", "The FDA cleared the kit.")
	b := ContentHash("  new diagnostic kit approved", "the fda cleared the kit.  ")
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)

	// A different description is a different story
	c := ContentHash("New Diagnostic Kit Approved", "The kit was recalled.")
	assert.NotEqual(t, a, c)

	assert.Empty(t, ContentHash("", ""))
}

func TestCandidateKeys(t *testing.T) {
	withURL := Candidate{
		URL:         "https://example.com/a?utm_source=x",
		Title:       "Shared Headline",
		Description: "body",
	}
	keys := withURL.Keys()
	assert.Len(t, keys, 2)
	assert.Equal(t, "https://example.com/a", keys[0])

	// Title key only appears when no URL is available
	noURL := Candidate{Title: "Shared   Headline", Description: "body"}
	keys = noURL.Keys()
	assert.Len(t, keys, 2)
	assert.Equal(t, "title:shared headline", keys[0])
}

func TestIsDuplicate(t *testing.T) {
	existing := map[string]struct{}{
		"https://example.com/a": {},
	}

	dup := Candidate{URL: "https://example.com/a/?utm_medium=email", Title: "t", Description: "d"}
	assert.True(t, IsDuplicate(dup, existing))

	fresh := Candidate{URL: "https://example.com/b", Title: "t2", Description: "d2"}
	assert.False(t, IsDuplicate(fresh, existing))

	// Same story republished under a different URL matches via content hash
	existing[ContentHash("t2", "d2")] = struct{}{}
	assert.True(t, IsDuplicate(fresh, existing))

	// Two different articles sharing a headline are not conflated when
	// both carry URLs
	one := Candidate{URL: "https://example.com/x", Title: "Same Headline", Description: "first body"}
	two := Candidate{URL: "https://example.com/y", Title: "Same Headline", Description: "second body"}
	set := map[string]struct{}{}
	for _, k := range one.Keys() {
		set[k] = struct{}{}
	}
	assert.False(t, IsDuplicate(two, set))
}
