package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

// FeedClient searches a Mastodon-style instance through its public hashtag
// RSS feed. It needs no credentials. Feed items carry no language, so the
// language filter is not applied.
type FeedClient struct {
	instance string
	parser   *gofeed.Parser
}

// NewFeedClient creates a client for the given instance base URL.
func NewFeedClient(instance string, timeout time.Duration) *FeedClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "SentimentCrawler/1.0"
	return &FeedClient{instance: strings.TrimRight(instance, "/"), parser: parser}
}

// FeedURL returns the hashtag feed URL for a query.
func (c *FeedClient) FeedURL(query string) string {
	tag := strings.TrimPrefix(strings.TrimSpace(query), "#")
	return c.instance + "/tags/" + url.PathEscape(tag) + ".rss"
}

// Search reads the hashtag feed once and returns up to limit posts in feed
// order.
func (c *FeedClient) Search(ctx context.Context, query, _ string, limit int) ([]posts.Post, error) {
	feed, err := c.parser.ParseURLWithContext(c.FeedURL(query), ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &FetchError{StatusCode: httpErr.StatusCode}
		}
		if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
			return nil, &FetchError{StatusCode: http.StatusOK, Err: fmt.Errorf("%w: not a feed", ErrMalformedResponse)}
		}
		return nil, fmt.Errorf("reading feed: %w", err)
	}

	var out []posts.Post
	for _, item := range feed.Items {
		if len(out) >= limit {
			break
		}
		body := item.Description
		if body == "" {
			body = item.Content
		}
		text := htmlToText(body)
		if text == "" {
			continue
		}
		out = append(out, posts.Post{RawText: text})
	}
	return out, nil
}

// htmlToText flattens post HTML to text, keeping paragraph and line breaks
// as spaces.
func htmlToText(html string) string {
	if !strings.Contains(html, "<") {
		return strings.Join(strings.Fields(html), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find("p").AppendHtml(" ")
	return strings.Join(strings.Fields(doc.Text()), " ")
}
