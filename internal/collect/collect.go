package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/SentimentCrawler/internal/config"
	"github.com/TobiSchelling/SentimentCrawler/internal/metrics"
	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

var (
	// ErrEmptyQuery is returned for a blank search term.
	ErrEmptyQuery = errors.New("search query is empty")
	// ErrInvalidLimit is returned for a non-positive result limit.
	ErrInvalidLimit = errors.New("search limit must be positive")
	// ErrMalformedResponse marks a successful response whose body does not
	// have the expected shape.
	ErrMalformedResponse = errors.New("malformed search response")
)

// FetchError reports a search request that did not succeed.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search request returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("search request failed with status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *FetchError) Unwrap() error { return e.Err }

// Malformed reports whether the request succeeded but the body was unusable.
func (e *FetchError) Malformed() bool {
	return errors.Is(e.Err, ErrMalformedResponse)
}

// SearchClient runs one search request against a remote API.
type SearchClient interface {
	Search(ctx context.Context, query, language string, limit int) ([]posts.Post, error)
}

// CredentialedClient is a SearchClient that cannot work without secrets.
type CredentialedClient interface {
	SearchClient
	RequiredCredentials() []string
}

// Fetcher validates a search and runs it through a SearchClient exactly once:
// no retries, no pagination.
type Fetcher struct {
	client SearchClient
	creds  *config.CredentialStore
	logger *zap.Logger
}

// NewFetcher creates a fetcher. creds may be nil for clients that need none.
func NewFetcher(client SearchClient, creds *config.CredentialStore, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, creds: creds, logger: logger}
}

// Fetch returns at most limit posts matching query, in API order. Missing
// credentials fail with *config.ConfigError before any request is made;
// unsuccessful responses fail with *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, query, language string, limit int) ([]posts.Post, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if limit > config.MaxSearchLimit {
		f.logger.Warn("Capping search limit", zap.Int("requested", limit), zap.Int("max", config.MaxSearchLimit))
		limit = config.MaxSearchLimit
	}

	if cc, ok := f.client.(CredentialedClient); ok {
		if err := f.creds.Require(cc.RequiredCredentials()...); err != nil {
			return nil, err
		}
	}

	f.logger.Info("Searching posts",
		zap.String("query", query),
		zap.String("language", language),
		zap.Int("limit", limit),
	)

	result, err := f.client.Search(ctx, query, language, limit)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			metrics.FetchFailures.WithLabelValues(fmt.Sprint(fe.StatusCode)).Inc()
			return nil, err
		}
		metrics.FetchFailures.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetching posts: %w", err)
	}

	if len(result) > limit {
		result = result[:limit]
	}
	metrics.PostsFetched.Add(float64(len(result)))
	f.logger.Info("Fetched posts", zap.Int("count", len(result)))
	return result, nil
}
