package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TobiSchelling/SentimentCrawler/internal/classify"
	"github.com/TobiSchelling/SentimentCrawler/internal/collect"
	"github.com/TobiSchelling/SentimentCrawler/internal/config"
	"github.com/TobiSchelling/SentimentCrawler/internal/llm"
)

// FromConfig wires a pipeline from configuration: the search source picks the
// client, the scoring section picks the polarity scorer.
func FromConfig(ctx context.Context, cfg *config.Config, creds *config.CredentialStore, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := NewSearchClient(cfg.Search, creds)
	if err != nil {
		return nil, err
	}
	scorer, err := NewScorer(ctx, cfg.Scoring, logger)
	if err != nil {
		return nil, err
	}

	fetcher := collect.NewFetcher(client, creds, logger.Named("fetch"))
	classifier := classify.NewClassifier(scorer, logger.Named("classify"))
	return New(fetcher, classifier, logger), nil
}

// NewSearchClient returns the client for the configured source.
func NewSearchClient(s config.Search, creds *config.CredentialStore) (collect.SearchClient, error) {
	switch s.Source {
	case "twitter":
		return collect.NewTwitterClient(s.Endpoint, creds, s.Timeout), nil
	case "feed":
		return collect.NewFeedClient(s.Feed.Instance, s.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown search source %q", s.Source)
	}
}

// NewScorer returns the configured polarity scorer. The llm scorer fails
// when no provider is reachable.
func NewScorer(ctx context.Context, s config.Scoring, logger *zap.Logger) (classify.PolarityScorer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch s.Scorer {
	case "lexicon":
		return classify.NewLexiconScorer(), nil
	case "llm":
		provider, err := llm.CreateProvider(ctx, s, logger)
		if err != nil {
			return nil, fmt.Errorf("creating llm scorer: %w", err)
		}
		return classify.NewLLMScorer(provider), nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", s.Scorer)
	}
}
