// Package classify maps normalized post text to a sentiment label using a
// pluggable polarity scorer.
package classify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

// PolarityScorer returns a polarity in [-1, 1] for a piece of text.
type PolarityScorer interface {
	Polarity(ctx context.Context, text string) (float64, error)
}

// ScorerFunc adapts a plain function to PolarityScorer.
type ScorerFunc func(ctx context.Context, text string) (float64, error)

func (f ScorerFunc) Polarity(ctx context.Context, text string) (float64, error) {
	return f(ctx, text)
}

// ErrNotANumber is returned when a scorer yields NaN.
var ErrNotANumber = errors.New("scorer returned NaN")

// ClassificationError reports that a text could not be scored.
type ClassificationError struct {
	Text string
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classifying %q: %v", truncate(e.Text, 60), e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Dropped is a post excluded from the output because it could not be scored.
// Index is the post's position in the batch passed to ClassifyAll.
type Dropped struct {
	Index int
	Post  posts.CleanedPost
	Err   *ClassificationError
}

// LabelFor maps a polarity to a label: above zero is positive, exactly zero
// is neutral, below zero is negative.
func LabelFor(polarity float64) (posts.Label, error) {
	switch {
	case math.IsNaN(polarity):
		return "", ErrNotANumber
	case polarity > 0:
		return posts.Positive, nil
	case polarity == 0:
		return posts.Neutral, nil
	default:
		return posts.Negative, nil
	}
}

// Classifier labels normalized texts. Labels are memoized per text for the
// classifier's lifetime, so repeated texts always get the same label even
// when the scorer is not deterministic.
type Classifier struct {
	scorer PolarityScorer
	logger *zap.Logger

	mu   sync.Mutex
	memo map[string]posts.Label
}

// NewClassifier creates a classifier around the given scorer.
func NewClassifier(scorer PolarityScorer, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		scorer: scorer,
		logger: logger,
		memo:   make(map[string]posts.Label),
	}
}

// Classify returns the label for one normalized text. Scorer failures are
// returned as *ClassificationError, except context cancellation which is
// returned as is.
func (c *Classifier) Classify(ctx context.Context, normalized string) (posts.Label, error) {
	c.mu.Lock()
	label, ok := c.memo[normalized]
	c.mu.Unlock()
	if ok {
		return label, nil
	}

	polarity, err := c.scorer.Polarity(ctx, normalized)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &ClassificationError{Text: normalized, Err: err}
	}

	label, err = LabelFor(polarity)
	if err != nil {
		return "", &ClassificationError{Text: normalized, Err: err}
	}

	c.logger.Debug("Classified post",
		zap.String("text", truncate(normalized, 80)),
		zap.Float64("polarity", polarity),
		zap.String("label", string(label)),
	)

	c.mu.Lock()
	c.memo[normalized] = label
	c.mu.Unlock()
	return label, nil
}

// ClassifyAll labels every post in order. Posts whose text cannot be scored
// are left out of the result and reported as dropped. Only context
// cancellation aborts the whole batch.
func (c *Classifier) ClassifyAll(ctx context.Context, in []posts.CleanedPost) ([]posts.ClassifiedPost, []Dropped, error) {
	out := make([]posts.ClassifiedPost, 0, len(in))
	var dropped []Dropped

	for i, p := range in {
		label, err := c.Classify(ctx, p.NormalizedText)
		if err != nil {
			var cerr *ClassificationError
			if !errors.As(err, &cerr) {
				return nil, nil, err
			}
			c.logger.Warn("Dropping unclassifiable post", zap.Error(cerr))
			dropped = append(dropped, Dropped{Index: i, Post: p, Err: cerr})
			continue
		}
		out = append(out, p.WithLabel(label))
	}

	return out, dropped, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
