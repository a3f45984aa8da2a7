package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/SentimentCrawler/internal/aggregate"
	"github.com/TobiSchelling/SentimentCrawler/internal/classify"
	"github.com/TobiSchelling/SentimentCrawler/internal/collect"
	"github.com/TobiSchelling/SentimentCrawler/internal/config"
	"github.com/TobiSchelling/SentimentCrawler/internal/metrics"
	"github.com/TobiSchelling/SentimentCrawler/internal/normalize"
	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

// Request describes one search to run.
type Request struct {
	Query    string
	Language string
	Limit    int
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name     string
	Summary  string
	Err      error
	Duration time.Duration
}

// Result holds the results of a full pipeline run. When Run fails, only
// Request, Steps and timing are set.
type Result struct {
	Request   Request
	Steps     []StepResult
	Cleaned   []posts.CleanedPost
	Dropped   []classify.Dropped
	Report    aggregate.Report
	StartedAt time.Time
	Duration  time.Duration
}

// Pipeline runs fetch, normalize, classify and aggregate in order.
type Pipeline struct {
	fetcher    *collect.Fetcher
	classifier *classify.Classifier
	logger     *zap.Logger
}

// New creates a new pipeline.
func New(fetcher *collect.Fetcher, classifier *classify.Classifier, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{fetcher: fetcher, classifier: classifier, logger: logger}
}

// Run executes the four steps. A credential, fetch or unexpected error stops
// the run and no classified output is produced; posts the scorer cannot
// handle are dropped and reported in Result.Dropped.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	r := &Result{Request: req, StartedAt: time.Now()}
	err := p.run(ctx, r)
	r.Duration = time.Since(r.StartedAt)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RunDuration.WithLabelValues(outcome).Observe(r.Duration.Seconds())
	return r, err
}

func (p *Pipeline) run(ctx context.Context, r *Result) error {
	// Step 1: Fetch
	fetched, step := p.runFetch(ctx, r.Request)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return step.Err
	}

	// Step 2: Normalize
	cleaned, step := p.runNormalize(fetched)
	r.Steps = append(r.Steps, step)

	// Step 3: Classify
	classified, dropped, step := p.runClassify(ctx, cleaned)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return step.Err
	}

	// Step 4: Aggregate
	report, step := p.runAggregate(classified)
	r.Steps = append(r.Steps, step)

	r.Cleaned = cleaned
	r.Dropped = dropped
	r.Report = report
	return nil
}

func (p *Pipeline) runFetch(ctx context.Context, req Request) ([]posts.Post, StepResult) {
	p.logger.Info("Step 1/4: Fetching posts...")
	start := time.Now()
	fetched, err := p.fetcher.Fetch(ctx, req.Query, req.Language, req.Limit)
	step := StepResult{Name: "Fetch", Err: err, Duration: time.Since(start)}
	if err == nil {
		step.Summary = fmt.Sprintf("Fetched %d posts for %q", len(fetched), req.Query)
	}
	return fetched, step
}

func (p *Pipeline) runNormalize(fetched []posts.Post) ([]posts.CleanedPost, StepResult) {
	p.logger.Info("Step 2/4: Normalizing posts...")
	start := time.Now()
	cleaned := normalize.CleanAll(fetched)

	empty := 0
	for _, c := range cleaned {
		if c.NormalizedText == "" {
			empty++
		}
	}
	return cleaned, StepResult{
		Name:     "Normalize",
		Summary:  fmt.Sprintf("Normalized %d posts (%d empty after cleaning)", len(cleaned), empty),
		Duration: time.Since(start),
	}
}

func (p *Pipeline) runClassify(ctx context.Context, cleaned []posts.CleanedPost) ([]posts.ClassifiedPost, []classify.Dropped, StepResult) {
	p.logger.Info("Step 3/4: Classifying posts...")
	start := time.Now()
	classified, dropped, err := p.classifier.ClassifyAll(ctx, cleaned)
	step := StepResult{Name: "Classify", Err: err, Duration: time.Since(start)}
	if err != nil {
		return nil, nil, step
	}

	for _, c := range classified {
		metrics.PostsClassified.WithLabelValues(string(c.Label)).Inc()
	}
	metrics.ClassificationErrors.Add(float64(len(dropped)))

	step.Summary = fmt.Sprintf("Classified %d posts, %d dropped", len(classified), len(dropped))
	return classified, dropped, step
}

func (p *Pipeline) runAggregate(classified []posts.ClassifiedPost) (aggregate.Report, StepResult) {
	p.logger.Info("Step 4/4: Aggregating labels...")
	start := time.Now()
	report := aggregate.NewReport(classified)
	s := report.Summary
	return report, StepResult{
		Name: "Aggregate",
		Summary: fmt.Sprintf("%d positive, %d neutral, %d negative",
			s.Counts[posts.Positive], s.Counts[posts.Neutral], s.Counts[posts.Negative]),
		Duration: time.Since(start),
	}
}

// Describe turns a run error into the message shown to the user.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var cfgErr *config.ConfigError
	var fetchErr *collect.FetchError
	switch {
	case errors.As(err, &cfgErr):
		return cfgErr.Error()
	case errors.As(err, &fetchErr):
		if fetchErr.Malformed() {
			return fmt.Sprintf("request failed with status %d: %v", fetchErr.StatusCode, fetchErr.Err)
		}
		return fmt.Sprintf("request failed with status %d", fetchErr.StatusCode)
	case errors.Is(err, collect.ErrEmptyQuery), errors.Is(err, collect.ErrInvalidLimit):
		return "invalid request: " + err.Error()
	default:
		return "unexpected error: " + err.Error()
	}
}
