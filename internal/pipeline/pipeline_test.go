package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/SentimentCrawler/internal/classify"
	"github.com/TobiSchelling/SentimentCrawler/internal/collect"
	"github.com/TobiSchelling/SentimentCrawler/internal/config"
	"github.com/TobiSchelling/SentimentCrawler/internal/llm"
	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

type stubClient struct {
	result []posts.Post
	err    error
	calls  int
}

func (s *stubClient) Search(context.Context, string, string, int) ([]posts.Post, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubClient) RequiredCredentials() []string { return config.SearchCredentialNames }

func allCreds() *config.CredentialStore {
	return config.NewCredentialStore(map[string]string{
		config.APIKey:            "k",
		config.APIKeySecret:      "s",
		config.AccessToken:       "t",
		config.AccessTokenSecret: "ts",
	})
}

// tableScorer scores by exact normalized text and fails on anything else.
func tableScorer(table map[string]float64) classify.PolarityScorer {
	return classify.ScorerFunc(func(_ context.Context, text string) (float64, error) {
		v, ok := table[text]
		if !ok {
			return 0, fmt.Errorf("no score for %q", text)
		}
		return v, nil
	})
}

func newTestPipeline(client collect.SearchClient, creds *config.CredentialStore, scorer classify.PolarityScorer) *Pipeline {
	return New(collect.NewFetcher(client, creds, nil), classify.NewClassifier(scorer, nil), nil)
}

func TestRunEndToEnd(t *testing.T) {
	client := &stubClient{result: []posts.Post{
		{RawText: "I love Colapinto! #f1"},
		{RawText: "http://x.co terrible race @driver"},
		{RawText: "ok"},
	}}
	scorer := tableScorer(map[string]float64{
		"i love colapinto!": 0.8,
		"terrible race":     -0.6,
		"ok":                0,
	})

	res, err := newTestPipeline(client, allCreds(), scorer).Run(context.Background(),
		Request{Query: "Colapinto", Language: "es", Limit: 100})
	require.NoError(t, err)

	var labels []posts.Label
	for _, p := range res.Report.Posts {
		labels = append(labels, p.Label)
	}
	assert.Equal(t, []posts.Label{posts.Positive, posts.Negative, posts.Neutral}, labels)
	assert.Equal(t, "I love Colapinto! #f1", res.Report.Posts[0].RawText)
	assert.Equal(t, "terrible race", res.Report.Posts[1].NormalizedText)

	counts := res.Report.Summary.Counts
	assert.Equal(t, 1, counts[posts.Positive])
	assert.Equal(t, 1, counts[posts.Neutral])
	assert.Equal(t, 1, counts[posts.Negative])
	assert.Equal(t, 3, res.Report.Summary.Total())

	require.Len(t, res.Steps, 4)
	for i, name := range []string{"Fetch", "Normalize", "Classify", "Aggregate"} {
		assert.Equal(t, name, res.Steps[i].Name)
		assert.NoError(t, res.Steps[i].Err)
	}
	assert.Empty(t, res.Dropped)
	assert.Len(t, res.Cleaned, 3)
}

func TestRunDropsUnscorablePosts(t *testing.T) {
	client := &stubClient{result: []posts.Post{{RawText: "great"}, {RawText: "???"}}}
	scorer := tableScorer(map[string]float64{"great": 0.9})

	res, err := newTestPipeline(client, allCreds(), scorer).Run(context.Background(),
		Request{Query: "q", Limit: 10})
	require.NoError(t, err)

	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "???", res.Dropped[0].Post.RawText)
	assert.Equal(t, 1, res.Dropped[0].Index)
	assert.Equal(t, 1, res.Report.Summary.Total())
	assert.Len(t, res.Report.Posts, 1)
}

func TestRunEmptyResult(t *testing.T) {
	res, err := newTestPipeline(&stubClient{}, allCreds(), tableScorer(nil)).Run(context.Background(),
		Request{Query: "nothing", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Report.Posts)
	assert.Equal(t, 0, res.Report.Summary.Total())
	assert.Empty(t, res.Report.Summary.Dominant())
}

func TestRunFetchFailureProducesNoOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := collect.NewTwitterClient(srv.URL, allCreds(), 0)
	res, err := newTestPipeline(client, allCreds(), tableScorer(nil)).Run(context.Background(),
		Request{Query: "Colapinto", Language: "es", Limit: 100})

	var fe *collect.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.Nil(t, res.Report.Posts)
	assert.Nil(t, res.Cleaned)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "Fetch", res.Steps[0].Name)
	assert.Equal(t, "request failed with status 503", Describe(err))
}

func TestRunMissingCredentialMakesNoRequest(t *testing.T) {
	client := &stubClient{result: []posts.Post{{RawText: "x"}}}
	creds := config.NewCredentialStore(map[string]string{
		config.APIKey:       "k",
		config.APIKeySecret: "s",
		config.AccessToken:  "t",
	})

	res, err := newTestPipeline(client, creds, tableScorer(nil)).Run(context.Background(),
		Request{Query: "Colapinto", Limit: 10})

	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{config.AccessTokenSecret}, cfgErr.Missing)
	assert.Zero(t, client.calls)
	assert.Nil(t, res.Report.Posts)
	assert.Equal(t, "missing credentials: ACCESS_TOKEN_SECRET", Describe(err))
}

func TestRunCancelledContextAbortsClassification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &stubClient{result: []posts.Post{{RawText: "a"}, {RawText: "b"}}}
	scorer := classify.ScorerFunc(func(ctx context.Context, _ string) (float64, error) {
		cancel()
		return 0, ctx.Err()
	})

	_, err := newTestPipeline(client, allCreds(), scorer).Run(ctx, Request{Query: "q", Limit: 10})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&config.ConfigError{Missing: []string{"API_KEY", "ACCESS_TOKEN"}}, "missing credentials: API_KEY, ACCESS_TOKEN"},
		{&collect.FetchError{StatusCode: 401}, "request failed with status 401"},
		{fmt.Errorf("wrapped: %w", &collect.FetchError{StatusCode: 429}), "request failed with status 429"},
		{collect.ErrEmptyQuery, "invalid request: search query is empty"},
		{fmt.Errorf("fetching posts: %w", errors.New("dial tcp: refused")), "unexpected error: fetching posts: dial tcp: refused"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Describe(tt.err))
	}

	malformed := &collect.FetchError{StatusCode: 200, Err: fmt.Errorf("%w: missing statuses", collect.ErrMalformedResponse)}
	assert.Equal(t, "request failed with status 200: malformed search response: missing statuses", Describe(malformed))
}

func TestNewSearchClient(t *testing.T) {
	c, err := NewSearchClient(config.Search{Source: "twitter"}, allCreds())
	require.NoError(t, err)
	assert.IsType(t, &collect.TwitterClient{}, c)

	c, err = NewSearchClient(config.Search{Source: "feed", Feed: config.FeedSource{Instance: "https://mastodon.example"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &collect.FeedClient{}, c)

	_, err = NewSearchClient(config.Search{Source: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}

func TestNewScorer(t *testing.T) {
	s, err := NewScorer(context.Background(), config.Scoring{Scorer: "lexicon"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &classify.LexiconScorer{}, s)

	_, err = NewScorer(context.Background(), config.Scoring{Scorer: "coin-flip"}, nil)
	assert.Error(t, err)
}

func TestNewScorerWithoutProvider(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	t.Setenv("SENTIMENTCRAWLER_TEST_OPENAI_KEY", "")

	_, err := NewScorer(context.Background(), config.Scoring{
		Scorer:    "llm",
		Provider:  "ollama",
		Model:     "qwen2.5:7b",
		OllamaURL: down.URL,
		APIKeyEnv: "SENTIMENTCRAWLER_TEST_OPENAI_KEY",
	}, nil)
	assert.ErrorIs(t, err, llm.ErrNoProvider)
}

func TestFromConfigDefault(t *testing.T) {
	cfg := config.Default()
	p, err := FromConfig(context.Background(), cfg, allCreds(), nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
}
