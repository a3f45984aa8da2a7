package classify

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

// mapScorer returns a fixed polarity per text and counts calls.
type mapScorer struct {
	scores map[string]float64
	errs   map[string]error
	calls  int
}

func (m *mapScorer) Polarity(_ context.Context, text string) (float64, error) {
	m.calls++
	if err, ok := m.errs[text]; ok {
		return 0, err
	}
	return m.scores[text], nil
}

func TestLabelForTieBreak(t *testing.T) {
	cases := []struct {
		polarity float64
		want     posts.Label
	}{
		{0.8, posts.Positive},
		{math.SmallestNonzeroFloat64, posts.Positive},
		{0, posts.Neutral},
		{math.Copysign(0, -1), posts.Neutral},
		{-0.6, posts.Negative},
		{-math.SmallestNonzeroFloat64, posts.Negative},
		{1, posts.Positive},
		{-1, posts.Negative},
	}
	for _, tc := range cases {
		got, err := LabelFor(tc.polarity)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "polarity %v", tc.polarity)
	}
}

func TestLabelForNaN(t *testing.T) {
	_, err := LabelFor(math.NaN())
	assert.ErrorIs(t, err, ErrNotANumber)
}

func TestClassify(t *testing.T) {
	scorer := &mapScorer{scores: map[string]float64{"good": 0.7, "meh": 0, "bad": -0.7}}
	c := NewClassifier(scorer, nil)

	for text, want := range map[string]posts.Label{"good": posts.Positive, "meh": posts.Neutral, "bad": posts.Negative} {
		got, err := c.Classify(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestClassifyMemoizesPerText(t *testing.T) {
	// A scorer whose answer drifts between calls.
	n := 0
	drifting := ScorerFunc(func(context.Context, string) (float64, error) {
		n++
		if n%2 == 0 {
			return -1, nil
		}
		return 1, nil
	})
	c := NewClassifier(drifting, nil)

	first, err := c.Classify(context.Background(), "same text")
	require.NoError(t, err)
	second, err := c.Classify(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, n)
}

func TestClassifyWrapsScorerError(t *testing.T) {
	boom := errors.New("boom")
	c := NewClassifier(&mapScorer{errs: map[string]error{"x": boom}}, nil)

	_, err := c.Classify(context.Background(), "x")
	var cerr *ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "x", cerr.Text)
	assert.ErrorIs(t, err, boom)
}

func TestClassifyNaNIsClassificationError(t *testing.T) {
	c := NewClassifier(&mapScorer{scores: map[string]float64{"x": math.NaN()}}, nil)

	_, err := c.Classify(context.Background(), "x")
	var cerr *ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, ErrNotANumber)
}

func TestClassifyAllDropsFailuresAndKeepsOrder(t *testing.T) {
	scorer := &mapScorer{
		scores: map[string]float64{"a": 0.5, "c": -0.2, "d": 0},
		errs:   map[string]error{"b": errors.New("cannot score")},
	}
	c := NewClassifier(scorer, nil)

	in := []posts.CleanedPost{
		{RawText: "A", NormalizedText: "a"},
		{RawText: "B", NormalizedText: "b"},
		{RawText: "C", NormalizedText: "c"},
		{RawText: "D", NormalizedText: "d"},
	}
	out, dropped, err := c.ClassifyAll(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, []posts.ClassifiedPost{
		{RawText: "A", NormalizedText: "a", Label: posts.Positive},
		{RawText: "C", NormalizedText: "c", Label: posts.Negative},
		{RawText: "D", NormalizedText: "d", Label: posts.Neutral},
	}, out)
	require.Len(t, dropped, 1)
	assert.Equal(t, "B", dropped[0].Post.RawText)
	assert.Equal(t, 1, dropped[0].Index)
	assert.Equal(t, "b", dropped[0].Err.Text)
}

func TestClassifyAllStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClassifier(NewLexiconScorer(), nil)
	_, _, err := c.ClassifyAll(ctx, []posts.CleanedPost{{NormalizedText: "good"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyEmptyText(t *testing.T) {
	c := NewClassifier(NewLexiconScorer(), nil)
	for _, text := range []string{"", "   "} {
		label, err := c.Classify(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, posts.Neutral, label)
	}
}
