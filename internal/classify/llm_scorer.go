package classify

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/TobiSchelling/SentimentCrawler/internal/llm"
)

const polarityPrompt = `Rate the sentiment polarity of this social media post.

Post:
%s

Respond with ONLY this JSON:
{"polarity": <number between -1.0 and 1.0>}

-1.0 is strongly negative, 0.0 is neutral or factual, 1.0 is strongly positive.`

// LLMScorer asks a language model for a polarity score.
type LLMScorer struct {
	provider llm.Provider
}

// NewLLMScorer creates a scorer backed by the given provider.
func NewLLMScorer(provider llm.Provider) *LLMScorer {
	return &LLMScorer{provider: provider}
}

func (s *LLMScorer) Polarity(ctx context.Context, text string) (float64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}

	resp, err := s.provider.Generate(ctx, fmt.Sprintf(polarityPrompt, text), 32)
	if err != nil {
		return 0, fmt.Errorf("generating polarity: %w", err)
	}

	parsed := llm.ParseJSONResponse(resp)
	if parsed == nil {
		return 0, fmt.Errorf("unparseable polarity response: %q", truncate(resp, 80))
	}
	v, ok := parsed["polarity"].(float64)
	if !ok {
		return 0, fmt.Errorf("polarity missing from response: %q", truncate(resp, 80))
	}
	if math.IsNaN(v) || v < -1 || v > 1 {
		return 0, fmt.Errorf("polarity out of range: %v", v)
	}
	return v, nil
}
