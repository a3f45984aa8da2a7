package classify

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// ErrInvalidEncoding is returned for text that is not valid UTF-8.
var ErrInvalidEncoding = errors.New("text is not valid UTF-8")

const (
	// A negated word keeps half its strength with the sign flipped.
	negationFactor = -0.5
	// How many plain tokens a negation reaches across.
	negationWindow = 3
)

// Lexicon holds word polarities and the modifiers that adjust them.
type Lexicon struct {
	Words        map[string]float64 `yaml:"words"`
	Intensifiers map[string]float64 `yaml:"intensifiers"`
	Negations    []string           `yaml:"negations"`

	negations map[string]struct{}
}

// ParseLexicon decodes a YAML lexicon.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parsing lexicon: %w", err)
	}
	if len(lex.Words) == 0 {
		return nil, fmt.Errorf("parsing lexicon: no words")
	}
	for w, p := range lex.Words {
		if p < -1 || p > 1 {
			return nil, fmt.Errorf("parsing lexicon: polarity of %q out of range: %v", w, p)
		}
	}
	lex.negations = make(map[string]struct{}, len(lex.Negations))
	for _, n := range lex.Negations {
		lex.negations[n] = struct{}{}
	}
	return &lex, nil
}

// LexiconScorer averages the polarity of known words, flipping negated words
// and scaling intensified ones. Texts without known words score 0.
type LexiconScorer struct {
	lex *Lexicon
}

// NewLexiconScorer creates a scorer using the built-in English and Spanish
// lexicon.
func NewLexiconScorer() *LexiconScorer {
	lex, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(err)
	}
	return &LexiconScorer{lex: lex}
}

// NewLexiconScorerFrom creates a scorer using a custom lexicon.
func NewLexiconScorerFrom(lex *Lexicon) *LexiconScorer {
	return &LexiconScorer{lex: lex}
}

func (s *LexiconScorer) Polarity(ctx context.Context, text string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !utf8.ValidString(text) {
		return 0, ErrInvalidEncoding
	}

	var (
		sum, n    float64
		intensity = 1.0
		negated   = 0
	)
	for _, tok := range tokenize(text) {
		if _, ok := s.lex.negations[tok]; ok {
			negated = negationWindow
			continue
		}
		if m, ok := s.lex.Intensifiers[tok]; ok {
			intensity *= m
			continue
		}
		p, ok := s.lex.Words[tok]
		if !ok {
			if negated > 0 {
				negated--
			}
			intensity = 1
			continue
		}

		score := p * intensity
		if negated > 0 {
			score *= negationFactor
		}
		sum += score
		n++
		intensity = 1
		negated = 0
	}

	if n == 0 {
		return 0, nil
	}
	return clamp(sum / n), nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
