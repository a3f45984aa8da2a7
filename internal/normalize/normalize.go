// Package normalize strips non-semantic tokens from post text.
//
// The normalization contract: text is lowercased, then URLs, @mentions and
// #tags are removed (URLs first, so a URL containing "@" or "#" goes away as
// a whole), then whitespace runs collapse to one space and the ends are
// trimmed. Removal repeats until nothing changes, so Normalize is idempotent.
package normalize

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

const (
	wordRun = `[\p{L}\p{N}_]+`

	// RE2's \S is ASCII-only; a URL also ends at Unicode spaces and \v.
	nonSpaceRun = `[^\s\p{Z}\v\x{85}]*`
)

var (
	urlPattern     = regexp.MustCompile(`https?://` + nonSpaceRun)
	mentionPattern = regexp.MustCompile(`@` + wordRun)
	tagPattern     = regexp.MustCompile(`#` + wordRun)
)

// Normalize returns the cleaned, lowercased form of text.
func Normalize(text string) string {
	s := strings.ToLower(text)
	for {
		next := strip(s)
		if next == s {
			break
		}
		s = next
	}
	return strings.Join(strings.Fields(s), " ")
}

func strip(s string) string {
	s = urlPattern.ReplaceAllString(s, "")
	s = mentionPattern.ReplaceAllString(s, "")
	return tagPattern.ReplaceAllString(s, "")
}

// Clean normalizes a single post.
func Clean(p posts.Post) posts.CleanedPost {
	return posts.CleanedPost{RawText: p.RawText, NormalizedText: Normalize(p.RawText)}
}

// CleanAll normalizes every post, keeping the input order.
func CleanAll(in []posts.Post) []posts.CleanedPost {
	out := make([]posts.CleanedPost, len(in))
	for i, p := range in {
		out[i] = Clean(p)
	}
	return out
}
